package virtualmic

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// fakeControlPlane is a scripted ControlPlane. Set the result fields before
// use; inspect the recorded calls after.
type fakeControlPlane struct {
	loadErr    error
	listResult string
	listErr    error
	unloadErr  error

	loadRequests []LoadRequest
	unloadedIDs  []string
}

func (f *fakeControlPlane) LoadPipeSource(_ context.Context, req LoadRequest) error {
	f.loadRequests = append(f.loadRequests, req)
	return f.loadErr
}

func (f *fakeControlPlane) ListModules(context.Context) (string, error) {
	return f.listResult, f.listErr
}

func (f *fakeControlPlane) UnloadModule(_ context.Context, id string) error {
	f.unloadedIDs = append(f.unloadedIDs, id)
	return f.unloadErr
}

func newTestManager(t *testing.T, cp ControlPlane) (*Manager, string) {
	t.Helper()
	pipe := filepath.Join(t.TempDir(), "audio_pipe")
	return NewManager("test_virtual_mic", pipe, cp), pipe
}

func TestSetup_Success(t *testing.T) {
	cp := &fakeControlPlane{}
	m, pipe := newTestManager(t, cp)

	res, err := m.Setup(context.Background())
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if res != ResultSuccess {
		t.Fatalf("Setup result = %v, want success", res)
	}

	info, err := os.Stat(pipe)
	if err != nil {
		t.Fatalf("pipe not created: %v", err)
	}
	if info.Mode()&os.ModeNamedPipe == 0 {
		t.Errorf("%s is not a named pipe (mode %v)", pipe, info.Mode())
	}

	if len(cp.loadRequests) != 1 {
		t.Fatalf("load requests = %d, want 1", len(cp.loadRequests))
	}
	req := cp.loadRequests[0]
	if req.SourceName != "test_virtual_mic" || req.PipePath != pipe {
		t.Errorf("unexpected load request: %+v", req)
	}
	if req.Format != "s16le" || req.Rate != 44100 || req.Channels != 2 {
		t.Errorf("source format not fixed to s16le/44100/2: %+v", req)
	}
	if req.Description != "test virtual mic" {
		t.Errorf("description = %q, want underscores replaced", req.Description)
	}
}

func TestSetup_ControlPlaneRefusalDegrades(t *testing.T) {
	cp := &fakeControlPlane{loadErr: errors.New("pactl: command not found")}
	m, pipe := newTestManager(t, cp)

	res, err := m.Setup(context.Background())
	if err != nil {
		t.Fatalf("control-plane refusal must not be an error, got %v", err)
	}
	if res != ResultFailed {
		t.Fatalf("Setup result = %v, want failed", res)
	}
	// The pipe survives so the raw relay can still be wired manually.
	if _, err := os.Stat(pipe); err != nil {
		t.Errorf("pipe should exist after degraded setup: %v", err)
	}
}

func TestSetup_ReplacesStaleFile(t *testing.T) {
	cp := &fakeControlPlane{}
	m, pipe := newTestManager(t, cp)

	if err := os.WriteFile(pipe, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Setup(context.Background()); err != nil {
		t.Fatalf("Setup over stale file: %v", err)
	}
	info, err := os.Stat(pipe)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeNamedPipe == 0 {
		t.Error("stale regular file was not replaced by a pipe")
	}
}

func TestFind(t *testing.T) {
	listing := "" +
		"12\tmodule-native-protocol-unix\t\n" +
		"23\tmodule-pipe-source\tsource_name=other_mic file=/tmp/other\n" +
		"34\tmodule-pipe-source\tsource_name=test_virtual_mic file=/tmp/audio_pipe\n" +
		"45\tmodule-null-sink\tsink_name=test_virtual_mic\n"
	cp := &fakeControlPlane{listResult: listing}
	m, _ := newTestManager(t, cp)

	id, found, err := m.Find(context.Background())
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !found || id != "34" {
		t.Errorf("Find = (%q, %v), want (\"34\", true)", id, found)
	}
}

func TestFind_RequiresBothMarkerAndName(t *testing.T) {
	// A pipe-source for a different name and a non-pipe module carrying our
	// name must both be ignored.
	listing := "" +
		"23\tmodule-pipe-source\tsource_name=other_mic\n" +
		"45\tmodule-null-sink\tsource_name=test_virtual_mic\n"
	cp := &fakeControlPlane{listResult: listing}
	m, _ := newTestManager(t, cp)

	_, found, err := m.Find(context.Background())
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found {
		t.Error("Find matched a line missing the marker+name pair")
	}
}

func TestCleanup_NothingToCleanIsNotAnError(t *testing.T) {
	cp := &fakeControlPlane{listResult: "12\tmodule-native-protocol-unix\t\n"}
	m, _ := newTestManager(t, cp)

	ok, err := m.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if ok {
		t.Error("Cleanup reported an unload with nothing loaded")
	}
	if len(cp.unloadedIDs) != 0 {
		t.Errorf("unexpected unload calls: %v", cp.unloadedIDs)
	}
}

func TestCleanup_UnloadsFoundModule(t *testing.T) {
	cp := &fakeControlPlane{
		listResult: "34\tmodule-pipe-source\tsource_name=test_virtual_mic file=/tmp/p\n",
	}
	m, _ := newTestManager(t, cp)

	ok, err := m.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if !ok {
		t.Error("Cleanup should report success")
	}
	if len(cp.unloadedIDs) != 1 || cp.unloadedIDs[0] != "34" {
		t.Errorf("unloaded IDs = %v, want [34]", cp.unloadedIDs)
	}
}

func TestCleanup_UnloadFailureIsReportedNotEscalated(t *testing.T) {
	cp := &fakeControlPlane{
		listResult: "34\tmodule-pipe-source\tsource_name=test_virtual_mic\n",
		unloadErr:  errors.New("permission denied"),
	}
	m, _ := newTestManager(t, cp)

	ok, err := m.Cleanup(context.Background())
	if err != nil {
		t.Fatalf("unload failure must not be an error, got %v", err)
	}
	if ok {
		t.Error("failed unload should report false")
	}
}

func TestRemovePipe(t *testing.T) {
	cp := &fakeControlPlane{}
	m, pipe := newTestManager(t, cp)

	// Missing pipe is fine.
	if err := m.RemovePipe(); err != nil {
		t.Fatalf("RemovePipe on missing pipe: %v", err)
	}

	if _, err := m.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.RemovePipe(); err != nil {
		t.Fatalf("RemovePipe: %v", err)
	}
	if _, err := os.Stat(pipe); !os.IsNotExist(err) {
		t.Error("pipe still present after RemovePipe")
	}
}
