package virtualmic

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// The virtual microphone source format is fixed: the pipe-source module is
// always registered as CD-quality stereo S16LE, matching the wire format.
const (
	sourceFormat   = "s16le"
	sourceRate     = 44100
	sourceChannels = 2
)

// Result is the outcome of a Setup attempt.
type Result int

const (
	// ResultSuccess means the pipe exists and the source module is loaded.
	ResultSuccess Result = iota

	// ResultFailed means the pipe exists but the control plane refused the
	// module registration. The relay can still run; the pipe has to be wired
	// to the audio server manually.
	ResultFailed
)

// String returns the human-readable name of the result.
func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Handle describes the virtual microphone resource. ModuleID is only
// meaningful in the process that just looked it up: registration lives in
// the external audio server, so it is re-discovered on every Find rather
// than cached.
type Handle struct {
	SourceName string
	PipePath   string
	ModuleID   string
}

// Manager performs idempotent setup, discovery, and cleanup of the virtual
// microphone against an injected [ControlPlane].
type Manager struct {
	sourceName string
	pipePath   string
	cp         ControlPlane
	log        *slog.Logger
}

// NewManager creates a Manager for the given source name and pipe path.
func NewManager(sourceName, pipePath string, cp ControlPlane) *Manager {
	return &Manager{
		sourceName: sourceName,
		pipePath:   pipePath,
		cp:         cp,
		log:        slog.With("component", "virtualmic", "source", sourceName),
	}
}

// Setup creates a fresh named pipe at the configured path and registers a
// pipe-source module backed by it.
//
// Pipe creation failures are hard errors: without the FIFO nothing can be
// relayed. A control-plane refusal is not — it downgrades the outcome to
// [ResultFailed] so the caller can keep listening and leave device wiring to
// the operator.
func (m *Manager) Setup(ctx context.Context) (Result, error) {
	// A stale pipe from a previous run is replaced, never reused.
	if _, err := os.Stat(m.pipePath); err == nil {
		if err := os.Remove(m.pipePath); err != nil {
			return ResultFailed, fmt.Errorf("virtualmic: remove stale pipe %s: %w", m.pipePath, err)
		}
	}

	if err := unix.Mkfifo(m.pipePath, 0o644); err != nil {
		return ResultFailed, fmt.Errorf("virtualmic: create pipe %s: %w", m.pipePath, err)
	}

	req := LoadRequest{
		SourceName:  m.sourceName,
		PipePath:    m.pipePath,
		Format:      sourceFormat,
		Rate:        sourceRate,
		Channels:    sourceChannels,
		Description: strings.ReplaceAll(m.sourceName, "_", " "),
	}
	if err := m.cp.LoadPipeSource(ctx, req); err != nil {
		m.log.Error("control plane refused pipe-source registration", "error", err)
		return ResultFailed, nil
	}

	m.log.Info("virtual microphone created", "pipe", m.pipePath)
	return ResultSuccess, nil
}

// Find queries the control plane for the loaded pipe-source module backing
// this manager's source name. It reports the module identifier and whether a
// match was found. Nothing is cached: the registration belongs to the audio
// server, and the process that loaded it may not be this one.
func (m *Manager) Find(ctx context.Context) (string, bool, error) {
	listing, err := m.cp.ListModules(ctx)
	if err != nil {
		return "", false, fmt.Errorf("virtualmic: list modules: %w", err)
	}

	marker := "source_name=" + m.sourceName
	for _, line := range strings.Split(listing, "\n") {
		if !strings.Contains(line, pipeSourceModule) || !strings.Contains(line, marker) {
			continue
		}
		if fields := strings.Fields(line); len(fields) > 0 {
			return fields[0], true, nil
		}
	}
	return "", false, nil
}

// Cleanup finds and unloads the virtual microphone module. It reports
// whether a module was actually unloaded; finding nothing to clean up is a
// normal outcome, not an error.
func (m *Manager) Cleanup(ctx context.Context) (bool, error) {
	moduleID, found, err := m.Find(ctx)
	if err != nil {
		return false, err
	}
	if !found {
		m.log.Debug("no virtual microphone module to clean up")
		return false, nil
	}

	if err := m.cp.UnloadModule(ctx, moduleID); err != nil {
		m.log.Error("failed to unload module", "module_id", moduleID, "error", err)
		return false, nil
	}
	m.log.Info("virtual microphone module unloaded", "module_id", moduleID)
	return true, nil
}

// RemovePipe deletes the named pipe if it exists. Used during shutdown;
// a missing pipe is not an error.
func (m *Manager) RemovePipe() error {
	if _, err := os.Stat(m.pipePath); err != nil {
		return nil
	}
	if err := os.Remove(m.pipePath); err != nil {
		return fmt.Errorf("virtualmic: remove pipe %s: %w", m.pipePath, err)
	}
	return nil
}

// PipePath returns the configured FIFO path.
func (m *Manager) PipePath() string {
	return m.pipePath
}

// Handle returns the resource description for logging and health checks.
// ModuleID is left empty; use [Manager.Find] for a live lookup.
func (m *Manager) Handle() Handle {
	return Handle{SourceName: m.sourceName, PipePath: m.pipePath}
}
