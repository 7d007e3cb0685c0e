// Package virtualmic manages the lifecycle of the OS-level virtual
// microphone: the named pipe on the filesystem and the pipe-source module
// registered with the host audio server's control plane.
//
// The control plane is an external collaborator reached through the
// [ControlPlane] interface so the manager can be tested without a running
// audio server.
package virtualmic

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// pipeSourceModule is the PulseAudio module that exposes a FIFO-backed
// source.
const pipeSourceModule = "module-pipe-source"

// LoadRequest describes a pipe-source module registration.
type LoadRequest struct {
	// SourceName is the machine name of the new source.
	SourceName string

	// PipePath is the FIFO backing the source.
	PipePath string

	// Format, Rate, and Channels fix the source's stream format.
	Format   string
	Rate     int
	Channels int

	// Description is the human-readable device label.
	Description string
}

// ControlPlane is the host audio server's management interface. A non-nil
// error from any method means the underlying command failed or could not be
// run at all; callers decide whether that is fatal.
type ControlPlane interface {
	// LoadPipeSource registers a pipe-backed source module.
	LoadPipeSource(ctx context.Context, req LoadRequest) error

	// ListModules returns the raw short-form module listing, one module per
	// line, the module identifier in the first field.
	ListModules(ctx context.Context) (string, error)

	// UnloadModule removes a previously loaded module by identifier.
	UnloadModule(ctx context.Context, moduleID string) error
}

// PactlClient drives the PulseAudio control plane through the pactl binary.
type PactlClient struct {
	// Binary overrides the pactl executable name. Empty means "pactl".
	Binary string
}

func (c *PactlClient) bin() string {
	if c.Binary != "" {
		return c.Binary
	}
	return "pactl"
}

// LoadPipeSource implements [ControlPlane].
func (c *PactlClient) LoadPipeSource(ctx context.Context, req LoadRequest) error {
	out, err := exec.CommandContext(ctx, c.bin(),
		"load-module", pipeSourceModule,
		"source_name="+req.SourceName,
		"file="+req.PipePath,
		"format="+req.Format,
		fmt.Sprintf("rate=%d", req.Rate),
		fmt.Sprintf("channels=%d", req.Channels),
		"source_properties=device.description="+req.Description,
	).CombinedOutput()
	if err != nil {
		return fmt.Errorf("pactl load-module: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// ListModules implements [ControlPlane].
func (c *PactlClient) ListModules(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, c.bin(), "list", "modules", "short").Output()
	if err != nil {
		return "", fmt.Errorf("pactl list modules: %w", err)
	}
	return string(out), nil
}

// UnloadModule implements [ControlPlane].
func (c *PactlClient) UnloadModule(ctx context.Context, moduleID string) error {
	out, err := exec.CommandContext(ctx, c.bin(), "unload-module", moduleID).CombinedOutput()
	if err != nil {
		return fmt.Errorf("pactl unload-module %s: %w: %s", moduleID, err, strings.TrimSpace(string(out)))
	}
	return nil
}
