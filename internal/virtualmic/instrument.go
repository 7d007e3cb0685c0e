package virtualmic

import (
	"context"

	"github.com/kzeller/netmic/internal/observe"
)

// InstrumentedControlPlane wraps a [ControlPlane] and records every call as
// a metric, labelled by operation and outcome.
type InstrumentedControlPlane struct {
	Inner   ControlPlane
	Metrics *observe.Metrics
}

// Instrument wraps cp with metric recording. A nil metrics falls back to
// [observe.DefaultMetrics].
func Instrument(cp ControlPlane, m *observe.Metrics) *InstrumentedControlPlane {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &InstrumentedControlPlane{Inner: cp, Metrics: m}
}

func (i *InstrumentedControlPlane) record(ctx context.Context, op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	i.Metrics.RecordControlPlaneCall(ctx, op, status)
}

// LoadPipeSource implements [ControlPlane].
func (i *InstrumentedControlPlane) LoadPipeSource(ctx context.Context, req LoadRequest) error {
	err := i.Inner.LoadPipeSource(ctx, req)
	i.record(ctx, "load-module", err)
	return err
}

// ListModules implements [ControlPlane].
func (i *InstrumentedControlPlane) ListModules(ctx context.Context) (string, error) {
	out, err := i.Inner.ListModules(ctx)
	i.record(ctx, "list-modules", err)
	return out, err
}

// UnloadModule implements [ControlPlane].
func (i *InstrumentedControlPlane) UnloadModule(ctx context.Context, moduleID string) error {
	err := i.Inner.UnloadModule(ctx, moduleID)
	i.record(ctx, "unload-module", err)
	return err
}
