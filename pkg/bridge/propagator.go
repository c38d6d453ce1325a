package bridge

import (
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// propagatorCell guards the process-wide propagation format. The first
// caller to flip the flag installs it; everyone else skips.
type propagatorCell struct {
	installed atomic.Bool
}

var globalPropagator propagatorCell

// ensure installs W3C trace context plus baggage as the global propagator
// and reports whether this call did the install.
func (p *propagatorCell) ensure() bool {
	if !p.installed.CompareAndSwap(false, true) {
		return false
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return true
}

// PropagatorInstalled reports whether a bridge has installed the global
// propagation format in this process.
func PropagatorInstalled() bool {
	return globalPropagator.installed.Load()
}
