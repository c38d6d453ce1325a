package instruments

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Counter is a cached monotonic int64 counter.
type Counter struct {
	name     string
	inner    metric.Int64Counter
	released atomic.Bool
}

// Name returns the instrument name.
func (c *Counter) Name() string { return c.name }

// Add increments the counter by n. Negative increments are dropped and
// reported to the global OTel error handler. Add is a no-op once released.
func (c *Counter) Add(ctx context.Context, n int64, opts ...metric.AddOption) {
	if c == nil || c.released.Load() {
		return
	}
	if n < 0 {
		otel.Handle(fmt.Errorf("counter %q: negative increment %d dropped", c.name, n))
		return
	}
	c.inner.Add(ctx, n, opts...)
}

// Inc increments the counter by one.
func (c *Counter) Inc(ctx context.Context, opts ...metric.AddOption) {
	c.Add(ctx, 1, opts...)
}

// Released reports whether the owning cache was closed.
func (c *Counter) Released() bool { return c.released.Load() }

func (c *Counter) kind() Kind { return KindCounter }

func (c *Counter) release() bool { return c.released.CompareAndSwap(false, true) }

// Histogram is a cached float64 histogram.
type Histogram struct {
	name     string
	inner    metric.Float64Histogram
	released atomic.Bool
}

// Name returns the instrument name.
func (h *Histogram) Name() string { return h.name }

// Record adds an observation. NaN and infinite values are dropped and
// reported to the global OTel error handler. Record is a no-op once released.
func (h *Histogram) Record(ctx context.Context, v float64, opts ...metric.RecordOption) {
	if h == nil || h.released.Load() {
		return
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		otel.Handle(fmt.Errorf("histogram %q: non-finite observation %v dropped", h.name, v))
		return
	}
	h.inner.Record(ctx, v, opts...)
}

// Released reports whether the owning cache was closed.
func (h *Histogram) Released() bool { return h.released.Load() }

func (h *Histogram) kind() Kind { return KindHistogram }

func (h *Histogram) release() bool { return h.released.CompareAndSwap(false, true) }
