// Package instruments provides a process-wide, name-keyed cache of metric
// instruments backed by a single meter.
package instruments

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
)

// Kind identifies the instrument type held under a name.
type Kind int

const (
	KindCounter Kind = iota + 1
	KindHistogram
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindHistogram:
		return "histogram"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	// ErrDisposed is returned by every lookup after Close.
	ErrDisposed = errors.New("instrument cache disposed")

	// ErrInvalidName is returned for blank instrument names.
	ErrInvalidName = errors.New("instrument name must not be blank")
)

// KindMismatchError reports a name already cached as a different kind.
type KindMismatchError struct {
	Name      string
	Existing  Kind
	Requested Kind
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("instrument %q already registered as %s, requested %s", e.Name, e.Existing, e.Requested)
}

// Option configures an instrument on first creation. Options passed to
// later lookups of the same name are ignored.
type Option func(*instrumentConfig)

type instrumentConfig struct {
	unit        string
	description string
}

// WithUnit sets the instrument unit (UCUM, e.g. "ms", "{item}").
func WithUnit(unit string) Option {
	return func(c *instrumentConfig) {
		c.unit = unit
	}
}

// WithDescription sets the instrument description.
func WithDescription(description string) Option {
	return func(c *instrumentConfig) {
		c.description = description
	}
}

type instrument interface {
	kind() Kind
	release() bool
}

// Cache maps instrument names to lazily created instruments.
//
// Reads of existing names are lock-free. First creation is serialized so
// that concurrent callers racing on a name receive the same handle.
type Cache struct {
	meter   metric.Meter
	entries sync.Map // name -> instrument

	mu     sync.Mutex // serializes creation and Close
	closed atomic.Bool
}

// New creates a cache backed by meter.
func New(meter metric.Meter) *Cache {
	return &Cache{meter: meter}
}

// Meter returns the meter backing the cache.
func (c *Cache) Meter() metric.Meter {
	return c.meter
}

// Counter returns the int64 counter named name, creating it on first use.
func (c *Cache) Counter(name string, opts ...Option) (*Counter, error) {
	inst, err := c.getOrCreate(name, KindCounter, opts, func(cfg instrumentConfig) (instrument, error) {
		ctr, err := c.meter.Int64Counter(name, cfg.counterOptions()...)
		if err != nil {
			return nil, err
		}
		return &Counter{name: name, inner: ctr}, nil
	})
	if err != nil {
		return nil, err
	}
	return inst.(*Counter), nil
}

// Histogram returns the float64 histogram named name, creating it on first use.
func (c *Cache) Histogram(name string, opts ...Option) (*Histogram, error) {
	inst, err := c.getOrCreate(name, KindHistogram, opts, func(cfg instrumentConfig) (instrument, error) {
		h, err := c.meter.Float64Histogram(name, cfg.histogramOptions()...)
		if err != nil {
			return nil, err
		}
		return &Histogram{name: name, inner: h}, nil
	})
	if err != nil {
		return nil, err
	}
	return inst.(*Histogram), nil
}

// Len returns the number of cached instruments.
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Close releases every cached instrument exactly once. Later lookups fail
// with ErrDisposed. Close is idempotent and returns the number of handles
// released by this call.
func (c *Cache) Close() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed.CompareAndSwap(false, true) {
		return 0
	}

	released := 0
	c.entries.Range(func(key, value any) bool {
		if value.(instrument).release() {
			released++
		}
		c.entries.Delete(key)
		return true
	})
	return released
}

func (c *Cache) getOrCreate(name string, kind Kind, opts []Option, create func(instrumentConfig) (instrument, error)) (instrument, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidName
	}
	if c.closed.Load() {
		return nil, ErrDisposed
	}

	// Fast path: lock-free read of an existing instrument.
	if v, ok := c.entries.Load(name); ok {
		return checkKind(name, v.(instrument), kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil, ErrDisposed
	}
	if v, ok := c.entries.Load(name); ok {
		return checkKind(name, v.(instrument), kind)
	}

	var cfg instrumentConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	inst, err := create(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating %s %q: %w", kind, name, err)
	}
	c.entries.Store(name, inst)
	return inst, nil
}

func checkKind(name string, inst instrument, want Kind) (instrument, error) {
	if got := inst.kind(); got != want {
		return nil, &KindMismatchError{Name: name, Existing: got, Requested: want}
	}
	return inst, nil
}

func (c instrumentConfig) counterOptions() []metric.Int64CounterOption {
	var opts []metric.Int64CounterOption
	if c.unit != "" {
		opts = append(opts, metric.WithUnit(c.unit))
	}
	if c.description != "" {
		opts = append(opts, metric.WithDescription(c.description))
	}
	return opts
}

func (c instrumentConfig) histogramOptions() []metric.Float64HistogramOption {
	var opts []metric.Float64HistogramOption
	if c.unit != "" {
		opts = append(opts, metric.WithUnit(c.unit))
	}
	if c.description != "" {
		opts = append(opts, metric.WithDescription(c.description))
	}
	return opts
}
