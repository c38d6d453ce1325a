package instruments

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestCache(t *testing.T) (*Cache, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return New(mp.Meter("instruments-test")), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func counterTotal(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected int64 sum, got %T", m.Data)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestCache_CounterReturnsSameHandle(t *testing.T) {
	cache, reader := newTestCache(t)
	ctx := context.Background()

	first, err := cache.Counter("requests.handled", WithUnit("{request}"), WithDescription("handled requests"))
	require.NoError(t, err)
	second, err := cache.Counter("requests.handled")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.Len())

	first.Inc(ctx)
	second.Add(ctx, 4)

	metrics := collect(t, reader)
	m, ok := metrics["requests.handled"]
	require.True(t, ok)
	assert.Equal(t, "{request}", m.Unit)
	assert.Equal(t, "handled requests", m.Description)
	assert.Equal(t, int64(5), counterTotal(t, m))
}

func TestCache_ConcurrentFirstUse(t *testing.T) {
	cache, reader := newTestCache(t)
	ctx := context.Background()

	const workers = 64
	handles := make([]*Counter, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := cache.Counter("jobs.started")
			if err != nil {
				t.Errorf("Counter: %v", err)
				return
			}
			handles[i] = c
			c.Inc(ctx)
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Same(t, handles[0], handles[i])
	}
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, int64(workers), counterTotal(t, collect(t, reader)["jobs.started"]))
}

func TestCache_KindMismatch(t *testing.T) {
	tests := []struct {
		name  string
		first func(*Cache) error
		then  func(*Cache) error
		want  KindMismatchError
	}{
		{
			name: "counter then histogram",
			first: func(c *Cache) error {
				_, err := c.Counter("latency")
				return err
			},
			then: func(c *Cache) error {
				_, err := c.Histogram("latency")
				return err
			},
			want: KindMismatchError{Name: "latency", Existing: KindCounter, Requested: KindHistogram},
		},
		{
			name: "histogram then counter",
			first: func(c *Cache) error {
				_, err := c.Histogram("latency")
				return err
			},
			then: func(c *Cache) error {
				_, err := c.Counter("latency")
				return err
			},
			want: KindMismatchError{Name: "latency", Existing: KindHistogram, Requested: KindCounter},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, _ := newTestCache(t)
			require.NoError(t, tt.first(cache))

			err := tt.then(cache)
			var mismatch *KindMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, tt.want, *mismatch)
			assert.Contains(t, err.Error(), `"latency"`)
			assert.Equal(t, 1, cache.Len())
		})
	}
}

func TestCache_BlankName(t *testing.T) {
	cache, _ := newTestCache(t)

	_, err := cache.Counter("  ")
	require.ErrorIs(t, err, ErrInvalidName)
	_, err = cache.Histogram("")
	require.ErrorIs(t, err, ErrInvalidName)
	assert.Zero(t, cache.Len())
}

func TestCache_Close(t *testing.T) {
	cache, reader := newTestCache(t)
	ctx := context.Background()

	ctr, err := cache.Counter("events")
	require.NoError(t, err)
	hist, err := cache.Histogram("duration", WithUnit("ms"))
	require.NoError(t, err)
	ctr.Inc(ctx)

	assert.Equal(t, 2, cache.Close())
	assert.Zero(t, cache.Close(), "second close releases nothing")
	assert.Zero(t, cache.Len())
	assert.True(t, ctr.Released())
	assert.True(t, hist.Released())

	_, err = cache.Counter("events")
	require.ErrorIs(t, err, ErrDisposed)
	_, err = cache.Histogram("other")
	require.ErrorIs(t, err, ErrDisposed)

	// Released handles are inert.
	ctr.Add(ctx, 10)
	hist.Record(ctx, 3)
	assert.Equal(t, int64(1), counterTotal(t, collect(t, reader)["events"]))
}

func TestHistogram_Record(t *testing.T) {
	cache, reader := newTestCache(t)
	ctx := context.Background()

	hist, err := cache.Histogram("queue.wait", WithUnit("ms"))
	require.NoError(t, err)

	hist.Record(ctx, 12.5, metric.WithAttributes(attribute.String("queue", "default")))
	hist.Record(ctx, 7.5, metric.WithAttributes(attribute.String("queue", "default")))
	hist.Record(ctx, math.NaN())
	hist.Record(ctx, math.Inf(1))

	m := collect(t, reader)["queue.wait"]
	data, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, data.DataPoints, 1)
	assert.Equal(t, uint64(2), data.DataPoints[0].Count)
	assert.InDelta(t, 20.0, data.DataPoints[0].Sum, 0.0001)
}

func TestCounter_NegativeDropped(t *testing.T) {
	cache, reader := newTestCache(t)
	ctx := context.Background()

	ctr, err := cache.Counter("retries")
	require.NoError(t, err)
	ctr.Add(ctx, 3)
	ctr.Add(ctx, -2)

	assert.Equal(t, int64(3), counterTotal(t, collect(t, reader)["retries"]))
}

func TestHandles_NilSafe(t *testing.T) {
	var ctr *Counter
	var hist *Histogram

	assert.NotPanics(t, func() {
		ctr.Add(context.Background(), 1)
		hist.Record(context.Background(), 1)
	})
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "counter", KindCounter.String())
	assert.Equal(t, "histogram", KindHistogram.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}
