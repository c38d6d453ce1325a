package bridge

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func restorePropagator(t *testing.T) {
	t.Cleanup(func() {
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	})
}

func TestPropagatorCell_InstallsOnce(t *testing.T) {
	restorePropagator(t)
	var cell propagatorCell

	require.True(t, cell.ensure())
	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
	assert.Contains(t, fields, "tracestate")
	assert.Contains(t, fields, "baggage")

	// A second call must not reconfigure anything.
	sentinel := propagation.Baggage{}
	otel.SetTextMapPropagator(sentinel)
	assert.False(t, cell.ensure())
	assert.Equal(t, sentinel, otel.GetTextMapPropagator())
}

func TestPropagatorCell_ConcurrentCallers(t *testing.T) {
	restorePropagator(t)
	var cell propagatorCell
	var wins atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cell.ensure() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
