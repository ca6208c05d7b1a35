package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestStartStep_RecordsCounterWithStatus(t *testing.T) {
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))

	o, err := newWithMeter(provider.Meter("test"))
	require.NoError(t, err)

	_, done := o.StartStep(context.Background(), "finalize")
	done(nil)
	_, done = o.StartStep(context.Background(), "finalize")
	done(errors.New("update failed"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "checkout.steps" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			assert.Len(t, sum.DataPoints, 2)
		}
	}
	assert.Equal(t, int64(2), total)
}

func TestNewNoop_IsSafe(t *testing.T) {
	o := NewNoop()
	_, done := o.StartStep(context.Background(), "poll")
	done(nil)
	assert.NoError(t, o.Shutdown(context.Background()))
}
