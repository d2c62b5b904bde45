package telemetry

import (
	"context"

	servertiming "github.com/mitchellh/go-server-timing"
)

// TimingMetric is a running Server-Timing measurement.
type TimingMetric struct {
	metric *servertiming.Metric
}

// Stop stops the measurement. It is safe on a no-op metric.
func (m *TimingMetric) Stop() {
	if m != nil && m.metric != nil {
		m.metric.Stop()
	}
}

// StartTiming starts a Server-Timing metric when ctx carries timing state
// (requests wrapped by the Server-Timing middleware), otherwise a no-op.
func StartTiming(ctx context.Context, name, description string) *TimingMetric {
	timing := servertiming.FromContext(ctx)
	if timing == nil {
		return &TimingMetric{}
	}
	m := timing.NewMetric(name)
	if description != "" {
		m = m.WithDesc(description)
	}
	return &TimingMetric{metric: m.Start()}
}
