package lifecycle

import (
	"go.uber.org/zap"

	"bizcore.io/governance/internal/domain"
	"bizcore.io/governance/internal/pkg/telemetry"
)

type options struct {
	clock   domain.TimeProvider
	log     *zap.Logger
	metrics *telemetry.Metrics
}

// Option configures a Registry or Executor.
type Option func(*options)

// WithClock overrides the wall clock.
func WithClock(c domain.TimeProvider) Option { return func(o *options) { o.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option { return func(o *options) { o.metrics = m } }

func applyOptions(opts []Option) options {
	o := options{clock: domain.SystemTime(), log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = telemetry.NoopMetrics()
	}
	return o
}
