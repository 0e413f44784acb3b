package pulsebus

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/cityloop/pulsebus/pkg/pulsebus/event"
	pberrors "github.com/cityloop/pulsebus/pkg/pulsebus/errors"
	"github.com/cityloop/pulsebus/pkg/pulsebus/observability"
)

// brokerConfig holds broker construction settings.
type brokerConfig struct {
	workers         int
	queueSize       int
	maxCascadeDepth int
	handlerTimeout  time.Duration
	retry           pberrors.RetryConfig
	logger          *slog.Logger
	metrics         observability.MetricsRecorder
	spans           observability.SpanManager
	dlq             *DeadLetterBuffer
	middleware      []event.MiddlewareFunc
}

// defaultBrokerConfig returns the default broker settings.
func defaultBrokerConfig() brokerConfig {
	return brokerConfig{
		workers:         runtime.NumCPU(),
		queueSize:       256,
		maxCascadeDepth: 10,
		retry:           pberrors.NoRetry,
		metrics:         observability.NoopMetrics{},
		spans:           observability.NoopSpanManager{},
	}
}

// Option configures broker construction.
type Option func(*brokerConfig)

// WithWorkers sets the dispatch worker pool size.
// Default: runtime.NumCPU().
//
// The pool bounds steady-state concurrency; submission past a full
// queue spills to overflow goroutines so Publish never blocks.
func WithWorkers(n int) Option {
	return func(c *brokerConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithQueueSize sets the dispatch queue capacity.
// Default: 256.
func WithQueueSize(n int) Option {
	return func(c *brokerConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithMaxCascadeDepth bounds how deep a chain of derived events may go
// before further publishes are rejected. Prevents cascade storms from
// recursing without bound.
// Default: 10.
func WithMaxCascadeDepth(n int) Option {
	return func(c *brokerConfig) {
		if n > 0 {
			c.maxCascadeDepth = n
		}
	}
}

// WithLogger injects the structured logger used for dispatch failures
// and lifecycle conditions. A nil logger (the default) disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *brokerConfig) {
		c.logger = logger
	}
}

// WithMetrics injects the metrics recorder.
// Default: observability.NoopMetrics{}.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *brokerConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithSpanManager injects the tracing span manager.
// Default: observability.NoopSpanManager{}.
func WithSpanManager(s observability.SpanManager) Option {
	return func(c *brokerConfig) {
		if s != nil {
			c.spans = s
		}
	}
}

// WithDeadLetterBuffer enables the in-memory dead-letter buffer with the
// given capacity. Failed dispatches are recorded there for inspection.
func WithDeadLetterBuffer(capacity int) Option {
	return func(c *brokerConfig) {
		c.dlq = NewDeadLetterBuffer(capacity)
	}
}

// WithMiddleware adds middleware applied to every subscribed handler,
// first middleware outermost.
func WithMiddleware(mw ...event.MiddlewareFunc) Option {
	return func(c *brokerConfig) {
		c.middleware = append(c.middleware, mw...)
	}
}

// WithDefaultRetry sets the retry configuration applied to handlers that
// don't override it per subscription.
// Default: errors.NoRetry.
func WithDefaultRetry(cfg pberrors.RetryConfig) Option {
	return func(c *brokerConfig) {
		c.retry = cfg
	}
}

// WithDefaultHandlerTimeout sets a timeout applied to handlers that
// don't override it per subscription. Zero (the default) means no
// timeout.
func WithDefaultHandlerTimeout(d time.Duration) Option {
	return func(c *brokerConfig) {
		c.handlerTimeout = d
	}
}

// SubscribeOption configures a single subscription.
type SubscribeOption func(*Subscription)

// WithRetry sets custom retry configuration for this handler.
func WithRetry(cfg pberrors.RetryConfig) SubscribeOption {
	return func(s *Subscription) {
		s.retry = cfg
	}
}

// WithHandlerTimeout sets a per-dispatch timeout for this handler.
func WithHandlerTimeout(d time.Duration) SubscribeOption {
	return func(s *Subscription) {
		s.timeout = d
	}
}

// WithName overrides the handler name used in logs and metrics.
func WithName(name string) SubscribeOption {
	return func(s *Subscription) {
		if name != "" {
			s.name = name
		}
	}
}
