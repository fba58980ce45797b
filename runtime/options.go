package runtime

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// IdentityFunc returns the identity string a discovery filter compares against
// the requested serial number.
type IdentityFunc func(ctx context.Context, obj *Object) (string, error)

type config struct {
	log      *zap.Logger
	clock    clock.Clock
	metrics  *Metrics
	identity IdentityFunc
}

// Option configures a Runtime.
type Option func(*config)

// WithLogger sets the logger used by the runtime and its reactor.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithClock sets the clock used for reactor timers and discovery timeouts.
func WithClock(clk clock.Clock) Option {
	return func(c *config) { c.clock = clk }
}

// WithMetrics enables metric collection.
func WithMetrics(m *Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithIdentityFunc overrides how discovered objects are matched against a
// requested serial number.
func WithIdentityFunc(fn IdentityFunc) Option {
	return func(c *config) { c.identity = fn }
}

func newConfig(opts []Option) config {
	cfg := config{
		clock:    clock.New(),
		identity: SerialNumber,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = Logger()
	}
	return cfg
}
