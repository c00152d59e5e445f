package subscription

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"wellnest/internal/metrics"
)

// Options configures a Manager.
type Options struct {
	MaxRetries         int
	RetryDelay         time.Duration
	EnableReconnection bool
	ReconnectPause     time.Duration

	// HealthPath is read by CheckHealth; a missing document is healthy.
	HealthPath    string
	HealthTimeout time.Duration

	Clock   clock.Clock
	Logger  zerolog.Logger
	Metrics *metrics.Metrics

	// OnReconnect runs after ForceReconnect has resubscribed every listener.
	OnReconnect func()
}

const maxRecentErrors = 10

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxRetries:         3,
		RetryDelay:         time.Second,
		EnableReconnection: true,
		ReconnectPause:     time.Second,
		HealthPath:         "_health/ping",
		HealthTimeout:      5 * time.Second,
		Logger:             zerolog.Nop(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = d.RetryDelay
	}
	if o.ReconnectPause < 0 {
		o.ReconnectPause = 0
	}
	if o.HealthPath == "" {
		o.HealthPath = d.HealthPath
	}
	if o.HealthTimeout <= 0 {
		o.HealthTimeout = d.HealthTimeout
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}
