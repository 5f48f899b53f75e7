package oracle

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"variant-merger/internal/metrics"
	"variant-merger/internal/models"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 1.0
	DefaultBurst     = 2
)

// Options tune how providers talk to their backends
type Options struct {
	HTTPClient *http.Client
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64
	Burst      int
	Metrics    *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	if o.RateLimit <= 0 {
		o.RateLimit = DefaultRateLimit
	}
	if o.Burst <= 0 {
		o.Burst = DefaultBurst
	}
	return o
}

func (o Options) limiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(o.RateLimit), o.Burst)
}

// Factory builds a provider from its credentials
type Factory func(creds models.ProviderCredentials, opts Options) (Oracle, error)

var providers = map[string]Factory{
	ProviderOpenAI: NewOpenAI,
}

// Resolve returns the provider registered under name
func Resolve(name string, creds models.ProviderCredentials, opts Options) (Oracle, error) {
	factory, ok := providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return factory(creds, opts.withDefaults())
}

// Providers lists registered provider names
func Providers() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
