package httptransport

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Default configuration values (spec §3, §6).
const (
	defaultTimeout             = 900 * time.Second
	defaultOutputBuffer        = 64
	defaultBreakerThreshold    = 5
	defaultBreakerOpenDuration = 30 * time.Second
	defaultRateLimitPerSecond  = 10.0
	defaultRateBurst           = 20
	defaultPort                = 8080
)


// HttpClientConfig holds resolved construction-time configuration for an
// HTTP [Client]: HttpClientConfig in spec §3.
type HttpClientConfig struct {
	// BaseURL is prefixed to every converted request path.
	BaseURL string

	// APIKey, when non-empty, is sent as the X-API-Key header.
	APIKey string

	// Timeout bounds the underlying http.Client's per-call deadline.
	Timeout time.Duration

	// OutputBuffer sizes the channel buffer for SSE-consumed streams.
	OutputBuffer int

	// BreakerFailureThreshold is the number of consecutive round-trip
	// failures that open the circuit breaker (spec §4.4, [ADDED]).
	BreakerFailureThreshold uint32

	// BreakerOpenDuration is how long the breaker stays open before
	// allowing a half-open trial request.
	BreakerOpenDuration time.Duration

	// Logger receives structured log lines. Defaults to slog.Default().
	Logger *slog.Logger
}

// HttpClientOption configures an [HttpClientConfig] at construction time.
type HttpClientOption func(*HttpClientConfig)

func WithBaseURL(url string) HttpClientOption {
	return func(c *HttpClientConfig) { c.BaseURL = url }
}

func WithAPIKey(key string) HttpClientOption {
	return func(c *HttpClientConfig) { c.APIKey = key }
}

func WithClientTimeout(d time.Duration) HttpClientOption {
	return func(c *HttpClientConfig) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

func WithClientOutputBuffer(size int) HttpClientOption {
	return func(c *HttpClientConfig) {
		if size > 0 {
			c.OutputBuffer = size
		}
	}
}

func WithBreakerFailureThreshold(n uint32) HttpClientOption {
	return func(c *HttpClientConfig) {
		if n > 0 {
			c.BreakerFailureThreshold = n
		}
	}
}

func WithBreakerOpenDuration(d time.Duration) HttpClientOption {
	return func(c *HttpClientConfig) {
		if d > 0 {
			c.BreakerOpenDuration = d
		}
	}
}

func WithClientLogger(l *slog.Logger) HttpClientOption {
	return func(c *HttpClientConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

// ResolveHttpClientConfig applies opts over the documented defaults.
func ResolveHttpClientConfig(opts ...HttpClientOption) HttpClientConfig {
	c := HttpClientConfig{
		Timeout:                 defaultTimeout,
		OutputBuffer:            defaultOutputBuffer,
		BreakerFailureThreshold: defaultBreakerThreshold,
		BreakerOpenDuration:     defaultBreakerOpenDuration,
		Logger:                  slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

type tomlHttpClientConfig struct {
	BaseURL                 string  `toml:"base_url"`
	TimeoutSecs             float64 `toml:"timeout_secs"`
	BreakerFailureThreshold uint32  `toml:"breaker_failure_threshold"`
	BreakerOpenDurationSecs float64 `toml:"breaker_open_duration_secs"`
}

// ExampleTOML renders an example configuration snippet (spec §6). APIKey is
// omitted deliberately — a secret has no place in a committed example file.
func (c HttpClientConfig) ExampleTOML() string {
	data, err := toml.Marshal(tomlHttpClientConfig{
		BaseURL:                 c.BaseURL,
		TimeoutSecs:             c.Timeout.Seconds(),
		BreakerFailureThreshold: c.BreakerFailureThreshold,
		BreakerOpenDurationSecs: c.BreakerOpenDuration.Seconds(),
	})
	if err != nil {
		return fmt.Sprintf("# error rendering example config: %v\n", err)
	}
	return "# http client configuration\n[http.client]\n" + string(data)
}

// HttpServerConfig holds resolved construction-time configuration for an
// HTTP [Server]: HttpServerConfig in spec §3.
type HttpServerConfig struct {
	// Port is the TCP port to bind.
	Port int

	// AllInterfaces, when true, binds 0.0.0.0 instead of the loopback
	// default (resolved Open Question, spec §9).
	AllInterfaces bool

	// APIKeys is the accepted set of X-API-Key values. An empty set
	// disables the auth check entirely.
	APIKeys map[string]bool

	// ServiceTimeout bounds how long a handler dispatch may run.
	ServiceTimeout time.Duration

	// RateLimitPerSecond and RateBurst configure the per-API-key
	// golang.org/x/time/rate.Limiter ([ADDED], spec §4.5).
	RateLimitPerSecond float64
	RateBurst          int

	// Logger receives structured log lines. Defaults to slog.Default().
	Logger *slog.Logger
}

// HttpServerOption configures an [HttpServerConfig] at construction time.
type HttpServerOption func(*HttpServerConfig)

func WithPort(port int) HttpServerOption {
	return func(c *HttpServerConfig) { c.Port = port }
}

// WithAllInterfaces opts into binding 0.0.0.0 instead of the loopback
// default.
func WithAllInterfaces() HttpServerOption {
	return func(c *HttpServerConfig) { c.AllInterfaces = true }
}

func WithAPIKeys(keys ...string) HttpServerOption {
	return func(c *HttpServerConfig) {
		if c.APIKeys == nil {
			c.APIKeys = make(map[string]bool, len(keys))
		}
		for _, k := range keys {
			c.APIKeys[k] = true
		}
	}
}

func WithServerTimeout(d time.Duration) HttpServerOption {
	return func(c *HttpServerConfig) {
		if d > 0 {
			c.ServiceTimeout = d
		}
	}
}

func WithRateLimit(perSecond float64, burst int) HttpServerOption {
	return func(c *HttpServerConfig) {
		if perSecond > 0 {
			c.RateLimitPerSecond = perSecond
		}
		if burst > 0 {
			c.RateBurst = burst
		}
	}
}

func WithServerLogger(l *slog.Logger) HttpServerOption {
	return func(c *HttpServerConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

// ResolveHttpServerConfig applies opts over the documented defaults.
func ResolveHttpServerConfig(opts ...HttpServerOption) HttpServerConfig {
	c := HttpServerConfig{
		Port:               defaultPort,
		ServiceTimeout:     defaultTimeout,
		RateLimitPerSecond: defaultRateLimitPerSecond,
		RateBurst:          defaultRateBurst,
		Logger:             slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

type tomlHttpServerConfig struct {
	Port               int     `toml:"port"`
	AllInterfaces      bool    `toml:"all_interfaces"`
	ServiceTimeoutSecs float64 `toml:"service_timeout_secs"`
	RateLimitPerSecond float64 `toml:"rate_limit_per_second"`
	RateBurst          int     `toml:"rate_burst"`
}

// ExampleTOML renders an example configuration snippet (spec §6). APIKeys
// is omitted for the same reason HttpClientConfig.APIKey is.
func (c HttpServerConfig) ExampleTOML() string {
	data, err := toml.Marshal(tomlHttpServerConfig{
		Port:               c.Port,
		AllInterfaces:      c.AllInterfaces,
		ServiceTimeoutSecs: c.ServiceTimeout.Seconds(),
		RateLimitPerSecond: c.RateLimitPerSecond,
		RateBurst:          c.RateBurst,
	})
	if err != nil {
		return fmt.Sprintf("# error rendering example config: %v\n", err)
	}
	return "# http server configuration\n[http.server]\n" + string(data)
}
