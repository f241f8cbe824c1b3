package stdio

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Default configuration values (spec §3, §6).
const (
	defaultTimeout        = 900 * time.Second
	defaultOutputBuffer   = 64
	defaultGracePeriod    = 5 * time.Second
	defaultMaxMessageSize = 4 << 20 // 4 MB
)

// ClientConfig holds resolved construction-time configuration for a stdio
// [Client]: StdioClientConfig in spec §3.
type ClientConfig struct {
	// BinPath optionally prefixes the program name when resolving the
	// child binary. Absent means resolve via PATH.
	BinPath string

	// Timeout bounds how long Call waits for a terminal response or the
	// first stream item before failing with a CategoryInternal "timed out"
	// error.
	Timeout time.Duration

	// OutputBuffer sizes the channel buffer for streaming responses.
	OutputBuffer int

	// GracePeriod is how long to wait after SIGTERM before SIGKILL when
	// closing the client.
	GracePeriod time.Duration

	// MaxMessageSize bounds the stdout line scanner's buffer.
	MaxMessageSize int

	// Logger receives structured log lines. Defaults to slog.Default().
	Logger *slog.Logger
}

// ClientOption configures a [ClientConfig] at construction time.
type ClientOption func(*ClientConfig)

// WithBinPath sets the directory prefix joined with the program name when
// resolving the child binary.
func WithBinPath(path string) ClientOption {
	return func(c *ClientConfig) { c.BinPath = path }
}

// WithTimeout sets the per-call timeout. Values <= 0 are ignored.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// WithOutputBuffer sets the channel buffer size for streaming responses.
// Values <= 0 are ignored.
func WithOutputBuffer(size int) ClientOption {
	return func(c *ClientConfig) {
		if size > 0 {
			c.OutputBuffer = size
		}
	}
}

// WithGracePeriod sets the duration to wait after SIGTERM before SIGKILL.
// Values <= 0 are ignored.
func WithGracePeriod(d time.Duration) ClientOption {
	return func(c *ClientConfig) {
		if d > 0 {
			c.GracePeriod = d
		}
	}
}

// WithMaxMessageSize sets the stdout scanner's maximum line size in bytes.
// Values <= 0 are ignored.
func WithMaxMessageSize(size int) ClientOption {
	return func(c *ClientConfig) {
		if size > 0 {
			c.MaxMessageSize = size
		}
	}
}

// WithLogger sets the logger used for transport diagnostics.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *ClientConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

// ResolveClientConfig applies opts over the documented defaults.
func ResolveClientConfig(opts ...ClientOption) ClientConfig {
	c := ClientConfig{
		Timeout:        defaultTimeout,
		OutputBuffer:   defaultOutputBuffer,
		GracePeriod:    defaultGracePeriod,
		MaxMessageSize: defaultMaxMessageSize,
		Logger:         slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

// tomlClientConfig is the marshaled projection behind ExampleTOML: BinPath
// is omitted since its zero value (PATH resolution) isn't a meaningful
// snippet line, and GracePeriod/MaxMessageSize are expressed in the units
// external tooling expects (seconds, bytes).
type tomlClientConfig struct {
	TimeoutSecs    float64 `toml:"timeout_secs"`
	OutputBuffer   int     `toml:"output_buffer"`
	GracePeriodSecs float64 `toml:"grace_period_secs"`
	MaxMessageSizeBytes int `toml:"max_message_size_bytes"`
}

// ExampleTOML renders an example configuration snippet for external config
// tooling (spec §6). Marshaled from c's own field values via go-toml/v2
// rather than a hand-maintained string, so a snippet rendered from
// ResolveClientConfig() cannot drift from its defaults.
func (c ClientConfig) ExampleTOML() string {
	data, err := toml.Marshal(tomlClientConfig{
		TimeoutSecs:         c.Timeout.Seconds(),
		OutputBuffer:        c.OutputBuffer,
		GracePeriodSecs:     c.GracePeriod.Seconds(),
		MaxMessageSizeBytes: c.MaxMessageSize,
	})
	if err != nil {
		return fmt.Sprintf("# error rendering example config: %v\n", err)
	}
	return "# stdio client configuration\n[stdio.client]\n" + string(data)
}

// ServerConfig holds resolved construction-time configuration for a stdio
// [Server]: StdioServerConfig in spec §3.
type ServerConfig struct {
	// ServiceTimeout bounds how long a handler dispatch may run before the
	// server reports CategoryInternal to the peer.
	ServiceTimeout time.Duration

	// Logger receives structured log lines. Defaults to slog.Default().
	Logger *slog.Logger
}

// ServerOption configures a [ServerConfig] at construction time.
type ServerOption func(*ServerConfig)

// WithServiceTimeout sets the handler dispatch deadline. Values <= 0 are
// ignored.
func WithServiceTimeout(d time.Duration) ServerOption {
	return func(c *ServerConfig) {
		if d > 0 {
			c.ServiceTimeout = d
		}
	}
}

// WithServerLogger sets the logger used for transport diagnostics.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(c *ServerConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

// ResolveServerConfig applies opts over the documented defaults.
func ResolveServerConfig(opts ...ServerOption) ServerConfig {
	c := ServerConfig{ServiceTimeout: defaultTimeout, Logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

type tomlServerConfig struct {
	ServiceTimeoutSecs float64 `toml:"service_timeout_secs"`
}

// ExampleTOML renders an example configuration snippet for external config
// tooling (spec §6).
func (c ServerConfig) ExampleTOML() string {
	data, err := toml.Marshal(tomlServerConfig{ServiceTimeoutSecs: c.ServiceTimeout.Seconds()})
	if err != nil {
		return fmt.Sprintf("# error rendering example config: %v\n", err)
	}
	return "# stdio server configuration\n[stdio.server]\n" + string(data)
}
