package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
	"github.com/NOAA-OWP/DMOD-sub000/observability"
)

// Config is the complete service configuration.
type Config struct {
	Server      ServerConfig         `json:"server" yaml:"server"`
	HTTP        HTTPConfig           `json:"http" yaml:"http"`
	NATS        NATSConfig           `json:"nats" yaml:"nats"`
	Hydrofabric HydrofabricConfig    `json:"hydrofabric" yaml:"hydrofabric"`
	Resolver    ResolverConfig       `json:"resolver" yaml:"resolver"`
	Resources   ResourcesConfig      `json:"resources" yaml:"resources"`
	Session     SessionConfig        `json:"session" yaml:"session"`
	Metrics     MetricsConfig        `json:"metrics" yaml:"metrics"`
	Tracing     observability.Config `json:"tracing" yaml:"tracing"`
	Log         LogConfig            `json:"log" yaml:"log"`
}

// ServerConfig configures the websocket request channel.
type ServerConfig struct {
	Enabled        bool          `json:"enabled" yaml:"enabled"`
	Addr           string        `json:"addr" yaml:"addr"`
	Path           string        `json:"path" yaml:"path"`
	ReadTimeout    time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout" yaml:"write_timeout"`
	MaxMessageSize int64         `json:"max_message_size" yaml:"max_message_size"`
	Workers        int           `json:"workers" yaml:"workers"`
	QueueSize      int           `json:"queue_size" yaml:"queue_size"`
	RateLimit      float64       `json:"rate_limit" yaml:"rate_limit"` // requests/s per connection, 0 is unlimited
	RateBurst      int           `json:"rate_burst" yaml:"rate_burst"`
	TLS            TLSConfig     `json:"tls" yaml:"tls"`
}

// HTTPConfig configures the hydrofabric subset service.
type HTTPConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	Addr           string `json:"addr" yaml:"addr"`
	HydrofabricUID string `json:"hydrofabric_uid" yaml:"hydrofabric_uid"`
	MaxRequestSize int64     `json:"max_request_size" yaml:"max_request_size"`
	TLS            TLSConfig `json:"tls" yaml:"tls"`
}

// TLSConfig enables TLS on a listener. With ClientCAFile set, client
// certificates signed by that CA are verified; RequireClientCert makes
// them mandatory.
type TLSConfig struct {
	Enabled           bool   `json:"enabled" yaml:"enabled"`
	CertFile          string `json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile           string `json:"key_file,omitempty" yaml:"key_file,omitempty"`
	MinVersion        string `json:"min_version,omitempty" yaml:"min_version,omitempty"`
	ClientCAFile      string `json:"client_ca_file,omitempty" yaml:"client_ca_file,omitempty"`
	RequireClientCert bool   `json:"require_client_cert,omitempty" yaml:"require_client_cert,omitempty"`
}

// NATSConfig configures the NATS connection and the JetStream resources
// backing the catalog, resources, sessions and job hand-off.
type NATSConfig struct {
	Enabled        bool          `json:"enabled" yaml:"enabled"`
	URL            string        `json:"url" yaml:"url"`
	Name           string        `json:"name" yaml:"name"`
	Username       string        `json:"username,omitempty" yaml:"username,omitempty"`
	Password       string        `json:"password,omitempty" yaml:"password,omitempty"`
	Token          string        `json:"token,omitempty" yaml:"token,omitempty"`
	TLSCertFile    string        `json:"tls_cert_file,omitempty" yaml:"tls_cert_file,omitempty"`
	TLSKeyFile     string        `json:"tls_key_file,omitempty" yaml:"tls_key_file,omitempty"`
	TLSCAFile      string        `json:"tls_ca_file,omitempty" yaml:"tls_ca_file,omitempty"`
	Timeout        time.Duration `json:"request_timeout" yaml:"request_timeout"`
	MaxReconnects  int           `json:"max_reconnects" yaml:"max_reconnects"` // -1 retries forever
	ReconnectWait  time.Duration `json:"reconnect_wait" yaml:"reconnect_wait"`
	DrainTimeout   time.Duration `json:"drain_timeout" yaml:"drain_timeout"`
	RequestSubject string        `json:"request_subject" yaml:"request_subject"`
	QueueGroup     string        `json:"queue_group" yaml:"queue_group"`
	JobSubject     string        `json:"job_subject" yaml:"job_subject"`
	DatasetBucket  string        `json:"dataset_bucket" yaml:"dataset_bucket"`
	ItemBucket     string        `json:"item_bucket" yaml:"item_bucket"`
	ResourceBucket string        `json:"resource_bucket" yaml:"resource_bucket"`
	SessionBucket  string        `json:"session_bucket" yaml:"session_bucket"`
}

// HydrofabricConfig locates hydrofabric GeoJSON files.
type HydrofabricConfig struct {
	DataDir   string `json:"data_dir" yaml:"data_dir"`
	CacheSize int    `json:"cache_size" yaml:"cache_size"`
}

// ResolverConfig tunes requirement resolution.
type ResolverConfig struct {
	StrictAmbiguity bool `json:"strict_ambiguity" yaml:"strict_ambiguity"`
}

// NodeConfig is one statically configured compute node.
type NodeConfig struct {
	ID   string `json:"id" yaml:"id"`
	CPUs int    `json:"cpus" yaml:"cpus"`
}

// ResourcesConfig lists nodes used when NATS is disabled.
type ResourcesConfig struct {
	Nodes []NodeConfig `json:"nodes" yaml:"nodes"`
}

// SessionConfig configures session validation.
type SessionConfig struct {
	Secrets   []string      `json:"secrets,omitempty" yaml:"secrets,omitempty"`
	CacheSize int           `json:"cache_size" yaml:"cache_size"`
	CacheTTL  time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// LogConfig selects the log level and handler format.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns the configuration used before any file or env layer.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Enabled:        true,
			Addr:           ":3012",
			Path:           "/",
			ReadTimeout:    5 * time.Minute,
			WriteTimeout:   10 * time.Second,
			MaxMessageSize: 16 << 20,
			Workers:        8,
			QueueSize:      256,
			RateLimit:      100,
			RateBurst:      20,
		},
		HTTP: HTTPConfig{
			Enabled:        true,
			Addr:           ":3013",
			MaxRequestSize: 1 << 20,
		},
		NATS: NATSConfig{
			URL:            "nats://localhost:4222",
			Name:           "dmod",
			Timeout:        5 * time.Second,
			MaxReconnects:  -1,
			ReconnectWait:  2 * time.Second,
			DrainTimeout:   10 * time.Second,
			RequestSubject: "dmod.requests",
			QueueGroup:     "dmod-dispatchers",
			JobSubject:     "dmod.jobs.submitted",
			DatasetBucket:  "dmod_datasets",
			ItemBucket:     "dmod_dataset_items",
			ResourceBucket: "dmod_resources",
			SessionBucket:  "dmod_sessions",
		},
		Hydrofabric: HydrofabricConfig{
			DataDir:   "./hydrofabric",
			CacheSize: 4,
		},
		Session: SessionConfig{
			CacheSize: 1024,
			CacheTTL:  time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Tracing: observability.Config{
			Exporter:    observability.ExporterNone,
			ServiceName: "dmod",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.WrapInvalid(fmt.Errorf(format, args...), "config", "Validate", "check config")
	}

	if c.Server.Enabled {
		if c.Server.Addr == "" {
			return invalid("server.addr is required")
		}
		if !strings.HasPrefix(c.Server.Path, "/") {
			return invalid("server.path %q must start with /", c.Server.Path)
		}
		if c.Server.Workers < 1 {
			return invalid("server.workers must be at least 1, got %d", c.Server.Workers)
		}
		if c.Server.QueueSize < 1 {
			return invalid("server.queue_size must be at least 1, got %d", c.Server.QueueSize)
		}
		if c.Server.MaxMessageSize <= 0 {
			return invalid("server.max_message_size must be positive")
		}
		if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
			return invalid("server.rate_limit and server.rate_burst must not be negative")
		}
		if c.Server.RateLimit > 0 && c.Server.RateBurst == 0 {
			return invalid("server.rate_burst must be at least 1 when server.rate_limit is set")
		}
		if err := c.Server.TLS.validate("server.tls"); err != nil {
			return err
		}
	}
	if c.HTTP.Enabled {
		if c.HTTP.Addr == "" {
			return invalid("http.addr is required")
		}
		if c.HTTP.HydrofabricUID == "" {
			return invalid("http.hydrofabric_uid is required when the subset service is enabled")
		}
		if err := c.HTTP.TLS.validate("http.tls"); err != nil {
			return err
		}
	}
	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return invalid("nats.url is required")
		}
		for name, subject := range map[string]string{
			"request_subject": c.NATS.RequestSubject,
			"job_subject":     c.NATS.JobSubject,
		} {
			if !validSubject(subject) {
				return invalid("nats.%s %q is not a valid subject", name, subject)
			}
		}
		if c.NATS.Timeout <= 0 {
			return invalid("nats.request_timeout must be positive")
		}
		if c.NATS.ReconnectWait < 0 || c.NATS.DrainTimeout < 0 {
			return invalid("nats.reconnect_wait and nats.drain_timeout must not be negative")
		}
		if (c.NATS.TLSCertFile == "") != (c.NATS.TLSKeyFile == "") {
			return invalid("nats.tls_cert_file and nats.tls_key_file must be set together")
		}
	} else if len(c.Resources.Nodes) == 0 {
		return invalid("resources.nodes is required when nats is disabled")
	}
	for i, n := range c.Resources.Nodes {
		if n.ID == "" {
			return invalid("resources.nodes[%d].id is required", i)
		}
		if n.CPUs < 0 {
			return invalid("resources.nodes[%d].cpus must not be negative", i)
		}
	}
	if c.Hydrofabric.CacheSize < 1 {
		return invalid("hydrofabric.cache_size must be at least 1")
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return invalid("metrics.port %d is out of range", c.Metrics.Port)
	}
	switch strings.ToLower(c.Tracing.Exporter) {
	case "", observability.ExporterNone, observability.ExporterStdout:
	default:
		return invalid("tracing.exporter %q is not supported", c.Tracing.Exporter)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return invalid("log.format %q is not one of text, json", c.Log.Format)
	}
	return nil
}

func (t TLSConfig) validate(section string) error {
	if !t.Enabled {
		return nil
	}
	invalid := func(format string, args ...any) error {
		return errors.WrapInvalid(fmt.Errorf("%s.%s", section, fmt.Sprintf(format, args...)),
			"config", "Validate", "check tls")
	}
	if t.CertFile == "" || t.KeyFile == "" {
		return invalid("cert_file and key_file are required when tls is enabled")
	}
	switch t.MinVersion {
	case "", "1.2", "1.3":
	default:
		return invalid("min_version %q is not one of 1.2, 1.3", t.MinVersion)
	}
	if t.RequireClientCert && t.ClientCAFile == "" {
		return invalid("client_ca_file is required with require_client_cert")
	}
	return nil
}

// validSubject accepts dot separated tokens of letters, digits, '-' and '_'.
func validSubject(s string) bool {
	if s == "" {
		return false
	}
	for _, token := range strings.Split(s, ".") {
		if token == "" {
			return false
		}
		for _, r := range token {
			if !(r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
				return false
			}
		}
	}
	return true
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}
	clone := *c
	clone.Resources.Nodes = append([]NodeConfig(nil), c.Resources.Nodes...)
	clone.Session.Secrets = append([]string(nil), c.Session.Secrets...)
	return &clone
}

// String renders the config as JSON with credentials masked.
func (c *Config) String() string {
	redacted := c.Clone()
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	redacted.NATS.Password = mask(redacted.NATS.Password)
	redacted.NATS.Token = mask(redacted.NATS.Token)
	for i := range redacted.Session.Secrets {
		redacted.Session.Secrets[i] = mask(redacted.Session.Secrets[i])
	}
	data, _ := json.MarshalIndent(redacted, "", "  ")
	return string(data)
}
