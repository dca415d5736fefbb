package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
)

// EnvPrefix prefixes every environment override, e.g. DMOD_NATS_URL.
const EnvPrefix = "DMOD"

// Loader builds a Config from defaults, file layers and the environment.
// Later layers override earlier ones key by key.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a loader with validation enabled.
func NewLoader() *Loader {
	return &Loader{validation: true, envPrefix: EnvPrefix}
}

// AddLayer appends a JSON or YAML file.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation turns validation of the merged config on or off.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads defaults, then path, then the environment.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges every layer.
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(Default())
	if err != nil {
		return nil, err
	}
	for _, path := range l.layers {
		layer, err := loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "load "+path)
		}
		merged = deepMergeMaps(merged, layer)
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "decode merged config")
	}
	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	parseDurations(raw)
	return raw, nil
}

var durationKeys = map[string]bool{
	"read_timeout":    true,
	"write_timeout":   true,
	"request_timeout": true,
	"cache_ttl":       true,
}

// parseDurations rewrites duration strings ("30s", "2d") to nanoseconds so
// they decode into time.Duration fields.
func parseDurations(m map[string]any) {
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			parseDurations(val)
		case string:
			if durationKeys[k] {
				if d, err := parseDurationWithDays(val); err == nil {
					m[k] = d.Nanoseconds()
				}
			}
		}
	}
}

func parseDurationWithDays(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	return m, json.Unmarshal(data, &m)
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) applyEnvOverrides(cfg *Config) error {
	var firstErr error
	env := func(name string, apply func(string) error) {
		key := l.envPrefix + "_" + name
		val := os.Getenv(key)
		if val == "" || firstErr != nil {
			return
		}
		if err := validateEnvVar(key, val); err != nil {
			firstErr = err
			return
		}
		if err := apply(val); err != nil {
			firstErr = fmt.Errorf("%s: %w", key, err)
		}
	}
	str := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}
	boolean := func(dst *bool) func(string) error {
		return func(v string) (err error) { *dst, err = strconv.ParseBool(v); return err }
	}
	integer := func(dst *int) func(string) error {
		return func(v string) (err error) { *dst, err = strconv.Atoi(v); return err }
	}

	env("SERVER_ENABLED", boolean(&cfg.Server.Enabled))
	env("SERVER_ADDR", str(&cfg.Server.Addr))
	env("SERVER_WORKERS", integer(&cfg.Server.Workers))
	env("HTTP_ENABLED", boolean(&cfg.HTTP.Enabled))
	env("HTTP_ADDR", str(&cfg.HTTP.Addr))
	env("HTTP_HYDROFABRIC_UID", str(&cfg.HTTP.HydrofabricUID))
	env("NATS_ENABLED", boolean(&cfg.NATS.Enabled))
	env("NATS_URL", str(&cfg.NATS.URL))
	env("NATS_USERNAME", str(&cfg.NATS.Username))
	env("NATS_PASSWORD", str(&cfg.NATS.Password))
	env("NATS_TOKEN", str(&cfg.NATS.Token))
	env("HYDROFABRIC_DATA_DIR", str(&cfg.Hydrofabric.DataDir))
	env("RESOLVER_STRICT_AMBIGUITY", boolean(&cfg.Resolver.StrictAmbiguity))
	env("SESSION_SECRETS", func(v string) error {
		cfg.Session.Secrets = strings.Split(v, ",")
		return nil
	})
	env("METRICS_ENABLED", boolean(&cfg.Metrics.Enabled))
	env("METRICS_PORT", integer(&cfg.Metrics.Port))
	env("TRACING_ENABLED", boolean(&cfg.Tracing.Enabled))
	env("TRACING_EXPORTER", str(&cfg.Tracing.Exporter))
	env("LOG_LEVEL", str(&cfg.Log.Level))
	env("LOG_FORMAT", str(&cfg.Log.Format))

	if firstErr != nil {
		return errors.WrapInvalid(firstErr, "config", "Load", "apply environment")
	}
	return nil
}
