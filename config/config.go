// Package config provides a configuration module. ForRoot loads a YAML file
// layered over defaults and exposes the result as a *Service provider.
//
//	var AppModule = bundi.NewModule("AppModule",
//	    bundi.Imports(config.ForRoot(config.Options{Path: "config.yaml", Global: true})),
//	    bundi.Providers(NewDatabase),
//	)
//
//	func NewDatabase(cfg *config.Service) (*Database, error) {
//	    return Open(cfg.GetString("database.url", "postgres://localhost"))
//	}
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/imdat99/bun-di-sub000"
)

// Module is the static part of every module returned by ForRoot.
var Module = bundi.NewModule("ConfigModule")

// Options configures ForRoot and Load.
type Options struct {
	// Path is a YAML file. A missing file is ignored unless Required is set.
	Path     string
	Required bool

	// Defaults are the values used when neither the file nor the
	// environment sets a key. Nested maps address dotted keys.
	Defaults map[string]any

	// EnvPrefix is prepended to environment variable names: with prefix
	// "APP_", key "database.url" is overridden by APP_DATABASE_URL.
	EnvPrefix string
	IgnoreEnv bool

	// Global makes the Service injectable from every module.
	Global bool

	// Validate runs once after loading. A returned error fails bootstrap.
	Validate func(*Service) error
}

// ForRoot returns a module providing and exporting *Service.
func ForRoot(opts Options) *bundi.DynamicModule {
	return &bundi.DynamicModule{
		Module: Module,
		Providers: []any{
			bundi.Factory(bundi.TypeOf[*Service](), func() (*Service, error) {
				return Load(opts)
			}),
		},
		Exports: []bundi.Token{bundi.TypeOf[*Service]()},
		Global:  opts.Global,
	}
}

// Service reads configuration values by dotted key.
type Service struct {
	values    map[string]any
	envPrefix string
	ignoreEnv bool
}

// Load builds a Service from opts.
func Load(opts Options) (*Service, error) {
	values := make(map[string]any)
	merge(values, opts.Defaults)

	if opts.Path != "" {
		data, err := os.ReadFile(opts.Path)
		switch {
		case errors.Is(err, os.ErrNotExist) && !opts.Required:
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", opts.Path, err)
		default:
			var file map[string]any
			if err := yaml.Unmarshal(data, &file); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", opts.Path, err)
			}
			merge(values, file)
		}
	}

	s := &Service{values: values, envPrefix: opts.EnvPrefix, ignoreEnv: opts.IgnoreEnv}
	if opts.Validate != nil {
		if err := opts.Validate(s); err != nil {
			return nil, fmt.Errorf("config: validation failed: %w", err)
		}
	}
	return s, nil
}

// New creates a Service over values, without environment overrides.
func New(values map[string]any) *Service {
	s := &Service{values: make(map[string]any), ignoreEnv: true}
	merge(s.values, values)
	return s
}

// merge deep-merges src into dst.
func merge(dst, src map[string]any) {
	for k, v := range src {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := dst[k].(map[string]any); ok {
				merge(existing, sub)
				continue
			}
			copied := make(map[string]any, len(sub))
			merge(copied, sub)
			dst[k] = copied
			continue
		}
		dst[k] = v
	}
}

// EnvName returns the environment variable overriding key.
func (s *Service) EnvName(key string) string {
	r := strings.NewReplacer(".", "_", "-", "_")
	return s.envPrefix + strings.ToUpper(r.Replace(key))
}

// Get returns the value at key. The environment takes precedence over the
// file and defaults.
func (s *Service) Get(key string) (any, bool) {
	if !s.ignoreEnv {
		if v, ok := os.LookupEnv(s.EnvName(key)); ok {
			return v, true
		}
	}
	return lookup(s.values, key)
}

func lookup(values map[string]any, key string) (any, bool) {
	if key == "" {
		return values, true
	}
	var cur any = values
	for part := range strings.SplitSeq(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Has reports whether key is set.
func (s *Service) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// GetString returns the value at key formatted as a string, or def.
func (s *Service) GetString(key, def string) string {
	v, ok := s.Get(key)
	if !ok || v == nil {
		return def
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// GetInt returns the value at key as an int, or def when it is unset or not
// numeric.
func (s *Service) GetInt(key string, def int) int {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return def
}

// GetBool returns the value at key as a bool, or def.
func (s *Service) GetBool(key string, def bool) bool {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
	}
	return def
}

// GetDuration returns the value at key as a duration, or def. Strings use
// time.ParseDuration syntax; bare numbers are seconds.
func (s *Service) GetDuration(key string, def time.Duration) time.Duration {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	switch d := v.(type) {
	case time.Duration:
		return d
	case int:
		return time.Duration(d) * time.Second
	case float64:
		return time.Duration(d * float64(time.Second))
	case string:
		if parsed, err := time.ParseDuration(strings.TrimSpace(d)); err == nil {
			return parsed
		}
		if secs, err := strconv.Atoi(strings.TrimSpace(d)); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}

// Bind decodes the subtree at key into target using its yaml tags. An
// empty key binds the whole configuration. Environment overrides are not
// applied.
func (s *Service) Bind(key string, target any) error {
	v, ok := lookup(s.values, key)
	if !ok {
		return fmt.Errorf("config: key %q not found", key)
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("config: bind %q: %w", key, err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("config: bind %q: %w", key, err)
	}
	return nil
}
