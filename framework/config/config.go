package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/km-arc/go-resolve/framework/container"
	rerrors "github.com/km-arc/go-resolve/framework/errors"
	"github.com/km-arc/go-resolve/framework/lifetime"
	"github.com/km-arc/go-resolve/framework/registry"
	"github.com/km-arc/go-resolve/framework/scope"
)

// Options is the typed runtime configuration.
type Options struct {
	DefaultLifetime string `yaml:"default_lifetime"` // transient | singleton | per-container | ...
	DefaultScope    string `yaml:"default_scope"`    // global | internal
	ConflictPolicy  string `yaml:"conflict_policy"`  // shadow | reject
	MaxDepth        int    `yaml:"max_depth"`
	LogLevel        string `yaml:"log_level"` // off | debug | info | warn | error

	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Inspect InspectConfig `yaml:"inspect"`

	// Sources lists where values came from, lowest priority first.
	Sources []string `yaml:"-"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

type TracingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Tracer  string `yaml:"tracer"`
}

type InspectConfig struct {
	Addr string `yaml:"addr"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Options {
	return &Options{
		DefaultLifetime: "transient",
		DefaultScope:    "global",
		ConflictPolicy:  "shadow",
		LogLevel:        "off",
		Metrics:         MetricsConfig{Namespace: "resolve"},
		Tracing:         TracingConfig{Tracer: "github.com/km-arc/go-resolve"},
		Sources:         []string{"defaults"},
	}
}

// Load reads .env files (if present), then the YAML file named by
// RESOLVE_CONFIG_FILE, then RESOLVE_* environment variables, and validates
// the result. Call once at bootstrap: opts, err := config.Load()
func Load(envFiles ...string) (*Options, error) {
	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	opts := Defaults()
	for _, f := range files {
		// A missing .env is normal in production.
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
		opts.Sources = append(opts.Sources, f)
	}

	if path := os.Getenv("RESOLVE_CONFIG_FILE"); path != "" {
		if err := opts.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := opts.loadEnv(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func (o *Options) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, o); err != nil {
		return rerrors.InvalidConfiguration(path, err)
	}
	o.Sources = append(o.Sources, path)
	return nil
}

func (o *Options) loadEnv() error {
	o.DefaultLifetime = env("RESOLVE_DEFAULT_LIFETIME", o.DefaultLifetime)
	o.DefaultScope = env("RESOLVE_DEFAULT_SCOPE", o.DefaultScope)
	o.ConflictPolicy = env("RESOLVE_CONFLICT_POLICY", o.ConflictPolicy)
	o.LogLevel = env("RESOLVE_LOG_LEVEL", o.LogLevel)
	o.Metrics.Namespace = env("RESOLVE_METRICS_NAMESPACE", o.Metrics.Namespace)
	o.Inspect.Addr = env("RESOLVE_INSPECT_ADDR", o.Inspect.Addr)

	var err error
	if o.MaxDepth, err = envInt("RESOLVE_MAX_DEPTH", o.MaxDepth); err != nil {
		return err
	}
	if o.Metrics.Enabled, err = envBool("RESOLVE_METRICS", o.Metrics.Enabled); err != nil {
		return err
	}
	if o.Tracing.Enabled, err = envBool("RESOLVE_TRACING", o.Tracing.Enabled); err != nil {
		return err
	}
	o.Sources = append(o.Sources, "environment")
	return nil
}

// Validate reports the first field that does not parse.
func (o *Options) Validate() error {
	if _, ok := lifetime.Parse(o.DefaultLifetime); !ok {
		return rerrors.InvalidConfiguration("default_lifetime", fmt.Errorf("unknown lifetime %q", o.DefaultLifetime))
	}
	if _, ok := scope.Parse(o.DefaultScope); !ok {
		return rerrors.InvalidConfiguration("default_scope", fmt.Errorf("unknown scope %q", o.DefaultScope))
	}
	if _, ok := registry.ParseConflictPolicy(o.ConflictPolicy); !ok {
		return rerrors.InvalidConfiguration("conflict_policy", fmt.Errorf("unknown policy %q", o.ConflictPolicy))
	}
	if o.MaxDepth < 0 {
		return rerrors.InvalidConfiguration("max_depth", fmt.Errorf("negative depth %d", o.MaxDepth))
	}
	if o.LogLevel != "off" && o.LogLevel != "" {
		if _, err := zapcore.ParseLevel(o.LogLevel); err != nil {
			return rerrors.InvalidConfiguration("log_level", err)
		}
	}
	return nil
}

// ContainerOptions translates the configuration into root container options.
// logger may be nil.
func (o *Options) ContainerOptions(logger *zap.Logger) ([]container.Option, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	lt, _ := lifetime.Parse(o.DefaultLifetime)
	sc, _ := scope.Parse(o.DefaultScope)
	cp, _ := registry.ParseConflictPolicy(o.ConflictPolicy)

	out := []container.Option{
		container.WithDefaultLifetime(lt),
		container.WithDefaultScope(sc),
		container.WithConflictPolicy(cp),
		container.WithLogger(logger),
	}
	if o.MaxDepth > 0 {
		out = append(out, container.WithMaxDepth(o.MaxDepth))
	}
	return out, nil
}

// Logger builds the logger selected by LogLevel: nothing for "off", the
// development preset for "debug", the production preset otherwise.
func (o *Options) Logger() (*zap.Logger, error) {
	switch o.LogLevel {
	case "", "off":
		return zap.NewNop(), nil
	case "debug":
		return zap.NewDevelopment()
	}
	lvl, err := zapcore.ParseLevel(o.LogLevel)
	if err != nil {
		return nil, rerrors.InvalidConfiguration("log_level", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// ── helpers ─────────────────────────────────────────────────────────────────

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, rerrors.InvalidConfiguration(key, err)
	}
	return i, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, rerrors.InvalidConfiguration(key, err)
	}
	return b, nil
}
