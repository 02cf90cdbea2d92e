// Package config loads the mathgrid settings file. The file is HCL; every
// attribute and block is optional and falls back to Default. Expressions
// can use the variables home (the user's home directory) and env (the
// process environment):
//
//	archive_roots = ["${home}/MathHub", env.EXTRA_ARCHIVES]
//
//	log {
//	  level  = "debug"
//	  format = "json"
//	}
//
//	queue {
//	  mode    = "counting"
//	  permits = 8
//	}
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/mathgrid/internal/ctxlog"
)

const (
	QueueCounting = "counting"
	QueueLinear   = "linear"
)

// Config holds the process-wide settings.
type Config struct {
	ArchiveRoots []string          `json:"archive_roots"`
	Log          LogConfig         `json:"log"`
	Queue        QueueConfig       `json:"queue"`
	Cache        CacheConfig       `json:"cache"`
	Server       ServerConfig      `json:"server"`
	Relay        RelayConfig       `json:"relay"`
	TripleStore  TripleStoreConfig `json:"triple_store"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type QueueConfig struct {
	Mode    string `json:"mode"`
	Permits int    `json:"permits"`
}

type CacheConfig struct {
	EvictionThreshold int `json:"eviction_threshold"`
}

// ServerConfig configures the status server. Port 0 disables it.
type ServerConfig struct {
	Port int `json:"port"`
}

// RelayConfig configures notification forwarding. An empty URL disables
// it.
type RelayConfig struct {
	URL       string `json:"url"`
	Namespace string `json:"namespace"`
	Event     string `json:"event"`
}

// TripleStoreConfig selects where relations are stored.
type TripleStoreConfig struct {
	Path     string `json:"path"`
	InMemory bool   `json:"in_memory"`
}

// Default returns the settings used when the file or one of its blocks is
// absent.
func Default() *Config {
	return &Config{
		ArchiveRoots: []string{filepath.Join(home(), "MathHub")},
		Log:          LogConfig{Level: "info", Format: "text"},
		Queue:        QueueConfig{Mode: QueueCounting, Permits: runtime.NumCPU()},
		Cache:        CacheConfig{EvictionThreshold: 500},
		Relay:        RelayConfig{Namespace: "/", Event: "mathgrid"},
		TripleStore:  TripleStoreConfig{InMemory: true},
	}
}

// DefaultPath is where Load looks when given no path.
func DefaultPath() string {
	return filepath.Join(home(), ".mathgrid", "settings.hcl")
}

func home() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "."
}

// Validate checks the values a settings file can get wrong.
func (c *Config) Validate() error {
	var result *multierror.Error
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("invalid log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("invalid log format %q", c.Log.Format))
	}
	switch c.Queue.Mode {
	case QueueCounting, QueueLinear:
	default:
		result = multierror.Append(result, fmt.Errorf("invalid queue mode %q", c.Queue.Mode))
	}
	if c.Queue.Permits < 1 {
		result = multierror.Append(result, fmt.Errorf("queue permits must be positive, got %d", c.Queue.Permits))
	}
	if c.Cache.EvictionThreshold < 1 {
		result = multierror.Append(result, fmt.Errorf("cache eviction threshold must be positive, got %d", c.Cache.EvictionThreshold))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("invalid server port %d", c.Server.Port))
	}
	if !c.TripleStore.InMemory && c.TripleStore.Path == "" {
		result = multierror.Append(result, errors.New("triple store needs a path unless in_memory is set"))
	}
	return result.ErrorOrNil()
}

// fileRoot mirrors the settings file. Blocks are pointers so that absent
// blocks keep their defaults.
type fileRoot struct {
	ArchiveRoots []string          `hcl:"archive_roots,optional"`
	Log          *logBlock         `hcl:"log,block"`
	Queue        *queueBlock       `hcl:"queue,block"`
	Cache        *cacheBlock       `hcl:"cache,block"`
	Server       *serverBlock      `hcl:"server,block"`
	Relay        *relayBlock       `hcl:"relay,block"`
	TripleStore  *tripleStoreBlock `hcl:"triple_store,block"`
}

type logBlock struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

type queueBlock struct {
	Mode    *string `hcl:"mode,optional"`
	Permits *int    `hcl:"permits,optional"`
}

type cacheBlock struct {
	EvictionThreshold *int `hcl:"eviction_threshold,optional"`
}

type serverBlock struct {
	Port *int `hcl:"port,optional"`
}

type relayBlock struct {
	URL       *string `hcl:"url,optional"`
	Namespace *string `hcl:"namespace,optional"`
	Event     *string `hcl:"event,optional"`
}

type tripleStoreBlock struct {
	Path     *string `hcl:"path,optional"`
	InMemory *bool   `hcl:"in_memory,optional"`
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// evalContext exposes home and env to expressions.
func evalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k != "" {
			env[k] = cty.StringVal(v)
		}
	}
	envVal := cty.EmptyObjectVal
	if len(env) > 0 {
		envVal = cty.ObjectVal(env)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"home": cty.StringVal(home()),
			"env":  envVal,
		},
	}
}

// Load reads the settings file at path over Default and validates the
// result. An empty path means DefaultPath, which may be missing; an
// explicit path must exist.
func Load(ctx context.Context, path string) (*Config, error) {
	logger := ctxlog.FromContext(ctx)
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	src, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
		logger.Debug("No settings file, using defaults.", "path", path)
		return cfg, cfg.Validate()
	case err != nil:
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	if err := Parse(src, path, cfg); err != nil {
		return nil, err
	}
	logger.Debug("Settings loaded.", "path", path)
	return cfg, cfg.Validate()
}

// Parse decodes settings from src into cfg, keeping the values of cfg for
// everything src leaves out.
func Parse(src []byte, filename string, cfg *Config) error {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse settings file %s: %w", filename, diags)
	}
	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, evalContext(), &root); diags.HasErrors() {
		return fmt.Errorf("failed to decode settings file %s: %w", filename, diags)
	}

	if root.ArchiveRoots != nil {
		cfg.ArchiveRoots = root.ArchiveRoots
	}
	if b := root.Log; b != nil {
		set(&cfg.Log.Level, b.Level)
		set(&cfg.Log.Format, b.Format)
	}
	if b := root.Queue; b != nil {
		set(&cfg.Queue.Mode, b.Mode)
		set(&cfg.Queue.Permits, b.Permits)
	}
	if b := root.Cache; b != nil {
		set(&cfg.Cache.EvictionThreshold, b.EvictionThreshold)
	}
	if b := root.Server; b != nil {
		set(&cfg.Server.Port, b.Port)
	}
	if b := root.Relay; b != nil {
		set(&cfg.Relay.URL, b.URL)
		set(&cfg.Relay.Namespace, b.Namespace)
		set(&cfg.Relay.Event, b.Event)
	}
	if b := root.TripleStore; b != nil {
		set(&cfg.TripleStore.Path, b.Path)
		set(&cfg.TripleStore.InMemory, b.InMemory)
	}
	return nil
}
