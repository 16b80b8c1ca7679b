// Package config loads critpath settings.
//
// Settings are two-level, section.key = string value, as in a buckconfig.
// They come from an optional YAML file and from command-line overrides in
// the form "section.key=value"; overrides win. The merged settings are
// validated against an embedded CUE schema before use.
//
// Example file:
//
//	build:
//	  critical_path_backend: longest-path-graph
//	client:
//	  id: myclient
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/critpath/internal/criticalpath"
	"github.com/roach88/critpath/internal/engine"
)

//go:embed schema.cue
var schemaCUE string

// Setting keys.
const (
	KeyBackend   = "build.critical_path_backend"
	KeyTarget    = "build.target"
	KeyClientID  = "client.id"
	KeyQueueSize = "engine.queue_size"
)

// aliases maps accepted legacy spellings to their setting key.
var aliases = map[string]string{
	"buck2.critical_path_backend2": KeyBackend,
}

// Error is a configuration error: a malformed file or override, or a
// setting the schema rejects.
type Error struct {
	Source  string // file path or "-c"
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Source != "" {
		return fmt.Sprintf("config %s: %s", e.Source, msg)
	}
	return "config: " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// Settings holds raw values by section and key.
type Settings map[string]map[string]string

// Set stores value under "section.key", resolving aliases.
func (s Settings) Set(key, value string) error {
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	section, name, ok := strings.Cut(key, ".")
	if !ok || section == "" || name == "" || strings.Contains(name, ".") {
		return fmt.Errorf("key %q must have the form section.key", key)
	}
	if s[section] == nil {
		s[section] = make(map[string]string)
	}
	s[section][name] = value
	return nil
}

// Get returns the value of "section.key", or "" when unset.
func (s Settings) Get(key string) string {
	section, name, _ := strings.Cut(key, ".")
	return s[section][name]
}

// Keys returns the set keys in sorted order.
func (s Settings) Keys() []string {
	var keys []string
	for section, kv := range s {
		for name := range kv {
			keys = append(keys, section+"."+name)
		}
	}
	sort.Strings(keys)
	return keys
}

// Config is the validated configuration.
type Config struct {
	Backend   criticalpath.BackendKind
	Target    string
	ClientID  string
	QueueSize int

	Settings Settings
}

// Load reads the file at path (skipped when empty), applies overrides and
// validates the result.
func Load(path string, overrides []string) (*Config, error) {
	settings := Settings{}
	if path != "" {
		if err := loadFile(path, settings); err != nil {
			return nil, err
		}
	}
	for _, o := range overrides {
		key, value, err := ParseOverride(o)
		if err != nil {
			return nil, &Error{Source: "-c", Message: "invalid override", Err: err}
		}
		if err := settings.Set(key, value); err != nil {
			return nil, &Error{Source: "-c", Message: "invalid override", Err: err}
		}
	}
	return FromSettings(settings)
}

// ParseOverride splits "section.key=value".
func ParseOverride(s string) (key, value string, err error) {
	key, value, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("override %q must have the form section.key=value", s)
	}
	return key, strings.TrimSpace(value), nil
}

// FromSettings validates settings and builds the Config.
func FromSettings(settings Settings) (*Config, error) {
	if err := validate(settings); err != nil {
		return nil, err
	}

	backend, err := criticalpath.ParseBackend(settings.Get(KeyBackend))
	if err != nil {
		return nil, &Error{Message: KeyBackend, Err: err}
	}
	cfg := &Config{
		Backend:   backend,
		Target:    settings.Get(KeyTarget),
		ClientID:  settings.Get(KeyClientID),
		QueueSize: engine.DefaultQueueSize,
		Settings:  settings,
	}
	if v := settings.Get(KeyQueueSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, &Error{Message: KeyQueueSize, Err: err}
		}
		cfg.QueueSize = n
	}
	return cfg, nil
}

// EngineOptions returns the engine options the configuration selects.
func (c *Config) EngineOptions() []engine.EngineOption {
	opts := []engine.EngineOption{
		engine.WithBackend(c.Backend),
		engine.WithQueueSize(c.QueueSize),
	}
	if c.Target != "" {
		opts = append(opts, engine.WithTarget(c.Target))
	}
	return opts
}

func loadFile(path string, settings Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &Error{Source: path, Message: "failed to read config file", Err: err}
	}

	var raw map[string]map[string]any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return &Error{Source: path, Message: "failed to parse YAML", Err: err}
	}

	for section, kv := range raw {
		for name, v := range kv {
			if v == nil {
				continue
			}
			switch v.(type) {
			case map[string]any, []any:
				return &Error{Source: path, Message: fmt.Sprintf("%s.%s must be a scalar", section, name)}
			}
			if err := settings.Set(section+"."+name, fmt.Sprint(v)); err != nil {
				return &Error{Source: path, Message: "invalid key", Err: err}
			}
		}
	}
	return nil
}

// validate unifies the settings with the #Config schema.
func validate(settings Settings) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(map[string]map[string]string(settings)))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return &Error{Message: "invalid settings", Err: err}
	}
	return nil
}
