// Package config loads interactivectl settings from TOML or YAML files with
// environment overrides for credentials.
//
// Only keys present in the file override defaults, so a file may set a
// single value.
package config

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/interactivectl/internal/account"
	"github.com/danmuck/interactivectl/internal/interactive"
	"gopkg.in/yaml.v3"
)

const (
	EnvUsername = "INTERACTIVECTL_USERNAME"
	EnvPassword = "INTERACTIVECTL_PASSWORD"
	EnvCode     = "INTERACTIVECTL_CODE"
	EnvToken    = "INTERACTIVECTL_TOKEN"
)

// File is the full runtime configuration of one robot.
type File struct {
	Client      interactive.Config
	Credentials account.Credentials
	APIBaseURL  string
	// CAFile, when set, is the trust root for wss:// session endpoints.
	CAFile      string
	MetricsAddr string
}

func Default() File {
	return File{
		Client:     interactive.DefaultConfig(),
		APIBaseURL: account.DefaultBaseURL,
	}
}

// fileConfig maps config file keys. Durations accept a Go duration string or
// a number of seconds; the _ms keys take milliseconds.
type fileConfig struct {
	APIBaseURL  string `toml:"api_base_url" yaml:"api_base_url"`
	CAFile      string `toml:"ca_file" yaml:"ca_file"`
	MetricsAddr string `toml:"metrics_addr" yaml:"metrics_addr"`

	Username string `toml:"username" yaml:"username"`
	Password string `toml:"password" yaml:"password"`
	Code     string `toml:"code" yaml:"code"`
	Token    string `toml:"oauth_token" yaml:"oauth_token"`

	Timeout              any     `toml:"timeout" yaml:"timeout"`
	TimeoutMS            int64   `toml:"timeout_ms" yaml:"timeout_ms"`
	AutoReconnect        bool    `toml:"auto_reconnect" yaml:"auto_reconnect"`
	MaxReconnectAttempts int     `toml:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
	ReconnectDelay       any     `toml:"reconnect_delay" yaml:"reconnect_delay"`
	ReconnectDelayMS     int64   `toml:"reconnect_delay_ms" yaml:"reconnect_delay_ms"`
	BackoffMultiplier    float64 `toml:"backoff_multiplier" yaml:"backoff_multiplier"`
	BackoffMaxDelay      any     `toml:"backoff_max_delay" yaml:"backoff_max_delay"`
	BackoffJitter        bool    `toml:"backoff_jitter" yaml:"backoff_jitter"`
	HandlerErrors        string  `toml:"handler_errors" yaml:"handler_errors"`
	HandlerMode          string  `toml:"handler_mode" yaml:"handler_mode"`
	QueueSize            int     `toml:"queue_size" yaml:"queue_size"`
}

// Load reads path (.toml, .yaml or .yml), overlays it on Default, applies
// credential env overrides, and validates the result.
func Load(path string) (File, error) {
	raw, defined, err := decode(path)
	if err != nil {
		return File{}, err
	}
	cfg, err := apply(Default(), raw, defined)
	if err != nil {
		return File{}, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return File{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(path string) (fileConfig, func(string) bool, error) {
	var raw fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return raw, nil, fmt.Errorf("config load failed (%s): %w", path, err)
		}
		keys, err := yamlKeys(data)
		if err != nil {
			return raw, nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return raw, nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		return raw, func(key string) bool { return keys[key] }, nil
	default:
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return raw, nil, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return raw, nil, fmt.Errorf("config parse failed (%s): unknown key %q", path, undecoded[0].String())
		}
		return raw, func(key string) bool { return meta.IsDefined(key) }, nil
	}
}

// yamlKeys returns the top-level keys of a YAML mapping document.
func yamlKeys(data []byte) (map[string]bool, error) {
	keys := make(map[string]bool)
	if len(bytes.TrimSpace(data)) == 0 {
		return keys, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return keys, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("top level must be a mapping")
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		keys[root.Content[i].Value] = true
	}
	return keys, nil
}

func apply(cfg File, raw fileConfig, defined func(string) bool) (File, error) {
	if defined("api_base_url") {
		cfg.APIBaseURL = strings.TrimSpace(raw.APIBaseURL)
	}
	if defined("ca_file") {
		cfg.CAFile = strings.TrimSpace(raw.CAFile)
	}
	if defined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if defined("username") {
		cfg.Credentials.Username = strings.TrimSpace(raw.Username)
	}
	if defined("password") {
		cfg.Credentials.Password = raw.Password
	}
	if defined("code") {
		cfg.Credentials.Code = strings.TrimSpace(raw.Code)
	}
	if defined("oauth_token") {
		cfg.Credentials.Token = strings.TrimSpace(raw.Token)
	}

	c := &cfg.Client
	var err error
	if defined("timeout") {
		if c.Timeout, err = parseDuration("timeout", raw.Timeout); err != nil {
			return cfg, err
		}
	}
	if defined("timeout_ms") {
		c.Timeout = time.Duration(raw.TimeoutMS) * time.Millisecond
	}
	if defined("auto_reconnect") {
		c.AutoReconnect = raw.AutoReconnect
	}
	if defined("max_reconnect_attempts") {
		c.MaxReconnectAttempts = raw.MaxReconnectAttempts
	}
	if defined("reconnect_delay") {
		if c.ReconnectDelay, err = parseDuration("reconnect_delay", raw.ReconnectDelay); err != nil {
			return cfg, err
		}
	}
	if defined("reconnect_delay_ms") {
		c.ReconnectDelay = time.Duration(raw.ReconnectDelayMS) * time.Millisecond
	}
	if defined("backoff_multiplier") {
		c.Backoff.Multiplier = raw.BackoffMultiplier
	}
	if defined("backoff_max_delay") {
		if c.Backoff.MaxDelay, err = parseDuration("backoff_max_delay", raw.BackoffMaxDelay); err != nil {
			return cfg, err
		}
	}
	if defined("backoff_jitter") {
		c.Backoff.Jitter = raw.BackoffJitter
	}
	if defined("handler_errors") {
		if c.HandlerErrors, err = ParseHandlerErrors(raw.HandlerErrors); err != nil {
			return cfg, err
		}
	}
	if defined("handler_mode") {
		if c.HandlerMode, err = ParseHandlerMode(raw.HandlerMode); err != nil {
			return cfg, err
		}
	}
	if defined("queue_size") {
		c.QueueSize = raw.QueueSize
	}
	return cfg, nil
}

// ApplyEnv overrides credentials from the environment.
func (f *File) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvUsername); ok {
		f.Credentials.Username = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvPassword); ok {
		f.Credentials.Password = v
	}
	if v, ok := lookup(EnvCode); ok {
		f.Credentials.Code = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvToken); ok {
		f.Credentials.Token = strings.TrimSpace(v)
	}
}

func (f File) Validate() error {
	if err := f.Client.Validate(); err != nil {
		return err
	}
	if err := f.Credentials.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(f.APIBaseURL) == "" {
		return fmt.Errorf("api_base_url is required")
	}
	return nil
}

func ParseHandlerErrors(s string) (interactive.HandlerErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "propagate":
		return interactive.PropagateHandlerErrors, nil
	case "log":
		return interactive.LogHandlerErrors, nil
	default:
		return 0, fmt.Errorf("handler_errors must be propagate or log, got %q", s)
	}
}

func ParseHandlerMode(s string) (interactive.HandlerMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inline":
		return interactive.HandlersInline, nil
	case "queued":
		return interactive.HandlersQueued, nil
	default:
		return 0, fmt.Errorf("handler_mode must be inline or queued, got %q", s)
	}
}

func parseDuration(key string, v any) (time.Duration, error) {
	switch x := v.(type) {
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	case int:
		return time.Duration(x) * time.Second, nil
	case int64:
		return time.Duration(x) * time.Second, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("%s: not a finite number", key)
		}
		return time.Duration(x * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("%s: expected duration string or seconds, got %T", key, v)
	}
}
