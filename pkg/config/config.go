// Package config loads the smd_inventory YAML inventory source.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bmcdonald3/smd-inventory/pkg/inventory"
	"github.com/bmcdonald3/smd-inventory/pkg/smd"
)

// PluginName must appear as `plugin:` in every config file.
const PluginName = "smd_inventory"

const (
	DefaultNIDLength    = 6
	DefaultCacheTimeout = time.Hour
)

// DefaultFilter selects compute nodes that are ready.
func DefaultFilter() smd.Filter {
	return smd.Filter{"type": "Node", "role": "Compute", "state": "Ready"}
}

// Config is built once from the file and passed explicitly.
type Config struct {
	Path string

	Server                     string
	Filter                     smd.Filter
	AccessToken                string
	AccessTokenEnvVar          string
	NIDLength                  int
	Timeout                    time.Duration
	ValidateCerts              bool
	TransformInvalidGroupChars bool

	Cache        bool
	CacheDir     string
	CacheTimeout time.Duration
}

// file mirrors the YAML layout.
type file struct {
	Plugin                     string    `yaml:"plugin"`
	SMDServer                  string    `yaml:"smd_server"`
	FilterBy                   yaml.Node `yaml:"filter_by"`
	AccessToken                string    `yaml:"access_token"`
	AccessTokenEnvVar          string    `yaml:"access_token_envvar"`
	NIDLength                  *int      `yaml:"nid_length"`
	Timeout                    *int      `yaml:"timeout"`
	ValidateCerts              *bool     `yaml:"validate_certs"`
	TransformInvalidGroupChars bool      `yaml:"transform_invalid_group_chars"`
	Cache                      bool      `yaml:"cache"`
	CacheDir                   string    `yaml:"cache_dir"`
	CacheTimeout               *int      `yaml:"cache_timeout"`
}

// VerifyPath reports whether path looks like an inventory source for this
// tool: an existing .yml or .yaml file.
func VerifyPath(path string) bool {
	if !strings.HasSuffix(path, ".yml") && !strings.HasSuffix(path, ".yaml") {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	if !VerifyPath(path) {
		return nil, &inventory.ConfigError{Option: "path", Msg: fmt.Sprintf("%s is not a .yml or .yaml file", path)}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	cfg.Path = path
	return cfg, nil
}

// Parse decodes and validates config file contents.
func Parse(data []byte) (*Config, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if f.Plugin != PluginName {
		return nil, &inventory.ConfigError{Option: "plugin", Msg: fmt.Sprintf("must be %q, got %q", PluginName, f.Plugin)}
	}
	if f.SMDServer == "" {
		return nil, &inventory.ConfigError{Option: "smd_server", Msg: "is required"}
	}
	if strings.Contains(f.SMDServer, "://") || strings.Contains(f.SMDServer, "/") {
		return nil, &inventory.ConfigError{Option: "smd_server", Msg: "must be host[:port] without scheme or path"}
	}

	cfg := &Config{
		Server:                     f.SMDServer,
		AccessToken:                f.AccessToken,
		AccessTokenEnvVar:          f.AccessTokenEnvVar,
		NIDLength:                  DefaultNIDLength,
		Timeout:                    smd.DefaultTimeout,
		ValidateCerts:              true,
		TransformInvalidGroupChars: f.TransformInvalidGroupChars,
		Cache:                      f.Cache,
		CacheDir:                   f.CacheDir,
		CacheTimeout:               DefaultCacheTimeout,
	}

	filter, err := parseFilter(&f.FilterBy)
	if err != nil {
		return nil, err
	}
	cfg.Filter = filter

	if f.NIDLength != nil {
		if *f.NIDLength < 1 {
			return nil, &inventory.ConfigError{Option: "nid_length", Msg: fmt.Sprintf("must be a positive integer, got %d", *f.NIDLength)}
		}
		cfg.NIDLength = *f.NIDLength
	}
	if f.Timeout != nil {
		if *f.Timeout < 1 {
			return nil, &inventory.ConfigError{Option: "timeout", Msg: fmt.Sprintf("must be a positive number of seconds, got %d", *f.Timeout)}
		}
		cfg.Timeout = time.Duration(*f.Timeout) * time.Second
	}
	if f.ValidateCerts != nil {
		cfg.ValidateCerts = *f.ValidateCerts
	}
	if f.CacheTimeout != nil {
		if *f.CacheTimeout < 0 {
			return nil, &inventory.ConfigError{Option: "cache_timeout", Msg: "must not be negative"}
		}
		cfg.CacheTimeout = time.Duration(*f.CacheTimeout) * time.Second
	}
	if cfg.Cache && cfg.CacheDir == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return nil, &inventory.ConfigError{Option: "cache_dir", Msg: fmt.Sprintf("not set and no user cache directory: %v", err)}
		}
		cfg.CacheDir = filepath.Join(dir, "smd-inventory")
	}

	return cfg, nil
}

// parseFilter accepts filter_by as a JSON-encoded string or as a YAML mapping.
func parseFilter(node *yaml.Node) (smd.Filter, error) {
	switch node.Kind {
	case 0:
		return DefaultFilter(), nil
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return DefaultFilter(), nil
		}
		filter, err := smd.ParseFilter([]byte(node.Value))
		if err != nil {
			return nil, &inventory.ConfigError{Option: "filter_by", Msg: fmt.Sprintf("is not a JSON object: %v", err)}
		}
		return filter, nil
	case yaml.MappingNode:
		filter := smd.Filter{}
		if err := node.Decode(&filter); err != nil {
			return nil, &inventory.ConfigError{Option: "filter_by", Msg: err.Error()}
		}
		return filter, nil
	default:
		return nil, &inventory.ConfigError{Option: "filter_by", Msg: "must be a JSON string or a mapping"}
	}
}

// Token returns the access token to send, or "" when none is configured.
// A named environment variable that is unset or empty only warrants a
// warning: the SMD instance may not require authentication.
func (c *Config) Token(log *slog.Logger) string {
	if c.AccessToken != "" {
		return c.AccessToken
	}
	if c.AccessTokenEnvVar == "" {
		return ""
	}
	token := os.Getenv(c.AccessTokenEnvVar)
	if token == "" {
		log.Warn("access token environment variable is unset or empty, querying without a token",
			"variable", c.AccessTokenEnvVar)
	}
	return token
}

// ClientOptions translates the config into smd.Client options.
func (c *Config) ClientOptions() []smd.Option {
	opts := []smd.Option{smd.WithTimeout(c.Timeout)}
	if !c.ValidateCerts {
		opts = append(opts, smd.WithInsecureTLS())
	}
	return opts
}
