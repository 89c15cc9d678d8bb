package inventory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openlagoon/openlagoon/pkg/engine"
)

// Defaults applied by Normalize.
const (
	DefaultPerPage   = 200
	DefaultVarPrefix = "do_"
	DefaultCacheTTL  = 300 * time.Second
)

// DefaultAttributes is the droplet attribute allowlist exported as host vars
// when the config names none.
var DefaultAttributes = []string{"id", "name", "networks", "region", "size_slug"}

// validGroupKeys are the supported group_by keys.
var validGroupKeys = map[string]bool{
	"region": true,
	"tag":    true,
	"size":   true,
	"status": true,
}

// CacheConfig controls the on-disk inventory cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`

	// TTL is the cache lifetime in seconds.
	TTL int `yaml:"ttl,omitempty" json:"ttl,omitempty" validate:"omitempty,min=1"`
}

// Config is the inventory plugin configuration, loaded from YAML.
type Config struct {
	// APIToken supports ${VAR} environment expansion. Empty falls back to
	// the usual token environment variables.
	APIToken string `yaml:"api_token,omitempty" json:"api_token,omitempty"`

	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Timeout int    `yaml:"timeout,omitempty" json:"timeout,omitempty" validate:"omitempty,min=1"`

	// PerPage is the API page size. The provider caps it at 200.
	PerPage int `yaml:"per_page,omitempty" json:"per_page,omitempty" validate:"omitempty,min=1,max=200"`

	// Attributes is the droplet attribute allowlist exported as host vars.
	Attributes []string `yaml:"attributes,omitempty" json:"attributes,omitempty"`

	// VarPrefix is prepended to every exported host var name.
	VarPrefix string `yaml:"var_prefix,omitempty" json:"var_prefix,omitempty"`

	// Filters are Starlark boolean expressions evaluated per host. A host is
	// kept only when every expression is true.
	Filters []string `yaml:"filters,omitempty" json:"filters,omitempty"`

	// Strict turns filter evaluation errors into build failures instead of
	// silently excluding the host.
	Strict bool `yaml:"strict,omitempty" json:"strict,omitempty"`

	// GroupBy selects the grouping keys: region, tag, size, status.
	GroupBy []string `yaml:"group_by,omitempty" json:"group_by,omitempty"`

	Cache CacheConfig `yaml:"cache,omitempty" json:"cache"`
}

// LoadConfig reads and normalizes an inventory config file. ${VAR}
// references anywhere in the file are expanded from the environment before
// parsing.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.NewValidationError(fmt.Sprintf("read inventory config %s: %v", path, err))
	}

	expanded := os.Expand(string(data), func(name string) string {
		return os.Getenv(name)
	})

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, engine.NewValidationError(fmt.Sprintf("parse inventory config %s: %v", path, err))
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize applies defaults and validates the configuration.
func (c *Config) Normalize() error {
	if c.PerPage == 0 {
		c.PerPage = DefaultPerPage
	}
	if c.VarPrefix == "" {
		c.VarPrefix = DefaultVarPrefix
	}
	if len(c.Attributes) == 0 {
		c.Attributes = append([]string(nil), DefaultAttributes...)
	}
	if len(c.GroupBy) == 0 {
		c.GroupBy = []string{"region", "tag", "size", "status"}
	}
	if c.Cache.Enabled && c.Cache.TTL == 0 {
		c.Cache.TTL = int(DefaultCacheTTL / time.Second)
	}

	for _, key := range c.GroupBy {
		if !validGroupKeys[key] {
			return engine.NewValidationError(fmt.Sprintf(
				"unknown group_by key %q (supported: region, tag, size, status)", key))
		}
	}
	if err := validator.New().Struct(c); err != nil {
		return engine.NewValidationError(fmt.Sprintf("inventory config: %v", err))
	}
	return nil
}

// CacheTTL returns the cache lifetime as a duration.
func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTL <= 0 {
		return DefaultCacheTTL
	}
	return time.Duration(c.Cache.TTL) * time.Second
}

// Hash returns the cache key for this configuration: the SHA-256 of its
// canonical JSON encoding. Any config change invalidates the cache.
func (c *Config) Hash() string {
	// json.Marshal on a struct has deterministic field order.
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
