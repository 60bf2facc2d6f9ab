// Package config provides loading and parsing of climber.yaml configuration files.
// A climber configuration names the servers to crawl and the settings of the
// optional audit, discovery and filter components.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents a climber.yaml configuration file.
type Config struct {
	// Addresses lists server specs: host, host:port or beanstalk://host:port.
	// A single entry may hold several specs separated by whitespace or commas.
	Addresses []string `yaml:"addresses,omitempty"`

	// TestTube is the private tube probes are inserted into.
	// Default: "stalk_climber"
	TestTube string `yaml:"test_tube,omitempty"`

	// DialTimeout bounds connection establishment.
	// Format: Go duration string (e.g., "5s")
	// Default: 5s
	DialTimeout string `yaml:"dial_timeout,omitempty"`

	// OpTimeout bounds each command round trip.
	// Default: 0 (no per-command deadline)
	OpTimeout string `yaml:"op_timeout,omitempty"`

	Probe     *ProbeConfig     `yaml:"probe,omitempty"`
	Audit     *AuditConfig     `yaml:"audit,omitempty"`
	Discovery *DiscoveryConfig `yaml:"discovery,omitempty"`

	// Filter is a CEL expression jobs must satisfy in FindJobs when no
	// expression is given by the caller.
	Filter string `yaml:"filter,omitempty"`
}

// ProbeConfig tunes the max-id probe job.
type ProbeConfig struct {
	// Priority of the probe job. Default: 4294967295 (least urgent)
	Priority *uint32 `yaml:"priority,omitempty"`

	// TTR of the probe job. Default: 300s
	TTR string `yaml:"ttr,omitempty"`
}

// AuditConfig configures the Redis job snapshot export.
type AuditConfig struct {
	// RedisURL is a redis:// URL. Empty disables the audit sink.
	RedisURL string `yaml:"redis_url,omitempty"`

	// KeyPrefix prefixes every key written. Default: "climber"
	KeyPrefix string `yaml:"key_prefix,omitempty"`

	// TTL expires exported snapshots. Default: 0 (never)
	TTL string `yaml:"ttl,omitempty"`
}

// DiscoveryConfig configures server address discovery through etcd.
type DiscoveryConfig struct {
	Endpoints []string `yaml:"endpoints,omitempty"`

	// Namespace roots the key space. Default: "climber"
	Namespace string `yaml:"namespace,omitempty"`

	// DialTimeout for the etcd client. Default: 5s
	DialTimeout string `yaml:"dial_timeout,omitempty"`

	// TLS enables mutual TLS with etcd when set.
	TLS *TLSConfig `yaml:"tls,omitempty"`
}

// TLSConfig names the PEM files used for mutual TLS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// GetTestTube returns the probe tube or the default value.
func (c *Config) GetTestTube() string {
	if c == nil || c.TestTube == "" {
		return "stalk_climber"
	}
	return c.TestTube
}

// GetAddresses returns the configured address specs, or nil.
func (c *Config) GetAddresses() []string {
	if c == nil {
		return nil
	}
	return c.Addresses
}

// GetDialTimeout parses the dial timeout string and returns a duration.
// Returns the default value if not set or invalid.
func (c *Config) GetDialTimeout() time.Duration {
	if c == nil {
		return 5 * time.Second
	}
	return parseDuration(c.DialTimeout, 5*time.Second)
}

// GetOpTimeout parses the per-command timeout. Zero means none.
func (c *Config) GetOpTimeout() time.Duration {
	if c == nil {
		return 0
	}
	return parseDuration(c.OpTimeout, 0)
}

// GetFilter returns the default job filter expression, or "".
func (c *Config) GetFilter() string {
	if c == nil {
		return ""
	}
	return c.Filter
}

// GetPriority returns the probe priority or the default value.
func (p *ProbeConfig) GetPriority() uint32 {
	if p == nil || p.Priority == nil {
		return 4294967295
	}
	return *p.Priority
}

// GetTTR parses the probe TTR string and returns a duration.
func (p *ProbeConfig) GetTTR() time.Duration {
	if p == nil {
		return 300 * time.Second
	}
	return parseDuration(p.TTR, 300*time.Second)
}

// Enabled reports whether an audit sink is configured.
func (a *AuditConfig) Enabled() bool {
	return a != nil && a.RedisURL != ""
}

// GetKeyPrefix returns the key prefix or the default value.
func (a *AuditConfig) GetKeyPrefix() string {
	if a == nil || a.KeyPrefix == "" {
		return "climber"
	}
	return a.KeyPrefix
}

// GetTTL parses the snapshot TTL. Zero means snapshots never expire.
func (a *AuditConfig) GetTTL() time.Duration {
	if a == nil {
		return 0
	}
	return parseDuration(a.TTL, 0)
}

// Enabled reports whether discovery is configured.
func (d *DiscoveryConfig) Enabled() bool {
	return d != nil && len(d.Endpoints) > 0
}

// GetNamespace returns the namespace or the default value.
func (d *DiscoveryConfig) GetNamespace() string {
	if d == nil || d.Namespace == "" {
		return "climber"
	}
	return strings.Trim(d.Namespace, "/")
}

// GetDialTimeout parses the etcd dial timeout.
func (d *DiscoveryConfig) GetDialTimeout() time.Duration {
	if d == nil {
		return 5 * time.Second
	}
	return parseDuration(d.DialTimeout, 5*time.Second)
}

// Parse decodes a climber.yaml document.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, nil
}

// Load reads and parses a climber.yaml file from the given path.
// If the path is a directory, it looks for climber.yaml or climber.yml in that directory.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	var configPath string
	if info.IsDir() {
		// Try climber.yaml first, then climber.yml
		yamlPath := filepath.Join(path, "climber.yaml")
		if _, err := os.Stat(yamlPath); err == nil {
			configPath = yamlPath
		} else {
			ymlPath := filepath.Join(path, "climber.yml")
			if _, err := os.Stat(ymlPath); err == nil {
				configPath = ymlPath
			} else {
				return nil, fmt.Errorf("no climber.yaml or climber.yml found in %s", path)
			}
		}
	} else {
		configPath = path
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// LoadFromDir searches for climber.yaml starting from the given directory
// and walking up to parent directories until found or root is reached.
func LoadFromDir(dir string) (*Config, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	for {
		config, err := Load(absDir)
		if err == nil {
			return config, nil
		}

		// Move to parent directory
		parent := filepath.Dir(absDir)
		if parent == absDir {
			// Reached root
			return nil, fmt.Errorf("no climber.yaml found in %s or parent directories", dir)
		}
		absDir = parent
	}
}
