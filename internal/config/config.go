// Package config loads and validates the proxy's YAML configuration
// document: ingress bind port, worker count, probe interval, and the
// backend node pool.
package config

import (
	"fmt"
	"sort"

	"github.com/spf13/viper"
)

// NodeConfig describes one configured backend.
type NodeConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	AdminPort int    `mapstructure:"adminport"`
}

// Config is the parsed, defaulted, validated configuration document.
type Config struct {
	Bind          int                   `mapstructure:"bind"`
	Threads       int                   `mapstructure:"threads"`
	CheckInterval int                   `mapstructure:"check_interval"`
	MetricsBind   string                `mapstructure:"metrics_bind"`
	Nodes         map[string]NodeConfig `mapstructure:"nodes"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bind", 8977)
	v.SetDefault("threads", 4)
	v.SetDefault("check_interval", 1000)
	v.SetDefault("metrics_bind", "")
}

// Load reads the YAML document at path, applies defaults, and validates the
// result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Bind <= 0 || cfg.Bind > 65535 {
		return fmt.Errorf("bind must be in 1..65535, got %d", cfg.Bind)
	}
	if cfg.Threads <= 0 {
		return fmt.Errorf("threads must be positive, got %d", cfg.Threads)
	}
	if cfg.CheckInterval <= 0 {
		return fmt.Errorf("check_interval must be positive, got %d", cfg.CheckInterval)
	}
	if len(cfg.Nodes) == 0 {
		return fmt.Errorf("nodes must list at least one backend")
	}

	seen := make(map[string]string, len(cfg.Nodes))
	names := make([]string, 0, len(cfg.Nodes))
	for name := range cfg.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		n := cfg.Nodes[name]
		if n.Host == "" {
			return fmt.Errorf("node %q: host must not be empty", name)
		}
		if n.Port <= 0 || n.Port > 65535 {
			return fmt.Errorf("node %q: port must be in 1..65535, got %d", name, n.Port)
		}
		if n.AdminPort <= 0 || n.AdminPort > 65535 {
			return fmt.Errorf("node %q: adminport must be in 1..65535, got %d", name, n.AdminPort)
		}
		key := fmt.Sprintf("%s:%d", n.Host, n.Port)
		if other, ok := seen[key]; ok {
			return fmt.Errorf("node %q duplicates (host,port) of node %q", name, other)
		}
		seen[key] = name
	}

	return nil
}
