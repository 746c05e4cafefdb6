package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional on-disk configuration for relaysenderd,
// layered underneath the command-line flags the same way nexctl layers its
// YAML config underneath its own persistent flags.
type fileConfig struct {
	Address   string `yaml:"address"`
	Directory string `yaml:"directory"`

	TLS struct {
		Enabled  bool   `yaml:"enabled"`
		CertFile string `yaml:"cert_file"`
		KeyFile  string `yaml:"key_file"`
		ServerCA string `yaml:"server_ca"`
	} `yaml:"tls"`

	IdleTimeoutSeconds      int `yaml:"idle_timeout_seconds"`
	ReconnectionTimeSeconds int `yaml:"reconnection_time_seconds"`
	MaxQueuedBuffers        int `yaml:"max_queued_buffers"`
	DefaultTimeoutMillis    int `yaml:"default_timeout_millis"`
	SleepIntervalMillis     int `yaml:"sleep_interval_millis"`
	PoolChunkSize           int `yaml:"pool_chunk_size"`

	Debug bool   `yaml:"debug"`
	Trace bool   `yaml:"trace"`
	Log   string `yaml:"log"`
}

// loadFileConfig reads path as YAML. A missing path is not an error —
// relaysenderd is fully configurable from flags alone.
func loadFileConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

func secondsOrDefault(s int, def time.Duration) time.Duration {
	if s <= 0 {
		return def
	}
	return time.Duration(s) * time.Second
}

func millisOrDefault(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
