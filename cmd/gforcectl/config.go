package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/gforcelink/internal/link"
	"github.com/danmuck/gforcelink/internal/protocol/frame"
	"github.com/danmuck/gforcelink/internal/sim"
)

type fileConfig struct {
	MTU                int    `toml:"mtu"`
	Timeout            string `toml:"timeout"`
	TimeoutMS          int64  `toml:"timeout_ms"`
	MaxReassemblyBytes int    `toml:"max_reassembly_bytes"`
	AnomalyPolicy      string `toml:"anomaly_policy"`
	FirmwareVersion    string `toml:"firmware_version"`
	Stream             string `toml:"stream"`
	StreamInterval     string `toml:"stream_interval"`
	LogLevel           string `toml:"log_level"`
	MetricsAddress     string `toml:"metrics_address"`
}

type runConfig struct {
	Link    link.Config
	Device  sim.Config
	Profile sim.Profile
	// Stream is how long the notification stream runs. Zero skips it.
	Stream         time.Duration
	StreamInterval time.Duration
	LogLevel       string
	MetricsAddress string
}

func defaultRunConfig() runConfig {
	return runConfig{
		Link:           link.DefaultConfig(),
		Device:         sim.DefaultConfig(),
		Profile:        sim.DefaultProfile(),
		Stream:         2 * time.Second,
		StreamInterval: 10 * time.Millisecond,
	}
}

func loadRunConfig(path string) (runConfig, error) {
	cfg := defaultRunConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runConfig{}, fmt.Errorf("load gforcectl config: %w", err)
	}

	if meta.IsDefined("mtu") {
		if raw.MTU < frame.MinChainMTU {
			return runConfig{}, fmt.Errorf("mtu must be at least %d: %d", frame.MinChainMTU, raw.MTU)
		}
		cfg.Device.MTU = raw.MTU
	}

	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Link.Session.DefaultTimeout = d
	}

	if meta.IsDefined("timeout_ms") {
		cfg.Link.Session.DefaultTimeout = time.Duration(raw.TimeoutMS) * time.Millisecond
	}

	if meta.IsDefined("max_reassembly_bytes") {
		cfg.Link.Session.MaxReassemblyBytes = raw.MaxReassemblyBytes
	}

	if meta.IsDefined("anomaly_policy") {
		p, err := frame.ParseAnomalyPolicy(strings.TrimSpace(raw.AnomalyPolicy))
		if err != nil {
			return runConfig{}, err
		}
		cfg.Link.Session.AnomalyPolicy = p
	}

	if meta.IsDefined("firmware_version") {
		if v := strings.TrimSpace(raw.FirmwareVersion); v != "" {
			cfg.Profile.FirmwareVersion = v
		}
	}

	if meta.IsDefined("stream") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Stream))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse stream: %w", err)
		}
		cfg.Stream = d
	}

	if meta.IsDefined("stream_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.StreamInterval))
		if err != nil {
			return runConfig{}, fmt.Errorf("parse stream_interval: %w", err)
		}
		if d <= 0 {
			return runConfig{}, fmt.Errorf("stream_interval must be positive: %v", d)
		}
		cfg.StreamInterval = d
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if meta.IsDefined("metrics_address") {
		cfg.MetricsAddress = strings.TrimSpace(raw.MetricsAddress)
	}

	return cfg, nil
}
