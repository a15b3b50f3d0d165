package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// BarrierConfig describes one physical gate controller.
type BarrierConfig struct {
	Name             string `yaml:"name"`
	Cron             string `yaml:"cron"`             // sweep schedule, seconds field optional
	Endpoint         string `yaml:"endpoint"`         // controller URL for pulse and probe
	LaneID           int    `yaml:"laneId"`           // ledger lane owned by this barrier
	APIDownBehavior  string `yaml:"apiDownBehavior"`  // UseHistoric|OpenAny|DontOpen
	Enabled          *bool  `yaml:"enabled"`          // nil means enabled
	Camera           string `yaml:"camera"`           // camera serial routed to this barrier
	DefaultDirection string `yaml:"defaultDirection"` // used when a detection carries none
}

// IsEnabled reports the configured initial enabled flag (default true).
func (b BarrierConfig) IsEnabled() bool { return b.Enabled == nil || *b.Enabled }

// WhitelistSource is one credentialed authorization endpoint.
type WhitelistSource struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// WhitelistConfig groups the whitelist refresh schedule and its sources.
type WhitelistConfig struct {
	RefreshCron string            `yaml:"refreshCron"`
	Sources     []WhitelistSource `yaml:"sources"`
}

// fileConfig is the on-disk layout of BARRIERS_FILE.
type fileConfig struct {
	Barriers  []BarrierConfig `yaml:"barriers"`
	Whitelist WhitelistConfig `yaml:"whitelist"`
}

// loadBarriersFile reads barriers and whitelist sources into cfg. An explicit
// WHITELIST_REFRESH_CRON environment variable wins over the file.
func loadBarriersFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("BARRIERS_FILE: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("BARRIERS_FILE %s: %w", path, err)
	}
	cfg.Barriers = fc.Barriers
	cfg.Whitelist.Sources = append(cfg.Whitelist.Sources, fc.Whitelist.Sources...)
	if fc.Whitelist.RefreshCron != "" {
		if _, set := os.LookupEnv("WHITELIST_REFRESH_CRON"); !set {
			cfg.Whitelist.RefreshCron = fc.Whitelist.RefreshCron
		}
	}
	return nil
}

// normalizeBarriers fills names and lanes the way the legacy appsettings did
// (Barrier1..N, lane 1).
func normalizeBarriers(bs []BarrierConfig) {
	for i := range bs {
		b := &bs[i]
		b.Name = strings.TrimSpace(b.Name)
		if b.Name == "" {
			b.Name = fmt.Sprintf("Barrier%d", i+1)
		}
		if b.LaneID <= 0 {
			b.LaneID = 1
		}
		b.Camera = strings.TrimSpace(b.Camera)
		b.Cron = strings.TrimSpace(b.Cron)
		b.Endpoint = strings.TrimSpace(b.Endpoint)
	}
}

func validateBarriers(bs []BarrierConfig) error {
	seen := make(map[string]struct{}, len(bs))
	for _, b := range bs {
		if _, dup := seen[b.Name]; dup {
			return fmt.Errorf("barrier %q is defined twice", b.Name)
		}
		seen[b.Name] = struct{}{}
		if b.Endpoint == "" {
			return fmt.Errorf("barrier %q: endpoint must not be empty", b.Name)
		}
		if b.Cron == "" {
			return fmt.Errorf("barrier %q: cron must not be empty", b.Name)
		}
	}
	return nil
}
