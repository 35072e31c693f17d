package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/evgrid/stationd/core/charging"
	"github.com/evgrid/stationd/core/metrics"
	"github.com/evgrid/stationd/core/tariff"
)

type Config struct {
	MQTT          MQTTConfig      `json:"mqtt"`
	Station       charging.Config `json:"station"`
	Tariff        tariff.Config   `json:"tariff"`
	Metrics       metrics.Config  `json:"metrics"`
	History       HistoryConfig   `json:"history"`
	Piles         []PileConfig    `json:"piles"`
	FaultStrategy string          `json:"fault_strategy"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("STATIOND_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "stationd_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills in the standard station layout and tariff schedule.
func (c *Config) SetDefaults() {
	c.Station.SetDefaults()
	c.Tariff.SetDefaults()
	c.History.SetDefaults()
	if len(c.Piles) == 0 {
		c.Piles = DefaultPiles()
	}
	if c.FaultStrategy == "" {
		c.FaultStrategy = "priority"
	}
}

// Validate checks the whole configuration tree.
func (c Config) Validate() error {
	if err := c.Station.Validate(); err != nil {
		return err
	}
	if err := c.Tariff.Validate(); err != nil {
		return err
	}
	if err := c.History.Validate(); err != nil {
		return err
	}
	if _, err := charging.ParseFaultStrategy(c.FaultStrategy); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, p := range c.Piles {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate pile id %s", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// MQTTConfig defines the broker connection for the event notifier.
type MQTTConfig struct {
	Enabled  bool   `json:"enabled"`
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	QoS      int    `json:"qos"`
}
