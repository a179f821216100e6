// Package config loads spacegraph.yaml, the single file configuring every
// server in the repository.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/n9te9/spacegraph/gateway"
	"github.com/n9te9/spacegraph/telemetry"
)

const DefaultPath = "spacegraph.yaml"

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type Datasource struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

type Mock struct {
	Port    int    `yaml:"port"`
	Fixture string `yaml:"fixture"`
}

type Listen struct {
	Port int `yaml:"port"`
}

type Subgraphs struct {
	Astronauts Listen `yaml:"astronauts"`
	Missions   Listen `yaml:"missions"`
}

type Metrics struct {
	Enable bool `yaml:"enable"`
}

type Config struct {
	Log           Log               `yaml:"log"`
	Datasource    Datasource        `yaml:"datasource"`
	Mock          Mock              `yaml:"mock"`
	Subgraphs     Subgraphs         `yaml:"subgraphs"`
	Standalone    Listen            `yaml:"standalone"`
	Rest          Listen            `yaml:"rest"`
	Gateway       gateway.Option    `yaml:"gateway"`
	Metrics       Metrics           `yaml:"metrics"`
	Opentelemetry telemetry.Setting `yaml:"opentelemetry"`
}

// Default returns the tutorial layout: data source on 3000, gateway on 4000
// and the subgraphs on 4001 and 4002.
func Default() *Config {
	return &Config{
		Log:        Log{Level: "info"},
		Datasource: Datasource{URL: "http://localhost:3000", Timeout: "5s"},
		Mock:       Mock{Port: 3000},
		Subgraphs: Subgraphs{
			Astronauts: Listen{Port: 4001},
			Missions:   Listen{Port: 4002},
		},
		Standalone: Listen{Port: 4000},
		Rest:       Listen{Port: 4000},
		Gateway: gateway.Option{
			Endpoint:                    "/",
			ServiceName:                 "spacegraph-gateway",
			Port:                        4000,
			TimeoutDuration:             "5s",
			EnableHangOverRequestHeader: true,
			EnableComplementRequestID:   true,
			Retry:                       gateway.RetryOption{Attempts: 5, Timeout: "2s"},
			Services: []gateway.Service{
				{Name: "astronauts", Host: "http://localhost:4001/"},
				{Name: "missions", Host: "http://localhost:4002/"},
			},
		},
		Metrics: Metrics{Enable: true},
		Opentelemetry: telemetry.Setting{
			Tracing: telemetry.TracingSetting{Endpoint: "localhost:4318", Insecure: true},
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	src, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(src, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Datasource.URL == "" {
		return errors.New("datasource.url is required")
	}
	if _, err := c.DatasourceTimeout(); err != nil {
		return fmt.Errorf("datasource.timeout: %w", err)
	}
	for _, s := range c.Gateway.Services {
		if s.Name == "" {
			return errors.New("gateway.services[].name is required")
		}
		if s.Host == "" && len(s.SchemaFiles) == 0 {
			return fmt.Errorf("gateway service %q needs a host or schema_files", s.Name)
		}
	}
	return nil
}

func (c *Config) DatasourceTimeout() (time.Duration, error) {
	if c.Datasource.Timeout == "" {
		return 5 * time.Second, nil
	}
	return time.ParseDuration(c.Datasource.Timeout)
}

// WriteDefault writes the default configuration to path. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	out, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
