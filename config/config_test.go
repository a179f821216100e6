package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/n9te9/spacegraph/config"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(config.Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spacegraph.yaml")
	src := `
datasource:
  url: http://mock:3000
  timeout: 1s
subgraphs:
  missions:
    port: 5002
gateway:
  port: 8080
  services:
    - name: astronauts
      host: http://astronauts:4001/
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Datasource.URL != "http://mock:3000" {
		t.Errorf("datasource.url = %q", cfg.Datasource.URL)
	}
	if d, _ := cfg.DatasourceTimeout(); d != time.Second {
		t.Errorf("datasource timeout = %v", d)
	}
	if cfg.Subgraphs.Missions.Port != 5002 {
		t.Errorf("missions port = %d", cfg.Subgraphs.Missions.Port)
	}
	if cfg.Subgraphs.Astronauts.Port != 4001 {
		t.Errorf("astronauts port = %d, want default 4001", cfg.Subgraphs.Astronauts.Port)
	}
	if cfg.Gateway.Port != 8080 || len(cfg.Gateway.Services) != 1 {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "bad timeout", src: "datasource:\n  timeout: soon\n"},
		{name: "service without host", src: "gateway:\n  services:\n    - name: missions\n"},
		{name: "malformed yaml", src: "log: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "spacegraph.yaml")
			if err := os.WriteFile(path, []byte(tt.src), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := config.Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spacegraph.yaml")
	if err := config.WriteDefault(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if diff := cmp.Diff(config.Default(), cfg); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	if err := config.WriteDefault(path); err == nil {
		t.Error("expected refusal to overwrite")
	}
}
