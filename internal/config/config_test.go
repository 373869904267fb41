package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/eventdeck/eventdeck/internal/cluster"
)

// writeConfig writes a config.yaml into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadWithConfigFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := writeConfig(t, `
log_level: debug
status_port: 9090

clusters:
  - name: prod-east
    environment: production
    stream_endpoint: wss://east.example.com/stream
    labels:
      region: us-east-1
  - name: edge
    list_endpoint: https://edge.example.com/api/events

subscription:
  namespaces: [default, kube-system]
  types: [Warning]
`)

	cfg, err := LoadWithConfigFile(path)
	if err != nil {
		t.Fatalf("LoadWithConfigFile() failed: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.StatusPort != 9090 {
		t.Errorf("StatusPort = %d, want 9090", cfg.StatusPort)
	}
	if len(cfg.Clusters) != 2 {
		t.Fatalf("got %d clusters, want 2", len(cfg.Clusters))
	}
	if cfg.Clusters[0].Name != "prod-east" || !cfg.Clusters[0].UsesStream() {
		t.Errorf("first cluster = %+v", cfg.Clusters[0])
	}
	if cfg.Clusters[1].Name != "edge" || cfg.Clusters[1].UsesStream() {
		t.Errorf("second cluster = %+v", cfg.Clusters[1])
	}
	if len(cfg.Subscription.Namespaces) != 2 || cfg.Subscription.Namespaces[0] != "default" {
		t.Errorf("Subscription.Namespaces = %v", cfg.Subscription.Namespaces)
	}
	if GetConfigFile() != path {
		t.Errorf("GetConfigFile() = %q, want %q", GetConfigFile(), path)
	}
}

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	// Only clusters come from the file; everything else defaults.
	path := writeConfig(t, `
clusters:
  - name: solo
    stream_endpoint: wss://solo.example.com/stream
`)

	cfg, err := LoadWithConfigFile(path)
	if err != nil {
		t.Fatalf("LoadWithConfigFile() failed: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.StatusPort != 8080 {
		t.Errorf("default StatusPort = %d, want 8080", cfg.StatusPort)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("EVENTDECK_LOG_LEVEL", "warn")

	path := writeConfig(t, `
log_level: debug
clusters:
  - name: solo
    stream_endpoint: wss://solo.example.com/stream
`)

	cfg, err := LoadWithConfigFile(path)
	if err != nil {
		t.Fatalf("LoadWithConfigFile() failed: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("env var should override config file: LogLevel = %q, want warn", cfg.LogLevel)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "bad log level",
			content: `
log_level: verbose
clusters:
  - name: solo
    stream_endpoint: wss://solo.example.com/stream
`,
			wantErr: "log_level",
		},
		{
			name:    "no clusters",
			content: "log_level: info\n",
			wantErr: "at least one cluster",
		},
		{
			name: "invalid cluster",
			content: `
clusters:
  - name: broken
`,
			wantErr: "stream_endpoint or list_endpoint",
		},
		{
			name: "bad port",
			content: `
status_port: 70000
clusters:
  - name: solo
    stream_endpoint: wss://solo.example.com/stream
`,
			wantErr: "status_port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)

			_, err := LoadWithConfigFile(writeConfig(t, tt.content))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{
		LogLevel:   "info",
		StatusPort: 8080,
		Clusters: []cluster.ClusterConfig{
			{Name: "prod", StreamEndpoint: "wss://prod.example.com/stream"},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
