package config

import (
	"testing"

	"github.com/goccy/go-yaml"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.DB.Bridge.QueueCapacity != 32 {
		t.Fatalf("expected default queue capacity 32, got %d", cfg.DB.Bridge.QueueCapacity)
	}
	if cfg.DB.Memtable.FlushThresholdBytes <= 0 {
		t.Fatalf("expected positive flush threshold")
	}
}

func TestYAMLOverrides(t *testing.T) {
	raw := `
logger:
  level: DEBUG
  json: true
http-server:
  port: 9090
db:
  path: /var/lib/asynckv
  sync_writes: true
  bridge:
    queue_capacity: 64
  compaction:
    l0_compact_threshold: 8
`
	var cfg Config
	if err := yaml.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}

	if cfg.Logger.Level != "DEBUG" || !cfg.Logger.JSON {
		t.Fatalf("unexpected logger config: %+v", cfg.Logger)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.DB.Path != "/var/lib/asynckv" || !cfg.DB.SyncWrites {
		t.Fatalf("unexpected db config: %+v", cfg.DB)
	}
	if cfg.DB.Bridge.QueueCapacity != 64 {
		t.Fatalf("expected queue capacity 64, got %d", cfg.DB.Bridge.QueueCapacity)
	}
	if cfg.DB.Compaction.L0CompactThreshold != 8 {
		t.Fatalf("expected threshold 8, got %d", cfg.DB.Compaction.L0CompactThreshold)
	}
}
