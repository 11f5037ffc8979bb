package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("expected memory backend, got %q", cfg.Storage.Backend)
	}
	if cfg.Model.Namespace != "finisher" {
		t.Errorf("expected default namespace, got %q", cfg.Model.Namespace)
	}
	if cfg.Model.MaxEditDistance != 2 {
		t.Errorf("expected max edit distance 2, got %d", cfg.Model.MaxEditDistance)
	}
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "finisher.yaml")
	data := []byte(`
storage:
  backend: redis
redis:
  addr: cache:6379
  cacheTTL: 5m
model:
  namespace: movies
  minNGramSize: 2
  maxResults: 25
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FIN_MODEL_NAMESPACE", "movies-v2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Backend != BackendRedis {
		t.Errorf("backend = %q", cfg.Storage.Backend)
	}
	if cfg.Redis.Addr != "cache:6379" || cfg.Redis.CacheTTL != 5*time.Minute {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	if cfg.Model.Namespace != "movies-v2" {
		t.Errorf("env override not applied, namespace = %q", cfg.Model.Namespace)
	}
	if cfg.Model.MinNGramSize != 2 || cfg.Model.MaxResults != 25 {
		t.Errorf("model = %+v", cfg.Model)
	}
	if cfg.Model.MaxEditDistance != 2 {
		t.Errorf("unset field lost its default: %d", cfg.Model.MaxEditDistance)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }, true},
		{"empty namespace", func(c *Config) { c.Model.Namespace = "" }, true},
		{"namespace with separator", func(c *Config) { c.Model.Namespace = "a:b" }, true},
		{"zero ngram", func(c *Config) { c.Model.MinNGramSize = 0 }, true},
		{"distance too large", func(c *Config) { c.Model.MaxEditDistance = 4 }, true},
		{"no results", func(c *Config) { c.Model.MaxResults = 0 }, true},
		{"uncapped prefix", func(c *Config) { c.Model.PrefixLength = 0 }, false},
		{"prefix within distance", func(c *Config) { c.Model.PrefixLength = 2 }, true},
		{"sqlite without path", func(c *Config) {
			c.Storage.Backend = BackendSQLite
			c.Storage.SQLitePath = ""
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDevelopmentConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "development.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Backend != BackendRedis || cfg.Redis.CacheTTL != 60*time.Second || cfg.Kafka.HandlerTimeout != 30*time.Second || cfg.Model.PrefixLength != 7 {
		t.Errorf("unexpected config: storage=%+v redis=%+v kafka=%+v model=%+v", cfg.Storage, cfg.Redis, cfg.Kafka, cfg.Model)
	}
}
