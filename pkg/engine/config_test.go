package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := &Config{Name: "nightly"}
	cfg.Target.Type = "postgres"
	cfg.Target.DSN = "postgres://u:p@localhost:5432/dw"
	cfg.SetDefaults()
	return cfg
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	if cfg.Input.Type != "stdin" {
		t.Errorf("input.type = %q, want stdin", cfg.Input.Type)
	}
	if cfg.Load.Method != LoadAppendOnly {
		t.Errorf("load.method = %q, want append-only", cfg.Load.Method)
	}
	if cfg.Load.BatchSize != 1000 {
		t.Errorf("batch_size = %d, want 1000", cfg.Load.BatchSize)
	}
	if cfg.Load.MaxParallelStreams != 4 {
		t.Errorf("max_parallel_streams = %d, want 4", cfg.Load.MaxParallelStreams)
	}
	if cfg.Typing.VarcharDefaultLength != 255 || cfg.Typing.VarcharMaxLength != 4000 {
		t.Errorf("varchar bounds = %d/%d, want 255/4000",
			cfg.Typing.VarcharDefaultLength, cfg.Typing.VarcharMaxLength)
	}
	if cfg.Retry.Attempts != 3 || cfg.Retry.DelayMs != 500 {
		t.Errorf("retry defaults = %d attempts, %d ms", cfg.Retry.Attempts, cfg.Retry.DelayMs)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing name", func(c *Config) { c.Name = "" }, "name is required"},
		{"missing target type", func(c *Config) { c.Target.Type = "" }, "target.type is required"},
		{"unknown target type", func(c *Config) { c.Target.Type = "oracle" }, "unsupported target.type"},
		{"missing dsn", func(c *Config) { c.Target.DSN = "" }, "target.dsn is required"},
		{"file without path", func(c *Config) { c.Input.Type = "file" }, "input.path is required"},
		{"unknown input type", func(c *Config) { c.Input.Type = "pipe" }, "unsupported input.type"},
		{"rabbitmq without queue", func(c *Config) {
			c.Input.Type = "rabbitmq"
			c.Input.RabbitMQ = &RabbitMQConfig{Host: "localhost"}
		}, "input.rabbitmq.queue is required"},
		{"kafka without topic", func(c *Config) {
			c.Input.Type = "kafka"
			c.Input.Kafka = &KafkaConfig{Brokers: []string{"localhost:9092"}}
		}, "input.kafka.brokers and input.kafka.topic"},
		{"unknown load method", func(c *Config) { c.Load.Method = "replace" }, "unsupported load.method"},
		{"zero batch size", func(c *Config) { c.Load.BatchSize = -1 }, "load.batch_size must be > 0"},
		{"zero parallel streams", func(c *Config) { c.Load.MaxParallelStreams = -1 }, "load.max_parallel_streams must be > 0"},
		{"override without suffix", func(c *Config) {
			c.Typing.TypeOverrides = []TypeOverrideConfig{{Type: "NUMBER(1,0)"}}
		}, "suffix is required"},
		{"override with bad type", func(c *Config) {
			c.Typing.TypeOverrides = []TypeOverrideConfig{{Suffix: "_flag", Type: "BLOB(1)"}}
		}, "type_overrides[_flag]"},
		{"result log without address", func(c *Config) {
			c.ResultLog.Type = "redis"
			c.ResultLog.Name = "run"
		}, "result_log.address is required"},
		{"unknown result log type", func(c *Config) { c.ResultLog.Type = "s3" }, "unsupported result_log.type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !IsKind(err, KindConfiguration) {
				kind, _ := KindOf(err)
				t.Errorf("expected configuration error, got %v", kind)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	content := `
name: nightly-dw
target:
  type: postgres
  dsn: postgres://u:p@localhost:5432/dw
  table_prefix: STG_
load:
  method: upsert
  batch_size: 500
  upsert_keys:
    orders: [order_id]
typing:
  varchar_default_length: 100
  type_overrides:
    - suffix: _flag
      type: NUMBER(1,0)
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}

	if cfg.Name != "nightly-dw" {
		t.Errorf("name = %q", cfg.Name)
	}
	if cfg.Load.Method != LoadUpsert || cfg.Load.BatchSize != 500 {
		t.Errorf("load = %q / %d", cfg.Load.Method, cfg.Load.BatchSize)
	}
	if keys := cfg.Load.UpsertKeys["orders"]; len(keys) != 1 || keys[0] != "order_id" {
		t.Errorf("upsert_keys = %v", cfg.Load.UpsertKeys)
	}
	// Defaults fill the gaps the file left out
	if cfg.Input.Type != "stdin" || cfg.Load.MaxParallelStreams != 4 {
		t.Errorf("defaults not applied: input=%q streams=%d", cfg.Input.Type, cfg.Load.MaxParallelStreams)
	}
	if cfg.Typing.VarcharDefaultLength != 100 || cfg.Typing.VarcharMaxLength != 4000 {
		t.Errorf("typing = %d/%d", cfg.Typing.VarcharDefaultLength, cfg.Typing.VarcharMaxLength)
	}

	mapper := cfg.TypeMapper()
	if mapper.VarcharDefault != 100 {
		t.Errorf("mapper default = %d", mapper.VarcharDefault)
	}
	if len(mapper.Overrides) != 1 || mapper.Overrides[0].Suffix != "_flag" {
		t.Errorf("mapper overrides = %+v", mapper.Overrides)
	}
}

func TestLoadConfigFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("name: x\ntarget:\n  type: oracle\n  dsn: x\n"), 0o644)

	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("expected validation error")
	}

	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}
