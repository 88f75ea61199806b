package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ruslano69/dwsink/pkg/core/schema"
)

// LoadMethod - стратегия загрузки данных в целевую таблицу
type LoadMethod string

const (
	// LoadAppendOnly - только bulk INSERT, дубликаты не отслеживаются
	LoadAppendOnly LoadMethod = "append-only"

	// LoadUpsert - MERGE по ключевым полям (insert-or-update)
	LoadUpsert LoadMethod = "upsert"

	// LoadTruncateInsert - очистка таблицы на первом flush запуска,
	// дальше как append-only
	LoadTruncateInsert LoadMethod = "truncate-insert"
)

// Config - полная конфигурация загрузчика
type Config struct {
	Name      string          `yaml:"name"`
	Target    TargetConfig    `yaml:"target"`
	Input     InputConfig     `yaml:"input"`
	Load      LoadConfig      `yaml:"load"`
	Typing    TypingConfig    `yaml:"typing"`
	Rejects   RejectsConfig   `yaml:"rejects"`
	ResultLog ResultLogConfig `yaml:"result_log"`
	Report    ReportConfig    `yaml:"report"`
	Retry     RetryConfig     `yaml:"retry"`
}

// TargetConfig определяет целевую БД
type TargetConfig struct {
	Type        string `yaml:"type"`         // postgres, mysql, mssql, sqlite
	DSN         string `yaml:"dsn"`          // строка подключения
	Schema      string `yaml:"schema"`       // схема/namespace (опционально)
	TablePrefix string `yaml:"table_prefix"` // префикс имени таблицы до нормализации
}

// InputConfig определяет источник событий
type InputConfig struct {
	Type     string          `yaml:"type"` // stdin, file, rabbitmq, kafka
	Path     string          `yaml:"path"` // для type: file (.gz/.zst распаковываются)
	RabbitMQ *RabbitMQConfig `yaml:"rabbitmq,omitempty"`
	Kafka    *KafkaConfig    `yaml:"kafka,omitempty"`
}

// RabbitMQConfig - параметры чтения событий из RabbitMQ
type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Queue    string `yaml:"queue"`
}

// KafkaConfig - параметры чтения событий из Kafka
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// LoadConfig определяет стратегию и параметры загрузки
type LoadConfig struct {
	Method             LoadMethod          `yaml:"method"`
	BatchSize          int                 `yaml:"batch_size"`
	MaxParallelStreams int                 `yaml:"max_parallel_streams"`
	UpsertKeys         map[string][]string `yaml:"upsert_keys"` // поток -> ключевые поля
	EnableVerification bool                `yaml:"enable_verification"`
}

// TypingConfig определяет границы маппинга типов
type TypingConfig struct {
	VarcharDefaultLength int                  `yaml:"varchar_default_length"`
	VarcharMaxLength     int                  `yaml:"varchar_max_length"`
	TypeOverrides        []TypeOverrideConfig `yaml:"type_overrides"`
}

// TypeOverrideConfig - явное переопределение типа по суффиксу имени поля
type TypeOverrideConfig struct {
	Suffix string `yaml:"suffix"` // например "_flag"
	Type   string `yaml:"type"`   // например "NUMBER(1,0)"
}

// RejectsConfig определяет карантин отклоненных записей
type RejectsConfig struct {
	Path string `yaml:"path"` // JSONL файл (пустое = карантин отключен)
}

// ResultLogConfig определяет публикацию результата запуска в Redis
type ResultLogConfig struct {
	Type     string `yaml:"type"`     // redis (пустое = отключено)
	Address  string `yaml:"address"`  // например "127.0.0.1:6379"
	Name     string `yaml:"name"`     // имя результата (ключ/канал)
	Password string `yaml:"password"` // пароль Redis (опционально)
	DB       int    `yaml:"db"`       // индекс базы Redis
	TTL      int    `yaml:"ttl"`      // TTL ключа в секундах
}

// ReportConfig определяет XLSX отчет о запуске
type ReportConfig struct {
	Path string `yaml:"path"` // путь к файлу (пустое = отчет отключен)
}

// RetryConfig - параметры retry на границе Executor
type RetryConfig struct {
	Attempts   int `yaml:"attempts"`
	DelayMs    int `yaml:"delay_ms"`
	MaxDelayMs int `yaml:"max_delay_ms"`
}

// LoadConfigFile загружает и валидирует конфигурацию из YAML файла
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate проверяет корректность конфигурации.
// Нарушения - KindConfiguration, фатальны при старте.
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
	}

	if c.Name == "" {
		return fail("name is required")
	}

	switch c.Target.Type {
	case "postgres", "mysql", "mssql", "sqlite":
	case "":
		return fail("target.type is required")
	default:
		return fail("unsupported target.type %q, must be one of: postgres, mysql, mssql, sqlite", c.Target.Type)
	}
	if c.Target.DSN == "" {
		return fail("target.dsn is required")
	}

	switch c.Input.Type {
	case "stdin":
	case "file":
		if c.Input.Path == "" {
			return fail("input.path is required for input.type 'file'")
		}
	case "rabbitmq":
		if c.Input.RabbitMQ == nil || c.Input.RabbitMQ.Queue == "" {
			return fail("input.rabbitmq.queue is required for input.type 'rabbitmq'")
		}
	case "kafka":
		if c.Input.Kafka == nil || len(c.Input.Kafka.Brokers) == 0 || c.Input.Kafka.Topic == "" {
			return fail("input.kafka.brokers and input.kafka.topic are required for input.type 'kafka'")
		}
	default:
		return fail("unsupported input.type %q, must be one of: stdin, file, rabbitmq, kafka", c.Input.Type)
	}

	switch c.Load.Method {
	case LoadAppendOnly, LoadTruncateInsert:
	case LoadUpsert:
		// Ключи могут прийти и в SCHEMA событии (key_properties);
		// но метод upsert без единого источника ключей - ошибка
		// конфигурации, обнаруживаемая на первом SCHEMA событии потока.
	default:
		return fail("unsupported load.method %q, must be one of: append-only, upsert, truncate-insert", c.Load.Method)
	}

	if c.Load.BatchSize <= 0 {
		return fail("load.batch_size must be > 0, got %d", c.Load.BatchSize)
	}
	if c.Load.MaxParallelStreams <= 0 {
		return fail("load.max_parallel_streams must be > 0, got %d", c.Load.MaxParallelStreams)
	}

	for _, ov := range c.Typing.TypeOverrides {
		if ov.Suffix == "" {
			return fail("typing.type_overrides: suffix is required")
		}
		if _, err := schema.ParseOverrideType(ov.Type); err != nil {
			return fail("typing.type_overrides[%s]: %v", ov.Suffix, err)
		}
	}

	if c.ResultLog.Type != "" && c.ResultLog.Type != "none" {
		if c.ResultLog.Type != "redis" {
			return fail("unsupported result_log.type %q, must be 'redis'", c.ResultLog.Type)
		}
		if c.ResultLog.Address == "" {
			return fail("result_log.address is required when type is 'redis'")
		}
		if c.ResultLog.Name == "" {
			return fail("result_log.name is required when type is 'redis'")
		}
	}

	return nil
}

// SetDefaults устанавливает значения по умолчанию
func (c *Config) SetDefaults() {
	if c.Input.Type == "" {
		c.Input.Type = "stdin"
	}
	if c.Input.Type == "rabbitmq" && c.Input.RabbitMQ != nil {
		if c.Input.RabbitMQ.Port == 0 {
			c.Input.RabbitMQ.Port = 5672
		}
		if c.Input.RabbitMQ.User == "" {
			c.Input.RabbitMQ.User = "guest"
		}
		if c.Input.RabbitMQ.Password == "" {
			c.Input.RabbitMQ.Password = "guest"
		}
	}

	if c.Load.Method == "" {
		c.Load.Method = LoadAppendOnly
	}
	if c.Load.BatchSize == 0 {
		c.Load.BatchSize = 1000
	}
	if c.Load.MaxParallelStreams == 0 {
		c.Load.MaxParallelStreams = 4
	}

	if c.Typing.VarcharDefaultLength == 0 {
		c.Typing.VarcharDefaultLength = schema.DefaultVarcharLength
	}
	if c.Typing.VarcharMaxLength == 0 {
		c.Typing.VarcharMaxLength = schema.DefaultVarcharMax
	}

	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = 3
	}
	if c.Retry.DelayMs == 0 {
		c.Retry.DelayMs = 500
	}
	if c.Retry.MaxDelayMs == 0 {
		c.Retry.MaxDelayMs = 10000
	}

	if c.ResultLog.Type == "redis" && c.ResultLog.TTL == 0 {
		c.ResultLog.TTL = 3600
	}
}

// TypeMapper строит маппер типов из конфигурации.
// Ошибки переопределений отлавливает Validate, здесь они игнорируются.
func (c *Config) TypeMapper() *schema.TypeMapper {
	mapper := schema.NewTypeMapper()
	mapper.VarcharDefault = c.Typing.VarcharDefaultLength
	mapper.VarcharMax = c.Typing.VarcharMaxLength

	for _, ov := range c.Typing.TypeOverrides {
		col, err := schema.ParseOverrideType(ov.Type)
		if err != nil {
			continue
		}
		mapper.Overrides = append(mapper.Overrides, schema.TypeOverride{
			Suffix: ov.Suffix,
			Column: col,
		})
	}
	return mapper
}
