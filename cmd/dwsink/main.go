package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruslano69/dwsink/pkg/adapters"
	"github.com/ruslano69/dwsink/pkg/brokers"
	"github.com/ruslano69/dwsink/pkg/core/message"
	"github.com/ruslano69/dwsink/pkg/engine"
	"github.com/ruslano69/dwsink/pkg/report"
	"github.com/ruslano69/dwsink/pkg/resultlog"
	"github.com/ruslano69/dwsink/pkg/retry"

	// Регистрация адаптеров в глобальной фабрике
	_ "github.com/ruslano69/dwsink/pkg/adapters/mssql"
	_ "github.com/ruslano69/dwsink/pkg/adapters/mysql"
	_ "github.com/ruslano69/dwsink/pkg/adapters/postgres"
	_ "github.com/ruslano69/dwsink/pkg/adapters/sqlite"
)

func main() {
	flags := ParseFlags()

	if *flags.Version {
		PrintVersion()
		os.Exit(0)
	}
	if *flags.Help {
		PrintHelp()
		os.Exit(0)
	}

	if *flags.CreateConfigPG {
		createConfigTemplate("postgres")
		return
	}
	if *flags.CreateConfigMySQL {
		createConfigTemplate("mysql")
		return
	}
	if *flags.CreateConfigMSSQL {
		createConfigTemplate("mssql")
		return
	}
	if *flags.CreateConfigSQLite {
		createConfigTemplate("sqlite")
		return
	}

	cfg, err := engine.LoadConfigFile(*flags.Config)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}

	// Переопределения из командной строки
	if *flags.Input != "" {
		cfg.Input.Type = "file"
		cfg.Input.Path = *flags.Input
	}
	if *flags.Method != "" {
		cfg.Load.Method = engine.LoadMethod(*flags.Method)
		if err := cfg.Validate(); err != nil {
			fatal("Invalid method override: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fatal("%v", err)
	}
}

func run(ctx context.Context, cfg *engine.Config) error {
	startedAt := time.Now()

	fmt.Printf("🚀 dwsink %s: loading %s input into %s (%s)\n",
		version, cfg.Input.Type, cfg.Target.Type, cfg.Load.Method)

	adapter, err := adapters.New(ctx, adapters.Config{
		Type:   cfg.Target.Type,
		DSN:    cfg.Target.DSN,
		Schema: cfg.Target.Schema,
		Retry:  retryConfig(cfg),
	})
	if err != nil {
		return err
	}
	defer adapter.Close(context.Background())

	source, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer source.Close()

	rejects, err := engine.NewRejectsWriter(cfg.Rejects.Path)
	if err != nil {
		return err
	}
	defer rejects.Close()

	eng := engine.NewEngine(cfg, adapter, rejects)
	runErr := eng.Run(ctx, source)

	stats := eng.Controller().Stats().Snapshots()
	printSummary(stats, time.Since(startedAt))

	// Отчет и result log публикуются независимо от исхода запуска
	if cfg.Report.Path != "" {
		if err := report.WriteXLSX(cfg.Report.Path, cfg.Name, startedAt, stats); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Failed to write report: %v\n", err)
		} else {
			fmt.Printf("📊 Report saved: %s\n", cfg.Report.Path)
		}
	}

	if cfg.ResultLog.Type == "redis" {
		publisher := resultlog.NewRedisPublisher(cfg.ResultLog)
		defer publisher.Close()
		if err := publisher.Publish(ctx, cfg.Name, startedAt, stats, runErr); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Failed to publish result: %v\n", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	for _, s := range stats {
		if s.Failed {
			return fmt.Errorf("stream %s failed: %s", s.Stream, s.FailureReason)
		}
	}
	return nil
}

// openSource выбирает источник событий по конфигурации
func openSource(ctx context.Context, cfg *engine.Config) (message.Source, error) {
	switch cfg.Input.Type {
	case "stdin":
		return message.NewReader(os.Stdin), nil

	case "file":
		return message.OpenFile(cfg.Input.Path)

	case "rabbitmq":
		rc := cfg.Input.RabbitMQ
		broker, err := brokers.New(brokers.Config{
			Type:     "rabbitmq",
			Host:     rc.Host,
			Port:     rc.Port,
			User:     rc.User,
			Password: rc.Password,
			Queue:    rc.Queue,
			Durable:  true,
		})
		if err != nil {
			return nil, err
		}
		if err := broker.Connect(ctx); err != nil {
			return nil, err
		}
		return brokers.NewSource(broker, 5*time.Second), nil

	case "kafka":
		kc := cfg.Input.Kafka
		broker, err := brokers.New(brokers.Config{
			Type:          "kafka",
			Brokers:       kc.Brokers,
			Topic:         kc.Topic,
			ConsumerGroup: kc.GroupID,
		})
		if err != nil {
			return nil, err
		}
		if err := broker.Connect(ctx); err != nil {
			return nil, err
		}
		return brokers.NewSource(broker, 5*time.Second), nil

	default:
		return nil, fmt.Errorf("unsupported input type: %s", cfg.Input.Type)
	}
}

// retryConfig транслирует YAML секцию retry в политику адаптера
func retryConfig(cfg *engine.Config) retry.Config {
	rc := retry.DefaultConfig()
	if cfg.Retry.Attempts > 0 {
		rc.MaxAttempts = cfg.Retry.Attempts
	}
	if cfg.Retry.DelayMs > 0 {
		rc.InitialDelay = time.Duration(cfg.Retry.DelayMs) * time.Millisecond
	}
	if cfg.Retry.MaxDelayMs > 0 {
		rc.MaxDelay = time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond
	}
	return rc
}

func printSummary(stats []engine.StreamStats, elapsed time.Duration) {
	fmt.Println()
	var received, inserted, failed int64
	for _, s := range stats {
		mark := "✓"
		if s.Failed {
			mark = "❌"
		}
		fmt.Printf("%s %s: received %d, inserted %d, failed %d, batches %d\n",
			mark, s.Stream, s.RecordsReceived, s.RecordsInserted, s.RecordsFailed, s.BatchCount)
		received += s.RecordsReceived
		inserted += s.RecordsInserted
		failed += s.RecordsFailed
	}
	fmt.Printf("\nTotal: received %d, inserted %d, failed %d in %v\n",
		received, inserted, failed, elapsed.Round(time.Millisecond))
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "❌ "+format+"\n", args...)
	os.Exit(1)
}
