package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ruslano69/dwsink/pkg/adapters"
	"github.com/ruslano69/dwsink/pkg/resilience"
	"github.com/ruslano69/dwsink/pkg/retry"
	"github.com/ruslano69/dwsink/pkg/sqlgen"
)

// Compile-time check: Adapter должен реализовывать интерфейс adapters.Adapter
var _ adapters.Adapter = (*Adapter)(nil)

// Регистрация адаптера в глобальной фабрике
func init() {
	adapters.Register("postgres", func() adapters.Adapter {
		return &Adapter{}
	})
}

// Adapter представляет адаптер для работы с PostgreSQL
// Реализует интерфейс adapters.Adapter
type Adapter struct {
	pool    *pgxpool.Pool
	schema  string
	dialect sqlgen.Dialect
	retryer *retry.Retryer
	breaker *resilience.Breaker
}

// Connect устанавливает подключение к PostgreSQL
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	config, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to parse connection string: %w", err)
	}

	if cfg.MaxConns > 0 {
		config.MaxConns = int32(cfg.MaxConns)
	} else {
		config.MaxConns = 10 // default
	}
	if cfg.MinConns > 0 {
		config.MinConns = int32(cfg.MinConns)
	} else {
		config.MinConns = 2 // default
	}

	// Целевая схема через search_path: генератор SQL работает
	// с неквалифицированными именами таблиц
	schema := cfg.Schema
	if schema == "" {
		schema = "public"
	}
	config.ConnConfig.RuntimeParams["search_path"] = schema

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	retryer, err := retry.NewRetryer(cfg.Retry)
	if err != nil {
		pool.Close()
		return err
	}

	bc := resilience.DefaultConfig("postgres")
	bc.OnStateChange = func(name string, from, to resilience.State) {
		fmt.Printf("⚠️  Target %s: circuit breaker %s -> %s\n", name, from, to)
	}
	breaker, err := resilience.New(bc)
	if err != nil {
		pool.Close()
		return err
	}

	a.pool = pool
	a.schema = schema
	a.dialect = &sqlgen.PostgresDialect{}
	a.retryer = retryer
	a.breaker = breaker
	return nil
}

// Close закрывает connection pool
func (a *Adapter) Close(ctx context.Context) error {
	if a.pool != nil {
		a.pool.Close()
	}
	return nil
}

// Ping проверяет доступность БД
func (a *Adapter) Ping(ctx context.Context) error {
	if a.pool == nil {
		return fmt.Errorf("adapter not connected")
	}
	return a.pool.Ping(ctx)
}

// DatabaseType возвращает тип СУБД
func (a *Adapter) DatabaseType() string {
	return "postgres"
}

// Dialect возвращает SQL диалект
func (a *Adapter) Dialect() sqlgen.Dialect {
	return a.dialect
}

// ExecDDL выполняет DDL statement (без retry)
func (a *Adapter) ExecDDL(ctx context.Context, query string) error {
	if a.pool == nil {
		return fmt.Errorf("adapter not connected")
	}
	if _, err := a.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to execute DDL: %w", err)
	}
	return nil
}

// ExecDML выполняет параметризованный DML с retry транзиентных сбоев.
// Circuit breaker оборачивает retry целиком: исчерпанные попытки
// считаются одним сбоем цели, открытый circuit отклоняет batch сразу.
func (a *Adapter) ExecDML(ctx context.Context, query string, args ...any) (int64, error) {
	if a.pool == nil {
		return 0, fmt.Errorf("adapter not connected")
	}

	var affected int64
	err := a.breaker.Do(ctx, func(ctx context.Context) error {
		return a.retryer.Do(ctx, func(ctx context.Context) error {
			tag, err := a.pool.Exec(ctx, query, args...)
			if err != nil {
				return err
			}
			affected = tag.RowsAffected()
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to execute DML: %w", err)
	}
	return affected, nil
}

// QueryValue выполняет скалярный запрос
func (a *Adapter) QueryValue(ctx context.Context, query string, args ...any) (any, error) {
	if a.pool == nil {
		return nil, fmt.Errorf("adapter not connected")
	}
	var value any
	if err := a.pool.QueryRow(ctx, query, args...).Scan(&value); err != nil {
		return nil, fmt.Errorf("failed to query value: %w", err)
	}
	return value, nil
}

// TableColumns возвращает колонки таблицы из information_schema.
// Имя таблицы сравнивается без учета регистра: нормализатор пишет
// в UPPER, PostgreSQL без кавычек складывает в lower.
func (a *Adapter) TableColumns(ctx context.Context, table string) ([]sqlgen.LiveColumn, bool, error) {
	if a.pool == nil {
		return nil, false, fmt.Errorf("adapter not connected")
	}

	query := `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND lower(table_name) = lower($2)
		ORDER BY ordinal_position
	`

	rows, err := a.pool.Query(ctx, query, a.schema, table)
	if err != nil {
		return nil, false, fmt.Errorf("failed to introspect table: %w", err)
	}
	defer rows.Close()

	var cols []sqlgen.LiveColumn
	for rows.Next() {
		var c sqlgen.LiveColumn
		if err := rows.Scan(&c.Name, &c.TypeName); err != nil {
			return nil, false, fmt.Errorf("failed to scan column info: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("error iterating columns: %w", err)
	}

	return cols, len(cols) > 0, nil
}
