// Package base содержит общую реализацию адаптера поверх database/sql.
// Драйверные пакеты (mysql, mssql, sqlite) добавляют подключение
// и интроспекцию каталога своей СУБД.
package base

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ruslano69/dwsink/pkg/resilience"
	"github.com/ruslano69/dwsink/pkg/retry"
	"github.com/ruslano69/dwsink/pkg/sqlgen"
)

// SQLAdapter - общая часть адаптеров на database/sql.
// Соединение берется из пула на время одного statement и
// возвращается на любом пути выхода.
type SQLAdapter struct {
	DB      *sql.DB
	SQLDial sqlgen.Dialect
	Retryer *retry.Retryer
	Breaker *resilience.Breaker
}

// Init настраивает пул, retry политику и circuit breaker после sql.Open
func (a *SQLAdapter) Init(db *sql.DB, dialect sqlgen.Dialect, rc retry.Config, maxConns int) error {
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)

	retryer, err := retry.NewRetryer(rc)
	if err != nil {
		return err
	}

	bc := resilience.DefaultConfig(dialect.Name())
	bc.OnStateChange = func(name string, from, to resilience.State) {
		fmt.Printf("⚠️  Target %s: circuit breaker %s -> %s\n", name, from, to)
	}
	breaker, err := resilience.New(bc)
	if err != nil {
		return err
	}

	a.DB = db
	a.SQLDial = dialect
	a.Retryer = retryer
	a.Breaker = breaker
	return nil
}

// ExecDDL выполняет DDL statement. DDL не ретраится: повтор
// полупримененного DDL опаснее сбоя.
func (a *SQLAdapter) ExecDDL(ctx context.Context, query string) error {
	if a.DB == nil {
		return fmt.Errorf("adapter not connected")
	}
	if _, err := a.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to execute DDL: %w", err)
	}
	return nil
}

// ExecDML выполняет параметризованный DML с retry транзиентных сбоев.
// Circuit breaker оборачивает retry целиком: исчерпанные попытки
// считаются одним сбоем цели, открытый circuit отклоняет batch сразу.
func (a *SQLAdapter) ExecDML(ctx context.Context, query string, args ...any) (int64, error) {
	if a.DB == nil {
		return 0, fmt.Errorf("adapter not connected")
	}

	var affected int64
	err := a.Breaker.Do(ctx, func(ctx context.Context) error {
		return a.Retryer.Do(ctx, func(ctx context.Context) error {
			res, err := a.DB.ExecContext(ctx, query, args...)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				// Драйвер не отдает счетчик - не повод ронять batch
				n = -1
			}
			affected = n
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to execute DML: %w", err)
	}
	return affected, nil
}

// QueryValue выполняет скалярный запрос
func (a *SQLAdapter) QueryValue(ctx context.Context, query string, args ...any) (any, error) {
	if a.DB == nil {
		return nil, fmt.Errorf("adapter not connected")
	}
	var value any
	if err := a.DB.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		return nil, fmt.Errorf("failed to query value: %w", err)
	}
	return value, nil
}

// Dialect возвращает SQL диалект цели
func (a *SQLAdapter) Dialect() sqlgen.Dialect {
	return a.SQLDial
}

// Ping проверяет доступность БД
func (a *SQLAdapter) Ping(ctx context.Context) error {
	if a.DB == nil {
		return fmt.Errorf("adapter not connected")
	}
	return a.DB.PingContext(ctx)
}

// Close закрывает пул подключений
func (a *SQLAdapter) Close(ctx context.Context) error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

// QueryColumns - общий helper интроспекции через information_schema.
// query должен возвращать пары (column_name, data_type) в порядке
// ordinal_position.
func (a *SQLAdapter) QueryColumns(ctx context.Context, query string, args ...any) ([]sqlgen.LiveColumn, bool, error) {
	rows, err := a.DB.QueryContext(ctx, query, args...)
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
