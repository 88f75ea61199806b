package mysql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/ruslano69/dwsink/pkg/adapters"
	"github.com/ruslano69/dwsink/pkg/adapters/base"
	"github.com/ruslano69/dwsink/pkg/sqlgen"
)

// Compile-time check: Adapter должен реализовывать интерфейс adapters.Adapter
var _ adapters.Adapter = (*Adapter)(nil)

// Регистрация адаптера в глобальной фабрике
func init() {
	adapters.Register("mysql", func() adapters.Adapter {
		return &Adapter{}
	})
}

// Adapter представляет адаптер для работы с MySQL
// Реализует интерфейс adapters.Adapter
type Adapter struct {
	base.SQLAdapter
}

// Connect устанавливает подключение к MySQL
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := a.Init(db, &sqlgen.MySQLDialect{}, cfg.Retry, cfg.MaxConns); err != nil {
		db.Close()
		return err
	}
	return nil
}

// DatabaseType возвращает тип СУБД
func (a *Adapter) DatabaseType() string {
	return "mysql"
}

// TableColumns возвращает колонки таблицы из information_schema
// текущей базы (DATABASE() из DSN)
func (a *Adapter) TableColumns(ctx context.Context, table string) ([]sqlgen.LiveColumn, bool, error) {
	if a.DB == nil {
		return nil, false, fmt.Errorf("adapter not connected")
	}

	query := `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		  AND lower(table_name) = lower(?)
		ORDER BY ordinal_position
	`
	return a.QueryColumns(ctx, query, table)
}
