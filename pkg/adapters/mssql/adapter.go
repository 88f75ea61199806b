package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/denisenkom/go-mssqldb"

	"github.com/ruslano69/dwsink/pkg/adapters"
	"github.com/ruslano69/dwsink/pkg/adapters/base"
	"github.com/ruslano69/dwsink/pkg/sqlgen"
)

// Compile-time check: Adapter должен реализовывать интерфейс adapters.Adapter
var _ adapters.Adapter = (*Adapter)(nil)

// Регистрация адаптера в глобальной фабрике
func init() {
	adapters.Register("mssql", func() adapters.Adapter {
		return &Adapter{}
	})
}

// Adapter представляет адаптер для работы с MS SQL Server
// Реализует интерфейс adapters.Adapter
type Adapter struct {
	base.SQLAdapter
	schema string
}

// Connect устанавливает подключение к MS SQL Server
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := a.Init(db, &sqlgen.MSSQLDialect{}, cfg.Retry, cfg.MaxConns); err != nil {
		db.Close()
		return err
	}

	a.schema = cfg.Schema
	if a.schema == "" {
		a.schema = "dbo" // default schema
	}
	return nil
}

// DatabaseType возвращает тип СУБД
func (a *Adapter) DatabaseType() string {
	return "mssql"
}

// TableColumns возвращает колонки таблицы из information_schema
func (a *Adapter) TableColumns(ctx context.Context, table string) ([]sqlgen.LiveColumn, bool, error) {
	if a.DB == nil {
		return nil, false, fmt.Errorf("adapter not connected")
	}

	query := `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = @p1
		  AND lower(table_name) = lower(@p2)
		ORDER BY ordinal_position
	`
	return a.QueryColumns(ctx, query, a.schema, table)
}
