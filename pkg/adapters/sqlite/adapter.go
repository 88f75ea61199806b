package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/ruslano69/dwsink/pkg/adapters"
	"github.com/ruslano69/dwsink/pkg/adapters/base"
	"github.com/ruslano69/dwsink/pkg/sqlgen"
)

// Compile-time check: Adapter должен реализовывать интерфейс adapters.Adapter
var _ adapters.Adapter = (*Adapter)(nil)

// Регистрация адаптера в глобальной фабрике
func init() {
	adapters.Register("sqlite", func() adapters.Adapter {
		return &Adapter{}
	})
}

// Adapter представляет адаптер для работы с SQLite
// Реализует интерфейс adapters.Adapter
type Adapter struct {
	base.SQLAdapter
}

// Connect устанавливает подключение к SQLite
func (a *Adapter) Connect(ctx context.Context, cfg adapters.Config) error {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite однописательный: пул больше одного соединения дает
	// SQLITE_BUSY на параллельных потоках
	if err := a.Init(db, &sqlgen.SQLiteDialect{}, cfg.Retry, 1); err != nil {
		db.Close()
		return err
	}
	return nil
}

// DatabaseType возвращает тип СУБД
func (a *Adapter) DatabaseType() string {
	return "sqlite"
}

// TableColumns возвращает колонки таблицы через PRAGMA table_info
func (a *Adapter) TableColumns(ctx context.Context, table string) ([]sqlgen.LiveColumn, bool, error) {
	if a.DB == nil {
		return nil, false, fmt.Errorf("adapter not connected")
	}

	rows, err := a.DB.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, false, fmt.Errorf("failed to introspect table: %w", err)
	}
	defer rows.Close()

	var cols []sqlgen.LiveColumn
	for rows.Next() {
		var (
			cid       int
			name      string
			typeName  string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typeName, &notNull, &dfltValue, &pk); err != nil {
			return nil, false, fmt.Errorf("failed to scan column info: %w", err)
		}
		cols = append(cols, sqlgen.LiveColumn{Name: name, TypeName: typeName})
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("error iterating columns: %w", err)
	}

	return cols, len(cols) > 0, nil
}
