// Package sqlgen генерирует DDL и DML для целевых БД.
// Значения всегда передаются bind-параметрами, идентификаторы всегда
// квотируются - пользовательские данные не попадают в SQL текст.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/ruslano69/dwsink/pkg/core/schema"
)

// Dialect описывает различия SQL между целевыми СУБД
type Dialect interface {
	// Name возвращает имя диалекта: postgres, mysql, mssql, sqlite
	Name() string

	// QuoteIdentifier квотирует идентификатор
	QuoteIdentifier(name string) string

	// Placeholder возвращает bind-плейсхолдер для позиции n (с 1)
	Placeholder(n int) string

	// ColumnType возвращает имя типа колонки в этом диалекте
	ColumnType(col schema.ColumnDef) string

	// MaxBindParams - лимит bind-параметров одного statement
	MaxBindParams() int

	// UpsertSQL строит multi-row upsert: values - готовый список
	// плейсхолдеров вида "($1,$2),($3,$4)"
	UpsertSQL(table string, cols, keys []string, values string) string

	// TruncateSQL строит полную очистку таблицы
	TruncateSQL(table string) string
}

// NewDialect возвращает диалект по имени целевой СУБД
func NewDialect(name string) (Dialect, error) {
	switch name {
	case "postgres":
		return &PostgresDialect{}, nil
	case "mysql":
		return &MySQLDialect{}, nil
	case "mssql":
		return &MSSQLDialect{}, nil
	case "sqlite":
		return &SQLiteDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported target type: %s (supported: postgres, mysql, mssql, sqlite)", name)
	}
}

// quoteWith квотирует идентификатор парой символов, экранируя
// вхождения закрывающего символа удвоением
func quoteWith(name string, open, close byte) string {
	escaped := strings.ReplaceAll(name, string(close), string(close)+string(close))
	return string(open) + escaped + string(close)
}

// joinQuoted квотирует и склеивает список идентификаторов
func joinQuoted(d Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.QuoteIdentifier(n)
	}
	return strings.Join(quoted, ", ")
}

// nonKeyColumns возвращает колонки, не входящие в ключ
func nonKeyColumns(cols, keys []string) []string {
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}
	var rest []string
	for _, c := range cols {
		if !keySet[c] {
			rest = append(rest, c)
		}
	}
	return rest
}

// ========== PostgreSQL ==========

type PostgresDialect struct{}

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) QuoteIdentifier(name string) string {
	return quoteWith(name, '"', '"')
}

func (d *PostgresDialect) Placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func (d *PostgresDialect) MaxBindParams() int { return 65535 }

func (d *PostgresDialect) ColumnType(col schema.ColumnDef) string {
	switch col.Kind {
	case schema.ColVarchar:
		return fmt.Sprintf("VARCHAR(%d)", col.Length)
	case schema.ColClob:
		return "TEXT"
	case schema.ColNumeric:
		if col.Precision > 0 {
			return fmt.Sprintf("NUMERIC(%d,%d)", col.Precision, col.Scale)
		}
		return "NUMERIC"
	case schema.ColBoolean:
		return "BOOLEAN"
	case schema.ColDate:
		return "DATE"
	case schema.ColTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func (d *PostgresDialect) UpsertSQL(table string, cols, keys []string, values string) string {
	updates := nonKeyColumns(cols, keys)
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s)",
		table, joinQuoted(d, cols), values, joinQuoted(d, keys))

	if len(updates) == 0 {
		return sql + " DO NOTHING"
	}

	sets := make([]string, len(updates))
	for i, c := range updates {
		q := d.QuoteIdentifier(c)
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", q, q)
	}
	return sql + " DO UPDATE SET " + strings.Join(sets, ", ")
}

func (d *PostgresDialect) TruncateSQL(table string) string {
	return "TRUNCATE TABLE " + table
}

// ========== MySQL ==========

type MySQLDialect struct{}

func (d *MySQLDialect) Name() string { return "mysql" }

func (d *MySQLDialect) QuoteIdentifier(name string) string {
	return quoteWith(name, '`', '`')
}

func (d *MySQLDialect) Placeholder(n int) string { return "?" }

func (d *MySQLDialect) MaxBindParams() int { return 65535 }

func (d *MySQLDialect) ColumnType(col schema.ColumnDef) string {
	switch col.Kind {
	case schema.ColVarchar:
		return fmt.Sprintf("VARCHAR(%d)", col.Length)
	case schema.ColClob:
		return "LONGTEXT"
	case schema.ColNumeric:
		if col.Precision > 0 {
			// MySQL DECIMAL ограничен precision 65
			p := col.Precision
			if p > 65 {
				p = 65
			}
			return fmt.Sprintf("DECIMAL(%d,%d)", p, col.Scale)
		}
		return "DECIMAL(38,10)"
	case schema.ColBoolean:
		return "TINYINT(1)"
	case schema.ColDate:
		return "DATE"
	case schema.ColTimestamp:
		return "DATETIME(6)"
	default:
		return "LONGTEXT"
	}
}

func (d *MySQLDialect) UpsertSQL(table string, cols, keys []string, values string) string {
	updates := nonKeyColumns(cols, keys)
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		table, joinQuoted(d, cols), values)

	if len(updates) == 0 {
		// Нечего обновлять - дубликат игнорируется через no-op присвоение ключа
		k := d.QuoteIdentifier(keys[0])
		return sql + fmt.Sprintf(" ON DUPLICATE KEY UPDATE %s = %s", k, k)
	}

	sets := make([]string, len(updates))
	for i, c := range updates {
		q := d.QuoteIdentifier(c)
		sets[i] = fmt.Sprintf("%s = VALUES(%s)", q, q)
	}
	return sql + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

func (d *MySQLDialect) TruncateSQL(table string) string {
	return "TRUNCATE TABLE " + table
}

// ========== MS SQL Server ==========

type MSSQLDialect struct{}

func (d *MSSQLDialect) Name() string { return "mssql" }

func (d *MSSQLDialect) QuoteIdentifier(name string) string {
	return quoteWith(name, '[', ']')
}

func (d *MSSQLDialect) Placeholder(n int) string {
	return fmt.Sprintf("@p%d", n)
}

func (d *MSSQLDialect) MaxBindParams() int { return 2100 }

func (d *MSSQLDialect) ColumnType(col schema.ColumnDef) string {
	switch col.Kind {
	case schema.ColVarchar:
		return fmt.Sprintf("NVARCHAR(%d)", col.Length)
	case schema.ColClob:
		return "NVARCHAR(MAX)"
	case schema.ColNumeric:
		if col.Precision > 0 {
			return fmt.Sprintf("NUMERIC(%d,%d)", col.Precision, col.Scale)
		}
		return "NUMERIC(38,10)"
	case schema.ColBoolean:
		return "BIT"
	case schema.ColDate:
		return "DATE"
	case schema.ColTimestamp:
		return "DATETIME2"
	default:
		return "NVARCHAR(MAX)"
	}
}

// UpsertSQL строит MERGE (SQL Server 2012+) с multi-row источником
// через VALUES table constructor
func (d *MSSQLDialect) UpsertSQL(table string, cols, keys []string, values string) string {
	conditions := make([]string, len(keys))
	for i, k := range keys {
		q := d.QuoteIdentifier(k)
		conditions[i] = fmt.Sprintf("target.%s = src.%s", q, q)
	}

	updates := nonKeyColumns(cols, keys)
	sets := make([]string, len(updates))
	for i, c := range updates {
		q := d.QuoteIdentifier(c)
		sets[i] = fmt.Sprintf("target.%s = src.%s", q, q)
	}

	srcCols := make([]string, len(cols))
	for i, c := range cols {
		srcCols[i] = "src." + d.QuoteIdentifier(c)
	}

	sql := fmt.Sprintf("MERGE INTO %s AS target USING (VALUES %s) AS src (%s) ON (%s)",
		table, values, joinQuoted(d, cols), strings.Join(conditions, " AND "))

	if len(sets) > 0 {
		sql += " WHEN MATCHED THEN UPDATE SET " + strings.Join(sets, ", ")
	}

	sql += fmt.Sprintf(" WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);",
		joinQuoted(d, cols), strings.Join(srcCols, ", "))

	return sql
}

func (d *MSSQLDialect) TruncateSQL(table string) string {
	return "TRUNCATE TABLE " + table
}

// ========== SQLite ==========

type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string { return "sqlite" }

func (d *SQLiteDialect) QuoteIdentifier(name string) string {
	return quoteWith(name, '"', '"')
}

func (d *SQLiteDialect) Placeholder(n int) string { return "?" }

func (d *SQLiteDialect) MaxBindParams() int { return 999 }

func (d *SQLiteDialect) ColumnType(col schema.ColumnDef) string {
	switch col.Kind {
	case schema.ColVarchar, schema.ColClob:
		return "TEXT"
	case schema.ColNumeric:
		if col.Scale == 0 && col.Precision > 0 {
			return "INTEGER"
		}
		return "NUMERIC"
	case schema.ColBoolean:
		return "INTEGER"
	case schema.ColDate:
		return "DATE"
	case schema.ColTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func (d *SQLiteDialect) UpsertSQL(table string, cols, keys []string, values string) string {
	updates := nonKeyColumns(cols, keys)
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT (%s)",
		table, joinQuoted(d, cols), values, joinQuoted(d, keys))

	if len(updates) == 0 {
		return sql + " DO NOTHING"
	}

	sets := make([]string, len(updates))
	for i, c := range updates {
		q := d.QuoteIdentifier(c)
		sets[i] = fmt.Sprintf("%s = excluded.%s", q, q)
	}
	return sql + " DO UPDATE SET " + strings.Join(sets, ", ")
}

func (d *SQLiteDialect) TruncateSQL(table string) string {
	// SQLite не поддерживает TRUNCATE
	return "DELETE FROM " + table
}
