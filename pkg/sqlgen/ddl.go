package sqlgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/ruslano69/dwsink/pkg/core/schema"
)

// Action - результат EnsureTable
type Action int

const (
	ActionNone Action = iota
	ActionCreated
	ActionAltered
)

func (a Action) String() string {
	switch a {
	case ActionCreated:
		return "created"
	case ActionAltered:
		return "altered"
	default:
		return "none"
	}
}

// LiveColumn - колонка существующей таблицы, полученная интроспекцией
type LiveColumn struct {
	Name     string
	TypeName string
}

// SchemaExecutor - минимальная граница исполнения DDL.
// Полный engine.Executor реализует этот интерфейс.
type SchemaExecutor interface {
	// ExecDDL выполняет DDL statement
	ExecDDL(ctx context.Context, sql string) error

	// TableColumns возвращает колонки таблицы и признак ее существования
	TableColumns(ctx context.Context, table string) ([]LiveColumn, bool, error)
}

// IncompatibleColumnError - живая колонка не принимает желаемый тип.
// Retype вне аддитивной эволюции не применяется молча.
type IncompatibleColumnError struct {
	Table    string
	Column   string
	LiveType string
	Want     schema.ColumnDef
}

func (e *IncompatibleColumnError) Error() string {
	return fmt.Sprintf("table %s: column %s has type %s, want %s (non-additive retype is not applied)",
		e.Table, e.Column, e.LiveType, e.Want.String())
}

// DDLGenerator порождает CREATE TABLE / ALTER TABLE ADD для схем потоков.
// Эволюция строго аддитивная: колонки только добавляются.
type DDLGenerator struct {
	dialect Dialect
}

// NewDDLGenerator создает генератор для диалекта
func NewDDLGenerator(dialect Dialect) *DDLGenerator {
	return &DDLGenerator{dialect: dialect}
}

// CreateTableSQL строит CREATE TABLE со всеми колонками и primary key
func (g *DDLGenerator) CreateTableSQL(table *schema.TableSchema) string {
	d := g.dialect

	lines := make([]string, 0, len(table.Columns)+1)
	for _, col := range table.Columns {
		def := fmt.Sprintf("%s %s", d.QuoteIdentifier(col.Name), d.ColumnType(col))
		if !col.Nullable && !schema.IsSystemColumn(col.Name) {
			def += " NOT NULL"
		}
		lines = append(lines, def)
	}

	if len(table.Keys) > 0 {
		lines = append(lines, fmt.Sprintf("PRIMARY KEY (%s)", joinQuoted(d, table.Keys)))
	}

	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)",
		d.QuoteIdentifier(table.Table), strings.Join(lines, ",\n  "))
}

// AddColumnSQL строит ALTER TABLE ADD для одной колонки.
// Добавляемые колонки всегда nullable: существующие строки их не имеют.
func (g *DDLGenerator) AddColumnSQL(tableName string, col schema.ColumnDef) string {
	d := g.dialect
	return fmt.Sprintf("ALTER TABLE %s ADD %s %s",
		d.QuoteIdentifier(tableName), d.QuoteIdentifier(col.Name), d.ColumnType(col))
}

// EnsureTable приводит целевую таблицу к желаемой схеме:
//   - таблицы нет: CREATE TABLE, ActionCreated;
//   - таблица есть: ADD COLUMN для отсутствующих колонок, ActionAltered;
//   - все колонки на месте: ActionNone.
//
// Несовместимый тип существующей колонки - IncompatibleColumnError,
// колонки живой таблицы, отсутствующие в схеме, не трогаются.
// Идемпотентна: повторный вызов на совпадающей таблице дает ActionNone.
func (g *DDLGenerator) EnsureTable(ctx context.Context, exec SchemaExecutor, table *schema.TableSchema) (Action, error) {
	live, exists, err := exec.TableColumns(ctx, table.Table)
	if err != nil {
		return ActionNone, fmt.Errorf("failed to introspect table %s: %w", table.Table, err)
	}

	if !exists {
		createSQL := g.CreateTableSQL(table)
		if err := exec.ExecDDL(ctx, createSQL); err != nil {
			return ActionNone, fmt.Errorf("failed to create table %s: %w", table.Table, err)
		}
		return ActionCreated, nil
	}

	liveByName := make(map[string]LiveColumn, len(live))
	for _, lc := range live {
		liveByName[strings.ToUpper(lc.Name)] = lc
	}

	var missing []schema.ColumnDef
	for _, col := range table.Columns {
		lc, ok := liveByName[strings.ToUpper(col.Name)]
		if !ok {
			missing = append(missing, col)
			continue
		}
		if !typeFamilyCompatible(lc.TypeName, col.Kind) {
			return ActionNone, &IncompatibleColumnError{
				Table:    table.Table,
				Column:   col.Name,
				LiveType: lc.TypeName,
				Want:     col,
			}
		}
	}

	if len(missing) == 0 {
		return ActionNone, nil
	}

	for _, col := range missing {
		alterSQL := g.AddColumnSQL(table.Table, col)
		if err := exec.ExecDDL(ctx, alterSQL); err != nil {
			return ActionNone, fmt.Errorf("failed to add column %s.%s: %w", table.Table, col.Name, err)
		}
	}

	return ActionAltered, nil
}

// typeFamilyCompatible грубо сверяет семейство живого типа с желаемым.
// Точного сравнения типов между СУБД не существует; сверка ловит только
// явные конфликты (текст против числа), а не различия в размерах.
func typeFamilyCompatible(liveType string, want schema.ColumnKind) bool {
	family := typeFamily(strings.ToUpper(liveType))
	if family == "" {
		// Неизвестный тип цели - не считаем конфликтом
		return true
	}

	switch want {
	case schema.ColVarchar, schema.ColClob:
		return family == "text"
	case schema.ColNumeric, schema.ColBoolean:
		return family == "numeric"
	case schema.ColDate, schema.ColTimestamp:
		return family == "temporal" || family == "text"
	default:
		return true
	}
}

func typeFamily(t string) string {
	switch {
	case strings.Contains(t, "CHAR"), strings.Contains(t, "TEXT"), strings.Contains(t, "CLOB"):
		return "text"
	case strings.Contains(t, "DATE"), strings.Contains(t, "TIME"):
		return "temporal"
	case strings.Contains(t, "INT"), strings.Contains(t, "NUM"), strings.Contains(t, "DEC"),
		strings.Contains(t, "REAL"), strings.Contains(t, "FLOAT"), strings.Contains(t, "DOUBLE"),
		strings.Contains(t, "BIT"), strings.Contains(t, "BOOL"):
		return "numeric"
	default:
		return ""
	}
}
