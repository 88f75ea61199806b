package sqlgen

import (
	"fmt"
	"strings"

	"github.com/ruslano69/dwsink/pkg/core/schema"
)

// Statement - один физический SQL statement с bind-аргументами.
// Один логический flush может развернуться в несколько statements
// (chunking под лимит bind-параметров цели).
type Statement struct {
	SQL  string
	Args []any
	Rows int
}

// StatementBuilder строит DML для батча записей одного потока
type StatementBuilder struct {
	dialect Dialect
}

// NewStatementBuilder создает построитель для диалекта
func NewStatementBuilder(dialect Dialect) *StatementBuilder {
	return &StatementBuilder{dialect: dialect}
}

// Dialect возвращает диалект построителя
func (b *StatementBuilder) Dialect() Dialect {
	return b.dialect
}

// InsertStatements строит bulk INSERT для батча.
// rows - значения в порядке колонок таблицы (включая системные).
func (b *StatementBuilder) InsertStatements(table *schema.TableSchema, rows [][]any) ([]Statement, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	cols := table.ColumnNames()
	if err := b.checkRowWidth(rows, len(cols)); err != nil {
		return nil, err
	}

	d := b.dialect
	head := fmt.Sprintf("INSERT INTO %s (%s) VALUES ",
		d.QuoteIdentifier(table.Table), joinQuoted(d, cols))

	var stmts []Statement
	for _, chunk := range b.chunkRows(rows, len(cols)) {
		values, args := b.valuesClause(chunk)
		stmts = append(stmts, Statement{
			SQL:  head + values,
			Args: args,
			Rows: len(chunk),
		})
	}
	return stmts, nil
}

// UpsertStatements строит merge-upsert по ключевым колонкам таблицы.
// Отсутствие ключей - ошибка конфигурации, обнаруженная до генерации SQL.
func (b *StatementBuilder) UpsertStatements(table *schema.TableSchema, rows [][]any) ([]Statement, error) {
	if len(table.Keys) == 0 {
		return nil, fmt.Errorf("upsert requires at least one key column for table %s", table.Table)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	cols := table.ColumnNames()
	if err := b.checkRowWidth(rows, len(cols)); err != nil {
		return nil, err
	}

	// Повторы одного ключа внутри батча недопустимы в multi-row upsert
	// (postgres: "ON CONFLICT DO UPDATE command cannot affect row a second
	// time", mssql MERGE - аналогично). Оставляем последнее вхождение.
	rows = dedupeByKey(rows, keyIndexes(table))

	d := b.dialect
	quotedTable := d.QuoteIdentifier(table.Table)

	var stmts []Statement
	for _, chunk := range b.chunkRows(rows, len(cols)) {
		values, args := b.valuesClause(chunk)
		stmts = append(stmts, Statement{
			SQL:  d.UpsertSQL(quotedTable, cols, table.Keys, values),
			Args: args,
			Rows: len(chunk),
		})
	}
	return stmts, nil
}

// TruncateStatement строит полную очистку таблицы (без bind-параметров)
func (b *StatementBuilder) TruncateStatement(table *schema.TableSchema) Statement {
	return Statement{
		SQL: b.dialect.TruncateSQL(b.dialect.QuoteIdentifier(table.Table)),
	}
}

// keyIndexes возвращает позиции ключевых колонок в порядке таблицы
func keyIndexes(table *schema.TableSchema) []int {
	idx := make([]int, 0, len(table.Keys))
	for _, key := range table.Keys {
		for i, col := range table.Columns {
			if col.Name == key {
				idx = append(idx, i)
				break
			}
		}
	}
	return idx
}

// dedupeByKey схлопывает строки с одинаковым значением ключа: побеждает
// последнее вхождение (поведение построчной загрузки), позиция строки в
// батче сохраняется за первым вхождением
func dedupeByKey(rows [][]any, keyIdx []int) [][]any {
	if len(keyIdx) == 0 || len(rows) < 2 {
		return rows
	}

	seen := make(map[string]int, len(rows))
	deduped := make([][]any, 0, len(rows))
	for _, row := range rows {
		var sb strings.Builder
		for _, i := range keyIdx {
			if i < len(row) {
				fmt.Fprintf(&sb, "%T:%v\x00", row[i], row[i])
			}
		}
		key := sb.String()
		if pos, ok := seen[key]; ok {
			deduped[pos] = row
			continue
		}
		seen[key] = len(deduped)
		deduped = append(deduped, row)
	}
	return deduped
}

func (b *StatementBuilder) checkRowWidth(rows [][]any, want int) error {
	for i, row := range rows {
		if len(row) != want {
			return fmt.Errorf("row %d has %d values, want %d", i, len(row), want)
		}
	}
	return nil
}

// chunkRows режет батч так, чтобы каждый statement оставался
// под лимитом bind-параметров диалекта
func (b *StatementBuilder) chunkRows(rows [][]any, width int) [][][]any {
	perStmt := b.dialect.MaxBindParams() / width
	if perStmt < 1 {
		perStmt = 1
	}

	var chunks [][][]any
	for start := 0; start < len(rows); start += perStmt {
		end := start + perStmt
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}

// valuesClause строит "(p1,p2),(p3,p4)" и плоский список аргументов
func (b *StatementBuilder) valuesClause(rows [][]any) (string, []any) {
	d := b.dialect
	args := make([]any, 0, len(rows)*len(rows[0]))

	var sb strings.Builder
	n := 1
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j, val := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.Placeholder(n))
			n++
			args = append(args, val)
		}
		sb.WriteByte(')')
	}
	return sb.String(), args
}
