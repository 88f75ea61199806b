package sqlgen

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ruslano69/dwsink/pkg/core/schema"
)

func testTable() *schema.TableSchema {
	stream := &schema.StreamSchema{
		Stream: "orders",
		Fields: []schema.Field{
			{Name: "order_id", Type: schema.FieldType{Kind: schema.KindInteger}, Key: true},
			{Name: "name", Type: schema.FieldType{Kind: schema.KindString}, Nullable: true},
		},
		KeyFields: []string{"order_id"},
	}
	table, err := schema.BuildTableSchema(stream, schema.NewTypeMapper(), schema.NewIdentifierPolicy(), "")
	if err != nil {
		panic(err)
	}
	return table
}

func TestNewDialect(t *testing.T) {
	for _, name := range []string{"postgres", "mysql", "mssql", "sqlite"} {
		d, err := NewDialect(name)
		if err != nil {
			t.Errorf("NewDialect(%s): %v", name, err)
			continue
		}
		if d.Name() != name {
			t.Errorf("dialect name = %s, want %s", d.Name(), name)
		}
	}

	if _, err := NewDialect("oracle"); err == nil {
		t.Error("expected error for unsupported dialect")
	}
}

func TestQuoteIdentifierEscaping(t *testing.T) {
	tests := []struct {
		dialect  Dialect
		input    string
		expected string
	}{
		{&PostgresDialect{}, "ORDERS", `"ORDERS"`},
		{&PostgresDialect{}, `BAD"NAME`, `"BAD""NAME"`},
		{&MySQLDialect{}, "ORDERS", "`ORDERS`"},
		{&MSSQLDialect{}, "ORDERS", "[ORDERS]"},
		{&MSSQLDialect{}, "BAD]NAME", "[BAD]]NAME]"},
		{&SQLiteDialect{}, "ORDERS", `"ORDERS"`},
	}

	for _, tt := range tests {
		if got := tt.dialect.QuoteIdentifier(tt.input); got != tt.expected {
			t.Errorf("%s.QuoteIdentifier(%q) = %q, want %q", tt.dialect.Name(), tt.input, got, tt.expected)
		}
	}
}

func TestPlaceholders(t *testing.T) {
	if got := (&PostgresDialect{}).Placeholder(3); got != "$3" {
		t.Errorf("postgres placeholder = %q", got)
	}
	if got := (&MySQLDialect{}).Placeholder(3); got != "?" {
		t.Errorf("mysql placeholder = %q", got)
	}
	if got := (&MSSQLDialect{}).Placeholder(3); got != "@p3" {
		t.Errorf("mssql placeholder = %q", got)
	}
	if got := (&SQLiteDialect{}).Placeholder(3); got != "?" {
		t.Errorf("sqlite placeholder = %q", got)
	}
}

func TestColumnTypes(t *testing.T) {
	varchar := schema.ColumnDef{Kind: schema.ColVarchar, Length: 255}
	numeric := schema.ColumnDef{Kind: schema.ColNumeric, Precision: 38, Scale: 10}
	clob := schema.ColumnDef{Kind: schema.ColClob}

	tests := []struct {
		dialect  Dialect
		col      schema.ColumnDef
		expected string
	}{
		{&PostgresDialect{}, varchar, "VARCHAR(255)"},
		{&PostgresDialect{}, numeric, "NUMERIC(38,10)"},
		{&PostgresDialect{}, clob, "TEXT"},
		{&MySQLDialect{}, varchar, "VARCHAR(255)"},
		{&MySQLDialect{}, numeric, "DECIMAL(38,10)"},
		{&MySQLDialect{}, clob, "LONGTEXT"},
		{&MSSQLDialect{}, varchar, "NVARCHAR(255)"},
		{&MSSQLDialect{}, clob, "NVARCHAR(MAX)"},
		{&SQLiteDialect{}, varchar, "TEXT"},
		{&SQLiteDialect{}, schema.ColumnDef{Kind: schema.ColNumeric, Precision: 38}, "INTEGER"},
	}

	for _, tt := range tests {
		if got := tt.dialect.ColumnType(tt.col); got != tt.expected {
			t.Errorf("%s.ColumnType(%v) = %q, want %q", tt.dialect.Name(), tt.col.Kind, got, tt.expected)
		}
	}

	// MySQL DECIMAL precision is capped at 65
	big := schema.ColumnDef{Kind: schema.ColNumeric, Precision: 100, Scale: 10}
	if got := (&MySQLDialect{}).ColumnType(big); got != "DECIMAL(65,10)" {
		t.Errorf("mysql precision cap: got %q", got)
	}
}

func TestInsertStatements(t *testing.T) {
	table := testTable()
	b := NewStatementBuilder(&PostgresDialect{})

	rows := [][]any{
		{int64(1), "first", nil, "orders", int64(1), nil},
		{int64(2), "second", nil, "orders", int64(2), nil},
	}
	stmts, err := b.InsertStatements(table, rows)
	if err != nil {
		t.Fatalf("InsertStatements failed: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(stmts))
	}

	stmt := stmts[0]
	if !strings.HasPrefix(stmt.SQL, `INSERT INTO "ORDERS" (`) {
		t.Errorf("unexpected SQL: %s", stmt.SQL)
	}
	if !strings.Contains(stmt.SQL, "($1, $2, $3, $4, $5, $6), ($7, $8, $9, $10, $11, $12)") {
		t.Errorf("unexpected values clause: %s", stmt.SQL)
	}
	if len(stmt.Args) != 12 {
		t.Errorf("expected 12 args, got %d", len(stmt.Args))
	}
	if stmt.Rows != 2 {
		t.Errorf("rows = %d, want 2", stmt.Rows)
	}
}

func TestInsertChunking(t *testing.T) {
	table := testTable() // 6 columns
	b := NewStatementBuilder(&SQLiteDialect{})

	// 999 / 6 = 166 rows per statement; 400 rows need 3 statements
	rows := make([][]any, 400)
	for i := range rows {
		rows[i] = []any{int64(i), "x", nil, "orders", int64(i), nil}
	}

	stmts, err := b.InsertStatements(table, rows)
	if err != nil {
		t.Fatalf("InsertStatements failed: %v", err)
	}
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(stmts))
	}

	total := 0
	for _, s := range stmts {
		if len(s.Args) > 999 {
			t.Errorf("statement has %d args, over the limit", len(s.Args))
		}
		if len(s.Args) != s.Rows*6 {
			t.Errorf("args/rows mismatch: %d args, %d rows", len(s.Args), s.Rows)
		}
		total += s.Rows
	}
	if total != 400 {
		t.Errorf("rows across chunks = %d, want 400", total)
	}
}

func TestPlaceholderNumberingRestartsPerStatement(t *testing.T) {
	table := testTable()
	b := NewStatementBuilder(&PostgresDialect{})

	rows := make([][]any, 20000) // forces chunking at 65535/6
	for i := range rows {
		rows[i] = []any{int64(i), "x", nil, "orders", int64(i), nil}
	}

	stmts, err := b.InsertStatements(table, rows)
	if err != nil {
		t.Fatalf("InsertStatements failed: %v", err)
	}
	if len(stmts) < 2 {
		t.Fatalf("expected chunking, got %d statements", len(stmts))
	}
	for i, s := range stmts {
		if !strings.Contains(s.SQL, "($1, ") {
			t.Errorf("statement %d does not restart numbering at $1", i)
		}
	}
}

func TestUpsertRequiresKeys(t *testing.T) {
	stream := &schema.StreamSchema{
		Stream: "logs",
		Fields: []schema.Field{{Name: "msg", Type: schema.FieldType{Kind: schema.KindString}, Nullable: true}},
	}
	table, err := schema.BuildTableSchema(stream, schema.NewTypeMapper(), schema.NewIdentifierPolicy(), "")
	if err != nil {
		t.Fatal(err)
	}

	b := NewStatementBuilder(&PostgresDialect{})
	if _, err := b.UpsertStatements(table, [][]any{{"x", nil, "logs", int64(1), nil}}); err == nil {
		t.Error("expected error for upsert without keys")
	}
}

func TestUpsertSQLPerDialect(t *testing.T) {
	table := testTable()
	row := []any{int64(1), "first", nil, "orders", int64(1), nil}

	tests := []struct {
		dialect  Dialect
		contains []string
	}{
		{&PostgresDialect{}, []string{`ON CONFLICT ("ORDER_ID") DO UPDATE SET`, `= EXCLUDED."NAME"`}},
		{&MySQLDialect{}, []string{"ON DUPLICATE KEY UPDATE", "`NAME` = VALUES(`NAME`)"}},
		{&MSSQLDialect{}, []string{"MERGE INTO [ORDERS] AS target USING (VALUES", "WHEN MATCHED THEN UPDATE SET", "WHEN NOT MATCHED THEN INSERT"}},
		{&SQLiteDialect{}, []string{`ON CONFLICT ("ORDER_ID") DO UPDATE SET`, `= excluded."NAME"`}},
	}

	for _, tt := range tests {
		b := NewStatementBuilder(tt.dialect)
		stmts, err := b.UpsertStatements(table, [][]any{row})
		if err != nil {
			t.Fatalf("%s: UpsertStatements failed: %v", tt.dialect.Name(), err)
		}
		for _, want := range tt.contains {
			if !strings.Contains(stmts[0].SQL, want) {
				t.Errorf("%s: SQL missing %q:\n%s", tt.dialect.Name(), want, stmts[0].SQL)
			}
		}
	}

	// MERGE statement must be terminated with a semicolon
	b := NewStatementBuilder(&MSSQLDialect{})
	stmts, _ := b.UpsertStatements(table, [][]any{row})
	if !strings.HasSuffix(stmts[0].SQL, ";") {
		t.Error("MERGE statement must end with a semicolon")
	}
}

func TestUpsertDeduplicatesKeysWithinBatch(t *testing.T) {
	table := testTable()
	b := NewStatementBuilder(&PostgresDialect{})

	// Повторный ключ в одном multi-row upsert postgres отвергает
	// ("ON CONFLICT DO UPDATE command cannot affect row a second time"),
	// поэтому повторы схлопываются до выполнения - побеждает последний
	rows := [][]any{
		{int64(1), "first", nil, "orders", int64(1), nil},
		{int64(2), "second", nil, "orders", int64(2), nil},
		{int64(1), "first-updated", nil, "orders", int64(3), nil},
	}
	stmts, err := b.UpsertStatements(table, rows)
	if err != nil {
		t.Fatalf("UpsertStatements failed: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(stmts))
	}

	stmt := stmts[0]
	if stmt.Rows != 2 {
		t.Errorf("rows = %d, want 2 after dedupe", stmt.Rows)
	}
	if len(stmt.Args) != 12 {
		t.Fatalf("expected 12 args, got %d", len(stmt.Args))
	}
	// Строка с ключом 1 сохраняет позицию, но несет последние значения
	if stmt.Args[0] != int64(1) || stmt.Args[1] != "first-updated" {
		t.Errorf("key 1 row = %v %v, want last occurrence values", stmt.Args[0], stmt.Args[1])
	}
	if stmt.Args[4] != int64(3) {
		t.Errorf("key 1 sequence = %v, want 3", stmt.Args[4])
	}
	if stmt.Args[6] != int64(2) || stmt.Args[7] != "second" {
		t.Errorf("key 2 row = %v %v", stmt.Args[6], stmt.Args[7])
	}
}

func TestUpsertDistinctKeysNotCollapsed(t *testing.T) {
	table := testTable()
	b := NewStatementBuilder(&PostgresDialect{})

	// Одинаковые неключевые значения при разных ключах не схлопываются
	rows := [][]any{
		{int64(1), "same", nil, "orders", int64(1), nil},
		{int64(2), "same", nil, "orders", int64(2), nil},
	}
	stmts, err := b.UpsertStatements(table, rows)
	if err != nil {
		t.Fatalf("UpsertStatements failed: %v", err)
	}
	if stmts[0].Rows != 2 {
		t.Errorf("rows = %d, want 2", stmts[0].Rows)
	}
}

func TestTruncateStatement(t *testing.T) {
	table := testTable()

	pg := NewStatementBuilder(&PostgresDialect{}).TruncateStatement(table)
	if pg.SQL != `TRUNCATE TABLE "ORDERS"` {
		t.Errorf("postgres truncate = %q", pg.SQL)
	}

	// SQLite has no TRUNCATE
	lite := NewStatementBuilder(&SQLiteDialect{}).TruncateStatement(table)
	if lite.SQL != `DELETE FROM "ORDERS"` {
		t.Errorf("sqlite truncate = %q", lite.SQL)
	}
}

// ========== EnsureTable ==========

type fakeSchemaExecutor struct {
	columns []LiveColumn
	exists  bool
	ddl     []string
	failDDL error
}

func (f *fakeSchemaExecutor) ExecDDL(ctx context.Context, sql string) error {
	if f.failDDL != nil {
		return f.failDDL
	}
	f.ddl = append(f.ddl, sql)
	return nil
}

func (f *fakeSchemaExecutor) TableColumns(ctx context.Context, table string) ([]LiveColumn, bool, error) {
	return f.columns, f.exists, nil
}

func TestEnsureTableCreates(t *testing.T) {
	table := testTable()
	exec := &fakeSchemaExecutor{}
	gen := NewDDLGenerator(&PostgresDialect{})

	action, err := gen.EnsureTable(context.Background(), exec, table)
	if err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}
	if action != ActionCreated {
		t.Errorf("action = %v, want created", action)
	}
	if len(exec.ddl) != 1 {
		t.Fatalf("expected 1 DDL, got %d", len(exec.ddl))
	}

	sql := exec.ddl[0]
	if !strings.HasPrefix(sql, `CREATE TABLE "ORDERS"`) {
		t.Errorf("unexpected DDL: %s", sql)
	}
	if !strings.Contains(sql, `"ORDER_ID" NUMERIC(38,0) NOT NULL`) {
		t.Errorf("key column definition wrong:\n%s", sql)
	}
	if !strings.Contains(sql, `PRIMARY KEY ("ORDER_ID")`) {
		t.Errorf("missing primary key:\n%s", sql)
	}
	if !strings.Contains(sql, `"_SDC_SEQUENCE"`) {
		t.Errorf("missing system column:\n%s", sql)
	}
}

func TestEnsureTableIdempotent(t *testing.T) {
	table := testTable()
	exec := &fakeSchemaExecutor{
		exists: true,
		columns: []LiveColumn{
			{Name: "order_id", TypeName: "numeric"}, // lower case from catalog
			{Name: "NAME", TypeName: "character varying"},
			{Name: "_SDC_EXTRACTED_AT", TypeName: "timestamp without time zone"},
			{Name: "_SDC_ENTITY", TypeName: "character varying"},
			{Name: "_SDC_SEQUENCE", TypeName: "numeric"},
			{Name: "_SDC_BATCHED_AT", TypeName: "timestamp without time zone"},
		},
	}
	gen := NewDDLGenerator(&PostgresDialect{})

	action, err := gen.EnsureTable(context.Background(), exec, table)
	if err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}
	if action != ActionNone {
		t.Errorf("action = %v, want none", action)
	}
	if len(exec.ddl) != 0 {
		t.Errorf("unexpected DDL executed: %v", exec.ddl)
	}
}

func TestEnsureTableAddsMissingColumns(t *testing.T) {
	table := testTable()
	exec := &fakeSchemaExecutor{
		exists: true,
		columns: []LiveColumn{
			{Name: "ORDER_ID", TypeName: "numeric"},
			{Name: "_SDC_EXTRACTED_AT", TypeName: "timestamp"},
			{Name: "_SDC_ENTITY", TypeName: "varchar"},
			{Name: "_SDC_SEQUENCE", TypeName: "numeric"},
			{Name: "_SDC_BATCHED_AT", TypeName: "timestamp"},
		},
	}
	gen := NewDDLGenerator(&PostgresDialect{})

	action, err := gen.EnsureTable(context.Background(), exec, table)
	if err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}
	if action != ActionAltered {
		t.Errorf("action = %v, want altered", action)
	}
	if len(exec.ddl) != 1 {
		t.Fatalf("expected 1 ALTER, got %d: %v", len(exec.ddl), exec.ddl)
	}
	if exec.ddl[0] != `ALTER TABLE "ORDERS" ADD "NAME" VARCHAR(255)` {
		t.Errorf("unexpected ALTER: %s", exec.ddl[0])
	}
}

func TestEnsureTableIncompatibleColumn(t *testing.T) {
	table := testTable()
	exec := &fakeSchemaExecutor{
		exists: true,
		columns: []LiveColumn{
			{Name: "ORDER_ID", TypeName: "text"}, // conflict: numeric expected
		},
	}
	gen := NewDDLGenerator(&PostgresDialect{})

	_, err := gen.EnsureTable(context.Background(), exec, table)
	var ice *IncompatibleColumnError
	if !errors.As(err, &ice) {
		t.Fatalf("expected IncompatibleColumnError, got %v", err)
	}
	if ice.Column != "ORDER_ID" {
		t.Errorf("column = %q", ice.Column)
	}
}

func TestEnsureTableIgnoresExtraLiveColumns(t *testing.T) {
	table := testTable()
	exec := &fakeSchemaExecutor{
		exists: true,
		columns: []LiveColumn{
			{Name: "ORDER_ID", TypeName: "numeric"},
			{Name: "NAME", TypeName: "varchar"},
			{Name: "LEGACY_COLUMN", TypeName: "text"}, // not in schema, must be left alone
			{Name: "_SDC_EXTRACTED_AT", TypeName: "timestamp"},
			{Name: "_SDC_ENTITY", TypeName: "varchar"},
			{Name: "_SDC_SEQUENCE", TypeName: "numeric"},
			{Name: "_SDC_BATCHED_AT", TypeName: "timestamp"},
		},
	}
	gen := NewDDLGenerator(&PostgresDialect{})

	action, err := gen.EnsureTable(context.Background(), exec, table)
	if err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}
	if action != ActionNone {
		t.Errorf("action = %v, want none", action)
	}
}
