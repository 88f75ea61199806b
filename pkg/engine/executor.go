package engine

import (
	"context"

	"github.com/ruslano69/dwsink/pkg/sqlgen"
)

// Executor - граница исполнения SQL против целевой БД.
// Реализуется адаптерами (pkg/adapters/*). Движок не управляет
// connection pool'ом и не держит соединение дольше одного statement:
// транзиентные сбои ретраятся внутри адаптера, сюда всплывают только
// ошибки после исчерпания retry.
//
// Каждый метод обязан освобождать соединение на любом пути выхода
// (успех, ошибка statement, отмена контекста).
type Executor interface {
	// ExecDDL выполняет DDL statement
	ExecDDL(ctx context.Context, sql string) error

	// ExecDML выполняет параметризованный DML и возвращает
	// количество затронутых строк
	ExecDML(ctx context.Context, sql string, args ...any) (int64, error)

	// QueryValue выполняет скалярный запрос (верификация счетчиков)
	QueryValue(ctx context.Context, sql string, args ...any) (any, error)

	// TableColumns возвращает колонки таблицы и признак ее существования
	TableColumns(ctx context.Context, table string) ([]sqlgen.LiveColumn, bool, error)

	// Dialect возвращает SQL диалект цели
	Dialect() sqlgen.Dialect

	// Close закрывает подключение
	Close(ctx context.Context) error
}
