package base

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ruslano69/dwsink/pkg/retry"
	"github.com/ruslano69/dwsink/pkg/sqlgen"
)

func newTestAdapter(t *testing.T) (*SQLAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	rc := retry.DefaultConfig()
	rc.InitialDelay = time.Millisecond
	rc.MaxDelay = 10 * time.Millisecond

	a := &SQLAdapter{}
	if err := a.Init(db, &sqlgen.MySQLDialect{}, rc, 5); err != nil {
		t.Fatal(err)
	}
	return a, mock
}

func TestExecDML(t *testing.T) {
	a, mock := newTestAdapter(t)

	mock.ExpectExec("INSERT INTO `ORDERS`").
		WithArgs(int64(1), "first").
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := a.ExecDML(context.Background(), "INSERT INTO `ORDERS` (`ID`, `NAME`) VALUES (?, ?)", int64(1), "first")
	if err != nil {
		t.Fatalf("ExecDML failed: %v", err)
	}
	if affected != 1 {
		t.Errorf("affected = %d, want 1", affected)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestExecDMLRetriesTransientError(t *testing.T) {
	a, mock := newTestAdapter(t)

	mock.ExpectExec("INSERT INTO `ORDERS`").
		WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectExec("INSERT INTO `ORDERS`").
		WillReturnResult(sqlmock.NewResult(0, 2))

	affected, err := a.ExecDML(context.Background(), "INSERT INTO `ORDERS` (`ID`) VALUES (?), (?)", 1, 2)
	if err != nil {
		t.Fatalf("ExecDML did not recover: %v", err)
	}
	if affected != 2 {
		t.Errorf("affected = %d, want 2", affected)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestExecDMLPermanentErrorNotRetried(t *testing.T) {
	a, mock := newTestAdapter(t)

	mock.ExpectExec("INSERT INTO `ORDERS`").
		WillReturnError(errors.New("Duplicate entry '1' for key 'PRIMARY'"))

	_, err := a.ExecDML(context.Background(), "INSERT INTO `ORDERS` (`ID`) VALUES (?)", 1)
	if err == nil {
		t.Fatal("expected error")
	}
	// A single expectation consumed, no retries queued up
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestExecDMLMissingRowsAffected(t *testing.T) {
	a, mock := newTestAdapter(t)

	mock.ExpectExec("MERGE INTO").
		WillReturnResult(sqlmock.NewErrorResult(errors.New("driver does not support RowsAffected")))

	affected, err := a.ExecDML(context.Background(), "MERGE INTO T USING ...")
	if err != nil {
		t.Fatalf("ExecDML failed: %v", err)
	}
	if affected != -1 {
		t.Errorf("affected = %d, want -1 sentinel", affected)
	}
}

func TestExecDDLNotRetried(t *testing.T) {
	a, mock := newTestAdapter(t)

	mock.ExpectExec("CREATE TABLE").
		WillReturnError(errors.New("connection reset by peer"))

	err := a.ExecDDL(context.Background(), "CREATE TABLE `ORDERS` (`ID` BIGINT)")
	if err == nil {
		t.Fatal("expected error")
	}
	// Transient or not, DDL runs exactly once
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestQueryValue(t *testing.T) {
	a, mock := newTestAdapter(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))

	val, err := a.QueryValue(context.Background(), "SELECT COUNT(*) FROM `ORDERS`")
	if err != nil {
		t.Fatalf("QueryValue failed: %v", err)
	}
	if val != int64(42) {
		t.Errorf("value = %v, want 42", val)
	}
}

func TestQueryColumns(t *testing.T) {
	a, mock := newTestAdapter(t)

	mock.ExpectQuery("information_schema.columns").
		WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}).
			AddRow("ORDER_ID", "bigint").
			AddRow("NAME", "varchar"))

	cols, exists, err := a.QueryColumns(context.Background(),
		"SELECT column_name, data_type FROM information_schema.columns WHERE table_name = ?", "orders")
	if err != nil {
		t.Fatalf("QueryColumns failed: %v", err)
	}
	if !exists {
		t.Fatal("table must be reported as existing")
	}
	if len(cols) != 2 || cols[0].Name != "ORDER_ID" || cols[1].TypeName != "varchar" {
		t.Errorf("cols = %+v", cols)
	}
}

func TestQueryColumnsMissingTable(t *testing.T) {
	a, mock := newTestAdapter(t)

	mock.ExpectQuery("information_schema.columns").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type"}))

	cols, exists, err := a.QueryColumns(context.Background(),
		"SELECT column_name, data_type FROM information_schema.columns WHERE table_name = ?", "ghost")
	if err != nil {
		t.Fatalf("QueryColumns failed: %v", err)
	}
	if exists || cols != nil {
		t.Errorf("missing table reported as existing: %v", cols)
	}
}

func TestNotConnected(t *testing.T) {
	a := &SQLAdapter{}
	ctx := context.Background()

	if err := a.ExecDDL(ctx, "CREATE TABLE T (X INT)"); err == nil || !strings.Contains(err.Error(), "not connected") {
		t.Errorf("ExecDDL = %v", err)
	}
	if _, err := a.ExecDML(ctx, "INSERT INTO T VALUES (1)"); err == nil {
		t.Error("ExecDML must fail when not connected")
	}
	if err := a.Ping(ctx); err == nil {
		t.Error("Ping must fail when not connected")
	}
	if err := a.Close(ctx); err != nil {
		t.Errorf("Close on unconnected adapter: %v", err)
	}
}
