package engine

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/ruslano69/dwsink/pkg/core/schema"
	"github.com/ruslano69/dwsink/pkg/sqlgen"
)

// State - состояние потока в машине загрузки
type State int

const (
	StateIdle State = iota
	StateSchemaPending
	StateLoading
	StateVerifying
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSchemaPending:
		return "schema-pending"
	case StateLoading:
		return "loading"
	case StateVerifying:
		return "verifying"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// streamState - состояние одного потока.
// Все события потока обрабатываются одним воркером, поэтому поля
// не требуют собственной синхронизации.
type streamState struct {
	state     State
	schema    *schema.StreamSchema
	table     *schema.TableSchema
	sequence  int64 // монотонный счетчик записей потока
	truncated bool  // для truncate-insert: очистка уже выполнена в этом запуске
	failure   error
}

// Controller реализует машину состояний загрузки по потокам:
// Idle -> SchemaPending -> Loading -> Verifying -> Idle.
// Потоки независимы; фатальная ошибка одного потока не трогает другие.
type Controller struct {
	cfg     *Config
	exec    Executor
	ddl     *sqlgen.DDLGenerator
	builder *sqlgen.StatementBuilder
	buffer  *BatchBuffer
	stats   *StatsTracker
	rejects *RejectsWriter
	mapper  *schema.TypeMapper
	policy  *schema.IdentifierPolicy
	conv    *schema.Converter

	// gate ограничивает число одновременно загружающих потоков
	gate chan struct{}

	mu      sync.Mutex
	streams map[string]*streamState
}

// NewController создает контроллер загрузки
func NewController(cfg *Config, exec Executor, rejects *RejectsWriter) *Controller {
	dialect := exec.Dialect()
	return &Controller{
		cfg:     cfg,
		exec:    exec,
		ddl:     sqlgen.NewDDLGenerator(dialect),
		builder: sqlgen.NewStatementBuilder(dialect),
		buffer:  NewBatchBuffer(cfg.Load.BatchSize),
		stats:   NewStatsTracker(),
		rejects: rejects,
		mapper:  cfg.TypeMapper(),
		policy:  schema.NewIdentifierPolicy(),
		conv:    schema.NewConverter(),
		gate:    make(chan struct{}, cfg.Load.MaxParallelStreams),
	}
}

// Stats возвращает трекер статистики (только для чтения снапшотов)
func (c *Controller) Stats() *StatsTracker {
	return c.stats
}

// State возвращает текущее состояние потока
func (c *Controller) State(stream string) State {
	return c.get(stream).state
}

func (c *Controller) get(stream string) *streamState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.streams[stream]
	if !ok {
		st = &streamState{state: StateIdle}
		if c.streams == nil {
			c.streams = make(map[string]*streamState)
		}
		c.streams[stream] = st
	}
	return st
}

// fail помечает поток фатально сбойным; дальнейшие записи отклоняются
// до внешнего сброса
func (c *Controller) fail(st *streamState, stream string, err error) error {
	st.state = StateFailed
	st.failure = err
	c.stats.MarkFailed(stream, err.Error())
	return err
}

// streamError строит ошибку с контекстом возобновления потока
func (c *Controller) streamError(st *streamState, stream string, kind Kind, err error, msg string) *Error {
	return &Error{
		Kind:           kind,
		Stream:         stream,
		Message:        msg,
		LastSequence:   c.stats.Snapshot(stream).LastSequence,
		PendingRecords: c.buffer.Len(stream),
		Err:            err,
	}
}

// HandleSchema применяет SCHEMA событие потока.
// Новая схема замещает предыдущую (не сливается). Буфер потока
// сбрасывается до применения схемы; несовместимый retype существующего
// поля - SchemaError, поток помечается failed.
func (c *Controller) HandleSchema(ctx context.Context, incoming *schema.StreamSchema) error {
	stream := incoming.Stream
	st := c.get(stream)
	if st.state == StateFailed {
		return st.failure
	}

	st.state = StateSchemaPending

	// Накопленное под старой схемой пишется до смены схемы
	if st.schema != nil {
		if err := c.Flush(ctx, stream); err != nil {
			return err
		}
		if _, incompatible := schema.DiffFields(st.schema, incoming); len(incompatible) > 0 {
			err := c.streamError(st, stream, KindSchema, nil,
				fmt.Sprintf("incompatible retype of fields %v", incompatible))
			return c.fail(st, stream, err)
		}
	}

	// Ключи upsert: key_properties события, либо конфигурация
	if keys, ok := c.cfg.Load.UpsertKeys[stream]; ok && len(keys) > 0 {
		incoming.KeyFields = keys
		for i := range incoming.Fields {
			incoming.Fields[i].Key = false
			for _, k := range keys {
				if incoming.Fields[i].Name == k {
					incoming.Fields[i].Key = true
				}
			}
		}
	}
	if c.cfg.Load.Method == LoadUpsert && len(incoming.KeyFields) == 0 {
		err := c.streamError(st, stream, KindSchema, nil,
			"load method 'upsert' requires key fields (key_properties or load.upsert_keys)")
		return c.fail(st, stream, err)
	}

	table, err := schema.BuildTableSchema(incoming, c.mapper, c.policy, c.cfg.Target.TablePrefix)
	if err != nil {
		return c.fail(st, stream, c.streamError(st, stream, KindSchema, err, "failed to build table schema"))
	}

	action, err := c.ddl.EnsureTable(ctx, c.exec, table)
	if err != nil {
		// Несовместимая колонка живой таблицы - схема не разрешима
		kind := KindConnection
		var incompat *sqlgen.IncompatibleColumnError
		if errors.As(err, &incompat) {
			kind = KindSchema
		}
		return c.fail(st, stream, c.streamError(st, stream, kind, err, "failed to ensure target table"))
	}
	if action != sqlgen.ActionNone {
		fmt.Printf("📋 Stream %s: table %s %s\n", stream, table.Table, action)
	}

	st.schema = incoming
	st.table = table
	c.buffer.BindSchema(stream, incoming, table)
	st.state = StateIdle
	return nil
}

// HandleRecord буферизует запись потока и при достижении порога
// выполняет flush. Записи сбойного потока отклоняются (в карантин),
// не молча отбрасываются.
func (c *Controller) HandleRecord(ctx context.Context, stream string, record map[string]any) error {
	st := c.get(stream)

	if st.state == StateFailed {
		c.stats.RecordRejected(stream)
		c.rejects.Write(stream, "stream is failed: "+st.failure.Error(), record)
		return nil
	}

	c.stats.RecordReceived(stream)

	if st.schema == nil {
		c.stats.RecordRejected(stream)
		c.rejects.Write(stream, "record before schema", record)
		return nil
	}

	// Проверка формы: необъявленные поля отклоняют запись целиком
	if err := schema.ValidateRecord(record, st.schema); err != nil {
		c.stats.RecordRejected(stream)
		c.rejects.Write(stream, err.Error(), record)
		return nil
	}

	c.buffer.Add(stream, record)

	if c.buffer.ShouldFlush(stream) {
		return c.Flush(ctx, stream)
	}
	return nil
}

// Flush выполняет загрузку накопленного батча потока.
// Пустой буфер - no-op. Сбой выполнения - ProcessingError: батч
// помечен failed, поток продолжает жить (committed чанки не
// откатываются, их фиксирует граница транзакции БД).
func (c *Controller) Flush(ctx context.Context, stream string) error {
	st := c.get(stream)
	if st.state == StateFailed {
		return st.failure
	}

	batch := c.buffer.Drain(stream)
	if batch == nil {
		return nil
	}

	// Не больше max_parallel_streams потоков грузятся одновременно
	c.gate <- struct{}{}
	defer func() { <-c.gate }()

	st.state = StateLoading
	started := time.Now()

	rows, rejected, lastSeq := c.buildRows(st, batch)

	operation := string(c.cfg.Load.Method)
	outcome := BatchOutcome{
		Records:   len(batch.Records),
		Failed:    rejected,
		Operation: operation,
	}

	var stmts []sqlgen.Statement
	var err error
	switch c.cfg.Load.Method {
	case LoadUpsert:
		stmts, err = c.builder.UpsertStatements(batch.Table, rows)
	case LoadTruncateInsert:
		if !st.truncated {
			stmts = append(stmts, c.builder.TruncateStatement(batch.Table))
			st.truncated = true
		}
		var inserts []sqlgen.Statement
		inserts, err = c.builder.InsertStatements(batch.Table, rows)
		stmts = append(stmts, inserts...)
	default:
		stmts, err = c.builder.InsertStatements(batch.Table, rows)
	}
	if err != nil {
		// Строки уже выкачаны из буфера и никуда не попадут
		outcome.Failed += len(rows)
		outcome.Err = err
		outcome.Duration = time.Since(started)
		c.stats.RecordBatch(stream, outcome)
		serr := c.streamError(st, stream, KindSchema, err, "failed to build statements")
		c.fail(st, stream, serr)
		return serr
	}

	outcome.Checksum = batchChecksum(rows)

	// Выполнение чанков; сбой чанка фейлит весь flush, но уже
	// закоммиченные чанки остаются - фиксируем сколько их было
	chunksOK := 0
	var execErr error
	committedSeq := c.stats.Snapshot(stream).LastSequence
	rowsDone := 0
	for _, stmt := range stmts {
		affected, err := c.exec.ExecDML(ctx, stmt.SQL, stmt.Args...)
		if err != nil {
			execErr = err
			break
		}
		chunksOK++
		rowsDone += stmt.Rows
		if stmt.Rows > 0 {
			outcome.Inserted += affectedRows(affected, stmt.Rows)
		}
	}

	outcome.Duration = time.Since(started)

	if execErr != nil {
		outcome.Failed += len(rows) - rowsDone
		outcome.Err = execErr
		c.stats.RecordBatch(stream, outcome)
		if rowsDone > 0 {
			c.stats.SetSequence(stream, committedSeq+int64(rowsDone))
		}
		st.state = StateIdle
		perr := c.streamError(st, stream, KindProcessing, execErr,
			fmt.Sprintf("flush failed after %d committed chunk(s)", chunksOK))
		perr.ChunksCommitted = chunksOK
		return perr
	}

	c.stats.RecordBatch(stream, outcome)
	c.stats.SetSequence(stream, lastSeq)

	if c.cfg.Load.EnableVerification {
		st.state = StateVerifying
		c.verify(ctx, stream, batch.Table)
	}

	st.state = StateIdle
	return nil
}

// buildRows конвертирует записи батча в bind-строки в порядке колонок
// таблицы, добавляя системные значения. Некорректные записи отклоняются
// поштучно (ValidationError), остальной батч продолжается.
func (c *Controller) buildRows(st *streamState, batch *RecordBatch) (rows [][]any, rejected int, lastSeq int64) {
	table := batch.Table
	userCols := table.UserColumns()
	batchedAt := time.Now().UTC()

	for _, record := range batch.Records {
		row := make([]any, 0, len(table.Columns))
		ok := true

		for _, col := range userCols {
			field := batch.Schema.FieldByName(col.Source)
			if field == nil {
				row = append(row, nil)
				continue
			}
			val, err := c.conv.BindValue(record[field.Name], *field)
			if err != nil {
				// Отклоненная запись попадет в RecordsFailed через
				// outcome.Failed текущего flush'а
				c.rejects.Write(batch.Stream, err.Error(), record)
				rejected++
				ok = false
				break
			}
			row = append(row, val)
		}
		if !ok {
			continue
		}

		st.sequence++
		row = append(row, batch.DrainedAt, batch.Stream, st.sequence, batchedAt)
		rows = append(rows, row)
	}

	return rows, rejected, st.sequence
}

// verify выполняет легкий контрольный COUNT(*) после успешного flush'а.
// Расхождение только репортится, автоматических повторов нет.
func (c *Controller) verify(ctx context.Context, stream string, table *schema.TableSchema) {
	d := c.builder.Dialect()
	countSQL := "SELECT COUNT(*) FROM " + d.QuoteIdentifier(table.Table)

	val, err := c.exec.QueryValue(ctx, countSQL)
	if err != nil {
		fmt.Printf("⚠️  Stream %s: verification query failed: %v\n", stream, err)
		return
	}

	count := toInt64(val)
	snap := c.stats.Snapshot(stream)

	// Для append-only и truncate-insert в таблице должно быть не меньше
	// записанного в этом запуске; для upsert точного инварианта нет
	if c.cfg.Load.Method != LoadUpsert && count < snap.RecordsInserted {
		fmt.Printf("⚠️  Stream %s: verification mismatch: table has %d rows, inserted %d\n",
			stream, count, snap.RecordsInserted)
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case []byte:
		var parsed int64
		fmt.Sscanf(string(n), "%d", &parsed)
		return parsed
	case string:
		var parsed int64
		fmt.Sscanf(n, "%d", &parsed)
		return parsed
	default:
		return 0
	}
}

// affectedRows нормализует счетчик затронутых строк: драйверы без
// поддержки RowsAffected возвращают -1, MERGE может считать
// matched+inserted - берем не меньше фактических строк statement'а
func affectedRows(affected int64, stmtRows int) int64 {
	if affected < 0 {
		return int64(stmtRows)
	}
	if affected > int64(stmtRows) {
		return int64(stmtRows)
	}
	return affected
}

// batchChecksum вычисляет xxh3 контрольную сумму батча для result log
func batchChecksum(rows [][]any) string {
	if len(rows) == 0 {
		return ""
	}
	h := xxh3.New()
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			continue
		}
		h.Write(data)
		h.Write([]byte{'\n'})
	}
	sum := h.Sum64()
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(sum)
		sum >>= 8
	}
	return hex.EncodeToString(buf)
}

// FlushAll сбрасывает буферы всех потоков (STATE событие, shutdown).
// Частичные батчи при нормальном завершении не отбрасываются.
func (c *Controller) FlushAll(ctx context.Context) error {
	var firstErr error
	for _, stream := range c.buffer.Streams() {
		if err := c.Flush(ctx, stream); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
