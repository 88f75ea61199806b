package engine

import (
	"sync"
	"time"

	"github.com/ruslano69/dwsink/pkg/core/schema"
)

// RecordBatch - упорядоченный срез записей одного потока, привязанный
// к снапшоту схемы. После Drain принадлежит вызывающему и после
// выполнения flush'а отбрасывается.
type RecordBatch struct {
	Stream    string
	Schema    *schema.StreamSchema
	Table     *schema.TableSchema
	Records   []map[string]any
	DrainedAt time.Time
}

// BatchBuffer аккумулирует записи по потокам до порога flush'а.
// Drain атомарен относительно Add для того же потока: запись,
// добавленная после начала Drain, в срез не попадает, буфер после
// Drain пуст.
type BatchBuffer struct {
	mu        sync.Mutex
	batchSize int
	pending   map[string][]map[string]any
	schemas   map[string]*schema.StreamSchema
	tables    map[string]*schema.TableSchema
}

// NewBatchBuffer создает буфер с порогом batchSize записей на поток
func NewBatchBuffer(batchSize int) *BatchBuffer {
	return &BatchBuffer{
		batchSize: batchSize,
		pending:   make(map[string][]map[string]any),
		schemas:   make(map[string]*schema.StreamSchema),
		tables:    make(map[string]*schema.TableSchema),
	}
}

// BindSchema привязывает снапшот схемы потока к последующим записям
func (b *BatchBuffer) BindSchema(stream string, s *schema.StreamSchema, t *schema.TableSchema) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.schemas[stream] = s
	b.tables[stream] = t
}

// Add добавляет запись в буфер потока
func (b *BatchBuffer) Add(stream string, record map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[stream] = append(b.pending[stream], record)
}

// Len возвращает количество накопленных записей потока
func (b *BatchBuffer) Len(stream string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending[stream])
}

// ShouldFlush сообщает, достигнут ли порог flush'а для потока
func (b *BatchBuffer) ShouldFlush(stream string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending[stream]) >= b.batchSize
}

// Drain атомарно забирает накопленные записи потока.
// Возвращает nil если буфер пуст.
func (b *BatchBuffer) Drain(stream string) *RecordBatch {
	b.mu.Lock()
	defer b.mu.Unlock()

	records := b.pending[stream]
	if len(records) == 0 {
		return nil
	}
	delete(b.pending, stream)

	return &RecordBatch{
		Stream:    stream,
		Schema:    b.schemas[stream],
		Table:     b.tables[stream],
		Records:   records,
		DrainedAt: time.Now().UTC(),
	}
}

// Streams возвращает потоки с непустыми буферами (для финального drain)
func (b *BatchBuffer) Streams() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	streams := make([]string, 0, len(b.pending))
	for stream, records := range b.pending {
		if len(records) > 0 {
			streams = append(streams, stream)
		}
	}
	return streams
}
