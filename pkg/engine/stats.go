package engine

import (
	"sync"
	"time"
)

// BatchOutcome - результат одного flush'а, передаваемый трекеру
type BatchOutcome struct {
	Records   int           // записей в батче
	Inserted  int64         // успешно записано (affected rows по чанкам)
	Failed    int           // отклонено/потеряно записей
	Duration  time.Duration // длительность flush'а
	Operation string        // insert, merge, truncate-insert
	Checksum  string        // xxh3 контрольная сумма батча
	Err       error
}

// StreamStats - накопленные счетчики одного потока.
// Снапшот только для чтения: мутирует счетчики только контроллер.
type StreamStats struct {
	Stream          string
	RecordsReceived int64
	RecordsInserted int64
	RecordsFailed   int64
	BatchCount      int64
	Duration        time.Duration
	LastBatchAt     time.Time
	LastChecksum    string
	LastSequence    int64
	Failed          bool
	FailureReason   string
}

// StatsTracker аккумулирует счетчики по потокам.
// Вместо глобального мутабельного синглтона - явный экземпляр,
// принадлежащий контроллеру; наружу отдаются только копии.
type StatsTracker struct {
	mu     sync.Mutex
	stats  map[string]*StreamStats
	order  []string
}

// NewStatsTracker создает новый трекер
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{stats: make(map[string]*StreamStats)}
}

func (t *StatsTracker) get(stream string) *StreamStats {
	s, ok := t.stats[stream]
	if !ok {
		s = &StreamStats{Stream: stream}
		t.stats[stream] = s
		t.order = append(t.order, stream)
	}
	return s
}

// RecordReceived учитывает принятую запись потока
func (t *StatsTracker) RecordReceived(stream string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.get(stream).RecordsReceived++
}

// RecordRejected учитывает отклоненную запись (ValidationError)
func (t *StatsTracker) RecordRejected(stream string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.get(stream).RecordsFailed++
}

// RecordBatch учитывает результат одного flush'а
func (t *StatsTracker) RecordBatch(stream string, outcome BatchOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.get(stream)
	s.BatchCount++
	s.RecordsInserted += outcome.Inserted
	s.RecordsFailed += int64(outcome.Failed)
	s.Duration += outcome.Duration
	s.LastBatchAt = time.Now().UTC()
	if outcome.Checksum != "" {
		s.LastChecksum = outcome.Checksum
	}
}

// SetSequence фиксирует последний успешно записанный sequence потока
func (t *StatsTracker) SetSequence(stream string, seq int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.get(stream).LastSequence = seq
}

// MarkFailed помечает поток фатально сбойным
func (t *StatsTracker) MarkFailed(stream, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.get(stream)
	s.Failed = true
	s.FailureReason = reason
}

// Snapshot возвращает копию счетчиков потока
func (t *StatsTracker) Snapshot(stream string) StreamStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.stats[stream]; ok {
		return *s
	}
	return StreamStats{Stream: stream}
}

// Snapshots возвращает копии счетчиков всех потоков в порядке появления
func (t *StatsTracker) Snapshots() []StreamStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]StreamStats, 0, len(t.order))
	for _, stream := range t.order {
		result = append(result, *t.stats[stream])
	}
	return result
}
