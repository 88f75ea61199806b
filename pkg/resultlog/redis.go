package resultlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ruslano69/dwsink/pkg/engine"
)

// StreamResult - итог загрузки одного потока
type StreamResult struct {
	Stream          string `json:"stream"`
	Table           string `json:"table,omitempty"`
	RecordsReceived int64  `json:"records_received"`
	RecordsInserted int64  `json:"records_inserted"`
	RecordsFailed   int64  `json:"records_failed"`
	BatchCount      int64  `json:"batch_count"`
	LastChecksum    string `json:"last_checksum,omitempty"`
	LastSequence    int64  `json:"last_sequence"`
	Failed          bool   `json:"failed"`
	FailureReason   string `json:"failure_reason,omitempty"`
}

// RunResult представляет итог запуска загрузки, публикуемый в Redis
// после завершения (успешного или с ошибкой).
//
// Redis-ключи:
//
//	SET  dwsink:run:<name>:state  <JSON>  EX <ttl>  — для GET-запросов оркестратора
//	PUB  dwsink:run:<name>                          — для event-driven маршрутизации
type RunResult struct {
	RunName    string         `json:"run_name"`
	ResultName string         `json:"result_name"`
	Status     string         `json:"status"` // "success" | "failed"
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	DurationMs int64          `json:"duration_ms"`
	Streams    []StreamResult `json:"streams"`
	Error      *string        `json:"error,omitempty"`
}

// RedisPublisher публикует результат запуска загрузки в Redis
type RedisPublisher struct {
	client *redis.Client
	config engine.ResultLogConfig
}

// NewRedisPublisher создает новый Redis publisher на основе конфигурации
func NewRedisPublisher(config engine.ResultLogConfig) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})
	return &RedisPublisher{client: client, config: config}
}

// Publish публикует результат запуска:
//   - SET dwsink:run:<name>:state <JSON> EX <ttl>  → для опроса (polling)
//   - PUBLISH dwsink:run:<name> <JSON>             → для подписки (pub/sub)
//
// Вызывается независимо от результата выполнения (success или failed).
// execErr == nil означает успешное выполнение.
func (p *RedisPublisher) Publish(ctx context.Context, runName string, startedAt time.Time, stats []engine.StreamStats, execErr error) error {
	finishedAt := time.Now()
	result := RunResult{
		RunName:    runName,
		ResultName: p.config.Name,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		DurationMs: finishedAt.Sub(startedAt).Milliseconds(),
	}

	for _, s := range stats {
		result.Streams = append(result.Streams, StreamResult{
			Stream:          s.Stream,
			RecordsReceived: s.RecordsReceived,
			RecordsInserted: s.RecordsInserted,
			RecordsFailed:   s.RecordsFailed,
			BatchCount:      s.BatchCount,
			LastChecksum:    s.LastChecksum,
			LastSequence:    s.LastSequence,
			Failed:          s.Failed,
			FailureReason:   s.FailureReason,
		})
	}

	if execErr != nil {
		result.Status = "failed"
		errStr := execErr.Error()
		result.Error = &errStr
	} else {
		result.Status = "success"
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	stateKey := fmt.Sprintf("dwsink:run:%s:state", p.config.Name)
	eventChannel := fmt.Sprintf("dwsink:run:%s", p.config.Name)
	ttl := time.Duration(p.config.TTL) * time.Second

	// SET ключ с TTL — оркестратор может GET для получения последнего состояния
	if err := p.client.Set(ctx, stateKey, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}

	// PUBLISH событие — оркестратор может SUBSCRIBE для event-driven маршрутизации
	if err := p.client.Publish(ctx, eventChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis PUBLISH failed: %w", err)
	}

	return nil
}

// Close закрывает соединение с Redis
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
