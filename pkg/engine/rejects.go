package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// RejectEntry - отклоненная запись в карантинном файле
type RejectEntry struct {
	Stream    string         `json:"stream"`
	Timestamp time.Time      `json:"timestamp"`
	Reason    string         `json:"reason"`
	Record    map[string]any `json:"record,omitempty"`
}

// RejectsWriter пишет отклоненные записи (ValidationError) в JSONL файл.
// Запись отклоняется целиком, остальной батч продолжается; карантин
// позволяет переобработать отклоненное после исправления источника.
type RejectsWriter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewRejectsWriter открывает карантинный файл (append).
// Пустой путь возвращает nil writer - карантин отключен.
func NewRejectsWriter(path string) (*RejectsWriter, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open rejects file: %w", err)
	}

	return &RejectsWriter{file: f, enc: json.NewEncoder(f)}, nil
}

// Write добавляет отклоненную запись. Вызов на nil writer - no-op.
func (w *RejectsWriter) Write(stream, reason string, record map[string]any) error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	entry := RejectEntry{
		Stream:    stream,
		Timestamp: time.Now().UTC(),
		Reason:    reason,
		Record:    record,
	}
	if err := w.enc.Encode(entry); err != nil {
		return fmt.Errorf("failed to write reject entry: %w", err)
	}
	return nil
}

// Close закрывает карантинный файл
func (w *RejectsWriter) Close() error {
	if w == nil {
		return nil
	}
	return w.file.Close()
}
