package engine

import (
	"errors"
	"fmt"
)

// Kind - класс ошибки на границе движка.
// Закрытый набор вместо иерархии исключений: ошибки матчатся
// исчерпывающим switch, а не порядком catch-блоков.
type Kind int

const (
	// KindConfiguration - некорректная конфигурация (фатально при старте)
	KindConfiguration Kind = iota

	// KindSchema - несовместимая эволюция схемы, отсутствующий upsert-ключ
	// (фатально для затронутого потока)
	KindSchema

	// KindConnection - транзиентный сетевой сбой, всплывший после
	// исчерпания retry на границе Executor
	KindConnection

	// KindProcessing - сбой выполнения statement (батч помечен failed,
	// процесс продолжается)
	KindProcessing

	// KindValidation - некорректная форма записи (отклоняется запись,
	// батч продолжается)
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindSchema:
		return "schema"
	case KindConnection:
		return "connection"
	case KindProcessing:
		return "processing"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error - структурированная ошибка движка.
// Для фатальных состояний потока несет контекст, достаточный для
// возобновления обработки: имя потока, последний успешный sequence,
// количество незаписанных записей.
type Error struct {
	Kind    Kind
	Stream  string
	Message string

	// LastSequence - последний успешно записанный номер записи потока
	LastSequence int64

	// PendingRecords - записи, оставшиеся в буфере на момент сбоя
	PendingRecords int

	// ChunksCommitted - сколько чанков flush успело закоммититься
	// до сбоя (для диагностики partial failure)
	ChunksCommitted int

	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error", e.Kind)
	if e.Stream != "" {
		msg += fmt.Sprintf(" (stream=%s, last_sequence=%d, pending=%d)",
			e.Stream, e.LastSequence, e.PendingRecords)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf возвращает класс ошибки движка (ok=false для посторонних ошибок)
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind проверяет принадлежность ошибки классу
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
