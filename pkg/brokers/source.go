package brokers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/ruslano69/dwsink/pkg/core/message"
)

// Source адаптирует MessageBroker к источнику событий загрузки.
// Тело одного сообщения брокера - одна или несколько строк входного
// протокола; сообщение подтверждается после того, как все его строки
// выданы потребителю.
type Source struct {
	broker MessageBroker

	// IdleTimeout - сколько ждать новых сообщений перед тем, как
	// счесть очередь исчерпанной (io.EOF). 0 = ждать бесконечно
	IdleTimeout time.Duration

	pending [][]byte // неразобранные строки текущего сообщения
	line    int
	acked   bool
}

// NewSource создает источник поверх подключенного брокера
func NewSource(broker MessageBroker, idleTimeout time.Duration) *Source {
	return &Source{
		broker:      broker,
		IdleTimeout: idleTimeout,
		acked:       true,
	}
}

// Next возвращает следующее событие входного протокола
func (s *Source) Next(ctx context.Context) (*message.Message, error) {
	for {
		// Сначала выдаем буферизованные строки текущего сообщения
		for len(s.pending) > 0 {
			line := bytes.TrimSpace(s.pending[0])
			s.pending = s.pending[1:]
			s.line++
			if len(line) == 0 {
				continue
			}
			msg, err := message.Parse(line)
			if err != nil {
				return nil, &message.ParseError{Line: s.line, Raw: string(line), Err: err}
			}
			return msg, nil
		}

		// Текущее сообщение полностью обработано - подтверждаем
		if !s.acked {
			if err := s.broker.Ack(ctx); err != nil {
				return nil, err
			}
			s.acked = true
		}

		body, err := s.receive(ctx)
		if err != nil {
			return nil, err
		}
		s.pending = bytes.Split(body, []byte("\n"))
		s.acked = false
	}
}

// receive ждет следующее сообщение брокера с учетом IdleTimeout
func (s *Source) receive(ctx context.Context) ([]byte, error) {
	deadline := time.Time{}
	if s.IdleTimeout > 0 {
		deadline = time.Now().Add(s.IdleTimeout)
	}

	for {
		rctx := ctx
		var cancel context.CancelFunc
		if !deadline.IsZero() {
			rctx, cancel = context.WithDeadline(ctx, deadline)
		}

		body, err := s.broker.Receive(rctx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return body, nil
		}

		if errors.Is(err, ErrNoMessages) {
			if !deadline.IsZero() && time.Now().After(deadline) {
				return nil, io.EOF
			}
			continue
		}
		if !deadline.IsZero() && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			// Истек IdleTimeout, а не контекст вызывающего
			return nil, io.EOF
		}
		return nil, err
	}
}

// Close подтверждает остаток и закрывает брокер
func (s *Source) Close() error {
	if !s.acked && len(s.pending) == 0 {
		// Все строки выданы, но ack не успел случиться
		_ = s.broker.Ack(context.Background())
	}
	return s.broker.Close()
}
