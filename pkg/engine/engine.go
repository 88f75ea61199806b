package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ruslano69/dwsink/pkg/core/message"
)

// Engine читает события входного протокола и раскладывает их по
// воркерам потоков. Внутри потока порядок событий строго сохраняется
// (один воркер на поток); между потоками загрузка идет параллельно,
// число одновременных загрузок ограничивает контроллер.
type Engine struct {
	cfg     *Config
	ctrl    *Controller
	rejects *RejectsWriter

	// stateOut - куда переотправляются STATE события после того, как
	// все предшествующие записи записаны в целевую БД (os.Stdout)
	stateOut io.Writer

	workers map[string]chan task
	wg      sync.WaitGroup

	errMu sync.Mutex
	fatal error
}

type task func(ctx context.Context)

// workerQueueDepth - глубина очереди воркера потока. Заполненная
// очередь блокирует чтение входа (backpressure на источник).
const workerQueueDepth = 256

// shutdownGrace - сколько времени дается финальному сбросу буферов
// после остановки по сигналу
const shutdownGrace = 30 * time.Second

// NewEngine создает движок загрузки поверх исполнителя БД
func NewEngine(cfg *Config, exec Executor, rejects *RejectsWriter) *Engine {
	return &Engine{
		cfg:      cfg,
		ctrl:     NewController(cfg, exec, rejects),
		rejects:  rejects,
		stateOut: os.Stdout,
		workers:  make(map[string]chan task),
	}
}

// Controller возвращает контроллер загрузки (статистика, состояния)
func (e *Engine) Controller() *Controller {
	return e.ctrl
}

// Run выполняет полный цикл загрузки: чтение входа до EOF, финальный
// сброс частичных батчей, закрытие воркеров. Некорректные строки входа
// отклоняются в карантин; ошибки ввода-вывода источника фатальны.
func (e *Engine) Run(ctx context.Context, source message.Source) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readErr := e.readLoop(ctx, source)

	// Финальный сброс: частичные батчи не отбрасываются. После
	// остановки по сигналу исходный контекст уже отменен, поэтому
	// дренаж идет на свежем контексте с льготным таймаутом.
	flushCtx := ctx
	if ctx.Err() != nil {
		var cancelFlush context.CancelFunc
		flushCtx, cancelFlush = context.WithTimeout(context.Background(), shutdownGrace)
		defer cancelFlush()
	}
	e.barrier()
	if err := e.ctrl.FlushAll(flushCtx); err != nil {
		e.recordError(err)
	}

	e.shutdown()

	if readErr != nil {
		return readErr
	}
	return e.firstError()
}

func (e *Engine) readLoop(ctx context.Context, source message.Source) error {
	for {
		msg, err := source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			var perr *message.ParseError
			if errors.As(err, &perr) {
				// Битая строка не роняет загрузку
				e.rejects.Write("", err.Error(), map[string]any{"raw": perr.Raw})
				continue
			}
			return &Error{Kind: KindProcessing, Message: "input source failed", Err: err}
		}

		if e.hasFatal() {
			return e.firstError()
		}

		switch msg.Type {
		case message.TypeSchema:
			s := msg.Schema
			e.dispatch(ctx, s.Stream, func(ctx context.Context) {
				if err := e.ctrl.HandleSchema(ctx, s); err != nil {
					e.recordError(err)
				}
			})
		case message.TypeRecord:
			stream, record := msg.Stream, msg.Record
			e.dispatch(ctx, stream, func(ctx context.Context) {
				if err := e.ctrl.HandleRecord(ctx, stream, record); err != nil {
					e.recordError(err)
				}
			})
		case message.TypeState:
			// STATE переотправляется только после того, как все
			// предшествующие записи дошли до целевой БД
			e.barrier()
			if err := e.ctrl.FlushAll(ctx); err != nil {
				e.recordError(err)
			}
			e.emitState(msg.State)
		}
	}
}

// dispatch ставит задачу в очередь воркера потока, создавая воркер
// при первом событии потока
func (e *Engine) dispatch(ctx context.Context, stream string, t task) {
	ch, ok := e.workers[stream]
	if !ok {
		ch = make(chan task, workerQueueDepth)
		e.workers[stream] = ch
		e.wg.Add(1)
		go e.worker(ctx, ch)
	}
	ch <- t
}

func (e *Engine) worker(ctx context.Context, ch chan task) {
	defer e.wg.Done()
	for t := range ch {
		t(ctx)
	}
}

// barrier дожидается, пока все воркеры обработают поставленные задачи
func (e *Engine) barrier() {
	var wg sync.WaitGroup
	for _, ch := range e.workers {
		wg.Add(1)
		ch <- func(context.Context) { wg.Done() }
	}
	wg.Wait()
}

func (e *Engine) shutdown() {
	for _, ch := range e.workers {
		close(ch)
	}
	e.wg.Wait()
}

func (e *Engine) emitState(state json.RawMessage) {
	if len(state) == 0 {
		return
	}
	fmt.Fprintf(e.stateOut, `{"type":"STATE","value":%s}`+"\n", state)
}

func (e *Engine) recordError(err error) {
	if err == nil {
		return
	}
	e.errMu.Lock()
	defer e.errMu.Unlock()
	// ProcessingError одного батча не фатален для запуска; фатальны
	// только ошибки соединения и конфигурации
	if e.fatal == nil && (IsKind(err, KindConnection) || IsKind(err, KindConfiguration)) {
		e.fatal = err
	}
	fmt.Fprintf(os.Stderr, "❌ %v\n", err)
}

func (e *Engine) hasFatal() bool {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.fatal != nil
}

func (e *Engine) firstError() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.fatal
}
