// Package resilience содержит circuit breaker для операций с целевой БД.
// Retry справляется с единичными транзиентными сбоями; breaker защищает
// от деградировавшей цели - после серии сбоев batch'и отклоняются сразу,
// без ожидания таймаутов на каждом statement'е.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen - цель недоступна, вызовы отклоняются до истечения cooldown
var ErrOpen = errors.New("circuit breaker is open")

// State - состояние breaker'а
type State int

const (
	// StateClosed - нормальная работа, вызовы проходят
	StateClosed State = iota
	// StateOpen - цель считается недоступной, вызовы отклоняются
	StateOpen
	// StateHalfOpen - пробные вызовы после cooldown
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Counts - счетчики вызовов текущего поколения
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Config - параметры breaker'а
type Config struct {
	// Enabled - выключенный breaker пропускает все вызовы
	Enabled bool

	// Name - имя для сообщений о смене состояния
	Name string

	// MaxFailures - подряд идущих сбоев до открытия
	MaxFailures uint32

	// Cooldown - время в Open перед пробными вызовами
	Cooldown time.Duration

	// SuccessThreshold - подряд идущих успехов в Half-Open для закрытия
	SuccessThreshold uint32

	// OnStateChange - уведомление о смене состояния (опционально)
	OnStateChange func(name string, from, to State)
}

// Validate проверяет конфигурацию и заполняет значения по умолчанию
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxFailures == 0 {
		return fmt.Errorf("max_failures must be > 0")
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("cooldown must be > 0")
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 1
	}
	if c.Name == "" {
		c.Name = "target"
	}
	return nil
}

// DefaultConfig - 5 сбоев подряд открывают circuit на 30 секунд,
// 2 успешных пробных вызова закрывают обратно
func DefaultConfig(name string) Config {
	return Config{
		Enabled:          true,
		Name:             name,
		MaxFailures:      5,
		Cooldown:         30 * time.Second,
		SuccessThreshold: 2,
	}
}

// Breaker - circuit breaker вокруг операций одной цели.
// Поколение инкрементируется на каждой смене состояния: результат
// вызова, стартовавшего в прошлом поколении, не влияет на счетчики.
type Breaker struct {
	config Config

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time // когда Open переходит в Half-Open
}

// New создает breaker
func New(config Config) (*Breaker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit breaker config: %w", err)
	}
	return &Breaker{config: config}, nil
}

// Do выполняет fn под защитой breaker'а.
// В Open состоянии возвращает ErrOpen не вызывая fn.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.config.Enabled {
		return fn(ctx)
	}

	generation, err := b.before()
	if err != nil {
		return err
	}

	err = fn(ctx)
	b.after(generation, err == nil)
	return err
}

// State возвращает текущее состояние
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh()
	return b.state
}

// Counts возвращает счетчики текущего поколения
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Reset принудительно закрывает circuit
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
}

func (b *Breaker) before() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refresh()
	if b.state == StateOpen {
		return b.generation, ErrOpen
	}
	return b.generation, nil
}

func (b *Breaker) after(generation uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if generation != b.generation {
		return
	}

	b.counts.Requests++
	if success {
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.config.SuccessThreshold {
			b.transition(StateClosed)
		}
		return
	}

	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0

	switch b.state {
	case StateClosed:
		if b.counts.ConsecutiveFailures >= b.config.MaxFailures {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		// Сбой пробного вызова возвращает в Open на новый cooldown
		b.transition(StateOpen)
	}
}

// refresh переводит Open в Half-Open по истечении cooldown.
// Вызывается под mu.
func (b *Breaker) refresh() {
	if b.state == StateOpen && time.Now().After(b.expiry) {
		b.transition(StateHalfOpen)
	}
}

// transition меняет состояние и сбрасывает счетчики. Вызывается под mu.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.generation++
	b.counts = Counts{}
	if to == StateOpen {
		b.expiry = time.Now().Add(b.config.Cooldown)
	}
	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(b.config.Name, from, to)
	}
}
