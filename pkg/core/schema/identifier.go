package schema

import (
	"fmt"
	"strings"
)

// DefaultMaxIdentifierLength - максимальная длина идентификатора цели.
// 30 символов - жесткий лимит старых warehouse-БД, безопасен для всех.
const DefaultMaxIdentifierLength = 30

// IdentifierPolicy нормализует имена потоков и полей в валидные
// идентификаторы целевой БД: верхний регистр, замена разделителей
// на подчеркивание, усечение до MaxLength.
//
// Normalize идемпотентна: Normalize(Normalize(x)) == Normalize(x).
// Разрешение коллизий выполняет Scope (стабильные суффиксы _2, _3...).
type IdentifierPolicy struct {
	MaxLength int
}

// NewIdentifierPolicy создает политику с лимитом длины по умолчанию
func NewIdentifierPolicy() *IdentifierPolicy {
	return &IdentifierPolicy{MaxLength: DefaultMaxIdentifierLength}
}

// Normalize приводит имя к валидному идентификатору цели
func (p *IdentifierPolicy) Normalize(raw string) string {
	maxLen := p.MaxLength
	if maxLen <= 0 {
		maxLen = DefaultMaxIdentifierLength
	}

	var b strings.Builder
	b.Grow(len(raw))

	for _, r := range strings.ToUpper(raw) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			// Все разделители и не-ASCII символы схлопываются в "_"
			b.WriteRune('_')
		}
	}

	name := b.String()
	if name == "" {
		name = "COL"
	}

	// Идентификатор не может начинаться с цифры
	if name[0] >= '0' && name[0] <= '9' {
		name = "C_" + name
	}

	if len(name) > maxLen {
		name = name[:maxLen]
	}

	return name
}

// Scope разрешает коллизии нормализованных имен внутри одной таблицы.
// Два разных исходных имени никогда не получат один идентификатор:
// повторное имя получает стабильный суффикс _2, _3 и т.д.
type Scope struct {
	policy   *IdentifierPolicy
	used     map[string]bool
	assigned map[string]string // исходное имя -> выданный идентификатор
}

// NewScope создает новый scope для одной таблицы
func (p *IdentifierPolicy) NewScope() *Scope {
	return &Scope{
		policy:   p,
		used:     make(map[string]bool),
		assigned: make(map[string]string),
	}
}

// Reserve помечает имя занятым (для системных колонок),
// чтобы пользовательские колонки на него не претендовали
func (s *Scope) Reserve(name string) {
	s.used[name] = true
}

// Assign возвращает уникальный идентификатор для исходного имени.
// Повторный вызов с тем же исходным именем возвращает тот же результат.
func (s *Scope) Assign(raw string) string {
	if got, ok := s.assigned[raw]; ok {
		return got
	}

	base := s.policy.Normalize(raw)
	name := base

	// Коллизия: добавляем стабильный числовой суффикс, освобождая
	// место усечением базы при необходимости
	for i := 2; s.used[name]; i++ {
		suffix := fmt.Sprintf("_%d", i)
		maxLen := s.policy.MaxLength
		if maxLen <= 0 {
			maxLen = DefaultMaxIdentifierLength
		}
		trimmed := base
		if len(trimmed)+len(suffix) > maxLen {
			trimmed = trimmed[:maxLen-len(suffix)]
		}
		name = trimmed + suffix
	}

	s.used[name] = true
	s.assigned[raw] = name
	return name
}
