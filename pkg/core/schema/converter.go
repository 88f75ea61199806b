package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Converter приводит десериализованные JSON-значения записи к типам,
// пригодным для передачи драйверу БД как bind-параметры.
// Значения никогда не конкатенируются в SQL текст.
type Converter struct{}

// NewConverter создает новый конвертер значений
func NewConverter() *Converter {
	return &Converter{}
}

// BindValue приводит значение поля к SQL bind-значению.
// nil остается nil (NULL). Ошибка означает некорректную форму записи
// (ValidationError на уровне движка - запись отклоняется целиком).
func (c *Converter) BindValue(value any, field Field) (any, error) {
	if value == nil {
		if !field.Nullable && field.Key {
			return nil, fmt.Errorf("field %q: key field is null", field.Name)
		}
		return nil, nil
	}

	switch field.Type.Kind {
	case KindString:
		return c.stringValue(value, field)
	case KindInteger:
		return c.integerValue(value, field)
	case KindNumber:
		return c.numberValue(value, field)
	case KindBoolean:
		return c.booleanValue(value, field)
	case KindArray, KindObject:
		// Вложенные структуры сериализуются в компактный JSON текст
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("field %q: cannot serialize: %w", field.Name, err)
		}
		return string(data), nil
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("field %q: cannot serialize: %w", field.Name, err)
		}
		return string(data), nil
	}
}

func (c *Converter) stringValue(value any, field Field) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("field %q: expected string, got %T", field.Name, value)
	}

	switch field.Type.Format {
	case FormatDateTime:
		t, err := parseDateTime(s)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name, err)
		}
		return t, nil
	case FormatDate:
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, fmt.Errorf("field %q: invalid date %q", field.Name, s)
		}
		return t, nil
	}
	return s, nil
}

func (c *Converter) integerValue(value any, field Field) (any, error) {
	switch v := value.(type) {
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("field %q: %v is not an integer", field.Name, v)
		}
		return int64(v), nil
	case int64:
		return v, nil
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name, err)
		}
		return i, nil
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field %q: invalid integer %q", field.Name, v)
		}
		return i, nil
	default:
		return nil, fmt.Errorf("field %q: expected integer, got %T", field.Name, value)
	}
}

func (c *Converter) numberValue(value any, field Field) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name, err)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("field %q: invalid number %q", field.Name, v)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("field %q: expected number, got %T", field.Name, value)
	}
}

func (c *Converter) booleanValue(value any, field Field) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch v {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return nil, fmt.Errorf("field %q: invalid boolean %q", field.Name, v)
	default:
		return nil, fmt.Errorf("field %q: expected boolean, got %T", field.Name, value)
	}
}

// parseDateTime принимает RFC3339 и распространенные варианты без таймзоны
func parseDateTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date-time %q", s)
}
