package schema

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Границы varchar по умолчанию (совпадают с конвенциями warehouse-таргетов)
const (
	DefaultVarcharLength = 255
	DefaultVarcharMax    = 4000

	// Числовые типы без объявленных границ
	DefaultIntegerPrecision = 38
	DefaultNumberPrecision  = 38
	DefaultNumberScale      = 10
)

// TypeOverride - явно сконфигурированное переопределение типа по суффиксу
// имени поля ("smart typing"). Применяется поверх базового маппинга.
type TypeOverride struct {
	Suffix string // суффикс исходного имени поля, например "_flag"
	Column ColumnDef
}

// TypeMapper отображает объявленный логический тип поля в колонку цели.
// Детерминированная, тотальная функция: никогда не возвращает ошибку,
// неизвестные типы деградируют в CLOB с предупреждением.
// Один маппер обслуживает SCHEMA события всех потоков параллельно,
// поэтому накопитель предупреждений защищен мьютексом.
type TypeMapper struct {
	VarcharDefault int
	VarcharMax     int
	Overrides      []TypeOverride

	mu       sync.Mutex
	warnings []string
}

// NewTypeMapper создает маппер с границами по умолчанию
func NewTypeMapper() *TypeMapper {
	return &TypeMapper{
		VarcharDefault: DefaultVarcharLength,
		VarcharMax:     DefaultVarcharMax,
	}
}

// Map возвращает определение колонки для поля.
// Имя колонки не заполняется: его выдает IdentifierPolicy при сборке таблицы.
func (m *TypeMapper) Map(field Field) ColumnDef {
	col := m.mapBase(field)

	// Явные переопределения по суффиксам применяются последними
	for _, ov := range m.Overrides {
		if strings.HasSuffix(strings.ToLower(field.Name), strings.ToLower(ov.Suffix)) {
			col.Kind = ov.Column.Kind
			col.Length = ov.Column.Length
			col.Precision = ov.Column.Precision
			col.Scale = ov.Column.Scale
			break
		}
	}

	col.Nullable = field.Nullable
	col.Source = field.Name
	return col
}

func (m *TypeMapper) mapBase(field Field) ColumnDef {
	varcharDefault := m.VarcharDefault
	if varcharDefault <= 0 {
		varcharDefault = DefaultVarcharLength
	}
	varcharMax := m.VarcharMax
	if varcharMax <= 0 {
		varcharMax = DefaultVarcharMax
	}

	t := field.Type
	switch t.Kind {
	case KindString:
		switch t.Format {
		case FormatDateTime:
			return ColumnDef{Kind: ColTimestamp}
		case FormatDate:
			return ColumnDef{Kind: ColDate}
		}
		length := t.MaxLength
		if length <= 0 {
			length = varcharDefault
		}
		// Объявленная длина за пределами лимита цели - эскалация в CLOB
		if length > varcharMax {
			return ColumnDef{Kind: ColClob}
		}
		return ColumnDef{Kind: ColVarchar, Length: length}

	case KindInteger:
		precision := t.Precision
		if precision <= 0 {
			precision = DefaultIntegerPrecision
		}
		return ColumnDef{Kind: ColNumeric, Precision: precision, Scale: 0}

	case KindNumber:
		precision := t.Precision
		scale := t.Scale
		if precision <= 0 {
			precision = DefaultNumberPrecision
			scale = DefaultNumberScale
		}
		return ColumnDef{Kind: ColNumeric, Precision: precision, Scale: scale}

	case KindBoolean:
		return ColumnDef{Kind: ColBoolean}

	case KindArray, KindObject:
		// Вложенные структуры храним как сериализованный JSON текст
		return ColumnDef{Kind: ColClob}

	default:
		// Неизвестный тип - деградация в CLOB, не ошибка
		m.warn(fmt.Sprintf("field %q: unknown type %q mapped to CLOB", field.Name, t.Kind))
		return ColumnDef{Kind: ColClob}
	}
}

func (m *TypeMapper) warn(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnings = append(m.warnings, msg)
}

// Warnings возвращает копию накопленных предупреждений маппинга
func (m *TypeMapper) Warnings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.warnings))
	copy(out, m.warnings)
	return out
}

// ParseOverrideType разбирает текстовое описание типа из конфигурации:
// VARCHAR(50), NUMBER(19,4), NUMBER(1,0), CLOB, DATE, TIMESTAMP, BOOLEAN
func ParseOverrideType(spec string) (ColumnDef, error) {
	s := strings.ToUpper(strings.TrimSpace(spec))

	name := s
	var args []int
	if open := strings.IndexByte(s, '('); open >= 0 {
		if !strings.HasSuffix(s, ")") {
			return ColumnDef{}, fmt.Errorf("malformed type spec %q", spec)
		}
		name = strings.TrimSpace(s[:open])
		for _, part := range strings.Split(s[open+1:len(s)-1], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return ColumnDef{}, fmt.Errorf("malformed type spec %q: %w", spec, err)
			}
			args = append(args, n)
		}
	}

	switch name {
	case "VARCHAR", "VARCHAR2", "TEXT":
		length := DefaultVarcharLength
		if len(args) > 0 {
			length = args[0]
		}
		return ColumnDef{Kind: ColVarchar, Length: length}, nil
	case "NUMBER", "NUMERIC", "DECIMAL":
		col := ColumnDef{Kind: ColNumeric}
		if len(args) > 0 {
			col.Precision = args[0]
		}
		if len(args) > 1 {
			col.Scale = args[1]
		}
		return col, nil
	case "CLOB":
		return ColumnDef{Kind: ColClob}, nil
	case "DATE":
		return ColumnDef{Kind: ColDate}, nil
	case "TIMESTAMP", "DATETIME":
		return ColumnDef{Kind: ColTimestamp}, nil
	case "BOOLEAN", "BOOL":
		return ColumnDef{Kind: ColBoolean}, nil
	default:
		return ColumnDef{}, fmt.Errorf("unsupported type spec %q", spec)
	}
}
