package schema

import "fmt"

// FieldKind представляет объявленный логический тип поля источника
type FieldKind string

// Поддерживаемые логические типы (JSON Schema style)
const (
	KindString  FieldKind = "string"
	KindInteger FieldKind = "integer"
	KindNumber  FieldKind = "number"
	KindBoolean FieldKind = "boolean"
	KindArray   FieldKind = "array"
	KindObject  FieldKind = "object"
)

// Format - уточнение формата для строковых полей
type Format string

const (
	FormatNone     Format = ""
	FormatDate     Format = "date"
	FormatDateTime Format = "date-time"
)

// FieldType - тип поля из схемы источника.
// Неизменяемый после включения в снапшот схемы.
type FieldType struct {
	Kind      FieldKind
	Format    Format
	MaxLength int // объявленная максимальная длина (0 = не задана)
	Precision int // точность для числовых типов (0 = не задана)
	Scale     int // масштаб для числовых типов
}

// Field - поле схемы потока
type Field struct {
	Name     string
	Type     FieldType
	Key      bool // входит в natural/primary key
	Nullable bool
}

// StreamSchema - схема одного потока записей.
// Порядок полей фиксирован и определяет порядок колонок в таблице.
type StreamSchema struct {
	Stream    string
	Fields    []Field
	KeyFields []string
}

// FieldByName возвращает поле по имени (nil если не найдено)
func (s *StreamSchema) FieldByName(name string) *Field {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// ColumnKind - обобщенный тип колонки целевой БД.
// Конкретное имя типа (VARCHAR2, NVARCHAR, TEXT, ...) выбирает диалект.
type ColumnKind string

const (
	ColVarchar   ColumnKind = "VARCHAR"   // ограниченный текст, Length
	ColClob      ColumnKind = "CLOB"      // неограниченный текст / сериализованный JSON
	ColNumeric   ColumnKind = "NUMERIC"   // число, Precision/Scale
	ColBoolean   ColumnKind = "BOOLEAN"   // логический (диалект решает: BOOLEAN/BIT/NUMBER(1))
	ColDate      ColumnKind = "DATE"      // дата без времени
	ColTimestamp ColumnKind = "TIMESTAMP" // дата и время
)

// ColumnDef - разрешенное целевое представление поля.
// Создается TypeMapper'ом и не мутируется: изменение схемы порождает
// новые ColumnDef, а не правки существующих.
type ColumnDef struct {
	Name      string // имя колонки после нормализации идентификатора
	Kind      ColumnKind
	Length    int
	Precision int
	Scale     int
	Nullable  bool
	Source    string // исходное имя поля ("" для системных колонок)
}

// String возвращает обобщенное описание типа колонки (для диагностики)
func (c ColumnDef) String() string {
	switch c.Kind {
	case ColVarchar:
		return fmt.Sprintf("%s(%d)", c.Kind, c.Length)
	case ColNumeric:
		if c.Precision > 0 {
			return fmt.Sprintf("%s(%d,%d)", c.Kind, c.Precision, c.Scale)
		}
		return string(c.Kind)
	default:
		return string(c.Kind)
	}
}

// Системные метаданные-колонки, добавляемые к каждой целевой таблице.
// Имена унаследованы от Singer SDC конвенции.
const (
	SysExtractedAt = "_SDC_EXTRACTED_AT"
	SysEntity      = "_SDC_ENTITY"
	SysSequence    = "_SDC_SEQUENCE"
	SysBatchedAt   = "_SDC_BATCHED_AT"
)

// SystemColumns возвращает системные колонки в фиксированном порядке.
// Всегда добавляются последними в TableSchema.
func SystemColumns() []ColumnDef {
	return []ColumnDef{
		{Name: SysExtractedAt, Kind: ColTimestamp, Nullable: false},
		{Name: SysEntity, Kind: ColVarchar, Length: 255, Nullable: false},
		{Name: SysSequence, Kind: ColNumeric, Precision: 38, Scale: 0, Nullable: false},
		{Name: SysBatchedAt, Kind: ColTimestamp, Nullable: false},
	}
}

// IsSystemColumn проверяет, является ли имя именем системной колонки
func IsSystemColumn(name string) bool {
	switch name {
	case SysExtractedAt, SysEntity, SysSequence, SysBatchedAt:
		return true
	default:
		return false
	}
}

// TableSchema - упорядоченный набор колонок целевой таблицы.
// Пользовательские колонки идут в порядке полей схемы источника,
// системные колонки всегда в конце. Имена колонок уникальны.
type TableSchema struct {
	Table   string
	Columns []ColumnDef // включая системные (последними)
	Keys    []string    // нормализованные имена ключевых колонок

	// fieldCols - соответствие имя поля -> имя колонки
	fieldCols map[string]string
}

// ColumnForField возвращает имя колонки для поля источника
func (t *TableSchema) ColumnForField(field string) (string, bool) {
	col, ok := t.fieldCols[field]
	return col, ok
}

// UserColumns возвращает только пользовательские колонки (без системных)
func (t *TableSchema) UserColumns() []ColumnDef {
	user := make([]ColumnDef, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !IsSystemColumn(c.Name) {
			user = append(user, c)
		}
	}
	return user
}

// ColumnNames возвращает имена всех колонок в порядке таблицы
func (t *TableSchema) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}
