package schema

import "fmt"

// CompatibleChange проверяет, совместима ли замена типа существующего поля.
// Допускаются только расширяющие изменения, не требующие пересоздания
// колонки: рост длины строки, integer -> number, рост precision.
// Все остальное - несовместимый retype (SchemaError на уровне движка).
func CompatibleChange(old, new FieldType) bool {
	if old.Kind == new.Kind && old.Format == new.Format {
		// Сужение объявленной длины/точности не ломает колонку:
		// в таблице уже более широкий тип
		return true
	}

	// integer -> number: NUMERIC колонка вмещает оба
	if old.Kind == KindInteger && new.Kind == KindNumber {
		return true
	}

	// Смена формата строки (например string -> string date-time)
	// меняет тип колонки - несовместимо
	return false
}

// DiffFields возвращает поля, добавленные в новой схеме, и список
// несовместимо измененных полей (по имени).
func DiffFields(old, new *StreamSchema) (added []Field, incompatible []string) {
	for _, nf := range new.Fields {
		of := old.FieldByName(nf.Name)
		if of == nil {
			added = append(added, nf)
			continue
		}
		if !CompatibleChange(of.Type, nf.Type) {
			incompatible = append(incompatible, nf.Name)
		}
	}
	return added, incompatible
}

// ValidateRecord проверяет форму записи против схемы потока:
// все поля записи должны быть объявлены в схеме.
// Отсутствующие в записи поля допустимы (NULL).
func ValidateRecord(record map[string]any, stream *StreamSchema) error {
	for name := range record {
		if stream.FieldByName(name) == nil {
			return fmt.Errorf("record field %q is not declared in stream %q", name, stream.Stream)
		}
	}
	return nil
}
