package schema

import "fmt"

// BuildTableSchema собирает TableSchema потока: маппинг типов,
// нормализация идентификаторов, разрешение коллизий и системные колонки.
//
// Инварианты:
//   - имена колонок уникальны после нормализации;
//   - системные колонки никогда не конфликтуют с пользовательскими
//     (пользовательская колонка с системным именем получает суффикс);
//   - системные колонки всегда в конце.
func BuildTableSchema(stream *StreamSchema, mapper *TypeMapper, policy *IdentifierPolicy, tablePrefix string) (*TableSchema, error) {
	if stream == nil || len(stream.Fields) == 0 {
		return nil, fmt.Errorf("stream schema has no fields")
	}

	scope := policy.NewScope()
	// Системные имена резервируются до раздачи пользовательских
	system := SystemColumns()
	for _, sc := range system {
		scope.Reserve(sc.Name)
	}

	table := &TableSchema{
		Table:     policy.Normalize(tablePrefix + stream.Stream),
		fieldCols: make(map[string]string, len(stream.Fields)),
	}

	keySet := make(map[string]bool, len(stream.KeyFields))
	for _, k := range stream.KeyFields {
		if stream.FieldByName(k) == nil {
			return nil, fmt.Errorf("key field %q is not declared in stream %q", k, stream.Stream)
		}
		keySet[k] = true
	}

	for _, field := range stream.Fields {
		col := mapper.Map(field)
		col.Name = scope.Assign(field.Name)

		if keySet[field.Name] {
			// Ключевые колонки не могут быть NULL
			col.Nullable = false
			table.Keys = append(table.Keys, col.Name)
		}

		table.Columns = append(table.Columns, col)
		table.fieldCols[field.Name] = col.Name
	}

	table.Columns = append(table.Columns, system...)
	return table, nil
}
