// Package message реализует входной протокол движка: упорядоченный
// поток событий SCHEMA / RECORD / STATE в формате JSON Lines
// (совместим с Singer-таргетами).
package message

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ruslano69/dwsink/pkg/core/schema"
)

// Type - тип события входного потока
type Type string

const (
	TypeSchema Type = "SCHEMA"
	TypeRecord Type = "RECORD"
	TypeState  Type = "STATE"
)

// Message - одно событие входного потока.
// Для SCHEMA заполнен Schema, для RECORD - Record, для STATE - State.
type Message struct {
	Type   Type
	Stream string
	Schema *schema.StreamSchema
	Record map[string]any
	State  json.RawMessage
}

// envelope - сырой JSON конверт события
type envelope struct {
	Type          string          `json:"type"`
	Stream        string          `json:"stream"`
	Schema        json.RawMessage `json:"schema"`
	Record        map[string]any  `json:"record"`
	KeyProperties []string        `json:"key_properties"`
	Value         json.RawMessage `json:"value"`
}

// Parse разбирает одну строку входного потока в Message
func Parse(line []byte) (*Message, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	switch Type(env.Type) {
	case TypeSchema:
		if env.Stream == "" {
			return nil, fmt.Errorf("SCHEMA message without stream name")
		}
		streamSchema, err := parseStreamSchema(env.Stream, env.Schema, env.KeyProperties)
		if err != nil {
			return nil, fmt.Errorf("stream %q: %w", env.Stream, err)
		}
		return &Message{Type: TypeSchema, Stream: env.Stream, Schema: streamSchema}, nil

	case TypeRecord:
		if env.Stream == "" {
			return nil, fmt.Errorf("RECORD message without stream name")
		}
		if env.Record == nil {
			return nil, fmt.Errorf("RECORD message without record body")
		}
		return &Message{Type: TypeRecord, Stream: env.Stream, Record: env.Record}, nil

	case TypeState:
		return &Message{Type: TypeState, Stream: env.Stream, State: env.Value}, nil

	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}
}

// jsonProperty - определение одного поля в JSON Schema
type jsonProperty struct {
	Type      json.RawMessage `json:"type"`
	Format    string          `json:"format"`
	MaxLength int             `json:"maxLength"`
	Precision int             `json:"precision"`
	Scale     int             `json:"scale"`
}

// parseStreamSchema разбирает JSON Schema потока, сохраняя порядок
// объявления полей: порядок properties определяет порядок колонок.
func parseStreamSchema(stream string, raw json.RawMessage, keys []string) (*schema.StreamSchema, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("SCHEMA message without schema body")
	}

	var body struct {
		Properties json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("malformed schema: %w", err)
	}
	if len(body.Properties) == 0 {
		return nil, fmt.Errorf("schema has no properties")
	}

	names, defs, err := orderedProperties(body.Properties)
	if err != nil {
		return nil, err
	}

	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}

	result := &schema.StreamSchema{Stream: stream, KeyFields: keys}
	for i, name := range names {
		field, err := parseField(name, defs[i])
		if err != nil {
			return nil, err
		}
		field.Key = keySet[name]
		if field.Key {
			field.Nullable = false
		}
		result.Fields = append(result.Fields, field)
	}

	for _, k := range keys {
		if result.FieldByName(k) == nil {
			return nil, fmt.Errorf("key property %q is not declared in properties", k)
		}
	}

	return result, nil
}

// orderedProperties обходит JSON объект properties токенами,
// сохраняя порядок ключей (map в Go его теряет)
func orderedProperties(raw json.RawMessage) ([]string, []jsonProperty, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("malformed properties: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("properties must be an object")
	}

	var names []string
	var defs []jsonProperty
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("malformed properties: %w", err)
		}
		name, _ := keyTok.(string)

		var prop jsonProperty
		if err := dec.Decode(&prop); err != nil {
			return nil, nil, fmt.Errorf("property %q: %w", name, err)
		}

		names = append(names, name)
		defs = append(defs, prop)
	}

	return names, defs, nil
}

// parseField строит schema.Field из определения property.
// Тип может быть строкой ("integer") или списком (["integer","null"]).
func parseField(name string, prop jsonProperty) (schema.Field, error) {
	kind, nullable, err := parseTypeTag(prop.Type)
	if err != nil {
		return schema.Field{}, fmt.Errorf("property %q: %w", name, err)
	}

	ft := schema.FieldType{
		Kind:      kind,
		MaxLength: prop.MaxLength,
		Precision: prop.Precision,
		Scale:     prop.Scale,
	}

	if kind == schema.KindString {
		switch prop.Format {
		case "date-time":
			ft.Format = schema.FormatDateTime
		case "date":
			ft.Format = schema.FormatDate
		}
	}

	return schema.Field{Name: name, Type: ft, Nullable: nullable}, nil
}

func parseTypeTag(raw json.RawMessage) (schema.FieldKind, bool, error) {
	if len(raw) == 0 {
		// Отсутствующий тип трактуем как string (поведение Singer SDK)
		return schema.KindString, true, nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return schema.FieldKind(single), false, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return "", false, fmt.Errorf("malformed type tag: %s", string(raw))
	}

	nullable := false
	kind := ""
	for _, t := range list {
		if t == "null" {
			nullable = true
			continue
		}
		if kind == "" {
			kind = t
		}
	}
	if kind == "" {
		return "", false, fmt.Errorf("type tag has no concrete type: %s", string(raw))
	}
	return schema.FieldKind(kind), nullable, nil
}
