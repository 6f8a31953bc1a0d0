package warren

import (
	"fmt"

	"github.com/jhump/protoreflect/dynamic"
	"github.com/shhac/warren/internal/errs"
)

// DataType identifies a field's value type. Values mirror the protocol
// enum.
type DataType int32

const (
	DataTypeNone         DataType = 0
	DataTypeBool         DataType = 1
	DataTypeInt8         DataType = 2
	DataTypeInt16        DataType = 3
	DataTypeInt32        DataType = 4
	DataTypeInt64        DataType = 5
	DataTypeFloat        DataType = 10
	DataTypeDouble       DataType = 11
	DataTypeVarChar      DataType = 21
	DataTypeJSON         DataType = 23
	DataTypeBinaryVector DataType = 100
	DataTypeFloatVector  DataType = 101
)

// FieldSchema describes one field of a collection.
type FieldSchema struct {
	Name        string
	Description string
	DataType    DataType
	PrimaryKey  bool
	AutoID      bool

	// TypeParams carries type-specific settings, e.g. "dim" for vector
	// fields or "max_length" for varchar.
	TypeParams map[string]string
}

// CollectionSchema describes a collection to create or as described by
// the server.
type CollectionSchema struct {
	Name               string
	Description        string
	AutoID             bool
	EnableDynamicField bool
	Fields             []FieldSchema
}

// CollectionInfo is the server's view of an existing collection.
type CollectionInfo struct {
	Schema           CollectionSchema
	ID               int64
	Shards           int32
	CreatedTimestamp uint64
}

// encodeCollectionSchema hand-encodes the schema into the binary
// sub-message requests carry, using the descriptors resolved at
// construction. A schema override that reshapes the message types
// surfaces here as a ProtocolError.
func (c *Client) encodeCollectionSchema(s CollectionSchema) ([]byte, error) {
	const op = "CollectionSchema"
	msg := dynamic.NewMessage(c.types.CollectionSchema)
	if err := setFields(msg, op, map[string]any{
		"name":                 s.Name,
		"description":          s.Description,
		"auto_id":              s.AutoID,
		"enable_dynamic_field": s.EnableDynamicField,
	}); err != nil {
		return nil, err
	}

	fieldsFd := c.types.CollectionSchema.FindFieldByName("fields")
	paramsFd := c.types.FieldSchema.FindFieldByName("type_params")
	if fieldsFd == nil || paramsFd == nil || paramsFd.GetMessageType() == nil {
		return nil, errs.Protocol(op, fmt.Errorf("schema descriptors lack the fields/type_params shape"))
	}
	kvDesc := paramsFd.GetMessageType()

	for _, f := range s.Fields {
		fm := dynamic.NewMessage(c.types.FieldSchema)
		if err := setFields(fm, op, map[string]any{
			"name":           f.Name,
			"description":    f.Description,
			"data_type":      int32(f.DataType),
			"is_primary_key": f.PrimaryKey,
			"auto_id":        f.AutoID,
		}); err != nil {
			return nil, err
		}
		for k, v := range f.TypeParams {
			kv := dynamic.NewMessage(kvDesc)
			if err := setFields(kv, op, map[string]any{"key": k, "value": v}); err != nil {
				return nil, err
			}
			if err := fm.TryAddRepeatedField(paramsFd, kv); err != nil {
				return nil, errs.Protocol(op, err)
			}
		}
		if err := msg.TryAddRepeatedField(fieldsFd, fm); err != nil {
			return nil, errs.Protocol(op, err)
		}
	}

	encoded, err := msg.Marshal()
	if err != nil {
		return nil, errs.Protocol(op, err)
	}
	return encoded, nil
}

// setFields assigns named values on a dynamic message. An unknown field
// name or a mismatched type means the loaded schema does not match what
// the client encodes, which is a ProtocolError rather than a panic.
func setFields(msg *dynamic.Message, op string, fields map[string]any) error {
	for name, value := range fields {
		if err := msg.TrySetFieldByName(name, value); err != nil {
			return errs.Protocol(op, err)
		}
	}
	return nil
}

// decodeCollectionSchema converts a schema message from a response back
// into the public struct.
func decodeCollectionSchema(msg *dynamic.Message) CollectionSchema {
	s := CollectionSchema{
		Name:               getString(msg, "name"),
		Description:        getString(msg, "description"),
		AutoID:             getBool(msg, "auto_id"),
		EnableDynamicField: getBool(msg, "enable_dynamic_field"),
	}
	for _, v := range getRepeated(msg, "fields") {
		fm, ok := v.(*dynamic.Message)
		if !ok {
			continue
		}
		field := FieldSchema{
			Name:        getString(fm, "name"),
			Description: getString(fm, "description"),
			DataType:    DataType(getInt32(fm, "data_type")),
			PrimaryKey:  getBool(fm, "is_primary_key"),
			AutoID:      getBool(fm, "auto_id"),
			TypeParams:  decodeKeyValuePairs(getRepeated(fm, "type_params")),
		}
		s.Fields = append(s.Fields, field)
	}
	return s
}

// decodeKeyValuePairs flattens repeated KeyValuePair messages into a map.
func decodeKeyValuePairs(pairs []any) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]string, len(pairs))
	for _, v := range pairs {
		kv, ok := v.(*dynamic.Message)
		if !ok {
			continue
		}
		out[getString(kv, "key")] = getString(kv, "value")
	}
	return out
}

// Typed accessors over dynamic messages. Field names come from the
// resolved descriptors, so a lookup failure means a malformed response;
// the zero value is returned in that case.

func getString(msg *dynamic.Message, name string) string {
	if v, err := msg.TryGetFieldByName(name); err == nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getBool(msg *dynamic.Message, name string) bool {
	if v, err := msg.TryGetFieldByName(name); err == nil {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func getInt32(msg *dynamic.Message, name string) int32 {
	if v, err := msg.TryGetFieldByName(name); err == nil {
		if n, ok := v.(int32); ok {
			return n
		}
	}
	return 0
}

func getInt64(msg *dynamic.Message, name string) int64 {
	if v, err := msg.TryGetFieldByName(name); err == nil {
		if n, ok := v.(int64); ok {
			return n
		}
	}
	return 0
}

func getUint64(msg *dynamic.Message, name string) uint64 {
	if v, err := msg.TryGetFieldByName(name); err == nil {
		if n, ok := v.(uint64); ok {
			return n
		}
	}
	return 0
}

func getRepeated(msg *dynamic.Message, name string) []any {
	if v, err := msg.TryGetFieldByName(name); err == nil {
		if list, ok := v.([]any); ok {
			return list
		}
	}
	return nil
}

func getMessage(msg *dynamic.Message, name string) *dynamic.Message {
	if v, err := msg.TryGetFieldByName(name); err == nil {
		if m, ok := v.(*dynamic.Message); ok {
			return m
		}
	}
	return nil
}
