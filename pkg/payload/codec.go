// ABOUTME: Storage codec for payloads and single values
// ABOUTME: Round-trips through protobuf structpb with deterministic marshalling

package payload

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var marshalOpts = proto.MarshalOptions{Deterministic: true}

// Marshal encodes p for storage
func Marshal(p Payload) ([]byte, error) {
	data, err := marshalOpts.Marshal(ToProto(p))
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a payload written by Marshal
func Unmarshal(data []byte) (Payload, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return FromProto(&s), nil
}

// MarshalValue encodes a single value. The absent value encodes as null.
func MarshalValue(v Value) ([]byte, error) {
	data, err := marshalOpts.Marshal(valueToProto(v))
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return data, nil
}

// UnmarshalValue decodes a value written by MarshalValue
func UnmarshalValue(data []byte) (Value, error) {
	var pv structpb.Value
	if err := proto.Unmarshal(data, &pv); err != nil {
		return Value{}, fmt.Errorf("unmarshal value: %w", err)
	}
	return valueFromProto(&pv), nil
}

// ToProto converts p into a protobuf Struct
func ToProto(p Payload) *structpb.Struct {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(p))}
	for k, v := range p {
		if v.IsZero() {
			continue
		}
		s.Fields[k] = valueToProto(v)
	}
	return s
}

// FromProto converts a protobuf Struct into a Payload. Null fields are dropped.
func FromProto(s *structpb.Struct) Payload {
	p := make(Payload, len(s.GetFields()))
	for k, pv := range s.GetFields() {
		v := valueFromProto(pv)
		if v.IsZero() {
			continue
		}
		p[k] = v
	}
	return p
}

func valueToProto(v Value) *structpb.Value {
	switch v.kind {
	case KindString:
		return structpb.NewStringValue(v.str)
	case KindNumber:
		return structpb.NewNumberValue(v.num)
	case KindBool:
		return structpb.NewBoolValue(v.b)
	case KindList:
		items := make([]*structpb.Value, len(v.list))
		for i, item := range v.list {
			items[i] = valueToProto(item)
		}
		return structpb.NewListValue(&structpb.ListValue{Values: items})
	case KindMap:
		return structpb.NewStructValue(ToProto(v.m))
	}
	return structpb.NewNullValue()
}

func valueFromProto(pv *structpb.Value) Value {
	switch k := pv.GetKind().(type) {
	case *structpb.Value_StringValue:
		return String(k.StringValue)
	case *structpb.Value_NumberValue:
		return Number(k.NumberValue)
	case *structpb.Value_BoolValue:
		return Bool(k.BoolValue)
	case *structpb.Value_ListValue:
		items := make([]Value, 0, len(k.ListValue.GetValues()))
		for _, item := range k.ListValue.GetValues() {
			items = append(items, valueFromProto(item))
		}
		return Value{kind: KindList, list: items}
	case *structpb.Value_StructValue:
		return Value{kind: KindMap, m: FromProto(k.StructValue)}
	}
	return Value{}
}
