// Package demoobj provides two small, real (not hand-rolled) serializer
// implementations, neither of which invents a custom wire format of its
// own. cmd/fragdemo runs ProtoSerializer through a full send-to-receive
// round trip; each serializer also has its own round-trip test.
package demoobj

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ProtoSerializer serializes a map of arbitrary JSON-ish values with
// protobuf's well-known Struct type. It needs no .proto file or
// generated code: structpb.Struct is already compiled into the
// protobuf-go module.
type ProtoSerializer struct{}

// Serialize turns fields into a protobuf-encoded Struct.
func (ProtoSerializer) Serialize(fields map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// Deserialize implements engine.Deserializer's shape, returning a
// map[string]any reconstructed from raw.
func (ProtoSerializer) Deserialize(raw []byte) (any, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(raw, s); err != nil {
		return nil, err
	}
	return s.AsMap(), nil
}
