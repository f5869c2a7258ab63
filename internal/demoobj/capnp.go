package demoobj

import "capnproto.org/go/capnp/v3"

// BlobMessage is a hand-written wrapper over a two-pointer capnp struct,
// the same shape capnpc-go would generate for:
//
//	struct BlobMessage {
//	  tag  @0 :Text;
//	  data @1 :Data;
//	}
//
// Written by hand rather than generated so the demo has no build-time
// schema compiler dependency; the accessors below call the same
// capnp.Struct primitives generated code would.
type BlobMessage capnp.Struct

// NewRootBlobMessage allocates a fresh BlobMessage as the root of seg.
func NewRootBlobMessage(seg *capnp.Segment) (BlobMessage, error) {
	st, err := capnp.NewRootStruct(seg, capnp.ObjectSize{PointerCount: 2})
	return BlobMessage(st), err
}

// ReadRootBlobMessage reads msg's root pointer as a BlobMessage.
func ReadRootBlobMessage(msg *capnp.Message) (BlobMessage, error) {
	root, err := msg.Root()
	if err != nil {
		return BlobMessage{}, err
	}
	return BlobMessage(root.Struct()), nil
}

// Tag returns the tag text field.
func (m BlobMessage) Tag() (string, error) {
	return capnp.Struct(m).Text(0)
}

// SetTag sets the tag text field.
func (m BlobMessage) SetTag(v string) error {
	return capnp.Struct(m).SetText(0, v)
}

// Data returns the data blob field.
func (m BlobMessage) Data() ([]byte, error) {
	p, err := capnp.Struct(m).Ptr(1)
	if err != nil {
		return nil, err
	}
	return p.Data(), nil
}

// SetData sets the data blob field.
func (m BlobMessage) SetData(v []byte) error {
	return capnp.Struct(m).SetData(1, v)
}

// CapnpSerializer serializes a (tag, data) pair through BlobMessage.
// Only its own round-trip test exercises it; cmd/fragdemo uses
// ProtoSerializer.
type CapnpSerializer struct{}

// Marshal builds a BlobMessage and returns its packed bytes.
func (CapnpSerializer) Marshal(tag string, data []byte) ([]byte, error) {
	msg, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, err
	}
	m, err := NewRootBlobMessage(seg)
	if err != nil {
		return nil, err
	}
	if err := m.SetTag(tag); err != nil {
		return nil, err
	}
	if err := m.SetData(data); err != nil {
		return nil, err
	}
	return msg.Marshal()
}

// Unmarshal reads a BlobMessage back out of raw bytes.
func (CapnpSerializer) Unmarshal(raw []byte) (tag string, data []byte, err error) {
	msg, err := capnp.Unmarshal(raw)
	if err != nil {
		return "", nil, err
	}
	m, err := ReadRootBlobMessage(msg)
	if err != nil {
		return "", nil, err
	}
	if tag, err = m.Tag(); err != nil {
		return "", nil, err
	}
	if data, err = m.Data(); err != nil {
		return "", nil, err
	}
	return tag, data, nil
}
