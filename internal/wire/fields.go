package wire

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	return appendVarintField(b, num, protowire.EncodeBool(v))
}

func appendDoubleField(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendMessageField(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// fieldReader walks the fields of one protobuf message body.
type fieldReader struct {
	msg string
	b   []byte
	num protowire.Number
	typ protowire.Type
}

func newFieldReader(msg string, b []byte) *fieldReader {
	return &fieldReader{msg: msg, b: b}
}

// Next advances to the next field tag. It returns false at the end of the body.
func (r *fieldReader) Next() (bool, error) {
	if len(r.b) == 0 {
		return false, nil
	}
	num, typ, n := protowire.ConsumeTag(r.b)
	if n < 0 {
		return false, r.fail(protowire.ParseError(n))
	}
	r.num, r.typ, r.b = num, typ, r.b[n:]
	return true, nil
}

func (r *fieldReader) Varint() (uint64, error) {
	if r.typ != protowire.VarintType {
		return 0, r.mismatch(protowire.VarintType)
	}
	v, n := protowire.ConsumeVarint(r.b)
	if n < 0 {
		return 0, r.fail(protowire.ParseError(n))
	}
	r.b = r.b[n:]
	return v, nil
}

func (r *fieldReader) Bool() (bool, error) {
	v, err := r.Varint()
	if err != nil {
		return false, err
	}
	return protowire.DecodeBool(v), nil
}

func (r *fieldReader) Double() (float64, error) {
	if r.typ != protowire.Fixed64Type {
		return 0, r.mismatch(protowire.Fixed64Type)
	}
	v, n := protowire.ConsumeFixed64(r.b)
	if n < 0 {
		return 0, r.fail(protowire.ParseError(n))
	}
	r.b = r.b[n:]
	return math.Float64frombits(v), nil
}

func (r *fieldReader) Bytes() ([]byte, error) {
	if r.typ != protowire.BytesType {
		return nil, r.mismatch(protowire.BytesType)
	}
	v, n := protowire.ConsumeBytes(r.b)
	if n < 0 {
		return nil, r.fail(protowire.ParseError(n))
	}
	r.b = r.b[n:]
	return v, nil
}

func (r *fieldReader) Text() (string, error) {
	v, err := r.Bytes()
	return string(v), err
}

// Skip discards the current field value.
func (r *fieldReader) Skip() error {
	n := protowire.ConsumeFieldValue(r.num, r.typ, r.b)
	if n < 0 {
		return r.fail(protowire.ParseError(n))
	}
	r.b = r.b[n:]
	return nil
}

func (r *fieldReader) fail(err error) error {
	return fmt.Errorf("%w: %s field %d: %v", ErrMalformed, r.msg, r.num, err)
}

func (r *fieldReader) mismatch(want protowire.Type) error {
	return fmt.Errorf("%w: %s field %d: wire type %d, want %d", ErrMalformed, r.msg, r.num, r.typ, want)
}
