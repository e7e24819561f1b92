// Package onnxgraph reads and writes the metadata property list of the
// graph-description container. The container is an ONNX-style protobuf
// model message; metadata lives in its metadata_props entries (field 14,
// key/value string pairs). Everything else — graph, weights, opset imports,
// fields this build does not know about — is copied through verbatim, so
// the codec works at the protobuf wire level instead of depending on
// generated bindings.
package onnxgraph

import (
	"fmt"

	"github.com/example/go-aivm/internal/aivm"
)

// Protobuf wire types.
const (
	wireVarint = 0
	wire64Bit  = 1
	wireBytes  = 2
	wire32Bit  = 5
)

// metadata_props field number in the model message.
const fieldMetadataProps = 14

// field is one top-level field of the model message. raw is the verbatim
// slice of the input covering tag and value; val is the payload for
// length-delimited fields.
type field struct {
	num  int
	wire int
	raw  []byte
	val  []byte
}

// scanFields splits the model message into its top-level fields. Any
// malformed tag, varint or length yields FormatError.
func scanFields(data []byte) ([]field, error) {
	var fields []field

	pos := 0
	for pos < len(data) {
		start := pos

		tag, n, err := readVarint(data, pos)
		if err != nil {
			return nil, err
		}

		pos += n

		num := int(tag >> 3)
		wire := int(tag & 0x7)

		if num == 0 {
			return nil, formatErr(fmt.Sprintf("invalid field number at offset %d", start), nil)
		}

		var val []byte

		switch wire {
		case wireVarint:
			_, n, err := readVarint(data, pos)
			if err != nil {
				return nil, err
			}

			pos += n
		case wire64Bit:
			if pos+8 > len(data) {
				return nil, formatErr("truncated fixed64 field", nil)
			}

			pos += 8
		case wireBytes:
			length, n, err := readVarint(data, pos)
			if err != nil {
				return nil, err
			}

			pos += n
			if length > uint64(len(data)-pos) {
				return nil, formatErr(fmt.Sprintf("field %d length %d exceeds remaining %d bytes", num, length, len(data)-pos), nil)
			}

			val = data[pos : pos+int(length)]
			pos += int(length)
		case wire32Bit:
			if pos+4 > len(data) {
				return nil, formatErr("truncated fixed32 field", nil)
			}

			pos += 4
		default:
			return nil, formatErr(fmt.Sprintf("unsupported wire type %d for field %d", wire, num), nil)
		}

		fields = append(fields, field{
			num:  num,
			wire: wire,
			raw:  data[start:pos],
			val:  val,
		})
	}

	return fields, nil
}

func readVarint(data []byte, pos int) (uint64, int, error) {
	var v uint64

	for i := 0; i < 10; i++ {
		if pos+i >= len(data) {
			return 0, 0, formatErr("truncated varint", nil)
		}

		b := data[pos+i]
		v |= uint64(b&0x7f) << (7 * i)

		if b < 0x80 {
			return v, i + 1, nil
		}
	}

	return 0, 0, formatErr("varint longer than 10 bytes", nil)
}

func appendVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}

	return append(buf, byte(v))
}

func appendBytesField(buf []byte, num int, payload []byte) []byte {
	buf = appendVarint(buf, uint64(num)<<3|wireBytes)
	buf = appendVarint(buf, uint64(len(payload)))

	return append(buf, payload...)
}

func formatErr(msg string, err error) error {
	return &aivm.FormatError{Container: "onnx", Msg: msg, Err: err}
}
