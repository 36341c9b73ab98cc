package goproc

import (
	"fmt"
	"io"
)

// inputKind tags which alternative of the Input union is populated.
type inputKind int

const (
	inputNone inputKind = iota
	inputStream
	inputBytes
)

// Input is a tagged union: either a readable stream handle, a string (stored
// as bytes so POSIX and Windows backends can treat it uniformly), or
// nothing.
type Input struct {
	kind   inputKind
	reader io.Reader
	data   []byte
}

// IsZero reports whether the Input carries neither a stream nor bytes.
func (in Input) IsZero() bool { return in.kind == inputNone }

// validateInput normalizes a caller-supplied value to an Input:
//
//   - nil                      → Input{} (none)
//   - io.Reader                → returned unchanged, wrapped
//   - string / []byte / scalar → coerced to bytes
//   - anything else            → KindInvalidArgument
func validateInput(caller string, v any) (Input, error) {
	switch t := v.(type) {
	case nil:
		return Input{kind: inputNone}, nil
	case io.Reader:
		return Input{kind: inputStream, reader: t}, nil
	case []byte:
		return Input{kind: inputBytes, data: t}, nil
	case string:
		return Input{kind: inputBytes, data: []byte(t)}, nil
	case bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return Input{kind: inputBytes, data: []byte(fmt.Sprint(t))}, nil
	default:
		return Input{}, newInvalidArgument("%s: invalid input type %T (want nil, io.Reader, []byte, string, or a scalar)", caller, v)
	}
}
