package codec

import (
	"encoding/binary"

	"github.com/jsdpag/metcore/pkg"
)

// HeaderSize is the byte size of the {bytes_used, num_arrays} slot header.
const HeaderSize = 16

// EncodeSlot serializes arrays into buf following the §4.5 byte layout and
// returns the number of bytes occupied (header included). It fails with a
// pkg.INTRN error if buf is too small — a shared-memory slot whose
// configured capacity cannot hold what the writer is publishing is an
// internal invariant violation, not a recoverable condition.
func EncodeSlot(buf []byte, arrays []Array) (int, error) {
	cur := HeaderSize
	for i := range arrays {
		var err error
		cur, err = encodeArray(buf, cur, arrays[i])
		if err != nil {
			return 0, err
		}
	}

	binary.NativeEndian.PutUint64(buf[0:8], uint64(cur))
	binary.NativeEndian.PutUint64(buf[8:16], uint64(len(arrays)))
	return cur, nil
}

// DecodeSlot deserializes the arrays currently published in buf, verifying
// that the decode consumes exactly header.bytes_used bytes (§8's testable
// property). A mismatch is a pkg.INTRN error.
func DecodeSlot(buf []byte) ([]Array, error) {
	if len(buf) < HeaderSize {
		return nil, &pkg.Error{Kind: pkg.INTRN, Op: "codec.DecodeSlot", Err: errShortHeader}
	}
	bytesUsed := binary.NativeEndian.Uint64(buf[0:8])
	numArrays := binary.NativeEndian.Uint64(buf[8:16])

	cur := HeaderSize
	arrays := make([]Array, numArrays)
	for i := range arrays {
		var a Array
		var err error
		a, cur, err = decodeArray(buf, cur)
		if err != nil {
			return nil, err
		}
		arrays[i] = a
	}

	if uint64(cur) != bytesUsed {
		return nil, &pkg.Error{Kind: pkg.INTRN, Op: "codec.DecodeSlot", Err: errCursorMismatch}
	}
	return arrays, nil
}

func encodeArray(buf []byte, cur int, a Array) (int, error) {
	cur, err := reserve(buf, cur, 2+8+8*len(a.Dims))
	if err != nil {
		return 0, err
	}

	start := cur - (2 + 8 + 8*len(a.Dims))
	buf[start] = uint8(a.Class)
	if a.Complex {
		buf[start+1] = 1
	} else {
		buf[start+1] = 0
	}
	off := start + 2
	binary.NativeEndian.PutUint64(buf[off:off+8], uint64(len(a.Dims)))
	off += 8
	for _, d := range a.Dims {
		binary.NativeEndian.PutUint64(buf[off:off+8], uint64(d))
		off += 8
	}

	switch a.Class {
	case Cell:
		for _, child := range a.Children {
			cur, err = encodeArray(buf, cur, child)
			if err != nil {
				return 0, err
			}
		}
	case Struct:
		cur, err = reserve(buf, cur, 4)
		if err != nil {
			return 0, err
		}
		binary.NativeEndian.PutUint32(buf[cur-4:cur], uint32(len(a.Fields)))
		for _, name := range a.Fields {
			nb := append([]byte(name), 0)
			cur, err = writeBytes(buf, cur, nb)
			if err != nil {
				return 0, err
			}
		}
		for i := range a.Children {
			cur, err = encodeArray(buf, cur, a.Children[i])
			if err != nil {
				return 0, err
			}
		}
	default: // a numeric class, Logical, or Char
		cur, err = writeBytes(buf, cur, a.Real)
		if err != nil {
			return 0, err
		}
		if a.Class.numeric() && a.Complex {
			cur, err = writeBytes(buf, cur, a.Imag)
			if err != nil {
				return 0, err
			}
		}
	}
	return cur, nil
}

func decodeArray(buf []byte, cur int) (Array, int, error) {
	var a Array
	cur, err := checkBounds(buf, cur, 2)
	if err != nil {
		return a, 0, err
	}
	a.Class = Class(buf[cur])
	a.Complex = buf[cur+1] != 0
	cur += 2

	cur, err = checkBounds(buf, cur, 8)
	if err != nil {
		return a, 0, err
	}
	ndims := int(binary.NativeEndian.Uint64(buf[cur : cur+8]))
	cur += 8

	cur, err = checkBounds(buf, cur, 8*ndims)
	if err != nil {
		return a, 0, err
	}
	a.Dims = make([]int, ndims)
	for i := 0; i < ndims; i++ {
		a.Dims[i] = int(binary.NativeEndian.Uint64(buf[cur : cur+8]))
		cur += 8
	}

	n := a.NumElements()
	switch a.Class {
	case Cell:
		a.Children = make([]Array, n)
		for i := 0; i < n; i++ {
			a.Children[i], cur, err = decodeArray(buf, cur)
			if err != nil {
				return a, 0, err
			}
		}
	case Struct:
		cur, err = checkBounds(buf, cur, 4)
		if err != nil {
			return a, 0, err
		}
		numFields := int(binary.NativeEndian.Uint32(buf[cur : cur+4]))
		cur += 4

		a.Fields = make([]string, numFields)
		for i := 0; i < numFields; i++ {
			name, next, err := readCString(buf, cur)
			if err != nil {
				return a, 0, err
			}
			a.Fields[i] = name
			cur = next
		}

		a.Children = make([]Array, n*numFields)
		for i := range a.Children {
			a.Children[i], cur, err = decodeArray(buf, cur)
			if err != nil {
				return a, 0, err
			}
		}
	default: // a numeric class, Logical, or Char
		size := a.Class.ElemSize()
		if size == 0 {
			size = 1
		}
		nb := n * size
		cur, err = checkBounds(buf, cur, nb)
		if err != nil {
			return a, 0, err
		}
		a.Real = make([]byte, nb)
		copy(a.Real, buf[cur:cur+nb])
		cur += nb
		if a.Class.numeric() && a.Complex {
			cur, err = checkBounds(buf, cur, nb)
			if err != nil {
				return a, 0, err
			}
			a.Imag = make([]byte, nb)
			copy(a.Imag, buf[cur:cur+nb])
			cur += nb
		}
	}
	return a, cur, nil
}

// reserve advances cur by n, failing if that would overrun buf, and returns
// the new cursor.
func reserve(buf []byte, cur, n int) (int, error) {
	if cur+n > len(buf) {
		return 0, &pkg.Error{Kind: pkg.INTRN, Op: "codec.encode", Err: errOverrun}
	}
	return cur + n, nil
}

func checkBounds(buf []byte, cur, n int) (int, error) {
	if cur+n > len(buf) {
		return 0, &pkg.Error{Kind: pkg.INTRN, Op: "codec.decode", Err: errOverrun}
	}
	return cur, nil
}

func writeBytes(buf []byte, cur int, b []byte) (int, error) {
	next, err := reserve(buf, cur, len(b))
	if err != nil {
		return 0, err
	}
	copy(buf[cur:next], b)
	return next, nil
}

func readCString(buf []byte, cur int) (string, int, error) {
	for i := cur; i < len(buf); i++ {
		if buf[i] == 0 {
			return string(buf[cur:i]), i + 1, nil
		}
	}
	return "", 0, &pkg.Error{Kind: pkg.INTRN, Op: "codec.decode", Err: errUnterminatedField}
}
