// Package codec implements the shared-memory slot byte layout (§4.5): a
// recursive serializer/deserializer for typed nested arrays, independent of
// any host runtime. It encodes the tagged variant design notes §9
// describes directly: Array = Numeric | Logical | Char | Cell | Struct.
package codec

// Class is the wire class_id tag. Numeric subtypes carry their own tag
// (rather than a single "numeric" tag plus a separate element-type field)
// because the element byte size must be recoverable from class_id alone —
// the byte layout has no other field for it.
type Class uint8

// Allowed classes. Sparse arrays, function handles, and opaque classes are
// disallowed by §4.5 and have no representation here.
const (
	Int8 Class = iota
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	Logical
	Char
	Cell
	Struct
)

func (c Class) String() string {
	switch c {
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Logical:
		return "logical"
	case Char:
		return "char"
	case Cell:
		return "cell"
	case Struct:
		return "struct"
	default:
		return "unknown"
	}
}

// ElemSize returns the byte size of one element of class c, or 0 for Cell
// and Struct (which have no flat element representation).
func (c Class) ElemSize() int {
	switch c {
	case Int8, Uint8, Logical, Char:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

// numeric reports whether c is one of the ten numeric classes (i.e. may
// carry a complex-flag payload), as opposed to Logical/Char/Cell/Struct.
func (c Class) numeric() bool {
	return c <= Float64
}

// Array is a decoded (or to-be-encoded) shared-memory array node. Which
// fields are meaningful depends on Class:
//
//   - a numeric class: Dims, Real, and Imag if Complex.
//   - Logical, Char: Dims and Real (one byte per element); Complex unused.
//   - Cell: Dims and Children, len(Children) == product(Dims).
//   - Struct: Dims, Fields, and Children holding
//     product(Dims)*len(Fields) nested arrays in row-major field-inner
//     order.
type Array struct {
	Class    Class
	Complex  bool
	Dims     []int
	Real     []byte
	Imag     []byte
	Fields   []string
	Children []Array
}

// NumElements returns the product of Dims (1 for a 0-dim scalar, 0 if any
// dimension is zero).
func (a Array) NumElements() int {
	n := 1
	for _, d := range a.Dims {
		n *= d
	}
	return n
}

// Numeric constructs a real (non-complex) numeric array of the given class.
func Numeric(class Class, dims []int, real []byte) Array {
	return Array{Class: class, Dims: dims, Real: real}
}

// NumericComplex constructs a complex numeric array of the given class.
func NumericComplex(class Class, dims []int, real, imag []byte) Array {
	return Array{Class: class, Complex: true, Dims: dims, Real: real, Imag: imag}
}

// NewLogical constructs a logical (boolean) array, one byte per element.
func NewLogical(dims []int, bytes []byte) Array {
	return Array{Class: Logical, Dims: dims, Real: bytes}
}

// NewChar constructs a character array, one byte per element.
func NewChar(dims []int, bytes []byte) Array {
	return Array{Class: Char, Dims: dims, Real: bytes}
}

// NewCell constructs a cell array of nested arrays.
func NewCell(dims []int, children []Array) Array {
	return Array{Class: Cell, Dims: dims, Children: children}
}

// NewStruct constructs a struct array; children must hold
// product(dims)*len(fields) nested arrays in row-major field-inner order.
func NewStruct(dims []int, fields []string, children []Array) Array {
	return Array{Class: Struct, Dims: dims, Fields: fields, Children: children}
}
