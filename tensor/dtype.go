package tensor

// DType enumerates the tensor element types named in spec.md §3.
type DType int32

const (
	Unknown DType = iota
	Bool
	U8
	I8
	U16
	I16
	U32
	I32
	U64
	I64
	F16
	F32
	F64
	String
	Bytes
)

// itemSizes gives the byte width per element for fixed-size dtypes.
// String and Bytes have no fixed item size: they carry a single
// bytes_val element instead of a packed buffer (spec.md §3, §4.D).
var itemSizes = map[DType]int64{
	Bool: 1, U8: 1, I8: 1,
	U16: 2, I16: 2, F16: 2,
	U32: 4, I32: 4, F32: 4,
	U64: 8, I64: 8, F64: 8,
}

// ItemSize returns the per-element byte width, or 0 for String/Bytes/Unknown.
func (d DType) ItemSize() int64 { return itemSizes[d] }

// IsVariableLength reports whether d is carried as a single bytes_val
// element rather than a packed numeric buffer.
func (d DType) IsVariableLength() bool { return d == String || d == Bytes }

func (d DType) String() string {
	switch d {
	case Bool:
		return "bool"
	case U8:
		return "u8"
	case I8:
		return "i8"
	case U16:
		return "u16"
	case I16:
		return "i16"
	case U32:
		return "u32"
	case I32:
		return "i32"
	case U64:
		return "u64"
	case I64:
		return "i64"
	case F16:
		return "f16"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case String:
		return "string"
	case Bytes:
		return "bytes"
	default:
		return "unknown"
	}
}
