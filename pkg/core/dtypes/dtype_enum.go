package dtypes

import "strconv"

// DType is an enum with the element precisions known to the top-k engine.
//
// The numeric values follow the XLA/PJRT buffer types, so they can be exchanged with a host that uses
// the same convention.
type DType int32

const (
	// InvalidDType is the zero value: an unset precision.
	InvalidDType DType = 0

	// Bool values are two-state predicates. They are not ordered and not accepted for top-k.
	Bool DType = 1

	// Int8 is a signed integral value of 8 bits.
	Int8 DType = 2

	// Int16 is a signed integral value of 16 bits.
	Int16 DType = 3

	// Int32 is a signed integral value of 32 bits.
	Int32 DType = 4

	// Int64 is a signed integral value of 64 bits.
	Int64 DType = 5

	// Uint8 is an unsigned integral value of 8 bits.
	Uint8 DType = 6

	// Uint16 is an unsigned integral value of 16 bits.
	Uint16 DType = 7

	// Uint32 is an unsigned integral value of 32 bits.
	Uint32 DType = 8

	// Uint64 is an unsigned integral value of 64 bits.
	Uint64 DType = 9

	// Float16 is the IEEE half precision float, see github.com/x448/float16.
	Float16 DType = 10

	// Float32 is the IEEE single precision float.
	Float32 DType = 11

	// Float64 is the IEEE double precision float.
	Float64 DType = 12

	// BFloat16 is the truncated 16 bit floating-point format: 1 bit for the sign, 8 bits for the exponent
	// and 7 bits for the mantissa.
	BFloat16 DType = 13

	// lastDType is one past the last valid DType.
	lastDType DType = 14
)

var dtypeNames = [lastDType]string{
	InvalidDType: "InvalidDType",
	Bool:         "Bool",
	Int8:         "Int8",
	Int16:        "Int16",
	Int32:        "Int32",
	Int64:        "Int64",
	Uint8:        "Uint8",
	Uint16:       "Uint16",
	Uint32:       "Uint32",
	Uint64:       "Uint64",
	Float16:      "Float16",
	Float32:      "Float32",
	Float64:      "Float64",
	BFloat16:     "BFloat16",
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	if dtype < 0 || dtype >= lastDType {
		return "DType(" + strconv.Itoa(int(dtype)) + ")"
	}
	return dtypeNames[dtype]
}

// MapOfNames to their dtypes. It includes also aliases to the various dtypes.
// It is also later initialized to include the lower-case version of the names.
var MapOfNames = map[string]DType{
	"InvalidDType": InvalidDType,
	"Bool":         Bool,
	"PRED":         Bool,
	"Int8":         Int8,
	"S8":           Int8,
	"Int16":        Int16,
	"S16":          Int16,
	"Int32":        Int32,
	"S32":          Int32,
	"Int64":        Int64,
	"S64":          Int64,
	"Uint8":        Uint8,
	"U8":           Uint8,
	"Uint16":       Uint16,
	"U16":          Uint16,
	"Uint32":       Uint32,
	"U32":          Uint32,
	"Uint64":       Uint64,
	"U64":          Uint64,
	"Float16":      Float16,
	"F16":          Float16,
	"Float32":      Float32,
	"F32":          Float32,
	"Float64":      Float64,
	"F64":          Float64,
	"BFloat16":     BFloat16,
	"BF16":         BFloat16,
}
