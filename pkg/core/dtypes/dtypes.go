// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dtypes includes the DType enum for the element precisions supported by the top-k engine.
//
// It includes converters to/from Go native types (and reflect.Type), the sentinel values used to pad
// sorting networks (LowestValue / HighestValue / NaNValue), and constraint interfaces to be used with generics.
//
// All the per-dtype facts are kept in one table, indexed by the DType. The only mutable global state is
// MapOfNames, completed with the lower-case names during initialization.
package dtypes

import (
	"maps"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/topk/pkg/core/dtypes/bfloat16"
	"github.com/x448/float16"
)

type class uint8

const (
	classNone class = iota
	classBool
	classSigned
	classUnsigned
	classFloat
)

// info holds the static facts about one DType.
type info struct {
	goType          reflect.Type
	class           class
	lowest, highest any
	nan             any
}

var table = [lastDType]info{
	Bool:     {goType: reflect.TypeFor[bool](), class: classBool, lowest: false, highest: true},
	Int8:     {goType: reflect.TypeFor[int8](), class: classSigned, lowest: int8(math.MinInt8), highest: int8(math.MaxInt8)},
	Int16:    {goType: reflect.TypeFor[int16](), class: classSigned, lowest: int16(math.MinInt16), highest: int16(math.MaxInt16)},
	Int32:    {goType: reflect.TypeFor[int32](), class: classSigned, lowest: int32(math.MinInt32), highest: int32(math.MaxInt32)},
	Int64:    {goType: reflect.TypeFor[int64](), class: classSigned, lowest: int64(math.MinInt64), highest: int64(math.MaxInt64)},
	Uint8:    {goType: reflect.TypeFor[uint8](), class: classUnsigned, lowest: uint8(0), highest: uint8(math.MaxUint8)},
	Uint16:   {goType: reflect.TypeFor[uint16](), class: classUnsigned, lowest: uint16(0), highest: uint16(math.MaxUint16)},
	Uint32:   {goType: reflect.TypeFor[uint32](), class: classUnsigned, lowest: uint32(0), highest: uint32(math.MaxUint32)},
	Uint64:   {goType: reflect.TypeFor[uint64](), class: classUnsigned, lowest: uint64(0), highest: uint64(math.MaxUint64)},
	Float16:  {goType: reflect.TypeFor[float16.Float16](), class: classFloat, lowest: float16.Inf(-1), highest: float16.Inf(1), nan: float16.NaN()},
	Float32:  {goType: reflect.TypeFor[float32](), class: classFloat, lowest: float32(math.Inf(-1)), highest: float32(math.Inf(1)), nan: float32(math.NaN())},
	Float64:  {goType: reflect.TypeFor[float64](), class: classFloat, lowest: math.Inf(-1), highest: math.Inf(1), nan: math.NaN()},
	BFloat16: {goType: reflect.TypeFor[bfloat16.BFloat16](), class: classFloat, lowest: bfloat16.Inf(-1), highest: bfloat16.Inf(1), nan: bfloat16.NaN()},
}

// byGoType is the reverse of table, built at initialization.
var byGoType = make(map[reflect.Type]DType, lastDType)

func init() {
	for dtype, entry := range table {
		if entry.goType != nil {
			byGoType[entry.goType] = DType(dtype)
		}
	}
	if strconv.IntSize == 32 {
		byGoType[reflect.TypeFor[int]()] = Int32
	} else {
		byGoType[reflect.TypeFor[int]()] = Int64
	}

	// Add a mapping to the lower-case version of dtypes.
	for _, key := range slices.Collect(maps.Keys(MapOfNames)) {
		lowerKey := strings.ToLower(key)
		if _, found := MapOfNames[lowerKey]; !found {
			MapOfNames[lowerKey] = MapOfNames[key]
		}
	}
}

// entry returns the table entry of a valid dtype, and panics otherwise.
func (dtype DType) entry(method string) *info {
	if dtype <= InvalidDType || dtype >= lastDType {
		exceptions.Panicf("invalid dtype %s in DType.%s", dtype, method)
	}
	return &table[dtype]
}

// FromGenericsType returns the DType enum for the given type that this package knows about.
func FromGenericsType[T Supported]() DType {
	return FromGoType(reflect.TypeFor[T]())
}

// FromAny introspects the underlying type of any and returns the corresponding DType.
// For slices, it returns the DType of the elements.
// Unsupported types return an InvalidDType.
func FromAny(value any) DType {
	t := reflect.TypeOf(value)
	if t == nil {
		return InvalidDType
	}
	if t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	return FromGoType(t)
}

// FromGoType returns the DType for the given "reflect.Type".
// It returns InvalidDType for unknown types, including named types defined over a supported kind.
func FromGoType(t reflect.Type) DType {
	if dtype, found := byGoType[t]; found {
		return dtype
	}
	return InvalidDType
}

// GoType returns the Go `reflect.Type` corresponding to the DType.
func (dtype DType) GoType() reflect.Type { return dtype.entry("GoType").goType }

// Size returns the number of bytes for the given DType.
func (dtype DType) Size() int { return int(dtype.GoType().Size()) }

// Bits returns the number of bits for the given DType.
func (dtype DType) Bits() int { return dtype.Size() * 8 }

// MakeSlice allocates a Go slice (e.g. []float32) for the dtype, with the given length.
func (dtype DType) MakeSlice(length int) any {
	return reflect.MakeSlice(reflect.SliceOf(dtype.GoType()), length, length).Interface()
}

// LowestValue for dtype converted to the corresponding Go type.
// For float values it is negative infinity.
func (dtype DType) LowestValue() any { return dtype.entry("LowestValue").lowest }

// HighestValue for dtype converted to the corresponding Go type.
// For float values it is positive infinity.
func (dtype DType) HighestValue() any { return dtype.entry("HighestValue").highest }

// NaNValue returns a quiet NaN converted to the dtype's Go type. It panics for non-float dtypes.
func (dtype DType) NaNValue() any {
	nan := dtype.entry("NaNValue").nan
	if nan == nil {
		exceptions.Panicf("dtype %s has no NaN value", dtype)
	}
	return nan
}

func (dtype DType) class() class {
	if dtype <= InvalidDType || dtype >= lastDType {
		return classNone
	}
	return table[dtype].class
}

// IsFloat returns whether dtype is a supported float.
func (dtype DType) IsFloat() bool { return dtype.class() == classFloat }

// IsFloat16 returns whether dtype is a supported float with 16 bits: [Float16] or [BFloat16].
func (dtype DType) IsFloat16() bool { return dtype == Float16 || dtype == BFloat16 }

// IsInt returns whether dtype is a supported integer type, signed or not.
func (dtype DType) IsInt() bool {
	c := dtype.class()
	return c == classSigned || c == classUnsigned
}

// IsUnsigned returns whether dtype is one of the unsigned integer types.
func (dtype DType) IsUnsigned() bool { return dtype.class() == classUnsigned }

// IsOrdered returns whether values of the dtype have a total order usable for selection:
// integers and floats (NaN is ordered above every other value).
func (dtype DType) IsOrdered() bool { return dtype.IsInt() || dtype.IsFloat() }

// Supported lists the Go types that this package knows how to convert.
// Used as traits for generics.
//
// Notice Go's `int` type is not portable, since it may translate to dtypes Int32 or Int64 depending
// on the platform.
type Supported interface {
	bool | float16.Float16 | bfloat16.BFloat16 |
		float32 | float64 | int | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64
}

// Ordered represents the Go types whose values can be selected by the top-k engine.
type Ordered interface {
	float16.Float16 | bfloat16.BFloat16 |
		float32 | float64 | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64
}
