// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package bfloat16 implements the "brain float" 16 bits format: the upper half of an IEEE 754 float32.
//
// It mirrors the API of github.com/x448/float16, which only covers the IEEE half precision format.
package bfloat16

import (
	"math"
	"strconv"
)

// BFloat16 keeps the sign, the 8 exponent bits and the 7 upper mantissa bits of a float32.
// It has the range of a float32 with roughly 2 to 3 significant decimal digits.
type BFloat16 uint16

const (
	expMask      = 0x7f80
	mantissaMask = 0x007f
	quietNaN     = 0x7fc0
)

// FromFloat32 converts x rounding to the nearest representable value, ties to even.
// NaN inputs are mapped to a quiet NaN, preserving the sign.
func FromFloat32(x float32) BFloat16 {
	bits := math.Float32bits(x)
	if x != x {
		return BFloat16(bits>>16) | quietNaN
	}
	lsb := (bits >> 16) & 1
	bits += 0x7fff + lsb
	return BFloat16(bits >> 16)
}

// FromFloat64 converts x through a float32.
func FromFloat64(x float64) BFloat16 {
	return FromFloat32(float32(x))
}

// FromBits reinterprets the raw bits.
func FromBits(bits uint16) BFloat16 { return BFloat16(bits) }

// Bits returns the raw bits.
func (f BFloat16) Bits() uint16 { return uint16(f) }

// Float32 widens f. It is exact.
func (f BFloat16) Float32() float32 {
	return math.Float32frombits(uint32(f) << 16)
}

// IsNaN reports whether f is a "not-a-number" value.
func (f BFloat16) IsNaN() bool {
	return f&expMask == expMask && f&mantissaMask != 0
}

// IsInf reports whether f is an infinity, according to sign: sign > 0 only matches +Inf,
// sign < 0 only matches -Inf and sign == 0 matches both.
func (f BFloat16) IsInf(sign int) bool {
	if f&expMask != expMask || f&mantissaMask != 0 {
		return false
	}
	negative := f&0x8000 != 0
	return sign == 0 || (sign > 0 && !negative) || (sign < 0 && negative)
}

// Inf returns positive infinity if sign >= 0, negative infinity otherwise.
func Inf(sign int) BFloat16 {
	if sign < 0 {
		return 0xff80
	}
	return 0x7f80
}

// NaN returns a quiet "not-a-number".
func NaN() BFloat16 { return quietNaN }

// String implements fmt.Stringer with the shortest decimal that round-trips through a float32.
func (f BFloat16) String() string {
	return strconv.FormatFloat(float64(f.Float32()), 'g', -1, 32)
}
