// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package topk

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/topk/pkg/core/dtypes"
)

// MaxDTypes is the size of the DTypeMap tables.
const MaxDTypes = 32

// DTypeMap maps a dtype to a value (typically a generic function instantiated for the dtype).
type DTypeMap[V any] struct {
	Name  string
	set   [MaxDTypes]bool
	value [MaxDTypes]V
}

// NewDTypeMap creates a new map for a class of values, the name is used in error messages.
func NewDTypeMap[V any](name string) *DTypeMap[V] {
	return &DTypeMap[V]{Name: name}
}

// Register the value for the dtype. It overwrites any previous setting for the same dtype.
func (d *DTypeMap[V]) Register(dtype dtypes.DType, value V) {
	if dtype >= MaxDTypes {
		exceptions.Panicf("dtype %s not supported by %s", dtype, d.Name)
	}
	d.value[dtype] = value
	d.set[dtype] = true
}

// Get the value registered for the dtype.
func (d *DTypeMap[V]) Get(dtype dtypes.DType) (value V, found bool) {
	if dtype < 0 || dtype >= MaxDTypes || !d.set[dtype] {
		return
	}
	return d.value[dtype], true
}

// Must returns the value registered for the dtype, and panics if there isn't one.
func (d *DTypeMap[V]) Must(dtype dtypes.DType) V {
	value, found := d.Get(dtype)
	if !found {
		exceptions.Panicf("dtype %s not supported by %s", dtype, d.Name)
	}
	return value
}
