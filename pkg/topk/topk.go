// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package topk

import (
	"github.com/gomlx/topk/pkg/core/dtypes"
	"github.com/gomlx/topk/pkg/core/layout"
	"github.com/gomlx/topk/pkg/core/shapes"
	"github.com/pkg/errors"
)

// TopK selects the k largest (ModeMax) or smallest (ModeMin) elements along the axis of the planar
// (row-major) tensor data with the given dimensions. Among equal values the smaller index is selected first.
//
// It returns the values and indices (along the axis) of the selected elements, in row-major order, with the
// shape of the input with the axis dimension replaced by k.
//
// It uses a new engine configured from the environment (see NewFromEnv). To run the same selection many times,
// use an Engine directly.
func TopK[T dtypes.Ordered](data []T, dims []int, axis, k int, mode Mode) (values []T, indices []int32, err error) {
	for _, dim := range dims {
		if dim < 1 {
			return nil, nil, errors.Wrapf(ErrConfiguration, "invalid dimensions %v", dims)
		}
	}
	shape := shapes.Make(dtypes.FromGenericsType[T](), dims...)
	if len(data) != shape.Size() {
		return nil, nil, errors.Wrapf(ErrShapeMismatch, "data has %d elements, shape %s requires %d", len(data), shape, shape.Size())
	}
	e, err := NewFromEnv()
	if err != nil {
		return nil, nil, err
	}
	cfg := Config{Axis: axis, K: k, Mode: mode, Stable: true, Layout: layout.Planar()}
	if err = e.Configure(cfg, shape); err != nil {
		return nil, nil, err
	}
	outSize := e.OutputShape().Size()
	values = make([]T, outSize)
	indices = make([]int32, outSize)
	if err = e.Execute(data, values, indices); err != nil {
		return nil, nil, err
	}
	return values, indices, nil
}
