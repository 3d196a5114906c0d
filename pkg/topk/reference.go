// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package topk

import (
	"github.com/gomlx/topk/pkg/core/dtypes"
	"github.com/gomlx/topk/pkg/core/dtypes/bfloat16"
	"github.com/gomlx/topk/pkg/core/layout"
	"github.com/x448/float16"
)

func init() {
	referenceFactories.Register(dtypes.Float32, newRefKernel(lessNumeric[float32]))
	referenceFactories.Register(dtypes.Float64, newRefKernel(lessNumeric[float64]))
	referenceFactories.Register(dtypes.Float16, newRefKernel(lessFloat16))
	referenceFactories.Register(dtypes.BFloat16, newRefKernel(lessBFloat16))
	referenceFactories.Register(dtypes.Int8, newRefKernel(lessNumeric[int8]))
	referenceFactories.Register(dtypes.Int16, newRefKernel(lessNumeric[int16]))
	referenceFactories.Register(dtypes.Int32, newRefKernel(lessNumeric[int32]))
	referenceFactories.Register(dtypes.Int64, newRefKernel(lessNumeric[int64]))
	referenceFactories.Register(dtypes.Uint8, newRefKernel(lessNumeric[uint8]))
	referenceFactories.Register(dtypes.Uint16, newRefKernel(lessNumeric[uint16]))
	referenceFactories.Register(dtypes.Uint32, newRefKernel(lessNumeric[uint32]))
	referenceFactories.Register(dtypes.Uint64, newRefKernel(lessNumeric[uint64]))
}

// lessNumeric is the total order used for selection: NaN is larger than any other value, and equal to itself.
func lessNumeric[T numeric](a, b T) bool {
	return a < b || (!isNaN(a) && isNaN(b))
}

func lessFloat16(a, b float16.Float16) bool {
	return lessNumeric(a.Float32(), b.Float32())
}

func lessBFloat16(a, b bfloat16.BFloat16) bool {
	return lessNumeric(a.Float32(), b.Float32())
}

// newReference returns the reference implementation for the key. Every ordered dtype has one.
func newReference(key kernelKey) Kernel {
	return referenceFactories.Must(key.dtype)(key)
}

// refKernel adapts executeRef to the Kernel interface.
type refKernel[T any] struct {
	key      kernelKey
	sentinel T
	less     func(a, b T) bool
}

func newRefKernel[T any](less func(a, b T) bool) func(key kernelKey) Kernel {
	return func(key kernelKey) Kernel {
		return &refKernel[T]{key: key, sentinel: Sentinel(key.dtype, key.mode).(T), less: less}
	}
}

// WorkAmount implements Kernel: the reference processes one work item at a time, for every layout.
func (r *refKernel[T]) WorkAmount(layout.Dims) int {
	return 1
}

// Execute implements Kernel.
func (r *refKernel[T]) Execute(args *CallArgs) {
	executeRef(args, r.key, r.sentinel, r.less)
}

// executeRef selects the top-k of the work item (args.Outer, args.Inner) with scalar loops, using less as the
// only comparison of values.
//
// The bitonic networks are regenerated with the same loops that build the tables, so the sequence of
// compare-exchange operations is the same as the one of the kernels. The bubble algorithm always uses
// K passes: the in-place variant yields the same output.
func executeRef[T any](args *CallArgs, key kernelKey, sentinel T, less func(a, b T) bool) {
	input := args.Input.([]T)
	values := args.Values.([]T)
	v := args.Scratch.values.([]T)
	idx := args.Scratch.indices
	dims := args.Dims
	axisLen, k := dims.Axis, key.k

	before := func(a T, ia int32, b T, ib int32) bool {
		var better, worse bool
		if key.mode == ModeMax {
			better, worse = less(b, a), less(a, b)
		} else {
			better, worse = less(a, b), less(b, a)
		}
		if better || worse {
			return better
		}
		return ia < ib
	}
	swap := func(a, b int) {
		v[a], v[b] = v[b], v[a]
		idx[a], idx[b] = idx[b], idx[a]
	}
	load := func() {
		for j := range axisLen {
			v[j], idx[j] = input[dims.Offset(args.Outer, args.Inner, j)], int32(j)
		}
	}

	switch key.algorithm {
	case AlgorithmBubble:
		load()
		for p := range k {
			for j := axisLen - 1; j > p; j-- {
				if before(v[j], idx[j], v[j-1], idx[j-1]) {
					swap(j, j-1)
				}
			}
		}

	case AlgorithmBitonic:
		load()
		n := nextPow2(axisLen)
		for p := axisLen; p < n; p++ {
			v[p], idx[p] = sentinel, int32(p)
		}
		forEachBitonicPair(n, func(first, second int) {
			if before(v[second], idx[second], v[first], idx[first]) {
				swap(first, second)
			}
		})

	case AlgorithmHeap:
		siftDown := func(x T, xi int32, n int) {
			pos := 0
			for {
				child := 2*pos + 1
				if child >= n {
					break
				}
				if child+1 < n && before(v[child], idx[child], v[child+1], idx[child+1]) {
					child++
				}
				if !before(x, xi, v[child], idx[child]) {
					break
				}
				v[pos], idx[pos] = v[child], idx[child]
				pos = child
			}
			v[pos], idx[pos] = x, xi
		}
		for j := range axisLen {
			x, xi := input[dims.Offset(args.Outer, args.Inner, j)], int32(j)
			if j < k {
				pos := j
				for pos > 0 {
					parent := (pos - 1) / 2
					if !before(v[parent], idx[parent], x, xi) {
						break
					}
					v[pos], idx[pos] = v[parent], idx[parent]
					pos = parent
				}
				v[pos], idx[pos] = x, xi
				continue
			}
			if before(x, xi, v[0], idx[0]) {
				siftDown(x, xi, k)
			}
		}
		for end := k - 1; end > 0; end-- {
			x, xi := v[end], idx[end]
			v[end], idx[end] = v[0], idx[0]
			siftDown(x, xi, end)
		}
	}

	if key.sortBy == SortByIndex {
		n := nextPow2(k)
		for p := k; p < n; p++ {
			idx[p] = indexPadding
		}
		forEachBitonicPair(n, func(first, second int) {
			if idx[second] < idx[first] {
				swap(first, second)
			}
		})
	}

	for r := range k {
		offset := args.OutDims.Offset(args.Outer, args.Inner, r)
		values[offset], args.Indices[offset] = v[r], idx[r]
	}
}
