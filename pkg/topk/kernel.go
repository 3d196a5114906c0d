// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package topk

import (
	"fmt"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/topk/pkg/core/dtypes"
	"github.com/gomlx/topk/pkg/core/layout"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// CallArgs are the arguments of one kernel call.
//
// A call processes Kernel.WorkAmount consecutive work items, starting at (Outer, Inner):
// (Outer, Inner), (Outer, Inner+1), ...
type CallArgs struct {
	Input   any // []T, in the input layout.
	Values  any // []T, in the output layout.
	Indices []int32

	// Dims of the input, and OutDims of the outputs (the same with the axis length replaced by K).
	Dims, OutDims layout.Dims

	Tables  *Tables
	Scratch *Scratch

	Outer, Inner int
}

// Kernel runs the selection of one configuration.
//
// It is read-only once compiled, and it's shared by all workers. It never allocates: all
// working storage comes from CallArgs.Scratch.
type Kernel interface {
	// WorkAmount is the number of work items processed by each call to Execute.
	WorkAmount(dims layout.Dims) int

	// Execute the selection on the work items given by args, and write the K selected values and indices
	// of each of them.
	Execute(args *CallArgs)
}

// kernelKey identifies a compiled kernel.
type kernelKey struct {
	dtype     dtypes.DType
	mode      Mode
	stable    bool
	sortBy    SortBy
	layout    layout.Tag
	algorithm Algorithm
	k         int
	inPlace   bool
}

func (key kernelKey) String() string {
	algo := key.algorithm.String()
	if key.inPlace {
		algo += "(in-place)"
	}
	return fmt.Sprintf("%s/%s/%s/stable=%v/%s/%s/k=%d", key.dtype, key.mode, key.sortBy, key.stable, key.layout, algo, key.k)
}

var (
	// kernelFactories for the dtypes with specialized kernels.
	kernelFactories = NewDTypeMap[func(key kernelKey) Kernel]("top-k kernels")

	// referenceFactories for every dtype the engine supports.
	referenceFactories = NewDTypeMap[func(key kernelKey) Kernel]("top-k reference")

	// kernelCache maps kernelKey to the compiled Kernel, for the whole process.
	kernelCache sync.Map
)

func init() {
	kernelFactories.Register(dtypes.Float32, newVectorKernel[float32])
	kernelFactories.Register(dtypes.Float64, newVectorKernel[float64])
	kernelFactories.Register(dtypes.Int8, newVectorKernel[int8])
	kernelFactories.Register(dtypes.Int16, newVectorKernel[int16])
	kernelFactories.Register(dtypes.Int32, newVectorKernel[int32])
	kernelFactories.Register(dtypes.Int64, newVectorKernel[int64])
	kernelFactories.Register(dtypes.Uint8, newVectorKernel[uint8])
	kernelFactories.Register(dtypes.Uint16, newVectorKernel[uint16])
	kernelFactories.Register(dtypes.Uint32, newVectorKernel[uint32])
	kernelFactories.Register(dtypes.Uint64, newVectorKernel[uint64])
}

// compileKernel returns the specialized kernel for the key, compiling it on first use.
//
// It fails with ErrKernelCompilation if there is no kernel for the configuration on this platform, in which
// case the caller should use the reference implementation.
func compileKernel(key kernelKey, opts Options) (Kernel, error) {
	if opts.Reference {
		return nil, errors.Wrap(ErrKernelCompilation, "kernels disabled by the engine options")
	}
	if kernelsDisabledByEnv() {
		return nil, errors.Wrapf(ErrKernelCompilation, "kernels disabled by $%s", NoKernelsEnv)
	}
	factory, found := kernelFactories.Get(key.dtype)
	if !found {
		return nil, errors.Wrapf(ErrKernelCompilation, "no kernel for dtype %s", key.dtype)
	}
	if key.layout.IsBlocked() {
		blockBytes := key.layout.BlockSize * key.dtype.Size()
		if budget := HostPlatform.KernelBlockBudget(); blockBytes > budget {
			return nil, errors.Wrapf(ErrKernelCompilation, "block of %s (%d bytes) exceeds the %d bytes budget of platform %s",
				key.layout, blockBytes, budget, HostPlatform.Name)
		}
	}
	if kernel, found := kernelCache.Load(key); found {
		return kernel.(Kernel), nil
	}
	kernel, _ := kernelCache.LoadOrStore(key, factory(key))
	return kernel.(Kernel), nil
}

// numeric types have native comparison operators. NaN (for floats) is the only value for which x != x.
type numeric interface {
	constraints.Integer | constraints.Float
}

func isNaN[T numeric](x T) bool {
	return x != x
}

// vectorKernel is the specialized kernel for a numeric type: on blocked layouts each call processes all the lanes
// of a block, with the positions of the work unit laid out as [position][lane] in the scratch.
type vectorKernel[T numeric] struct {
	key      kernelKey
	sentinel T
	selectFn func(args *CallArgs, input, v []T, idx []int32, lanes int)
}

func newVectorKernel[T numeric](key kernelKey) Kernel {
	k := &vectorKernel[T]{key: key, sentinel: Sentinel(key.dtype, key.mode).(T)}
	switch key.algorithm {
	case AlgorithmBubble:
		if key.inPlace {
			k.selectFn = k.bubbleInPlace
		} else {
			k.selectFn = k.bubblePasses
		}
	case AlgorithmBitonic:
		k.selectFn = k.bitonic
	case AlgorithmHeap:
		k.selectFn = k.heap
	default:
		exceptions.Panicf("top-k kernel requires a concrete algorithm, got %s", key.algorithm)
	}
	return k
}

// WorkAmount implements Kernel.
func (k *vectorKernel[T]) WorkAmount(dims layout.Dims) int {
	return dims.Lanes()
}

// Execute implements Kernel.
func (k *vectorKernel[T]) Execute(args *CallArgs) {
	input := args.Input.([]T)
	values := args.Values.([]T)
	v := args.Scratch.values.([]T)
	idx := args.Scratch.indices
	lanes := args.Dims.Lanes()
	k.selectFn(args, input, v, idx, lanes)
	if k.key.sortBy == SortByIndex {
		k.sortByIndex(&args.Tables.Network, v, idx, lanes)
	}
	k.store(args, values, v, idx, lanes)
}

// before returns whether (a, ia) is ordered before (b, ib).
//
// Equal values are ordered by their original index, so padding (index >= axis length) always loses ties,
// and every algorithm produces the same output.
func (k *vectorKernel[T]) before(a T, ia int32, b T, ib int32) bool {
	var better, worse bool
	if k.key.mode == ModeMax {
		better = a > b || (isNaN(a) && !isNaN(b))
		worse = b > a || (isNaN(b) && !isNaN(a))
	} else {
		better = a < b || (!isNaN(a) && isNaN(b))
		worse = b < a || (!isNaN(b) && isNaN(a))
	}
	if better || worse {
		return better
	}
	return ia < ib
}

// unitAddr computes the offsets of the positions of the work items of one call.
type unitAddr struct {
	dims layout.Dims
	o, i int
	base int
}

func newUnitAddr(dims layout.Dims, o, i int) unitAddr {
	return unitAddr{dims: dims, o: o, i: i, base: dims.Offset(o, i, 0)}
}

func (a unitAddr) at(j, lane int) int {
	if a.dims.AxisBlocked {
		return a.dims.Offset(a.o, a.i+lane, j)
	}
	return a.base + j*a.dims.AxisStride + lane
}

// load the work items into the scratch, along with their original indices.
func (k *vectorKernel[T]) load(args *CallArgs, input, v []T, idx []int32, lanes int) {
	addr := newUnitAddr(args.Dims, args.Outer, args.Inner)
	seq := args.Tables.Indices.Lane(lanes)
	for j := range args.Dims.Axis {
		for lane := range lanes {
			pos := j*lanes + lane
			v[pos] = input[addr.at(j, lane)]
			idx[pos] = seq[pos]
		}
	}
}

func (k *vectorKernel[T]) store(args *CallArgs, values, v []T, idx []int32, lanes int) {
	addr := newUnitAddr(args.OutDims, args.Outer, args.Inner)
	for r := range k.key.k {
		for lane := range lanes {
			pos := r*lanes + lane
			offset := addr.at(r, lane)
			values[offset] = v[pos]
			args.Indices[offset] = idx[pos]
		}
	}
}

func (k *vectorKernel[T]) bubblePasses(args *CallArgs, input, v []T, idx []int32, lanes int) {
	k.load(args, input, v, idx, lanes)
	axisLen := args.Dims.Axis
	for p := range k.key.k {
		for j := axisLen - 1; j > p; j-- {
			for lane := range lanes {
				cur := j*lanes + lane
				prev := cur - lanes
				if k.before(v[cur], idx[cur], v[prev], idx[prev]) {
					v[cur], v[prev] = v[prev], v[cur]
					idx[cur], idx[prev] = idx[prev], idx[cur]
				}
			}
		}
	}
}

// bubbleInPlace streams the slice through the K first positions of the scratch, kept sorted.
func (k *vectorKernel[T]) bubbleInPlace(args *CallArgs, input, v []T, idx []int32, lanes int) {
	addr := newUnitAddr(args.Dims, args.Outer, args.Inner)
	seq := args.Tables.Indices.Lane(lanes)
	axisLen, K := args.Dims.Axis, k.key.k
	for j := range axisLen {
		for lane := range lanes {
			x, xi := input[addr.at(j, lane)], seq[j*lanes+lane]
			pos := j
			if j >= K {
				last := (K-1)*lanes + lane
				if !k.before(x, xi, v[last], idx[last]) {
					continue
				}
				pos = K - 1
			}
			for pos > 0 {
				prev := (pos-1)*lanes + lane
				if !k.before(x, xi, v[prev], idx[prev]) {
					break
				}
				v[prev+lanes], idx[prev+lanes] = v[prev], idx[prev]
				pos--
			}
			v[pos*lanes+lane], idx[pos*lanes+lane] = x, xi
		}
	}
}

func (k *vectorKernel[T]) bitonic(args *CallArgs, input, v []T, idx []int32, lanes int) {
	k.load(args, input, v, idx, lanes)
	net := &args.Tables.Network
	axisLen := args.Dims.Axis
	for p := axisLen; p < net.Size; p++ {
		for lane := range lanes {
			pos := p*lanes + lane
			v[pos], idx[pos] = k.sentinel, int32(p)
		}
	}
	pairs := net.ValuePairs[:2*net.ValueCount]
	for c := 0; c < len(pairs); c += 2 {
		first, second := int(pairs[c])*lanes, int(pairs[c+1])*lanes
		for lane := range lanes {
			f, s := first+lane, second+lane
			if k.before(v[s], idx[s], v[f], idx[f]) {
				v[f], v[s] = v[s], v[f]
				idx[f], idx[s] = idx[s], idx[f]
			}
		}
	}
}

// heap keeps the K best elements so far in a heap whose root is the worst of them, and finally sorts it
// from best to worst.
func (k *vectorKernel[T]) heap(args *CallArgs, input, v []T, idx []int32, lanes int) {
	addr := newUnitAddr(args.Dims, args.Outer, args.Inner)
	seq := args.Tables.Indices.Lane(lanes)
	axisLen, K := args.Dims.Axis, k.key.k
	for j := range axisLen {
		for lane := range lanes {
			x, xi := input[addr.at(j, lane)], seq[j*lanes+lane]
			if j < K {
				// Sift up: parents are never better than their children.
				pos := j
				for pos > 0 {
					parent := (pos-1)/2*lanes + lane
					if !k.before(v[parent], idx[parent], x, xi) {
						break
					}
					v[pos*lanes+lane], idx[pos*lanes+lane] = v[parent], idx[parent]
					pos = (pos - 1) / 2
				}
				v[pos*lanes+lane], idx[pos*lanes+lane] = x, xi
				continue
			}
			if k.before(x, xi, v[lane], idx[lane]) {
				k.siftDown(v, idx, lanes, lane, x, xi, K)
			}
		}
	}
	for end := K - 1; end > 0; end-- {
		for lane := range lanes {
			last := end*lanes + lane
			x, xi := v[last], idx[last]
			v[last], idx[last] = v[lane], idx[lane]
			k.siftDown(v, idx, lanes, lane, x, xi, end)
		}
	}
}

// siftDown places (x, xi) at the root of the heap of size n, and moves it down while it's better than its
// worst child.
func (k *vectorKernel[T]) siftDown(v []T, idx []int32, lanes, lane int, x T, xi int32, n int) {
	pos := 0
	for {
		child := 2*pos + 1
		if child >= n {
			break
		}
		c := child*lanes + lane
		if child+1 < n && k.before(v[c], idx[c], v[c+lanes], idx[c+lanes]) {
			child++
			c += lanes
		}
		if !k.before(x, xi, v[c], idx[c]) {
			break
		}
		v[pos*lanes+lane], idx[pos*lanes+lane] = v[c], idx[c]
		pos = child
	}
	v[pos*lanes+lane], idx[pos*lanes+lane] = x, xi
}

// sortByIndex re-orders the K selected positions by original index, using the index network.
func (k *vectorKernel[T]) sortByIndex(net *BitonicNetwork, v []T, idx []int32, lanes int) {
	for p := k.key.k; p < net.IndexSize; p++ {
		for lane := range lanes {
			idx[p*lanes+lane] = indexPadding
		}
	}
	pairs := net.IndexPairs[:2*net.IndexCount]
	for c := 0; c < len(pairs); c += 2 {
		first, second := int(pairs[c])*lanes, int(pairs[c+1])*lanes
		for lane := range lanes {
			f, s := first+lane, second+lane
			if idx[s] < idx[f] {
				v[f], v[s] = v[s], v[f]
				idx[f], idx[s] = idx[s], idx[f]
			}
		}
	}
}
