package shapes

import (
	"iter"

	"github.com/gomlx/exceptions"
)

// Strides returns the strides for each axis of the shape, assuming a "row-major" layout
// in memory.
//
// Notice the strides are **not in bytes**, but in indices.
func (s Shape) Strides() (strides []int) {
	rank := s.Rank()
	if rank == 0 {
		return
	}
	if !s.IsStatic() {
		exceptions.Panicf("Shape.Strides() requires a static shape, got %s", s)
	}
	strides = make([]int, rank)
	currentStride := 1
	for dim := rank - 1; dim >= 0; dim-- {
		strides[dim] = currentStride
		currentStride *= s.Dimensions[dim]
	}
	return
}

// Iter yields every flat index of a static shape together with its per-axis indices, in row-major order
// (the last axis moves fastest).
//
// The yielded indices slice is reused between iterations: copy it if it must outlive the loop body.
func (s Shape) Iter() iter.Seq2[int, []int] {
	if !s.IsStatic() {
		exceptions.Panicf("Shape.Iter() requires a static shape, got %s", s)
	}
	return func(yield func(int, []int) bool) {
		if !s.Ok() {
			return
		}
		indices := make([]int, s.Rank())
		for flatIdx := range s.Size() {
			if !yield(flatIdx, indices) {
				return
			}
			for axis := len(indices) - 1; axis >= 0; axis-- {
				if indices[axis]++; indices[axis] < s.Dimensions[axis] {
					break
				}
				indices[axis] = 0
			}
		}
	}
}
