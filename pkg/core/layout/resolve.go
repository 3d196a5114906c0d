// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layout

import (
	"fmt"

	"github.com/gomlx/topk/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Dims is the resolved (outer, axis, inner) triple of a tensor for a selection axis.
//
// Each (o, i) pair, with 0 <= o < Outer and 0 <= i < Inner, identifies one independent work item: the
// ordered list of Axis elements addressed by Offset(o, i, j) for j in [0, Axis).
//
// Outer × Axis × Inner equals the number of elements visited: the logical element count, except
// for the blocked layout with the selection on a non-channel axis, where the padding lanes are
// part of Inner.
type Dims struct {
	Outer, Axis, Inner int

	// AxisStride is the distance in elements between consecutive axis positions.
	// When AxisBlocked, it is the distance within one block (always 1).
	AxisStride int

	// BlockSize of blocked layouts, 0 otherwise.
	BlockSize int

	// AxisBlocked is true when the selection axis is the blocked channel axis: consecutive axis positions
	// are lanes of the same block, and one jumps to the next block every BlockSize positions.
	AxisBlocked bool
}

// Resolve derives the Dims for the given shape, selection axis and layout.
//
// The shape must be static and the axis must be in range (negative values count from the end).
// It fails with ErrUnsupportedLayout otherwise.
func Resolve(shape shapes.Shape, axis int, tag Tag) (Dims, error) {
	rank := shape.Rank()
	if axis < 0 {
		axis += rank
	}
	if rank == 0 || axis < 0 || axis >= rank {
		return Dims{}, errors.Wrapf(ErrUnsupportedLayout, "axis %d out of range for shape %s", axis, shape)
	}
	if !shape.IsStatic() {
		return Dims{}, errors.Wrapf(ErrUnsupportedLayout, "cannot resolve dynamic shape %s, concrete dimensions required", shape)
	}
	physical, axisMap, err := PhysicalDims(shape.Dimensions, tag)
	if err != nil {
		return Dims{}, errors.WithMessagef(err, "resolving axis %d of shape %s", axis, shape)
	}

	if tag.IsBlocked() && axis == ChannelAxis {
		// Lane-wise addressing within the blocks of the channel axis.
		return Dims{
			Outer:       shape.Dimensions[0],
			Axis:        shape.Dimensions[ChannelAxis],
			Inner:       product(shape.Dimensions[ChannelAxis+1:]),
			AxisStride:  1,
			BlockSize:   tag.BlockSize,
			AxisBlocked: true,
		}, nil
	}

	physicalAxis := axisMap[axis]
	d := Dims{
		Outer:      product(physical[:physicalAxis]),
		Axis:       physical[physicalAxis],
		Inner:      product(physical[physicalAxis+1:]),
		AxisStride: product(physical[physicalAxis+1:]),
	}
	if tag.IsBlocked() {
		d.BlockSize = tag.BlockSize
	}
	return d, nil
}

// WithAxis returns the Dims of the tensor with the axis dimension replaced by k, in the same layout.
// It's used to address the outputs of the selection.
func (d Dims) WithAxis(k int) Dims {
	d.Axis = k
	return d
}

// Offset in elements of the position j of the work item (o, i).
func (d Dims) Offset(o, i, j int) int {
	if d.AxisBlocked {
		b := d.BlockSize
		blockStride := d.Inner * b
		numBlocks := ceilDiv(d.Axis, b)
		return o*numBlocks*blockStride + (j/b)*blockStride + i*b + j%b
	}
	return (o*d.Axis+j)*d.Inner + i
}

// NumWorkItems is Outer × Inner.
func (d Dims) NumWorkItems() int {
	return d.Outer * d.Inner
}

// Lanes is the number of adjacent work items (along Inner) that share the same blocks and can be processed
// together, one per vector lane. It is BlockSize for blocked layouts when the axis is not the channel axis,
// and 1 otherwise.
//
// Inner is always a multiple of Lanes.
func (d Dims) Lanes() int {
	if d.BlockSize > 0 && !d.AxisBlocked {
		return d.BlockSize
	}
	return 1
}

// Innermost returns whether the selection axis is the innermost physical axis (Inner == 1).
func (d Dims) Innermost() bool {
	return d.Inner == 1
}

// PhysicalSize is the number of elements spanned by all the work items.
func (d Dims) PhysicalSize() int {
	if d.AxisBlocked {
		return d.Outer * ceilDiv(d.Axis, d.BlockSize) * d.BlockSize * d.Inner
	}
	return d.Outer * d.Axis * d.Inner
}

// String implements fmt.Stringer.
func (d Dims) String() string {
	s := fmt.Sprintf("O=%d, A=%d, I=%d, stride=%d", d.Outer, d.Axis, d.Inner, d.AxisStride)
	if d.BlockSize > 0 {
		s += fmt.Sprintf(", block=%d", d.BlockSize)
		if d.AxisBlocked {
			s += " (axis blocked)"
		}
	}
	return s
}
