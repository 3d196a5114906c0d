// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package layout

import (
	"github.com/gomlx/topk/pkg/core/shapes"
	"github.com/pkg/errors"
)

// Mapper maps logical indices of a tensor to its physical offset in a layout.
type Mapper struct {
	tag      Tag
	strides  []int // Physical strides.
	physical []int
}

// NewMapper for a static shape in the given layout.
func NewMapper(shape shapes.Shape, tag Tag) (*Mapper, error) {
	if !shape.IsStatic() {
		return nil, errors.Errorf("layout.NewMapper requires a static shape, got %s", shape)
	}
	physical, _, err := PhysicalDims(shape.Dimensions, tag)
	if err != nil {
		return nil, err
	}
	strides := make([]int, len(physical))
	stride := 1
	for axis := len(physical) - 1; axis >= 0; axis-- {
		strides[axis] = stride
		stride *= physical[axis]
	}
	return &Mapper{tag: tag, strides: strides, physical: physical}, nil
}

// Size is the physical number of elements, including padding.
func (m *Mapper) Size() int {
	return product(m.physical)
}

// Offset returns the physical offset of the element at the given logical indices.
func (m *Mapper) Offset(indices []int) int {
	rank := len(indices)
	switch m.tag.Kind {
	case KindChannelLast:
		offset := indices[0]*m.strides[0] + indices[ChannelAxis]*m.strides[rank-1]
		for axis := ChannelAxis + 1; axis < rank; axis++ {
			offset += indices[axis] * m.strides[axis-1]
		}
		return offset
	case KindBlocked:
		b := m.tag.BlockSize
		offset := 0
		for axis, idx := range indices {
			if axis == ChannelAxis {
				offset += (idx/b)*m.strides[axis] + (idx%b)*m.strides[rank]
			} else {
				offset += idx * m.strides[axis]
			}
		}
		return offset
	default:
		offset := 0
		for axis, idx := range indices {
			offset += idx * m.strides[axis]
		}
		return offset
	}
}

// Pack converts a row-major (planar) flat slice of the given logical shape to the physical layout given by tag.
// Padding lanes are left with the zero value.
func Pack[T any](shape shapes.Shape, tag Tag, planar []T) ([]T, error) {
	m, err := NewMapper(shape, tag)
	if err != nil {
		return nil, err
	}
	if len(planar) != shape.Size() {
		return nil, errors.Errorf("layout.Pack: shape %s requires %d elements, got %d", shape, shape.Size(), len(planar))
	}
	physical := make([]T, m.Size())
	for flatIdx, indices := range shape.Iter() {
		physical[m.Offset(indices)] = planar[flatIdx]
	}
	return physical, nil
}

// Unpack converts a flat slice stored in the physical layout given by tag back to a row-major (planar) flat slice.
// Padding lanes are dropped.
func Unpack[T any](shape shapes.Shape, tag Tag, physical []T) ([]T, error) {
	m, err := NewMapper(shape, tag)
	if err != nil {
		return nil, err
	}
	if len(physical) != m.Size() {
		return nil, errors.Errorf("layout.Unpack: shape %s in layout %s requires %d elements, got %d",
			shape, tag, m.Size(), len(physical))
	}
	planar := make([]T, shape.Size())
	for flatIdx, indices := range shape.Iter() {
		planar[flatIdx] = physical[m.Offset(indices)]
	}
	return planar, nil
}
