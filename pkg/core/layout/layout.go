// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package layout describes how the logical elements of a tensor are laid out in linear memory, and
// resolves a top-k selection axis into the (outer, axis, inner) dimensions triple used to address
// the independent work items.
//
// Three layouts are supported, for a logical tensor shaped (N, C, spatial...) where axis 1 is the
// channel (feature) axis:
//
//   - Planar: row-major over the logical dimensions.
//   - ChannelLast: stored as (N, spatial..., C).
//   - Blocked(b): stored as (N, ceil(C/b), spatial..., b): channels are grouped in contiguous blocks of b
//     lanes. The last block is padded (with zero values) if C is not a multiple of b.
package layout

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"github.com/gomlx/topk/pkg/core/shapes"
	"github.com/pkg/errors"
)

// ErrUnsupportedLayout is returned (wrapped) when the selection axis cannot be resolved to a
// stride under the requested layout.
var ErrUnsupportedLayout = errors.New("unsupported layout")

// ChannelAxis is the logical axis that holds the channels, moved last by ChannelLast and split in blocks by Blocked.
const ChannelAxis = 1

// Kind of layout.
type Kind uint8

const (
	KindPlanar Kind = iota
	KindChannelLast
	KindBlocked
)

// Tag identifies the physical layout of a tensor.
type Tag struct {
	Kind Kind

	// BlockSize is only used by KindBlocked. It must be a power of 2, typically the hardware vector width (8 or 16).
	BlockSize int
}

// Planar returns the tag of the row-major layout.
func Planar() Tag { return Tag{Kind: KindPlanar} }

// ChannelLast returns the tag of the layout with the channels axis stored last.
func ChannelLast() Tag { return Tag{Kind: KindChannelLast} }

// Blocked returns the tag of the layout with the channels split in blocks of blockSize.
func Blocked(blockSize int) Tag { return Tag{Kind: KindBlocked, BlockSize: blockSize} }

// String implements fmt.Stringer.
func (t Tag) String() string {
	switch t.Kind {
	case KindPlanar:
		return "planar"
	case KindChannelLast:
		return "channel-last"
	case KindBlocked:
		return fmt.Sprintf("blocked(%d)", t.BlockSize)
	default:
		return fmt.Sprintf("Kind(%d)", t.Kind)
	}
}

// IsBlocked returns whether the layout groups channels in blocks.
func (t Tag) IsBlocked() bool { return t.Kind == KindBlocked }

// ParseTag parses the output of Tag.String. It also accepts "nchw" (planar), "nhwc" (channel-last),
// "blocked16" and "blocked:16".
func ParseTag(s string) (Tag, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "planar", "nchw", "ncsp":
		return Planar(), nil
	case "channel-last", "channel_last", "nhwc", "nspc":
		return ChannelLast(), nil
	}
	if rest, found := strings.CutPrefix(s, "blocked"); found {
		rest = strings.Trim(rest, "():")
		blockSize, err := strconv.Atoi(rest)
		if err != nil {
			return Tag{}, errors.Wrapf(ErrUnsupportedLayout, "invalid block size in layout %q", s)
		}
		tag := Blocked(blockSize)
		if err := tag.Validate(); err != nil {
			return Tag{}, err
		}
		return tag, nil
	}
	return Tag{}, errors.Wrapf(ErrUnsupportedLayout, "unknown layout %q", s)
}

// Validate the tag itself, regardless of the shape.
func (t Tag) Validate() error {
	switch t.Kind {
	case KindPlanar, KindChannelLast:
		return nil
	case KindBlocked:
		if t.BlockSize <= 0 || bits.OnesCount(uint(t.BlockSize)) != 1 {
			return errors.Wrapf(ErrUnsupportedLayout, "block size must be a positive power of 2, got %d", t.BlockSize)
		}
		return nil
	default:
		return errors.Wrapf(ErrUnsupportedLayout, "unknown layout kind %d", t.Kind)
	}
}

// ValidateRank checks that the tag can be used with a tensor of the given rank.
func (t Tag) ValidateRank(rank int) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Kind != KindPlanar && rank <= ChannelAxis {
		return errors.Wrapf(ErrUnsupportedLayout, "layout %s requires a channel axis, got rank %d", t, rank)
	}
	return nil
}

// PhysicalDims returns the dimensions as stored in memory, and for each logical axis the physical axis
// that holds it.
//
// For the blocked layout the channel axis maps to the blocks axis, and the lanes axis is appended last.
func PhysicalDims(dims []int, tag Tag) (physical []int, axisMap []int, err error) {
	rank := len(dims)
	if err = tag.ValidateRank(rank); err != nil {
		return
	}
	axisMap = make([]int, rank)
	switch tag.Kind {
	case KindPlanar:
		physical = append(physical, dims...)
		for axis := range rank {
			axisMap[axis] = axis
		}
	case KindChannelLast:
		physical = append(physical, dims[0])
		physical = append(physical, dims[ChannelAxis+1:]...)
		physical = append(physical, dims[ChannelAxis])
		axisMap[0] = 0
		axisMap[ChannelAxis] = rank - 1
		for axis := ChannelAxis + 1; axis < rank; axis++ {
			axisMap[axis] = axis - 1
		}
	case KindBlocked:
		physical = append(physical, dims...)
		physical[ChannelAxis] = ceilDiv(dims[ChannelAxis], tag.BlockSize)
		physical = append(physical, tag.BlockSize)
		for axis := range rank {
			axisMap[axis] = axis
		}
	}
	return
}

// PhysicalSize returns the number of elements needed to store a tensor of the given shape in the given layout.
// It includes the padding lanes of the blocked layout.
func PhysicalSize(shape shapes.Shape, tag Tag) (int, error) {
	if !shape.IsStatic() {
		return 0, errors.Errorf("PhysicalSize requires a static shape, got %s", shape)
	}
	physical, _, err := PhysicalDims(shape.Dimensions, tag)
	if err != nil {
		return 0, err
	}
	return product(physical), nil
}

func product(dims []int) int {
	p := 1
	for _, d := range dims {
		p *= d
	}
	return p
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
