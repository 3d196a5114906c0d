// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package topk

import (
	"fmt"
	"strings"

	"github.com/gomlx/topk/pkg/core/layout"
	"github.com/pkg/errors"
)

// Mode of the selection.
type Mode uint8

const (
	// ModeMax selects the K largest values, in decreasing order.
	ModeMax Mode = iota

	// ModeMin selects the K smallest values, in increasing order.
	ModeMin
)

func (m Mode) String() string {
	switch m {
	case ModeMax:
		return "max"
	case ModeMin:
		return "min"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// SortBy defines the order of the K selected elements in the output.
type SortBy uint8

const (
	// SortByValue outputs the selected elements from best to worst (according to Mode).
	SortByValue SortBy = iota

	// SortByIndex outputs the selected elements in increasing order of their original index.
	// The selected set is the same as with SortByValue.
	SortByIndex
)

func (s SortBy) String() string {
	switch s {
	case SortByValue:
		return "by-value"
	case SortByIndex:
		return "by-index"
	default:
		return fmt.Sprintf("SortBy(%d)", s)
	}
}

// Algorithm used to select the top-k elements of each work item.
type Algorithm uint8

const (
	// AlgorithmAuto lets SelectAlgorithm choose.
	AlgorithmAuto Algorithm = iota

	// AlgorithmBubble runs K passes of adjacent compare-exchange, or a streaming insertion into a buffer of K
	// elements (the "in-place" variant) when K is small enough.
	AlgorithmBubble

	// AlgorithmBitonic sorts the slice padded to a power of 2 with a bitonic network, and truncates it to K.
	AlgorithmBitonic

	// AlgorithmHeap streams the slice through a heap of K elements, whose root is the worst selected so far.
	// It's the only algorithm that doesn't depend on the axis length at configuration time.
	AlgorithmHeap
)

var algorithmNames = []string{"auto", "bubble", "bitonic", "heap"}

func (a Algorithm) String() string {
	if int(a) < len(algorithmNames) {
		return algorithmNames[a]
	}
	return fmt.Sprintf("Algorithm(%d)", a)
}

// ParseAlgorithm converts the name of an algorithm (as returned by Algorithm.String) to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for ii, algoName := range algorithmNames {
		if name == algoName {
			return Algorithm(ii), nil
		}
	}
	return AlgorithmAuto, errors.Wrapf(ErrConfiguration, "unknown top-k algorithm %q, valid values are %q", name, algorithmNames)
}

// Config of a top-k selection. The element precision and whether the shape is static are given by the shape
// passed to Engine.Configure.
type Config struct {
	// Axis of the selection. Negative values are counted from the end.
	Axis int

	// K is the number of elements to select: 1 <= K <= axis length.
	K int

	Mode   Mode
	SortBy SortBy

	// Stable requires that among equal values the one with the smaller original index is ordered first.
	// It is also what decides which of the equal values are selected when not all fit in K.
	//
	// The current algorithms always break ties by index, so non-stable selections produce the same output.
	// Callers should not rely on that when Stable is false.
	Stable bool

	// Layout of the input (and output) tensors.
	Layout layout.Tag

	// Algorithm forces the algorithm to use. Leave it as AlgorithmAuto (the default) to let the engine choose.
	Algorithm Algorithm
}

func (c Config) String() string {
	stable := ""
	if c.Stable {
		stable = ", stable"
	}
	return fmt.Sprintf("top-k(axis=%d, k=%d, %s, %s%s, layout=%s, algorithm=%s)",
		c.Axis, c.K, c.Mode, c.SortBy, stable, c.Layout, c.Algorithm)
}

// validate the fields that don't depend on the shape.
func (c Config) validate() error {
	if c.K < 1 {
		return errors.Wrapf(ErrConfiguration, "k must be >= 1, got %d", c.K)
	}
	if c.Mode > ModeMin {
		return errors.Wrapf(ErrConfiguration, "invalid mode %s", c.Mode)
	}
	if c.SortBy > SortByIndex {
		return errors.Wrapf(ErrConfiguration, "invalid sort order %s", c.SortBy)
	}
	if c.Algorithm > AlgorithmHeap {
		return errors.Wrapf(ErrConfiguration, "invalid algorithm %s", c.Algorithm)
	}
	return c.Layout.Validate()
}
