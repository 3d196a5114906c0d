// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package topk

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/gomlx/topk/pkg/core/dtypes"
)

// BitonicNetwork is a fixed sequence of compare-exchange operations.
//
// Each operation is a pair (first, second) of positions, flattened in the Pairs slices: after the operation the
// position first holds the better of the two elements.
type BitonicNetwork struct {
	// Size is the number of positions sorted by the value network: the axis length rounded up to a power of 2.
	// Positions beyond the axis length are padding.
	Size int

	// ValuePairs sorts Size positions by value (and original index, as a secondary key).
	// Empty if the algorithm is not bitonic.
	ValuePairs []int32
	ValueCount int

	// IndexSize is K rounded up to a power of 2, if an index pass is needed.
	IndexSize int

	// IndexPairs sorts the first IndexSize positions by original index, used for SortByIndex.
	IndexPairs []int32
	IndexCount int
}

// nextPow2 returns the smallest power of 2 >= n, for n >= 1.
func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// forEachBitonicPair enumerates the compare-exchange operations of a bitonic sorting network
// of n (a power of 2) positions, in execution order.
func forEachBitonicPair(n int, fn func(first, second int)) {
	for size := 2; size <= n; size <<= 1 {
		for stride := size >> 1; stride > 0; stride >>= 1 {
			for i := range n {
				j := i ^ stride
				if j <= i {
					continue
				}
				if i&size == 0 {
					fn(i, j)
				} else {
					fn(j, i)
				}
			}
		}
	}
}

// bitonicPairs returns the flattened pairs of forEachBitonicPair.
func bitonicPairs(n int) (pairs []int32, count int) {
	if n > 1 {
		// n/2 operations per stage, log2(n)*(log2(n)+1)/2 stages.
		logN := bits.Len(uint(n)) - 1
		pairs = make([]int32, 0, n*logN*(logN+1)/2)
	}
	forEachBitonicPair(n, func(first, second int) {
		pairs = append(pairs, int32(first), int32(second))
	})
	return pairs, len(pairs) / 2
}

// BuildBitonicNetwork builds the value network over the axis length rounded up to a power of 2, and if
// needIndexPass, the index network over K rounded up to a power of 2.
func BuildBitonicNetwork(axisLen, k int, needIndexPass bool) BitonicNetwork {
	net := BitonicNetwork{Size: nextPow2(axisLen)}
	net.ValuePairs, net.ValueCount = bitonicPairs(net.Size)
	if needIndexPass {
		net.addIndexPass(k)
	}
	return net
}

func (net *BitonicNetwork) addIndexPass(k int) {
	net.IndexSize = nextPow2(k)
	net.IndexPairs, net.IndexCount = bitonicPairs(net.IndexSize)
}

// IndexSequences holds the original positions carried along with the values.
type IndexSequences struct {
	// IdxSeq is 0..A-1.
	IdxSeq []int32

	// IdxBlock is IdxSeq with each label replicated BlockSize times, so each lane of a block tracks its own index:
	// IdxBlock[j*BlockSize + lane] = j. Only set if BlockSize > 1.
	IdxBlock  []int32
	BlockSize int
}

// BuildIndexSequences for the axis length and the number of lanes processed together.
func BuildIndexSequences(axisLen, blockSize int) IndexSequences {
	seqs := IndexSequences{IdxSeq: make([]int32, axisLen), BlockSize: max(blockSize, 1)}
	for j := range seqs.IdxSeq {
		seqs.IdxSeq[j] = int32(j)
	}
	if blockSize > 1 {
		seqs.IdxBlock = make([]int32, axisLen*blockSize)
		for j := range axisLen {
			for lane := range blockSize {
				seqs.IdxBlock[j*blockSize+lane] = int32(j)
			}
		}
	}
	return seqs
}

// Lane returns the sequence to use for the given number of lanes.
func (seqs *IndexSequences) Lane(lanes int) []int32 {
	if lanes > 1 {
		return seqs.IdxBlock
	}
	return seqs.IdxSeq
}

// Tables are the auxiliary read-only data of one axis length, shared by all workers.
type Tables struct {
	key     tablesKey
	Network BitonicNetwork
	Indices IndexSequences
}

type tablesKey struct {
	axisLen, k           int
	valuePass, indexPass bool
	lanes                int
}

func (key tablesKey) String() string {
	return fmt.Sprintf("A=%d, K=%d, value_pass=%v, index_pass=%v, lanes=%d",
		key.axisLen, key.k, key.valuePass, key.indexPass, key.lanes)
}

func buildTables(key tablesKey) *Tables {
	t := &Tables{key: key}
	if key.valuePass {
		t.Network = BuildBitonicNetwork(key.axisLen, key.k, key.indexPass)
	} else {
		t.Network.Size = key.axisLen
		if key.indexPass {
			t.Network.addIndexPass(key.k)
		}
	}
	t.Indices = BuildIndexSequences(key.axisLen, key.lanes)
	return t
}

// AxisLen the tables were built for.
func (t *Tables) AxisLen() int { return t.key.axisLen }

// scratchPositions is the number of positions (per lane) a work unit needs in its scratch buffers.
func (t *Tables) scratchPositions() int {
	return max(t.Network.Size, t.Network.IndexSize, t.key.k)
}

// indexPadding is the index of the padding positions of the index network: larger than any valid index.
const indexPadding = math.MaxInt32

// Sentinel returns the value (of the dtype's Go type) used to pad a slice for the given mode, such that it is
// never better than a real value: the lowest value in ModeMax, and the highest in ModeMin. Since NaN orders above
// every number, it's NaN for floats in ModeMin.
//
// Real values equal to the sentinel are not a problem: padding positions have indices >= axis length, which lose
// every tie.
func Sentinel(dtype dtypes.DType, mode Mode) any {
	if mode == ModeMax {
		return dtype.LowestValue()
	}
	if dtype.IsFloat() {
		return dtype.NaNValue()
	}
	return dtype.HighestValue()
}
