// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package topk

import (
	"github.com/dustin/go-humanize"
	"github.com/gomlx/topk/pkg/core/dtypes"
	"k8s.io/klog/v2"
)

// Scratch holds the working storage of one worker: the values and original indices of the work unit being
// processed, laid out as [position][lane].
//
// It's never shared between workers that run concurrently.
type Scratch struct {
	dtype   dtypes.DType
	values  any // []T, with T the Go type of dtype.
	indices []int32
}

func newScratch(dtype dtypes.DType, size int) *Scratch {
	return &Scratch{
		dtype:   dtype,
		values:  dtype.MakeSlice(size),
		indices: make([]int32, size),
	}
}

// Len is the number of elements the scratch holds.
func (s *Scratch) Len() int { return len(s.indices) }

// Bytes used by the scratch buffers.
func (s *Scratch) Bytes() int {
	return len(s.indices) * (s.dtype.Size() + 4)
}

// scratchPool holds one Scratch per worker, reused across work units and executions as long as they are large enough.
type scratchPool struct {
	buffers []*Scratch
}

// ensure there are numWorkers buffers of at least size elements of dtype.
func (p *scratchPool) ensure(numWorkers int, dtype dtypes.DType, size int) {
	if len(p.buffers) < numWorkers {
		p.buffers = append(p.buffers, make([]*Scratch, numWorkers-len(p.buffers))...)
	}
	var allocated, total int
	for ii := range numWorkers {
		s := p.buffers[ii]
		if s == nil || s.dtype != dtype || s.Len() < size {
			s = newScratch(dtype, size)
			p.buffers[ii] = s
			allocated++
		}
		total += s.Bytes()
	}
	if allocated > 0 && klog.V(1).Enabled() {
		klog.Infof("topk: allocated %d scratch buffers of %d %s elements, %s in total for %d workers",
			allocated, size, dtype, humanize.Bytes(uint64(total)), numWorkers)
	}
}

// get the scratch of a worker.
func (p *scratchPool) get(worker int) *Scratch {
	return p.buffers[worker]
}
