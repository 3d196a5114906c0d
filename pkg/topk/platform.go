// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package topk

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// Platform describes the vector capabilities of the host, as far as the kernels are concerned.
type Platform struct {
	Name string

	// VectorBytes is the width of the widest vector register.
	VectorBytes int

	// NumVectorRegisters available to a kernel.
	NumVectorRegisters int
}

// HostPlatform is detected at start-up.
var HostPlatform = detectPlatform()

func detectPlatform() Platform {
	switch runtime.GOARCH {
	case "amd64":
		if cpu.X86.HasAVX512F {
			return Platform{Name: "avx512", VectorBytes: 64, NumVectorRegisters: 32}
		}
		if cpu.X86.HasAVX2 {
			return Platform{Name: "avx2", VectorBytes: 32, NumVectorRegisters: 16}
		}
		return Platform{Name: "sse4", VectorBytes: 16, NumVectorRegisters: 16}
	case "arm64":
		if cpu.ARM64.HasSVE {
			return Platform{Name: "sve", VectorBytes: 32, NumVectorRegisters: 32}
		}
		return Platform{Name: "neon", VectorBytes: 16, NumVectorRegisters: 32}
	default:
		return Platform{Name: "scalar", VectorBytes: 16, NumVectorRegisters: 16}
	}
}

// KernelBlockBudget is the largest block (in bytes) a kernel handles on a blocked layout:
// each work unit must fit in 4 vector registers.
func (p Platform) KernelBlockBudget() int {
	return 4 * p.VectorBytes
}

// DefaultBubbleMaxK is the largest K for which the in-place bubble keeps its buffer in registers: half of the
// registers hold values, the other half indices, minus 2 for the element being inserted.
func (p Platform) DefaultBubbleMaxK() int {
	return max(p.NumVectorRegisters/2-2, 1)
}
