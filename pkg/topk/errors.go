// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package topk

import (
	"github.com/gomlx/topk/pkg/core/layout"
	"github.com/pkg/errors"
)

// Errors returned (wrapped) by the Engine. Use errors.Is to match them.
var (
	// ErrConfiguration is returned by Configure for invalid configurations, e.g. K outside [1, axisLength].
	ErrConfiguration = errors.New("invalid top-k configuration")

	// ErrUnsupportedLayout is returned when the selection axis can't be resolved under the requested layout.
	ErrUnsupportedLayout = layout.ErrUnsupportedLayout

	// ErrKernelCompilation is never surfaced to the caller: the engine logs it and permanently
	// falls back to the reference implementation for the configuration.
	ErrKernelCompilation = errors.New("kernel compilation failed")

	// ErrShapeMismatch is returned by PrepareForShape (or Execute) when the concrete shape or buffers don't
	// match the configuration, e.g. axis length 0 or smaller than K. It only affects that execution.
	ErrShapeMismatch = errors.New("shape mismatch")
)
