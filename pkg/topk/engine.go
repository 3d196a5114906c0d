// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package topk implements an exact top-k selection engine over multi-dimensional tensors.
//
// For a tensor, an axis and a count K, the Engine selects the K largest (ModeMax) or smallest (ModeMin)
// elements along the axis, with their original positions along the axis, for every slice of the tensor
// orthogonal to the axis (a "work item").
//
// Tensors are flat Go slices (e.g. []float32) in one of the layouts of package layout. The outputs have the
// shape of the input with the axis dimension replaced by K, in the same layout.
//
// Each work item is processed by a kernel compiled for the configuration (dtype, mode, stability, layout,
// algorithm and K). If there is no kernel for the configuration on the platform (e.g. for Float16 and BFloat16),
// the engine uses the reference implementation instead, with the same output.
//
// Example:
//
//	engine := must.M1(topk.New(""))
//	shape := shapes.Make(dtypes.Float32, 2, 8)
//	err := engine.Configure(topk.Config{Axis: -1, K: 3, Stable: true}, shape)
//	...
//	values, indices := make([]float32, 2*3), make([]int32, 2*3)
//	err = engine.Execute(input, values, indices)
package topk

import (
	"fmt"
	"os"
	"reflect"
	"sync"

	"github.com/gomlx/topk/internal/workerspool"
	"github.com/gomlx/topk/pkg/core/dtypes"
	"github.com/gomlx/topk/pkg/core/layout"
	"github.com/gomlx/topk/pkg/core/shapes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Engine runs the top-k selection of one configuration at a time.
//
// Configure sets the configuration, PrepareForShape sets the concrete shape (it's done by Configure for static
// shapes), and Execute runs the selection. They can be called from different goroutines: they are serialized.
type Engine struct {
	opts Options
	pool *workerspool.Pool

	// mu serializes Configure, PrepareForShape and Execute.
	mu sync.Mutex

	// Set by Configure.
	configured bool
	cfg        Config
	shape      shapes.Shape // Possibly with dynamic dimensions.
	axis       int          // Normalized cfg.Axis.
	algorithm  Algorithm
	inPlace    bool
	kernel     Kernel
	usesKernel bool

	// Set by PrepareForShape.
	prepared      bool
	current       shapes.Shape
	dims, outDims layout.Dims
	tables        *Tables
	tablesCache   map[tablesKey]*Tables
	scratch       scratchPool
}

// New creates an Engine with the given configuration, see ParseOptions for the format.
func New(config string) (*Engine, error) {
	opts, err := ParseOptions(config)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(opts), nil
}

// NewFromEnv creates an Engine configured by the environment variable ConfigEnv ("TOPK_CONFIG").
func NewFromEnv() (*Engine, error) {
	config := os.Getenv(ConfigEnv)
	e, err := New(config)
	if err != nil {
		return nil, errors.WithMessagef(err, "parsing $%s=%q", ConfigEnv, config)
	}
	return e, nil
}

// NewWithOptions creates an Engine with the given options.
func NewWithOptions(opts Options) *Engine {
	e := &Engine{
		opts:        opts,
		pool:        workerspool.New(),
		tablesCache: make(map[tablesKey]*Tables),
	}
	e.pool.SetMaxParallelism(opts.Parallelism)
	return e
}

// Options of the engine.
func (e *Engine) Options() Options {
	return e.opts
}

// SupportsConfiguration returns whether a top-k on the given axis of a tensor with the shape (precision and
// dimensions, possibly dynamic) and layout is supported.
func SupportsConfiguration(shape shapes.Shape, axis int, tag layout.Tag) bool {
	_, err := validateShape(shape, axis, tag)
	return err == nil
}

// validateShape and return the normalized axis.
func validateShape(shape shapes.Shape, axis int, tag layout.Tag) (int, error) {
	if !shape.DType.IsOrdered() {
		return 0, errors.Wrapf(ErrConfiguration, "dtype %s is not supported for top-k selection", shape.DType)
	}
	rank := shape.Rank()
	if rank < 1 {
		return 0, errors.Wrapf(ErrConfiguration, "top-k requires a tensor of rank >= 1, got shape %s", shape)
	}
	for _, dim := range shape.Dimensions {
		if dim < 1 && dim != shapes.DynamicDim {
			return 0, errors.Wrapf(ErrConfiguration, "invalid dimension %d in shape %s", dim, shape)
		}
	}
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return 0, errors.Wrapf(ErrConfiguration, "axis %d out of range for shape %s", axis, shape)
	}
	if err := tag.ValidateRank(rank); err != nil {
		return 0, err
	}
	if shape.IsStatic() {
		if _, err := layout.Resolve(shape, axis, tag); err != nil {
			return 0, err
		}
	}
	return axis, nil
}

// Configure the engine for a selection over tensors of the given shape.
//
// The shape dtype is the element precision. Dimensions may be dynamic (shapes.DynamicDim), in which case
// PrepareForShape must be called with the concrete shape before every execution. For static shapes the engine
// is prepared immediately.
//
// It returns an error matching ErrConfiguration or ErrUnsupportedLayout if the configuration is invalid.
// The engine is left unconfigured in that case.
func (e *Engine) Configure(cfg Config, shape shapes.Shape) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configured, e.prepared = false, false
	e.tables = nil
	clear(e.tablesCache)

	if err := cfg.validate(); err != nil {
		return errors.WithMessagef(err, "configuring %s", cfg)
	}
	axis, err := validateShape(shape, cfg.Axis, cfg.Layout)
	if err != nil {
		return errors.WithMessagef(err, "configuring %s", cfg)
	}
	axisLen := shape.Dimensions[axis]
	axisKnown := axisLen != shapes.DynamicDim
	if axisKnown && cfg.K > axisLen {
		return errors.Wrapf(ErrConfiguration, "k=%d is larger than the axis %d dimension %d of shape %s", cfg.K, axis, axisLen, shape)
	}

	e.cfg, e.shape, e.axis = cfg, shape.Clone(), axis
	e.algorithm, e.inPlace = SelectAlgorithm(cfg, axisLen, axisKnown, e.opts)
	key := kernelKey{
		dtype:     shape.DType,
		mode:      cfg.Mode,
		stable:    cfg.Stable,
		sortBy:    cfg.SortBy,
		layout:    cfg.Layout,
		algorithm: e.algorithm,
		k:         cfg.K,
		inPlace:   e.inPlace,
	}
	e.kernel, err = compileKernel(key, e.opts)
	e.usesKernel = err == nil
	if err != nil {
		klog.V(1).Infof("topk: %v: using the reference implementation for %s", err, key)
		e.kernel = newReference(key)
	}
	e.configured = true
	klog.V(1).Infof("topk: configured %s for %s: algorithm=%s, in-place=%v, kernel=%v", cfg, shape, e.algorithm, e.inPlace, e.usesKernel)
	if shape.IsStatic() {
		return e.prepareLocked(shape)
	}
	return nil
}

// PrepareForShape sets the concrete shape of the next executions.
//
// It re-derives the dimensions of the work items and, if the axis length changed, the tables used by the
// algorithms. It's a no-op if the shape didn't change since the last call.
//
// It returns an error matching ErrShapeMismatch if the shape doesn't match the configured one, or if its axis
// length is 0 or smaller than K. Previously prepared state remains valid in that case.
func (e *Engine) PrepareForShape(shape shapes.Shape) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prepareLocked(shape)
}

func (e *Engine) prepareLocked(shape shapes.Shape) error {
	if !e.configured {
		return errors.Wrap(ErrConfiguration, "PrepareForShape called before a successful Configure")
	}
	if e.prepared && shape.Equal(e.current) {
		return nil
	}
	if !shape.IsStatic() {
		return errors.Wrapf(ErrShapeMismatch, "PrepareForShape requires a concrete shape, got %s", shape)
	}
	if !e.shape.Matches(shape) {
		return errors.Wrapf(ErrShapeMismatch, "shape %s doesn't match the configured shape %s", shape, e.shape)
	}
	for axis, dim := range shape.Dimensions {
		if dim < 1 {
			return errors.Wrapf(ErrShapeMismatch, "shape %s has an empty axis %d", shape, axis)
		}
	}
	axisLen := shape.Dimensions[e.axis]
	if e.cfg.K > axisLen {
		return errors.Wrapf(ErrShapeMismatch, "k=%d is larger than the axis %d dimension %d of shape %s", e.cfg.K, e.axis, axisLen, shape)
	}
	dims, err := layout.Resolve(shape, e.axis, e.cfg.Layout)
	if err != nil {
		return errors.WithMessagef(err, "preparing top-k for shape %s", shape)
	}

	lanes := e.kernel.WorkAmount(dims)
	key := tablesKey{
		axisLen:   axisLen,
		k:         e.cfg.K,
		valuePass: e.algorithm == AlgorithmBitonic,
		indexPass: e.cfg.SortBy == SortByIndex,
		lanes:     lanes,
	}
	if e.tables == nil || e.tables.key != key {
		tables, found := e.tablesCache[key]
		if !found {
			tables = buildTables(key)
			e.tablesCache[key] = tables
			klog.V(1).Infof("topk: built tables for %s: %d value comparators, %d index comparators",
				key, tables.Network.ValueCount, tables.Network.IndexCount)
		}
		e.tables = tables
	}
	e.scratch.ensure(e.pool.NumWorkers(), shape.DType, e.tables.scratchPositions()*lanes)

	e.current = shape.Clone()
	e.dims = dims
	e.outDims = dims.WithAxis(e.cfg.K)
	e.prepared = true
	return nil
}

// Execute the selection over input, and write the selected values and their original indices along the axis.
//
// input, values and indices are flat slices in the configured layout: input (e.g. []float32 for Float32) has
// the shape given to PrepareForShape, values (same Go type) and indices have the OutputShape.
// All buffers are validated before any work starts: it either writes the full outputs or returns an error
// matching ErrShapeMismatch (or ErrConfiguration, if the engine was not prepared).
func (e *Engine) Execute(input any, values any, indices []int32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.configured || !e.prepared {
		return errors.Wrap(ErrConfiguration, "Execute called before the engine was configured and prepared for a shape")
	}
	dtype := e.current.DType
	if got := dtypes.FromAny(input); got != dtype {
		return errors.Wrapf(ErrShapeMismatch, "input of type %T (dtype %s) doesn't match the configured dtype %s", input, got, dtype)
	}
	if got := dtypes.FromAny(values); got != dtype {
		return errors.Wrapf(ErrShapeMismatch, "values of type %T (dtype %s) doesn't match the configured dtype %s", values, got, dtype)
	}
	if got, want := sliceLen(input), e.dims.PhysicalSize(); got != want {
		return errors.Wrapf(ErrShapeMismatch, "input has %d elements, shape %s in layout %s requires %d", got, e.current, e.cfg.Layout, want)
	}
	outSize := e.outDims.PhysicalSize()
	if got := sliceLen(values); got != outSize {
		return errors.Wrapf(ErrShapeMismatch, "values has %d elements, output shape %s in layout %s requires %d",
			got, e.outputShapeLocked(), e.cfg.Layout, outSize)
	}
	if len(indices) != outSize {
		return errors.Wrapf(ErrShapeMismatch, "indices has %d elements, output shape %s in layout %s requires %d",
			len(indices), e.outputShapeLocked(), e.cfg.Layout, outSize)
	}
	e.sweep(input, values, indices)
	return nil
}

// sweep runs every work unit of the current shape. Each worker reuses its own CallArgs and Scratch.
func (e *Engine) sweep(input, values any, indices []int32) {
	lanes := e.kernel.WorkAmount(e.dims)
	unitsPerOuter := e.dims.Inner / lanes
	numUnits := e.dims.Outer * unitsPerOuter
	args := make([]CallArgs, e.pool.NumWorkers())
	for worker := range args {
		args[worker] = CallArgs{
			Input:   input,
			Values:  values,
			Indices: indices,
			Dims:    e.dims,
			OutDims: e.outDims,
			Tables:  e.tables,
			Scratch: e.scratch.get(worker),
		}
	}
	numWorkers := e.pool.Sweep(numUnits, e.opts.MinParallelUnits, func(worker, unit int) {
		workerArgs := &args[worker]
		workerArgs.Outer = unit / unitsPerOuter
		workerArgs.Inner = (unit % unitsPerOuter) * lanes
		e.kernel.Execute(workerArgs)
	})
	klog.V(2).Infof("topk: swept %d units of %d work items with %d workers (%s)", numUnits, lanes, numWorkers, e.dims)
}

// sliceLen returns the length of s, or -1 if it's not a slice.
func sliceLen(s any) int {
	rv := reflect.ValueOf(s)
	if rv.Kind() != reflect.Slice {
		return -1
	}
	return rv.Len()
}

// OutputShape returns the logical shape of the outputs: the prepared shape (or the configured one, if not
// prepared yet) with the axis dimension replaced by K.
func (e *Engine) OutputShape() shapes.Shape {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outputShapeLocked()
}

func (e *Engine) outputShapeLocked() shapes.Shape {
	if !e.configured {
		return shapes.Invalid()
	}
	shape := e.shape
	if e.prepared {
		shape = e.current
	}
	return shape.WithDim(e.axis, e.cfg.K)
}

// Algorithm selected by Configure.
func (e *Engine) Algorithm() Algorithm {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.algorithm
}

// UsesKernel returns whether the configuration runs on a specialized kernel (as opposed to the reference
// implementation).
func (e *Engine) UsesKernel() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.usesKernel
}

// Dims of the prepared shape. It returns false if the engine is not prepared.
func (e *Engine) Dims() (layout.Dims, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dims, e.prepared
}

// String implements fmt.Stringer.
func (e *Engine) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.configured {
		return "topk.Engine(not configured)"
	}
	impl := "reference"
	if e.usesKernel {
		impl = "kernel"
	}
	algo := e.algorithm.String()
	if e.inPlace {
		algo += "(in-place)"
	}
	s := fmt.Sprintf("topk.Engine(%s, shape=%s, %s, %s", e.cfg, e.shape, algo, impl)
	if e.prepared {
		s += fmt.Sprintf(", %s", e.dims)
	}
	return s + ")"
}
