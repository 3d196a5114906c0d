// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package topk

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/gomlx/topk/pkg/core/dtypes"
	"github.com/gomlx/topk/pkg/core/dtypes/bfloat16"
	"github.com/gomlx/topk/pkg/core/layout"
	"github.com/gomlx/topk/pkg/core/shapes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

var allAlgorithms = []Algorithm{AlgorithmBubble, AlgorithmBitonic, AlgorithmHeap}

// convert test values to T. Values must be representable in T.
func convert[T dtypes.Ordered](values []float64) []T {
	out := make([]T, len(values))
	var zero T
	for ii, v := range values {
		var x any
		switch any(zero).(type) {
		case float32:
			x = float32(v)
		case float64:
			x = v
		case float16.Float16:
			x = float16.Fromfloat32(float32(v))
		case bfloat16.BFloat16:
			x = bfloat16.FromFloat64(v)
		case int8:
			x = int8(v)
		case int16:
			x = int16(v)
		case int32:
			x = int32(v)
		case int64:
			x = int64(v)
		case uint8:
			x = uint8(v)
		case uint16:
			x = uint16(v)
		case uint32:
			x = uint32(v)
		case uint64:
			x = uint64(v)
		}
		out[ii] = x.(T)
	}
	return out
}

func toFloat64[T dtypes.Ordered](values []T) []float64 {
	out := make([]float64, len(values))
	for ii, v := range values {
		switch x := any(v).(type) {
		case float16.Float16:
			out[ii] = float64(x.Float32())
		case bfloat16.BFloat16:
			out[ii] = float64(x.Float32())
		case float32:
			out[ii] = float64(x)
		case float64:
			out[ii] = x
		case int8:
			out[ii] = float64(x)
		case int16:
			out[ii] = float64(x)
		case int32:
			out[ii] = float64(x)
		case int64:
			out[ii] = float64(x)
		case uint8:
			out[ii] = float64(x)
		case uint16:
			out[ii] = float64(x)
		case uint32:
			out[ii] = float64(x)
		case uint64:
			out[ii] = float64(x)
		}
	}
	return out
}

// oracleSlice returns the stable top-k of one slice, using a generic stable sort.
func oracleSlice(slice []float64, k int, mode Mode, sortBy SortBy) ([]float64, []int32) {
	order := make([]int32, len(slice))
	for ii := range order {
		order[ii] = int32(ii)
	}
	slices.SortStableFunc(order, func(a, b int32) int {
		va, vb := slice[a], slice[b]
		if mode == ModeMin {
			va, vb = vb, va
		}
		switch {
		case lessNumeric(vb, va):
			return -1
		case lessNumeric(va, vb):
			return 1
		default:
			return 0
		}
	})
	order = order[:k]
	if sortBy == SortByIndex {
		slices.Sort(order)
	}
	values := make([]float64, k)
	for ii, idx := range order {
		values[ii] = slice[idx]
	}
	return values, order
}

// oracle applies oracleSlice to every slice of the planar data along the axis.
func oracle(data []float64, dims []int, axis, k int, mode Mode, sortBy SortBy) ([]float64, []int32) {
	outer, inner := 1, 1
	for _, d := range dims[:axis] {
		outer *= d
	}
	for _, d := range dims[axis+1:] {
		inner *= d
	}
	axisLen := dims[axis]
	values := make([]float64, outer*k*inner)
	indices := make([]int32, outer*k*inner)
	slice := make([]float64, axisLen)
	for o := range outer {
		for i := range inner {
			for j := range axisLen {
				slice[j] = data[(o*axisLen+j)*inner+i]
			}
			sliceValues, sliceIndices := oracleSlice(slice, k, mode, sortBy)
			for r := range k {
				values[(o*k+r)*inner+i] = sliceValues[r]
				indices[(o*k+r)*inner+i] = sliceIndices[r]
			}
		}
	}
	return values, indices
}

// randomValues with many duplicates.
func randomValues(rng *rand.Rand, n, numDistinct int) []float64 {
	values := make([]float64, n)
	for ii := range values {
		values[ii] = float64(rng.IntN(numDistinct))
	}
	return values
}

// run configures a new engine and executes the selection over data, in the configured layout.
func run[T dtypes.Ordered](t *testing.T, engineConfig string, cfg Config, shape shapes.Shape, data []T) (values []T, indices []int32, e *Engine) {
	t.Helper()
	e = must.M1(New(engineConfig))
	require.NoError(t, e.Configure(cfg, shape))
	outSize := must.M1(layout.PhysicalSize(e.OutputShape(), cfg.Layout))
	values = make([]T, outSize)
	indices = make([]int32, outSize)
	require.NoError(t, e.Execute(data, values, indices))
	return
}

func TestScenarios(t *testing.T) {
	slice := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	shape := shapes.Make(dtypes.Float32, 8)
	for _, algo := range allAlgorithms {
		t.Run(algo.String(), func(t *testing.T) {
			values, indices, e := run(t, "", Config{K: 3, Mode: ModeMax, Stable: true, Algorithm: algo}, shape, convert[float32](slice))
			assert.Equal(t, []float32{9, 6, 5}, values)
			assert.Equal(t, []int32{5, 7, 4}, indices)
			assert.Equal(t, algo, e.Algorithm())
			assert.True(t, e.UsesKernel())

			values, indices, _ = run(t, "", Config{K: 2, Mode: ModeMin, Stable: true, Algorithm: algo}, shape, convert[float32](slice))
			assert.Equal(t, []float32{1, 1}, values)
			assert.Equal(t, []int32{1, 3}, indices)

			values, indices, _ = run(t, "", Config{K: 3, Mode: ModeMax, SortBy: SortByIndex, Stable: true, Algorithm: algo},
				shape, convert[float32](slice))
			assert.Equal(t, []float32{5, 9, 6}, values)
			assert.Equal(t, []int32{4, 5, 7}, indices)
		})
	}
}

func TestDynamicShape(t *testing.T) {
	slice := convert[float32]([]float64{3, 1, 4, 1, 5, 9, 2, 6})
	e := must.M1(New(""))
	require.NoError(t, e.Configure(Config{K: 3, Stable: true}, shapes.Make(dtypes.Float32, shapes.DynamicDim)))
	assert.Equal(t, AlgorithmHeap, e.Algorithm())
	_, prepared := e.Dims()
	assert.False(t, prepared)
	assert.Equal(t, "(Float32)[3]", e.OutputShape().String())

	values, indices := make([]float32, 3), make([]int32, 3)
	require.ErrorIs(t, e.Execute(slice, values, indices), ErrConfiguration, "not prepared yet")

	require.NoError(t, e.PrepareForShape(shapes.Make(dtypes.Float32, 8)))
	require.NoError(t, e.PrepareForShape(shapes.Make(dtypes.Float32, 8)), "idempotent")
	require.NoError(t, e.Execute(slice, values, indices))
	assert.Equal(t, []float32{9, 6, 5}, values)
	assert.Equal(t, []int32{5, 7, 4}, indices)

	// Axis shorter than K: fails for this shape only.
	require.ErrorIs(t, e.PrepareForShape(shapes.Make(dtypes.Float32, 2)), ErrShapeMismatch)
	require.ErrorIs(t, e.PrepareForShape(shapes.Make(dtypes.Float64, 8)), ErrShapeMismatch)
	require.ErrorIs(t, e.PrepareForShape(shapes.Make(dtypes.Float32, 2, 8)), ErrShapeMismatch)
	require.ErrorIs(t, e.PrepareForShape(shapes.Shape{DType: dtypes.Float32, Dimensions: []int{0}}), ErrShapeMismatch)
	require.NoError(t, e.Execute(slice, values, indices))
	assert.Equal(t, []int32{5, 7, 4}, indices)

	// A different axis length rebuilds the tables.
	longer := convert[float32]([]float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5, 9})
	require.NoError(t, e.PrepareForShape(shapes.Make(dtypes.Float32, 12)))
	dims, prepared := e.Dims()
	require.True(t, prepared)
	assert.Equal(t, 12, dims.Axis)
	require.ErrorIs(t, e.Execute(slice, values, indices), ErrShapeMismatch, "input buffer of the previous shape")
	require.NoError(t, e.Execute(longer, values, indices))
	assert.Equal(t, []float32{9, 9, 6}, values)
	assert.Equal(t, []int32{5, 11, 7}, indices)

	// Only the axis is dynamic.
	e = must.M1(New(""))
	require.NoError(t, e.Configure(Config{Axis: 1, K: 2, Mode: ModeMin, Stable: true}, shapes.Make(dtypes.Int32, 2, shapes.DynamicDim)))
	require.ErrorIs(t, e.PrepareForShape(shapes.Make(dtypes.Int32, 3, 4)), ErrShapeMismatch)
	require.NoError(t, e.PrepareForShape(shapes.Make(dtypes.Int32, 2, 4)))
	valuesInt, indicesInt := make([]int32, 4), make([]int32, 4)
	require.NoError(t, e.Execute([]int32{4, 3, 2, 1, 1, 1, 0, 7}, valuesInt, indicesInt))
	assert.Equal(t, []int32{1, 2, 0, 1}, valuesInt)
	assert.Equal(t, []int32{3, 2, 2, 0}, indicesInt)
}

// testStableMatchesOracle checks, for every algorithm and for kernels and reference, that the stable selection
// equals a stable sort of each slice.
func testStableMatchesOracle[T dtypes.Ordered](t *testing.T, dtype dtypes.DType) {
	rng := rand.New(rand.NewPCG(42, uint64(dtype)))
	dims := []int{3, 19, 4}
	shape := shapes.Make(dtype, dims...)
	data := randomValues(rng, shape.Size(), 7)
	input := convert[T](data)
	for axis := range len(dims) {
		for _, mode := range []Mode{ModeMax, ModeMin} {
			for _, sortBy := range []SortBy{SortByValue, SortByIndex} {
				for _, k := range []int{1, 2, dims[axis]} {
					wantValues, wantIndices := oracle(data, dims, axis, k, mode, sortBy)
					for _, algo := range allAlgorithms {
						for _, engineConfig := range []string{"", "reference", "bubble_max_k=0"} {
							name := fmt.Sprintf("axis=%d/%s/%s/k=%d/%s/%q", axis, mode, sortBy, k, algo, engineConfig)
							cfg := Config{Axis: axis, K: k, Mode: mode, SortBy: sortBy, Stable: true, Algorithm: algo}
							values, indices, _ := run(t, engineConfig, cfg, shape, input)
							require.Equal(t, wantValues, toFloat64(values), name)
							require.Equal(t, wantIndices, indices, name)
						}
					}
				}
			}
		}
	}
}

func TestStableMatchesOracle(t *testing.T) {
	t.Run("Float32", func(t *testing.T) { testStableMatchesOracle[float32](t, dtypes.Float32) })
	t.Run("Float64", func(t *testing.T) { testStableMatchesOracle[float64](t, dtypes.Float64) })
	t.Run("Int8", func(t *testing.T) { testStableMatchesOracle[int8](t, dtypes.Int8) })
	t.Run("Int32", func(t *testing.T) { testStableMatchesOracle[int32](t, dtypes.Int32) })
	t.Run("Int64", func(t *testing.T) { testStableMatchesOracle[int64](t, dtypes.Int64) })
	t.Run("Uint8", func(t *testing.T) { testStableMatchesOracle[uint8](t, dtypes.Uint8) })
	t.Run("Uint16", func(t *testing.T) { testStableMatchesOracle[uint16](t, dtypes.Uint16) })
	t.Run("Float16", func(t *testing.T) { testStableMatchesOracle[float16.Float16](t, dtypes.Float16) })
	t.Run("BFloat16", func(t *testing.T) { testStableMatchesOracle[bfloat16.BFloat16](t, dtypes.BFloat16) })
}

// TestUnstable checks the selected set is right without stability, and that kernels and reference agree.
func TestUnstable(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	dims := []int{5, 40}
	shape := shapes.Make(dtypes.Int32, dims...)
	data := randomValues(rng, shape.Size(), 5)
	input := convert[int32](data)
	for _, mode := range []Mode{ModeMax, ModeMin} {
		for _, k := range []int{1, 3, 17, 40} {
			wantValues, _ := oracle(data, dims, 1, k, mode, SortByValue)
			for _, algo := range allAlgorithms {
				name := fmt.Sprintf("%s/k=%d/%s", mode, k, algo)
				cfg := Config{Axis: 1, K: k, Mode: mode, Algorithm: algo}
				values, indices, e := run(t, "", cfg, shape, input)
				require.True(t, e.UsesKernel())
				require.Equal(t, wantValues, toFloat64(values), name)
				for o := range dims[0] {
					seen := make(map[int32]bool)
					for r := range k {
						idx := indices[o*k+r]
						require.False(t, seen[idx], "%s: index %d selected twice", name, idx)
						seen[idx] = true
						require.Equal(t, input[o*dims[1]+int(idx)], values[o*k+r], name)
					}
				}

				refValues, refIndices, refEngine := run(t, "reference", cfg, shape, input)
				require.False(t, refEngine.UsesKernel())
				require.Equal(t, values, refValues, name)
				require.Equal(t, indices, refIndices, name)
			}
		}
	}
}

func TestAlgorithmsAgree(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	shape := shapes.Make(dtypes.Float64, 4, 100)
	input := randomValues(rng, shape.Size(), 30)
	for _, stable := range []bool{true, false} {
		for _, mode := range []Mode{ModeMax, ModeMin} {
			for _, k := range []int{5, 50, 100} {
				cfg := Config{Axis: -1, K: k, Mode: mode, Stable: stable, Algorithm: AlgorithmBubble}
				bubbleValues, bubbleIndices, _ := run(t, "", cfg, shape, input)
				for _, algo := range []Algorithm{AlgorithmBitonic, AlgorithmHeap, AlgorithmAuto} {
					for _, engineConfig := range []string{"", "reference"} {
						name := fmt.Sprintf("stable=%v/%s/k=%d/%s/%q", stable, mode, k, algo, engineConfig)
						cfg.Algorithm = algo
						values, indices, _ := run(t, engineConfig, cfg, shape, input)
						require.Equal(t, bubbleValues, values, name)
						require.Equal(t, bubbleIndices, indices, name)
					}
				}
			}
		}
	}

	// Ties in a non-stable selection of the whole axis.
	slice := convert[int32]([]float64{3, 1, 4, 1, 5, 9, 2, 6})
	for _, algo := range allAlgorithms {
		values, indices, _ := run(t, "", Config{K: 8, Mode: ModeMin, Algorithm: algo}, shapes.Make(dtypes.Int32, 8), slice)
		assert.Equal(t, []int32{1, 1, 2, 3, 4, 5, 6, 9}, values, "%s", algo)
		assert.Equal(t, []int32{1, 3, 6, 0, 2, 4, 7, 5}, indices, "%s", algo)
	}
}

func TestNaNAndSentinels(t *testing.T) {
	nan := math.NaN()
	inf := math.Inf(1)
	data := []float64{1, nan, -inf, 3, nan}
	shape := shapes.Make(dtypes.Float32, 5)
	for _, algo := range allAlgorithms {
		for _, stable := range []bool{true, false} {
			name := fmt.Sprintf("%s/stable=%v", algo, stable)
			values, indices, _ := run(t, "", Config{K: 5, Mode: ModeMax, Stable: stable, Algorithm: algo}, shape, convert[float32](data))
			got := toFloat64(values)
			assert.True(t, math.IsNaN(got[0]) && math.IsNaN(got[1]), "%s: NaN is the largest value, got %v", name, got)
			assert.Equal(t, []float64{3, 1, -inf}, got[2:], name)
			assert.Equal(t, []int32{3, 0, 2}, indices[2:], name)

			// In min mode NaN is the padding of the bitonic network: real NaNs must still be selected.
			values, indices, _ = run(t, "", Config{K: 5, Mode: ModeMin, Stable: stable, Algorithm: algo}, shape, convert[float32](data))
			got = toFloat64(values)
			assert.Equal(t, []float64{-inf, 1, 3}, got[:3], name)
			assert.True(t, math.IsNaN(got[3]) && math.IsNaN(got[4]), name)
			assert.ElementsMatch(t, []int32{1, 4}, indices[3:], name)
			assert.Equal(t, []int32{2, 0, 3}, indices[:3], name)
		}
	}

	// Real values equal to the integer sentinel must win over padding.
	minInt := float64(math.MinInt32)
	values, indices, _ := run(t, "", Config{K: 5, Algorithm: AlgorithmBitonic}, shapes.Make(dtypes.Int32, 5),
		convert[int32]([]float64{minInt, minInt, 2, minInt, minInt}))
	assert.Equal(t, []int32{2, math.MinInt32, math.MinInt32, math.MinInt32, math.MinInt32}, values)
	assert.ElementsMatch(t, []int32{0, 1, 2, 3, 4}, indices)
}

// TestLayouts checks the selection over the same logical tensor gives the same logical outputs in every layout,
// with kernels (one block of lanes per call) and with the reference.
func TestLayouts(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	dims := []int{2, 6, 3, 5}
	shape := shapes.Make(dtypes.Float32, dims...)
	planar := convert[float32](randomValues(rng, shape.Size(), 4))
	for axis := range len(dims) {
		k := min(3, dims[axis])
		for _, algo := range allAlgorithms {
			cfg := Config{Axis: axis, K: k, Mode: ModeMax, Stable: true, Algorithm: algo, Layout: layout.Planar()}
			wantValues, wantIndices, _ := run(t, "", cfg, shape, planar)
			for _, tag := range []layout.Tag{layout.ChannelLast(), layout.Blocked(4), layout.Blocked(8), layout.Blocked(16)} {
				for _, engineConfig := range []string{"", "reference"} {
					name := fmt.Sprintf("axis=%d/%s/%s/%q", axis, algo, tag, engineConfig)
					cfg.Layout = tag
					input := must.M1(layout.Pack(shape, tag, planar))
					values, indices, e := run(t, engineConfig, cfg, shape, input)
					outShape := e.OutputShape()
					require.Equal(t, wantValues, must.M1(layout.Unpack(outShape, tag, values)), name)
					require.Equal(t, wantIndices, must.M1(layout.Unpack(outShape, tag, indices)), name)
				}
			}
		}
	}
}

// TestBlockedScenario embeds the slice of the first scenario in the channel axis of a blocked tensor.
func TestBlockedScenario(t *testing.T) {
	slice := []float32{3, 1, 4, 1, 5, 9, 2, 6}
	shape := shapes.Make(dtypes.Float32, 1, 8, 2)
	planar := make([]float32, 16)
	for j, v := range slice {
		planar[j*2] = v
		planar[j*2+1] = -v
	}
	tag := layout.Blocked(4)
	input := must.M1(layout.Pack(shape, tag, planar))
	for _, algo := range allAlgorithms {
		values, indices, e := run(t, "", Config{Axis: 1, K: 3, Stable: true, Layout: tag, Algorithm: algo}, shape, input)
		dims, _ := e.Dims()
		require.True(t, dims.AxisBlocked)
		outShape := e.OutputShape()
		assert.Equal(t, []float32{9, -1, 6, -1, 5, -2}, must.M1(layout.Unpack(outShape, tag, values)))
		assert.Equal(t, []int32{5, 1, 7, 3, 4, 6}, must.M1(layout.Unpack(outShape, tag, indices)))
	}
}

func TestFallback(t *testing.T) {
	slice := []float64{3, 1, 4, 1, 5, 9, 2, 6}

	// No kernels for 16 bits floats.
	values, indices, e := run(t, "", Config{K: 3, Stable: true}, shapes.Make(dtypes.Float16, 8), convert[float16.Float16](slice))
	assert.False(t, e.UsesKernel())
	assert.Equal(t, []float64{9, 6, 5}, toFloat64(values))
	assert.Equal(t, []int32{5, 7, 4}, indices)

	bf16Values, indices, e := run(t, "", Config{K: 3, Stable: true}, shapes.Make(dtypes.BFloat16, 8), convert[bfloat16.BFloat16](slice))
	assert.False(t, e.UsesKernel())
	assert.Equal(t, []float64{9, 6, 5}, toFloat64(bf16Values))
	assert.Equal(t, []int32{5, 7, 4}, indices)

	// Disabled by the environment.
	t.Setenv(NoKernelsEnv, "1")
	f32Values, indices, e := run(t, "", Config{K: 3, Stable: true}, shapes.Make(dtypes.Float32, 8), convert[float32](slice))
	assert.False(t, e.UsesKernel())
	assert.Equal(t, []float32{9, 6, 5}, f32Values)
	assert.Equal(t, []int32{5, 7, 4}, indices)
	t.Setenv(NoKernelsEnv, "0")

	// Block too large for the platform.
	shape := shapes.Make(dtypes.Float64, 1, 8, 1)
	tag := layout.Blocked(128)
	input := must.M1(layout.Pack(shape, tag, slice))
	f64Values, indices, e := run(t, "", Config{Axis: 1, K: 3, Stable: true, Layout: tag}, shape, input)
	assert.False(t, e.UsesKernel())
	assert.Equal(t, []float64{9, 6, 5}, must.M1(layout.Unpack(e.OutputShape(), tag, f64Values)))
	assert.Equal(t, []int32{5, 7, 4}, must.M1(layout.Unpack(e.OutputShape(), tag, indices)))

	// Same key, compiled once.
	_, err := compileKernel(kernelKey{dtype: dtypes.Float32, algorithm: AlgorithmHeap, k: 1}, DefaultOptions())
	require.NoError(t, err)
	k1 := must.M1(compileKernel(kernelKey{dtype: dtypes.Float32, algorithm: AlgorithmHeap, k: 2}, DefaultOptions()))
	k2 := must.M1(compileKernel(kernelKey{dtype: dtypes.Float32, algorithm: AlgorithmHeap, k: 2}, DefaultOptions()))
	assert.Same(t, k1, k2)
	_, err = compileKernel(kernelKey{dtype: dtypes.Float16, algorithm: AlgorithmHeap, k: 2}, DefaultOptions())
	assert.ErrorIs(t, err, ErrKernelCompilation)
}

func TestParallel(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	shape := shapes.Make(dtypes.Float32, 64, 33, 3)
	input := convert[float32](randomValues(rng, shape.Size(), 10))
	for _, algo := range allAlgorithms {
		cfg := Config{Axis: 1, K: 4, Stable: true, Algorithm: algo}
		wantValues, wantIndices, _ := run(t, "parallelism=0", cfg, shape, input)
		for _, engineConfig := range []string{"parallelism=4,min_parallel_units=1", "parallelism=-1,min_parallel_units=1"} {
			values, indices, _ := run(t, engineConfig, cfg, shape, input)
			require.Equal(t, wantValues, values, "%s %s", algo, engineConfig)
			require.Equal(t, wantIndices, indices, "%s %s", algo, engineConfig)
		}
	}
}

func TestErrors(t *testing.T) {
	shape := shapes.Make(dtypes.Float32, 2, 8)
	e := must.M1(New(""))
	assert.Equal(t, "topk.Engine(not configured)", e.String())
	assert.False(t, e.OutputShape().Ok())
	require.ErrorIs(t, e.PrepareForShape(shape), ErrConfiguration)
	require.ErrorIs(t, e.Execute(make([]float32, 16), make([]float32, 2), make([]int32, 2)), ErrConfiguration)

	for _, tc := range []struct {
		name  string
		cfg   Config
		shape shapes.Shape
		want  error
	}{
		{"k=0", Config{Axis: 1, K: 0}, shape, ErrConfiguration},
		{"k>axis", Config{Axis: 1, K: 9}, shape, ErrConfiguration},
		{"axis out of range", Config{Axis: 2, K: 1}, shape, ErrConfiguration},
		{"negative axis out of range", Config{Axis: -3, K: 1}, shape, ErrConfiguration},
		{"bool", Config{Axis: 1, K: 1}, shapes.Make(dtypes.Bool, 2, 8), ErrConfiguration},
		{"scalar", Config{Axis: 0, K: 1}, shapes.Make(dtypes.Float32), ErrConfiguration},
		{"invalid mode", Config{Axis: 1, K: 1, Mode: 7}, shape, ErrConfiguration},
		{"invalid block size", Config{Axis: 1, K: 1, Layout: layout.Blocked(6)}, shape, ErrUnsupportedLayout},
		{"channel-last rank 1", Config{Axis: 0, K: 1, Layout: layout.ChannelLast()}, shapes.Make(dtypes.Float32, 8), ErrUnsupportedLayout},
		{"zero dimension", Config{Axis: 0, K: 1}, shapes.Shape{DType: dtypes.Float32, Dimensions: []int{2, 0}}, ErrConfiguration},
		{"negative dimension", Config{Axis: 1, K: 1}, shapes.Shape{DType: dtypes.Float32, Dimensions: []int{-3, 8}}, ErrConfiguration},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := e.Configure(tc.cfg, tc.shape)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, "topk.Engine(not configured)", e.String())
		})
	}

	require.NoError(t, e.Configure(Config{Axis: 1, K: 3, Stable: true}, shape))
	assert.Contains(t, e.String(), "bubble(in-place)")
	assert.Equal(t, "(Float32)[2 3]", e.OutputShape().String())
	input := make([]float32, 16)
	values, indices := make([]float32, 6), make([]int32, 6)
	require.NoError(t, e.Execute(input, values, indices))
	require.ErrorIs(t, e.Execute(input[:15], values, indices), ErrShapeMismatch)
	require.ErrorIs(t, e.Execute(make([]float64, 16), values, indices), ErrShapeMismatch)
	require.ErrorIs(t, e.Execute(input, make([]float64, 6), indices), ErrShapeMismatch)
	require.ErrorIs(t, e.Execute(input, values, indices[:5]), ErrShapeMismatch)
	require.ErrorIs(t, e.Execute(float32(1), values, indices), ErrShapeMismatch)
	require.ErrorIs(t, e.PrepareForShape(shapes.Make(dtypes.Float32, 2, 9)), ErrShapeMismatch)
	require.ErrorIs(t, e.PrepareForShape(shapes.Make(dtypes.Float32, 2, shapes.DynamicDim)), ErrShapeMismatch)
}

func TestSupportsConfiguration(t *testing.T) {
	shape := shapes.Make(dtypes.Float32, 2, 8, 4)
	assert.True(t, SupportsConfiguration(shape, -1, layout.Planar()))
	assert.True(t, SupportsConfiguration(shape, 1, layout.Blocked(8)))
	assert.True(t, SupportsConfiguration(shapes.Make(dtypes.Float16, 2, shapes.DynamicDim), 1, layout.ChannelLast()))
	assert.False(t, SupportsConfiguration(shape, 3, layout.Planar()))
	assert.False(t, SupportsConfiguration(shape, 1, layout.Blocked(3)))
	assert.False(t, SupportsConfiguration(shapes.Make(dtypes.Bool, 8), 0, layout.Planar()))
	assert.False(t, SupportsConfiguration(shapes.Make(dtypes.Float32, 8), 0, layout.ChannelLast()))
	assert.False(t, SupportsConfiguration(shapes.Shape{DType: dtypes.Float32, Dimensions: []int{0, 8}}, 1, layout.Planar()))
}

func TestTopK(t *testing.T) {
	values, indices, err := TopK([]int64{3, 1, 4, 1, 5, 9, 2, 6}, []int{2, 4}, 1, 2, ModeMax)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 3, 9, 6}, values)
	assert.Equal(t, []int32{2, 0, 1, 3}, indices)

	values, indices, err = TopK([]int64{3, 1, 4, 1, 5, 9, 2, 6}, []int{2, 4}, 0, 1, ModeMin)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 1, 2, 1}, values)
	assert.Equal(t, []int32{0, 0, 1, 0}, indices)

	_, _, err = TopK([]float32{1, 2, 3}, []int{4}, 0, 1, ModeMax)
	require.ErrorIs(t, err, ErrShapeMismatch)
	_, _, err = TopK([]float32{1, 2, 3}, []int{0, 3}, 0, 1, ModeMax)
	require.ErrorIs(t, err, ErrConfiguration)
	_, _, err = TopK([]float32{1, 2, 3}, []int{3}, 0, 4, ModeMax)
	require.ErrorIs(t, err, ErrConfiguration)
}
