// topk_bench runs the top-k engine over a random tensor with each of the selection algorithms, and reports
// the time per execution and whether the outputs match the reference implementation.
//
// Example:
//
//	topk_bench -shape=16,1024,8 -axis=1 -k=10 -layout=blocked8 -runs=50
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gomlx/topk/pkg/core/dtypes"
	"github.com/gomlx/topk/pkg/core/dtypes/bfloat16"
	"github.com/gomlx/topk/pkg/core/layout"
	"github.com/gomlx/topk/pkg/core/shapes"
	"github.com/gomlx/topk/pkg/topk"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

var (
	flagShape  = flag.String("shape", "8,4096", "Comma-separated dimensions of the input tensor.")
	flagDType  = flag.String("dtype", "float32", "Precision of the input tensor, e.g. float32, int32, float16.")
	flagAxis   = flag.Int("axis", -1, "Axis of the selection, negative values count from the end.")
	flagK      = flag.Int("k", 8, "Number of elements to select.")
	flagMode   = flag.String("mode", "max", "Selection mode: \"max\" or \"min\".")
	flagStable = flag.Bool("stable", true, "Stable selection: among equal values the smaller index is selected first.")
	flagByIdx  = flag.Bool("sort_by_index", false, "Output the selected elements in order of their original index.")
	flagLayout = flag.String("layout", "planar", "Layout of the input: planar, channel-last or blocked(<size>).")
	flagAlgos  = flag.String("algorithms", "auto,bubble,bitonic,heap", "Comma-separated list of algorithms to benchmark.")
	flagRuns   = flag.Int("runs", 20, "Number of executions per algorithm.")
	flagConfig = flag.String("config", "", "Engine configuration, e.g. \"parallelism=4,bubble_max_axis=64\". "+
		"If empty, $"+topk.ConfigEnv+" is used.")
	flagDistinct = flag.Int("distinct", 0, "If > 0, the number of distinct values in the input, to benchmark ties.")
	flagSeed     = flag.Uint64("seed", 42, "Random seed for the input values.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if err := run(); err != nil {
		klog.Errorf("topk_bench failed: %+v", err)
		os.Exit(1)
	}
}

// benchSetup holds the parsed flags.
type benchSetup struct {
	shape      shapes.Shape
	cfg        topk.Config
	algorithms []topk.Algorithm
	config     string
}

func run() error {
	var setup benchSetup
	dims, err := parseDims(*flagShape)
	if err != nil {
		return err
	}
	dtype, found := dtypes.MapOfNames[*flagDType]
	if !found {
		return errors.Errorf("unknown dtype %q", *flagDType)
	}
	setup.shape = shapes.Make(dtype, dims...)
	setup.cfg = topk.Config{Axis: *flagAxis, K: *flagK, Stable: *flagStable}
	switch strings.ToLower(*flagMode) {
	case "max":
		setup.cfg.Mode = topk.ModeMax
	case "min":
		setup.cfg.Mode = topk.ModeMin
	default:
		return errors.Errorf("invalid -mode=%q, valid values are \"max\" and \"min\"", *flagMode)
	}
	if *flagByIdx {
		setup.cfg.SortBy = topk.SortByIndex
	}
	setup.cfg.Layout, err = layout.ParseTag(*flagLayout)
	if err != nil {
		return err
	}
	for _, name := range strings.Split(*flagAlgos, ",") {
		algo, err := topk.ParseAlgorithm(name)
		if err != nil {
			return err
		}
		setup.algorithms = append(setup.algorithms, algo)
	}
	setup.config = *flagConfig
	if setup.config == "" {
		setup.config = os.Getenv(topk.ConfigEnv)
	}
	if !topk.SupportsConfiguration(setup.shape, setup.cfg.Axis, setup.cfg.Layout) {
		return errors.Errorf("top-k on axis %d of %s with layout %s is not supported", setup.cfg.Axis, setup.shape, setup.cfg.Layout)
	}

	switch dtype {
	case dtypes.Float32:
		return bench(setup, convertValues[float32])
	case dtypes.Float64:
		return bench(setup, convertValues[float64])
	case dtypes.Float16:
		return bench(setup, func(values []float64) []float16.Float16 {
			out := make([]float16.Float16, len(values))
			for ii, v := range values {
				out[ii] = float16.Fromfloat32(float32(v))
			}
			return out
		})
	case dtypes.BFloat16:
		return bench(setup, func(values []float64) []bfloat16.BFloat16 {
			out := make([]bfloat16.BFloat16, len(values))
			for ii, v := range values {
				out[ii] = bfloat16.FromFloat64(v)
			}
			return out
		})
	case dtypes.Int8:
		return bench(setup, convertValues[int8])
	case dtypes.Int16:
		return bench(setup, convertValues[int16])
	case dtypes.Int32:
		return bench(setup, convertValues[int32])
	case dtypes.Int64:
		return bench(setup, convertValues[int64])
	case dtypes.Uint8:
		return bench(setup, convertValues[uint8])
	case dtypes.Uint16:
		return bench(setup, convertValues[uint16])
	case dtypes.Uint32:
		return bench(setup, convertValues[uint32])
	case dtypes.Uint64:
		return bench(setup, convertValues[uint64])
	default:
		return errors.Errorf("dtype %s not supported by topk_bench", dtype)
	}
}

func parseDims(s string) ([]int, error) {
	var dims []int
	for _, part := range strings.Split(s, ",") {
		dim, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || dim < 1 {
			return nil, errors.Errorf("invalid dimension %q in -shape=%q", part, s)
		}
		dims = append(dims, dim)
	}
	return dims, nil
}

type podNumeric interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64
}

func convertValues[T podNumeric](values []float64) []T {
	out := make([]T, len(values))
	for ii, v := range values {
		out[ii] = T(v)
	}
	return out
}

// randomValues in [0, 100) or, if distinct > 0, in [0, distinct).
func randomValues(n, distinct int, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	values := make([]float64, n)
	for ii := range values {
		if distinct > 0 {
			values[ii] = float64(rng.IntN(distinct))
		} else {
			values[ii] = rng.Float64() * 100
		}
	}
	return values
}

func bench[T dtypes.Ordered](setup benchSetup, convert func([]float64) []T) error {
	planar := convert(randomValues(setup.shape.Size(), *flagDistinct, *flagSeed))
	input, err := layout.Pack(setup.shape, setup.cfg.Layout, planar)
	if err != nil {
		return err
	}

	// Reference outputs.
	refCfg := setup.cfg
	refCfg.Algorithm = topk.AlgorithmHeap
	refValues, refIndices, _, err := execute(setup.config+",reference", refCfg, setup.shape, input, 1)
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("Top-k of %s: %s", setup.shape, setup.cfg)))
	results := make([]benchResult, 0, len(setup.algorithms))
	for _, algo := range setup.algorithms {
		cfg := setup.cfg
		cfg.Algorithm = algo
		values, indices, e, err := execute(setup.config, cfg, setup.shape, input, *flagRuns)
		if err != nil {
			return err
		}
		dims, _ := e.Dims()
		perRun := values.elapsed / time.Duration(*flagRuns)
		results = append(results, benchResult{
			algorithm: e.Algorithm().String(),
			kernel:    e.UsesKernel(),
			dims:      dims,
			perRun:    perRun,
			rate:      float64(setup.shape.Size()) / perRun.Seconds(),
			matches:   slices.Equal(values.perRun, refValues.perRun) && slices.Equal(indices, refIndices),
		})
	}
	fmt.Println(renderResults(results))
	return nil
}

// timedValues are the values output by the last run, and the total time of all runs.
type timedValues[T any] struct {
	perRun  []T
	elapsed time.Duration
}

// execute the configuration runs times, displaying a progress bar.
func execute[T dtypes.Ordered](config string, cfg topk.Config, shape shapes.Shape, input []T, runs int) (
	values timedValues[T], indices []int32, e *topk.Engine, err error) {
	e, err = topk.New(strings.Trim(config, ","))
	if err != nil {
		return
	}
	if err = e.Configure(cfg, shape); err != nil {
		return
	}
	outSize := must.M1(layout.PhysicalSize(e.OutputShape(), cfg.Layout))
	values.perRun = make([]T, outSize)
	indices = make([]int32, outSize)

	output := termenv.NewOutput(os.Stderr)
	theme := progressbar.ThemeASCII
	if output.Profile != termenv.Ascii {
		theme = progressbar.ThemeUnicode
	}
	bar := progressbar.NewOptions(runs,
		progressbar.OptionSetDescription(fmt.Sprintf("%-8s", e.Algorithm())),
		progressbar.OptionEnableColorCodes(output.Profile != termenv.Ascii),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("runs"),
		progressbar.OptionSetTheme(theme),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)
	for range runs {
		start := time.Now()
		if err = e.Execute(input, values.perRun, indices); err != nil {
			return
		}
		values.elapsed += time.Since(start)
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	klog.V(1).Infof("%s: %d runs in %s", e, runs, values.elapsed)
	return
}
