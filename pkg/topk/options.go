// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package topk

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// ConfigEnv is the environment variable with the default engine configuration used by NewFromEnv.
	// See ParseOptions for its format.
	ConfigEnv = "TOPK_CONFIG"

	// NoKernelsEnv disables the specialized kernels if set to anything other than "" or "0":
	// every configuration uses the reference implementation.
	NoKernelsEnv = "TOPK_NO_KERNELS"
)

// Options of the Engine, not specific to one configuration.
type Options struct {
	// BubbleMaxAxis is the largest axis length for which bubble is chosen over bitonic.
	BubbleMaxAxis int

	// BubbleMaxK is the largest K for which bubble is chosen regardless of the axis length. It's also the
	// largest K for which the "in-place" bubble variant is used.
	BubbleMaxK int

	// Parallelism is the number of workers used by Execute. 0 disables parallelism, -1 means unlimited.
	Parallelism int

	// MinParallelUnits is the minimum number of work units for Execute to use more than one worker.
	MinParallelUnits int

	// Reference forces the use of the reference implementation.
	Reference bool
}

// DefaultOptions for the host platform.
func DefaultOptions() Options {
	return Options{
		BubbleMaxAxis:    32,
		BubbleMaxK:       HostPlatform.DefaultBubbleMaxK(),
		Parallelism:      runtime.NumCPU(),
		MinParallelUnits: 16,
	}
}

// ParseOptions parses an engine configuration, starting from DefaultOptions.
//
// The config is a comma-separated list of "key=value" or "key" (for boolean keys) items:
//
//   - "bubble_max_axis=<int>": largest axis length for which bubble is chosen.
//   - "bubble_max_k=<int>": largest K for which bubble (in-place) is chosen.
//   - "parallelism=<int>": number of workers, 0 to disable parallelism, -1 for unlimited.
//   - "min_parallel_units=<int>": minimum number of work units to go parallel.
//   - "reference" or "reference=<bool>": always use the reference implementation.
//
// Example: "bubble_max_axis=64,parallelism=4".
func ParseOptions(config string) (Options, error) {
	opts := DefaultOptions()
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, hasValue := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		var err error
		switch key {
		case "bubble_max_axis":
			opts.BubbleMaxAxis, err = parseIntOption(key, value, 1)
		case "bubble_max_k":
			opts.BubbleMaxK, err = parseIntOption(key, value, 0)
		case "parallelism":
			opts.Parallelism, err = parseIntOption(key, value, -1)
		case "min_parallel_units":
			opts.MinParallelUnits, err = parseIntOption(key, value, 0)
		case "reference":
			opts.Reference = true
			if hasValue {
				opts.Reference, err = strconv.ParseBool(value)
				if err != nil {
					err = errors.Wrapf(ErrConfiguration, "invalid value %q for engine option %q", value, key)
				}
			}
		default:
			err = errors.Wrapf(ErrConfiguration, "unknown engine option %q in %q", key, config)
		}
		if err != nil {
			return opts, err
		}
	}
	return opts, nil
}

func parseIntOption(key, value string, minValue int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Wrapf(ErrConfiguration, "invalid integer value %q for engine option %q", value, key)
	}
	if v < minValue {
		return 0, errors.Wrapf(ErrConfiguration, "engine option %q must be >= %d, got %d", key, minValue, v)
	}
	return v, nil
}

// String returns the options in the format accepted by ParseOptions.
func (o Options) String() string {
	s := fmt.Sprintf("bubble_max_axis=%d,bubble_max_k=%d,parallelism=%d,min_parallel_units=%d",
		o.BubbleMaxAxis, o.BubbleMaxK, o.Parallelism, o.MinParallelUnits)
	if o.Reference {
		s += ",reference"
	}
	return s
}

// kernelsDisabledByEnv checks NoKernelsEnv.
func kernelsDisabledByEnv() bool {
	v := os.Getenv(NoKernelsEnv)
	return v != "" && v != "0"
}
