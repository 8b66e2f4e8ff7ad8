package features

import (
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrEmptySample is returned by reducers given no pixels.
var ErrEmptySample = errors.New("empty pixel sample")

// Reducer turns the pixel sample under one entity's mask into one value.
type Reducer func(samples []float64) (float64, error)

func nonEmpty(fn func([]float64) float64) Reducer {
	return func(x []float64) (float64, error) {
		if len(x) == 0 {
			return 0, ErrEmptySample
		}
		return fn(x), nil
	}
}

// Builtin lists the reducers available by name.
var Builtin = map[string]Reducer{
	"mean": nonEmpty(func(x []float64) float64 { return stat.Mean(x, nil) }),
	"sum":  nonEmpty(floats.Sum),
	"median": nonEmpty(median),
	"std": nonEmpty(func(x []float64) float64 {
		_, std := stat.PopMeanStdDev(x, nil)
		return std
	}),
	"min":  nonEmpty(floats.Min),
	"max":  nonEmpty(floats.Max),
	"area": func(x []float64) (float64, error) { return float64(len(x)), nil },
}

// median averages the two middle values of an even sample. stat.Quantile
// returns the lower one.
func median(x []float64) float64 {
	s := slices.Clone(x)
	slices.Sort(s)
	lo := stat.Quantile(0.5, stat.Empirical, s, nil)
	if len(s)%2 == 1 {
		return lo
	}
	return stat.Mean([]float64{lo, s[len(s)/2]}, nil)
}

// DefaultReducerNames is used when no reducers are configured.
var DefaultReducerNames = []string{"mean", "sum"}

// Lookup resolves reducer names against Builtin.
func Lookup(names []string) (map[string]Reducer, error) {
	if len(names) == 0 {
		names = DefaultReducerNames
	}
	out := make(map[string]Reducer, len(names))
	for _, n := range names {
		fn, ok := Builtin[n]
		if !ok {
			return nil, fmt.Errorf("unknown reducer %q", n)
		}
		out[n] = fn
	}
	return out, nil
}

// reduce runs fn and converts errors and panics into an error.
func reduce(fn Reducer, samples []float64) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reducer panicked: %v", r)
		}
	}()
	return fn(samples)
}
