// Package features reduces channel pixels under each entity's mask to
// scalar features stored on the entity.
package features

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"slices"
	"strings"

	"cell-tracer/internal/entity"
	"cell-tracer/internal/image"
	"cell-tracer/internal/ledger"
	"cell-tracer/internal/logger"
	"cell-tracer/internal/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// OutOfBoundsTag marks entities whose slice leaves the image.
const OutOfBoundsTag = "out-of-bounds"

// Policy decides what happens to an entity whose slice leaves the image.
type Policy int

const (
	// Ignore tags the entity and computes nothing for it.
	Ignore Policy = iota
	// Crop tags the entity and reduces only the pixels inside the image.
	Crop
	// Raise fails the whole extraction with ErrOutOfBounds.
	Raise
)

func (p Policy) String() string {
	switch p {
	case Ignore:
		return "ignore"
	case Crop:
		return "crop"
	case Raise:
		return "raise"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p >= Ignore && p <= Raise
}

// ParsePolicy accepts "ignore", "crop" or "raise".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "ignore", "":
		return Ignore, nil
	case "crop":
		return Crop, nil
	case "raise":
		return Raise, nil
	}
	return 0, fmt.Errorf("unknown out-of-bounds policy %q", s)
}

// Options configures Extract.
type Options struct {
	// GroupBy is the channel metadata key. Scalars are stored under
	// "{GroupBy}_{value}_{reducer}".
	GroupBy  string
	Reducers map[string]Reducer // nil uses DefaultReducerNames
	Policy   Policy
	Workers  int // <= 0 uses GOMAXPROCS
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

// Result summarises one extraction.
type Result struct {
	Entities    int
	OutOfBounds int
	Failures    int // reductions recorded as NaN
	Keys        []string
}

type update struct {
	values   map[string]float64
	oob      bool
	failures int
}

// Extract computes features for every active entity of l. Nothing is
// written to any entity until all of them are done, so a cancelled or
// failed run leaves the ledger untouched.
func Extract(ctx context.Context, l *ledger.Ledger, stack image.Stack, opts Options) (Result, error) {
	log := logger.Component(opts.Logger, "features")
	if !opts.Policy.Valid() {
		return Result{}, fmt.Errorf("invalid out-of-bounds policy %d", int(opts.Policy))
	}
	if err := stack.Validate(); err != nil {
		return Result{}, err
	}
	reducers := opts.Reducers
	if len(reducers) == 0 {
		reducers, _ = Lookup(nil)
	}

	var channels image.Stack
	for _, ch := range stack {
		if _, ok := ch.Meta[opts.GroupBy]; ok {
			channels = append(channels, ch)
		} else {
			log.Debug().Str("channel", ch.Name).Str("key", opts.GroupBy).Msg("channel lacks metadata key, skipped")
		}
	}
	if len(channels) == 0 {
		return Result{}, fmt.Errorf("no channel carries metadata key %q: %w", opts.GroupBy, entity.ErrNotFound)
	}

	var targets []*entity.Entity
	for e := range l.IterActive() {
		if e.HasShape() {
			targets = append(targets, e)
		}
	}
	names := make([]string, 0, len(reducers))
	for n := range reducers {
		names = append(names, n)
	}
	slices.Sort(names)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	updates := make([]update, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, e := range targets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			u, err := measure(e, stack[0], channels, opts.GroupBy, names, reducers, opts.Policy)
			if err != nil {
				return err
			}
			updates[i] = u
			return nil
		})
	}
	err := g.Wait()
	if ctx.Err() != nil {
		log.Warn().Msg("extraction cancelled, discarding results")
		return Result{}, entity.Cancelled(ctx)
	}
	if err != nil {
		return Result{}, err
	}

	res := Result{Entities: len(targets)}
	keys := make(map[string]struct{})
	for i, e := range targets {
		u := updates[i]
		if u.oob {
			e.AddTag(OutOfBoundsTag)
			res.OutOfBounds++
			opts.Metrics.IncOutOfBounds()
		}
		for k, v := range u.values {
			e.SetScalar(k, v)
			keys[k] = struct{}{}
		}
		for range u.failures {
			opts.Metrics.IncReducerFailure()
		}
		res.Failures += u.failures
		l.Touch(e)
	}
	for k := range keys {
		res.Keys = append(res.Keys, k)
	}
	slices.Sort(res.Keys)

	log.Info().
		Int("entities", res.Entities).
		Int("channels", len(channels)).
		Int("out_of_bounds", res.OutOfBounds).
		Int("failures", res.Failures).
		Msg("features extracted")
	return res, nil
}

// measure computes one entity's features without modifying it.
func measure(e *entity.Entity, ref *image.Channel, channels image.Stack, groupBy string,
	names []string, reducers map[string]Reducer, policy Policy) (update, error) {
	u := update{values: make(map[string]float64)}
	inside := e.Slc.Within(ref.Height, ref.Width)
	if !inside {
		u.oob = true
		switch policy {
		case Raise:
			return u, fmt.Errorf("entity %d slice %+v: %w", e.ObjectID, e.Slc, entity.ErrOutOfBounds)
		case Ignore:
			return u, nil
		}
	}

	for _, ch := range channels {
		samples := sample(e, ch)
		prefix := groupBy + "_" + ch.Meta[groupBy] + "_"
		for _, name := range names {
			v, err := reduce(reducers[name], samples)
			if err != nil {
				v = math.NaN()
				u.failures++
			}
			u.values[prefix+name] = v
		}
	}
	return u, nil
}

// sample returns the channel pixels under the entity's mask, skipping any
// outside the channel.
func sample(e *entity.Entity, ch *image.Channel) []float64 {
	out := make([]float64, 0, e.Mask.Count())
	for r := 0; r < e.Mask.Rows; r++ {
		y := e.Slc.Rows.Start + r
		if y < 0 || y >= ch.Height {
			continue
		}
		for c := 0; c < e.Mask.Cols; c++ {
			x := e.Slc.Cols.Start + c
			if x < 0 || x >= ch.Width || !e.Mask.At(r, c) {
				continue
			}
			out = append(out, ch.At(y, x))
		}
	}
	return out
}
