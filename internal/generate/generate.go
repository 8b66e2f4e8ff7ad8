// Package generate builds entity populations from label pixmaps and
// polygon lists.
package generate

import (
	"context"
	"fmt"
	"runtime"

	"cell-tracer/internal/entity"
	"cell-tracer/internal/ledger"
	"cell-tracer/internal/logger"
	"cell-tracer/internal/metrics"
	"cell-tracer/internal/pixelops"
	"cell-tracer/pkg/geometry"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Options configures FromPixmap.
type Options struct {
	// Workers is the number of parallel tracers; <= 0 uses GOMAXPROCS.
	Workers int
	// SearchWindow bounds the per-label scan; <= 0 scans the whole map.
	SearchWindow int
	// EType is assigned to every generated entity.
	EType   entity.EType
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// DefaultOptions returns exact whole-map extraction of Cell entities.
func DefaultOptions() Options {
	return Options{EType: entity.Cell}
}

// Polygon is one input to FromContours.
type Polygon struct {
	ID      int
	Contour geometry.Contour
}

// FromPixmap adds one entity per distinct positive label to l. The
// entity's object id is the label. Labels are split across workers; the
// results are added in ascending label order once every worker is done.
//
// If ctx is cancelled nothing is added and the error wraps ErrCancelled.
// If any insertion fails, entities added by this call are removed again.
func FromPixmap(ctx context.Context, l *ledger.Ledger, labels pixelops.LabelMap, opts Options) ([]*entity.Entity, error) {
	log := logger.Component(opts.Logger, "generate")
	values := pixelops.Labels(labels)
	if len(values) == 0 {
		log.Info().Msg("pixmap has no labels")
		return nil, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, len(values))

	out := make([]*entity.Entity, len(values))
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			// Worker w owns indices w, w+workers, ...
			for i := w; i < len(values); i += workers {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e, err := traceLabel(labels, values[i], opts)
				if err != nil {
					return err
				}
				out[i] = e
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			log.Warn().Msg("generation cancelled, discarding results")
			return nil, entity.Cancelled(ctx)
		}
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, entity.Cancelled(ctx)
	}

	for i, e := range out {
		if err := l.AddEntity(e); err != nil {
			for _, done := range out[:i] {
				l.PopEntity(ledger.ByEid(done.Eid))
			}
			return nil, fmt.Errorf("label %d: %w", values[i], err)
		}
	}

	opts.Metrics.AddGenerated(len(out))
	log.Info().Int("entities", len(out)).Int("workers", workers).Msg("pixmap traced")
	return out, nil
}

func traceLabel(labels pixelops.LabelMap, value uint32, opts Options) (*entity.Entity, error) {
	slc, mask, err := pixelops.BoundingBoxOfValue(labels, value, opts.SearchWindow)
	if err != nil {
		return nil, err
	}
	e := entity.NewRandom()
	e.EType = opts.EType
	e.SetObjectID(int(value))
	if err := e.FromMask(slc, mask, nil); err != nil {
		return nil, fmt.Errorf("label %d: %w", value, err)
	}
	return e, nil
}

// FromContours builds one entity per polygon and adds it under the
// polygon's id. Insertion stops at the first failure; entities added
// before it are removed again.
func FromContours(l *ledger.Ledger, polygons []Polygon, opts Options) ([]*entity.Entity, error) {
	out := make([]*entity.Entity, 0, len(polygons))
	rollback := func() {
		for _, e := range out {
			l.PopEntity(ledger.ByEid(e.Eid))
		}
	}
	for _, p := range polygons {
		if p.ID <= 0 {
			rollback()
			return nil, fmt.Errorf("polygon id %d: %w", p.ID, entity.ErrInvalidID)
		}
		if !p.Contour.Finite() {
			rollback()
			return nil, fmt.Errorf("polygon %d: non-finite coordinate: %w", p.ID, entity.ErrInvalidContour)
		}
		e := entity.NewRandom()
		e.EType = opts.EType
		e.SetObjectID(p.ID)
		if err := e.FromIntContour(p.Contour.Round()); err != nil {
			rollback()
			return nil, fmt.Errorf("polygon %d: %w", p.ID, err)
		}
		if err := l.AddEntity(e); err != nil {
			rollback()
			return nil, fmt.Errorf("polygon %d: %w", p.ID, err)
		}
		out = append(out, e)
	}
	opts.Metrics.AddGenerated(len(out))
	logger.Component(opts.Logger, "generate").Info().Int("entities", len(out)).Msg("polygons added")
	return out, nil
}
