// Package shape edits entity regions: merge, brush draw and erase, disk
// creation, rectangle reduce and split, delete.
//
// Regions are combined in raster space on a pixelops.Canvas and traced
// back to contours, so every result goes through Entity.UpdateContour.
package shape

import (
	"fmt"

	"cell-tracer/internal/entity"
	"cell-tracer/internal/ledger"
	"cell-tracer/internal/logger"
	"cell-tracer/internal/metrics"
	"cell-tracer/internal/pixelops"
	"cell-tracer/pkg/geometry"

	"github.com/rs/zerolog"
)

// MergeMode selects how Merge treats inputs that do not all touch.
type MergeMode int

const (
	// Strict requires every input to reach every other through a chain of
	// touching inputs.
	Strict MergeMode = iota
	// Loose merges every input that touches at least one other input and
	// leaves the rest alone.
	Loose
)

func (m MergeMode) String() string {
	switch m {
	case Strict:
		return "strict"
	case Loose:
		return "loose"
	default:
		return "unknown"
	}
}

// Options configures an Editor.
type Options struct {
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Editor applies shape operations to entities owned by one ledger.
type Editor struct {
	ledger  *ledger.Ledger
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// New returns an Editor working on l.
func New(l *ledger.Ledger, opts Options) *Editor {
	return &Editor{
		ledger:  l,
		log:     logger.Component(opts.Logger, "shape"),
		metrics: opts.Metrics,
	}
}

// managed checks that e is an active entity of the editor's ledger.
func (ed *Editor) managed(e *entity.Entity) error {
	if e == nil || ed.ledger.GetEntity(ledger.ByEid(e.Eid)) != e {
		return fmt.Errorf("entity not in ledger: %w", entity.ErrNotFound)
	}
	if !e.IsActive() {
		return fmt.Errorf("entity %s is historic: %w", e.Eid, entity.ErrNotFound)
	}
	return nil
}

func checkRadius(r int) error {
	if r < 0 {
		return fmt.Errorf("brush radius %d: %w", r, entity.ErrInvalidRadius)
	}
	return nil
}

// boxOf returns the inclusive pixel box of a placed mask.
func boxOf(slc pixelops.Slice) (geometry.PointInt, geometry.PointInt) {
	return slc.Origin(), geometry.PointInt{X: slc.Cols.Stop - 1, Y: slc.Rows.Stop - 1}
}

// sameRegion reports whether a traced result equals the entity's region.
func sameRegion(e *entity.Entity, slc pixelops.Slice, mask pixelops.Mask) bool {
	return e.Slc == slc && e.Mask.Equal(mask)
}

// reshape gives e the region traced from mask. Tracing fills every ring, so
// a hole cut fully inside e can trace back to the region e already has;
// reshape reports false and leaves e alone in that case.
func reshape(e *entity.Entity, slc pixelops.Slice, mask pixelops.Mask) (bool, error) {
	if sameRegion(e, slc, mask) {
		return false, nil
	}
	next := e.Clone()
	if err := next.FromMask(slc, mask, nil); err != nil {
		return false, err
	}
	if sameRegion(e, next.Slc, next.Mask) {
		return false, nil
	}
	e.Contour, e.IntContour, e.BBox = next.Contour, next.IntContour, next.BBox
	e.Slc, e.Mask = next.Slc, next.Mask
	return true, nil
}
