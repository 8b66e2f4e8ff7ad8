package shape

import (
	"fmt"

	"cell-tracer/internal/entity"
	"cell-tracer/internal/pixelops"
	"cell-tracer/pkg/geometry"
)

// Draw extends e by the union of disks of radius r centred on each path
// point. The brush must touch the entity; a brush that does not, or that
// adds no pixel, leaves e unchanged and returns false. An entity without a
// shape takes the brush region as its shape.
func (ed *Editor) Draw(e *entity.Entity, path []geometry.PointInt, r int) (bool, error) {
	if err := checkRadius(r); err != nil {
		return false, err
	}
	if err := ed.managed(e); err != nil {
		return false, err
	}
	bslc, bmask, ok := pixelops.DiskUnion(path, r)
	if !ok {
		return false, nil
	}

	if !e.HasShape() {
		if err := e.FromMask(bslc, bmask, nil); err != nil {
			return false, err
		}
		ed.changed(e, "draw")
		return true, nil
	}
	if !pixelops.Touches(e.Slc, e.Mask, bslc, bmask) {
		ed.log.Debug().Int("object_id", e.ObjectID).Msg("brush does not touch entity")
		return false, nil
	}

	lo, hi := boxOf(e.Slc)
	blo, bhi := boxOf(bslc)
	canvas := pixelops.NewCanvas(lo.Min(blo), hi.Max(bhi))
	defer canvas.Close()
	canvas.Paint(e.Slc, e.Mask)
	canvas.Paint(bslc, bmask)

	slc, mask, _ := canvas.Mask()
	changed, err := reshape(e, slc, mask)
	if err != nil || !changed {
		return false, err
	}
	ed.changed(e, "draw")
	return true, nil
}

// Erase removes the union of disks of radius r centred on each path point
// from e. If nothing remains, e is retired and its object id released.
// changed is false when the brush removed no pixel.
func (ed *Editor) Erase(e *entity.Entity, path []geometry.PointInt, r int) (changed, retired bool, err error) {
	if err := checkRadius(r); err != nil {
		return false, false, err
	}
	if err := ed.managed(e); err != nil {
		return false, false, err
	}
	if len(path) == 0 || !e.HasShape() {
		return false, false, nil
	}

	lo, hi := boxOf(e.Slc)
	canvas := pixelops.NewCanvas(lo, hi)
	defer canvas.Close()
	canvas.Paint(e.Slc, e.Mask)
	for _, p := range path {
		canvas.ClearDisk(p, r)
	}
	return ed.applyCut(e, canvas, "erase")
}

// applyCut writes the canvas back to e, retiring e when the canvas is empty.
func (ed *Editor) applyCut(e *entity.Entity, canvas *pixelops.Canvas, op string) (changed, retired bool, err error) {
	slc, mask, ok := canvas.Mask()
	if !ok {
		if err := ed.ledger.Retire(e); err != nil {
			return false, false, err
		}
		ed.metrics.IncShapeOp(op)
		ed.log.Info().Int("object_id", e.ObjectID).Str("op", op).Msg("entity emptied and retired")
		return true, true, nil
	}
	changed, err = reshape(e, slc, mask)
	if err != nil || !changed {
		return false, false, err
	}
	ed.changed(e, op)
	return true, false, nil
}

func (ed *Editor) changed(e *entity.Entity, op string) {
	ed.ledger.Touch(e)
	ed.metrics.IncShapeOp(op)
	ed.log.Debug().Int("object_id", e.ObjectID).Str("op", op).Msg("entity reshaped")
}

// Create adds a Cell entity shaped as a disk of radius r around p under a
// fresh object id.
func (ed *Editor) Create(p geometry.PointInt, r int) (*entity.Entity, error) {
	if err := checkRadius(r); err != nil {
		return nil, err
	}
	slc, mask, ok := pixelops.DiskUnion([]geometry.PointInt{p}, r)
	if !ok {
		return nil, fmt.Errorf("empty disk: %w", entity.ErrInvalidContour)
	}
	e := entity.NewRandom()
	e.EType = entity.Cell
	if err := e.FromMask(slc, mask, nil); err != nil {
		return nil, err
	}
	if err := ed.ledger.AddWithFreshID(e); err != nil {
		return nil, err
	}
	ed.metrics.IncShapeOp("create")
	ed.log.Info().Int("object_id", e.ObjectID).Int("radius", r).Msg("entity created")
	return e, nil
}
