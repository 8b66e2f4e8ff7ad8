package shape

import (
	"fmt"

	"cell-tracer/internal/entity"
	"cell-tracer/internal/ledger"
	"cell-tracer/internal/pixelops"
	"cell-tracer/pkg/geometry"
)

func bboxRect(e *entity.Entity) geometry.RectInt {
	return geometry.RectFromCorners(e.BBox[0], e.BBox[1])
}

// Reduce removes every pixel inside rect from each entity. Entities left
// empty are retired. It returns the entities that changed.
func (ed *Editor) Reduce(rect geometry.RectInt, entities []*entity.Entity) ([]*entity.Entity, error) {
	if rect.Empty() {
		return nil, nil
	}
	var out []*entity.Entity
	for _, e := range dedupe(entities) {
		if err := ed.managed(e); err != nil {
			return out, err
		}
		if !e.HasShape() || !bboxRect(e).Intersects(rect) {
			continue
		}
		canvas := pixelops.NewCanvas(e.BBox[0], e.BBox[1])
		canvas.Paint(e.Slc, e.Mask)
		canvas.ClearRect(rect)
		changed, _, err := ed.applyCut(e, canvas, "reduce")
		canvas.Close()
		if err != nil {
			return out, err
		}
		if changed {
			out = append(out, e)
		}
	}
	return out, nil
}

// Delete retires e and removes it from the ledger.
func (ed *Editor) Delete(e *entity.Entity) error {
	if err := ed.ledger.Retire(e); err != nil {
		return err
	}
	ed.ledger.PopEntity(ledger.ByEid(e.Eid))
	ed.metrics.IncShapeOp("delete")
	ed.log.Info().Int("object_id", e.ObjectID).Msg("entity deleted")
	return nil
}

// Split moves the part of e inside rect into a new entity with a fresh
// object id, the same type, ref and tags. Both parts must be non-empty.
func (ed *Editor) Split(e *entity.Entity, rect geometry.RectInt) (*entity.Entity, error) {
	if err := ed.managed(e); err != nil {
		return nil, err
	}
	if !e.HasShape() || !bboxRect(e).Intersects(rect) {
		return nil, fmt.Errorf("rectangle misses entity: %w", entity.ErrInvalidContour)
	}

	box := bboxRect(e)
	ilo, ihi := box.Min().Max(rect.Min()), box.Max().Min(rect.Max())
	inside := pixelops.NewCanvas(ilo, ihi)
	defer inside.Close()
	inside.Paint(e.Slc, e.Mask)
	islc, imask, ok := inside.Mask()
	if !ok {
		return nil, fmt.Errorf("no pixels inside rectangle: %w", entity.ErrInvalidContour)
	}

	rest := pixelops.NewCanvas(e.BBox[0], e.BBox[1])
	defer rest.Close()
	rest.Paint(e.Slc, e.Mask)
	rest.ClearRect(rect)
	rslc, rmask, ok := rest.Mask()
	if !ok {
		return nil, fmt.Errorf("rectangle covers the whole entity: %w", entity.ErrInvalidContour)
	}

	part := entity.NewRandom()
	part.EType = e.EType
	part.Ref = e.Ref
	for t := range e.Tags {
		part.AddTag(t)
	}
	if err := part.FromMask(islc, imask, nil); err != nil {
		return nil, err
	}
	remainder := e.Clone()
	if err := remainder.FromMask(rslc, rmask, nil); err != nil {
		return nil, err
	}
	if err := ed.ledger.AddWithFreshID(part); err != nil {
		return nil, err
	}

	e.Contour, e.IntContour, e.BBox, e.Slc, e.Mask =
		remainder.Contour, remainder.IntContour, remainder.BBox, remainder.Slc, remainder.Mask
	ed.ledger.Touch(e)
	ed.metrics.IncShapeOp("split")
	ed.log.Info().Int("object_id", e.ObjectID).Int("new_object_id", part.ObjectID).Msg("entity split")
	return part, nil
}
