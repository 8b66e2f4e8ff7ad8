package shape

import (
	"fmt"
	"slices"

	"cell-tracer/internal/entity"
	"cell-tracer/internal/pixelops"

	"github.com/google/uuid"
)

// Merge unions touching entities into one successor. Two entities touch
// when they share a pixel or a pixel edge.
//
// The successor takes the smallest object id of its parents, the union of
// their tags and, per scalar key, the mean over the parents carrying it.
// Generic["parents"] lists the parent eids in input order. The parents are
// retired. Fewer than two inputs is a no-op returning (nil, nil). When the
// inputs do not touch as the mode requires, ErrNonAdjacent is returned and
// nothing changes.
func (ed *Editor) Merge(entities []*entity.Entity, mode MergeMode) (*entity.Entity, error) {
	inputs := dedupe(entities)
	if len(inputs) < 2 {
		return nil, nil
	}
	for _, e := range inputs {
		if err := ed.managed(e); err != nil {
			return nil, err
		}
		if !e.HasShape() {
			return nil, fmt.Errorf("entity %s has no shape: %w", e.Eid, entity.ErrInvalidContour)
		}
	}

	parents, err := selectTouching(inputs, mode)
	if err != nil {
		return nil, err
	}

	succ, err := combine(parents)
	if err != nil {
		return nil, err
	}
	if succ.ObjectID == 0 {
		succ.SetObjectID(ed.ledger.AllocateID())
	}
	if err := ed.ledger.Replace(parents, succ); err != nil {
		return nil, err
	}

	ed.metrics.IncShapeOp("merge")
	ed.log.Info().
		Int("parents", len(parents)).
		Int("object_id", succ.ObjectID).
		Str("mode", mode.String()).
		Msg("entities merged")
	return succ, nil
}

func dedupe(entities []*entity.Entity) []*entity.Entity {
	seen := make(map[uuid.UUID]bool, len(entities))
	out := make([]*entity.Entity, 0, len(entities))
	for _, e := range entities {
		if e == nil || seen[e.Eid] {
			continue
		}
		seen[e.Eid] = true
		out = append(out, e)
	}
	return out
}

// selectTouching builds the touch graph and returns the inputs to merge.
func selectTouching(inputs []*entity.Entity, mode MergeMode) ([]*entity.Entity, error) {
	n := len(inputs)
	adj := make([][]bool, n)
	for i := range adj {
		adj[i] = make([]bool, n)
	}
	anyEdge := false
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			a, b := inputs[i], inputs[j]
			if pixelops.Touches(a.Slc, a.Mask, b.Slc, b.Mask) {
				adj[i][j], adj[j][i] = true, true
				anyEdge = true
			}
		}
	}
	if !anyEdge {
		return nil, fmt.Errorf("no two of %d entities touch: %w", n, entity.ErrNonAdjacent)
	}

	switch mode {
	case Strict:
		seen := make([]bool, n)
		seen[0] = true
		queue := []int{0}
		reached := 1
		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			for j := 0; j < n; j++ {
				if adj[i][j] && !seen[j] {
					seen[j] = true
					reached++
					queue = append(queue, j)
				}
			}
		}
		if reached != n {
			return nil, fmt.Errorf("only %d of %d entities connected: %w", reached, n, entity.ErrNonAdjacent)
		}
		return inputs, nil
	case Loose:
		var out []*entity.Entity
		for i := 0; i < n; i++ {
			if slices.Contains(adj[i], true) {
				out = append(out, inputs[i])
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown merge mode %d", int(mode))
	}
}

// combine builds the successor of parents without touching the ledger.
func combine(parents []*entity.Entity) (*entity.Entity, error) {
	lo, hi := boxOf(parents[0].Slc)
	for _, p := range parents[1:] {
		plo, phi := boxOf(p.Slc)
		lo, hi = lo.Min(plo), hi.Max(phi)
	}
	canvas := pixelops.NewCanvas(lo, hi)
	defer canvas.Close()
	for _, p := range parents {
		canvas.Paint(p.Slc, p.Mask)
	}
	slc, mask, ok := canvas.Mask()
	if !ok {
		return nil, fmt.Errorf("merged region is empty: %w", entity.ErrInvalidContour)
	}

	succ := entity.NewRandom()
	succ.EType = parents[0].EType
	succ.Ref = parents[0].Ref
	if err := succ.FromMask(slc, mask, nil); err != nil {
		return nil, err
	}

	eids := make([]uuid.UUID, 0, len(parents))
	sums := make(map[string]float64)
	counts := make(map[string]int)
	minID := 0
	for _, p := range parents {
		eids = append(eids, p.Eid)
		for t := range p.Tags {
			succ.AddTag(t)
		}
		for k, v := range p.Scalars {
			if k == entity.ObjectIDKey {
				continue
			}
			sums[k] += v
			counts[k]++
		}
		if p.ObjectID > 0 && (minID == 0 || p.ObjectID < minID) {
			minID = p.ObjectID
		}
	}
	for k, s := range sums {
		succ.SetScalar(k, s/float64(counts[k]))
	}
	succ.SetParents(eids)
	succ.SetObjectID(minID)
	return succ, nil
}
