package ledger

import (
	"fmt"
	"slices"

	"cell-tracer/internal/entity"

	"github.com/google/uuid"
)

// firstGap returns the smallest positive integer missing from ids, which
// must be sorted, distinct and positive. ids[i] == i+1 holds on a prefix,
// so the first gap is found by bisection.
func firstGap(ids []int) int {
	n := len(ids)
	if n == 0 || ids[0] != 1 {
		return 1
	}
	if ids[n-1] == n {
		return n + 1
	}
	// ids[lo] == lo+1 and ids[hi] != hi+1
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if ids[mid] == mid+1 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo + 2
}

func (l *Ledger) checkEidLocked(e *entity.Entity) error {
	if e.Eid == uuid.Nil {
		return fmt.Errorf("nil eid: %w", entity.ErrInvalidEid)
	}
	if _, ok := l.entities[e.Eid]; ok {
		return fmt.Errorf("eid %s: %w", e.Eid, entity.ErrDuplicateID)
	}
	return nil
}

func (l *Ledger) checkLocked(e *entity.Entity) error {
	if err := l.checkEidLocked(e); err != nil {
		return err
	}
	if e.ObjectID < 0 {
		return fmt.Errorf("object id %d: %w", e.ObjectID, entity.ErrInvalidID)
	}
	if e.IsActive() && e.ObjectID > 0 {
		if _, taken := l.byID[e.ObjectID]; taken {
			return fmt.Errorf("object id %d: %w", e.ObjectID, entity.ErrDuplicateID)
		}
	}
	return nil
}

func (l *Ledger) insertLocked(e *entity.Entity) {
	l.entities[e.Eid] = e
	if e.IsActive() && e.ObjectID > 0 {
		l.byID[e.ObjectID] = e
		i, _ := slices.BinarySearch(l.ids, e.ObjectID)
		l.ids = slices.Insert(l.ids, i, e.ObjectID)
	}
}

func (l *Ledger) retireLocked(e *entity.Entity) {
	if e.ObjectID > 0 && l.byID[e.ObjectID] == e {
		l.releaseIDLocked(e.ObjectID)
	}
	e.Retire()
}

func (l *Ledger) releaseIDLocked(id int) {
	delete(l.byID, id)
	if i, ok := slices.BinarySearch(l.ids, id); ok {
		l.ids = slices.Delete(l.ids, i, i+1)
	}
}

func (l *Ledger) lookupLocked(key Key) *entity.Entity {
	if key.byEid {
		return l.entities[key.eid]
	}
	return l.byID[key.id]
}
