// Package ledger owns a population of entities and issues their compact ids.
package ledger

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
	"sync"

	"cell-tracer/internal/entity"
	"cell-tracer/internal/logger"
	"cell-tracer/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures a Ledger. The zero value is usable.
type Options struct {
	Logger  zerolog.Logger
	Events  chan<- Event
	Metrics *metrics.Metrics
}

// Key addresses an entity either by compact object id or by eid.
type Key struct {
	id    int
	eid   uuid.UUID
	byEid bool
}

// ByID addresses the active entity holding a compact object id.
func ByID(id int) Key { return Key{id: id} }

// ByEid addresses any entity, active or historic, by eid.
func ByEid(eid uuid.UUID) Key { return Key{eid: eid, byEid: true} }

func (k Key) String() string {
	if k.byEid {
		return k.eid.String()
	}
	return fmt.Sprintf("#%d", k.id)
}

// Ledger holds every entity by eid plus a sorted list of the compact ids in
// use by active entities. One non-reentrant mutex guards all of it; no
// method calls another locking method while holding it.
type Ledger struct {
	mu       sync.Mutex
	entities map[uuid.UUID]*entity.Entity
	byID     map[int]*entity.Entity
	ids      []int // sorted, active only

	log     zerolog.Logger
	events  chan<- Event
	metrics *metrics.Metrics
}

// New returns an empty ledger. Ledgers are independent values.
func New(opts Options) *Ledger {
	return &Ledger{
		entities: make(map[uuid.UUID]*entity.Entity),
		byID:     make(map[int]*entity.Entity),
		log:      logger.Component(opts.Logger, "ledger"),
		events:   opts.Events,
		metrics:  opts.Metrics,
	}
}

// MakeEntity creates an empty entity under the smallest free compact id.
func (l *Ledger) MakeEntity() (*entity.Entity, error) {
	e := entity.NewRandom()
	l.mu.Lock()
	e.SetObjectID(firstGap(l.ids))
	l.insertLocked(e)
	active := len(l.ids)
	l.mu.Unlock()

	l.metrics.SetActive(active)
	l.emit([]Event{{Kind: EntityAdded, Eid: e.Eid, ObjectID: e.ObjectID}})
	return e, nil
}

// MakeEntityWithID creates an empty entity under the given compact id.
func (l *Ledger) MakeEntityWithID(id int) (*entity.Entity, error) {
	if id <= 0 {
		return nil, fmt.Errorf("object id %d: %w", id, entity.ErrInvalidID)
	}
	e := entity.NewRandom()
	e.SetObjectID(id)
	if err := l.AddEntity(e); err != nil {
		return nil, err
	}
	return e, nil
}

// AddEntity inserts an externally built entity. A positive ObjectID on an
// active entity must be free; historic entities never claim their id.
// On error the ledger is unchanged.
func (l *Ledger) AddEntity(e *entity.Entity) error {
	l.mu.Lock()
	if err := l.checkLocked(e); err != nil {
		l.mu.Unlock()
		return err
	}
	l.insertLocked(e)
	active := len(l.ids)
	l.mu.Unlock()

	l.metrics.SetActive(active)
	l.emit([]Event{{Kind: EntityAdded, Eid: e.Eid, ObjectID: e.ObjectID}})
	return nil
}

// AddWithFreshID assigns the smallest free compact id to e and inserts it.
func (l *Ledger) AddWithFreshID(e *entity.Entity) error {
	l.mu.Lock()
	old := e.ObjectID
	e.ObjectID = 0
	if err := l.checkLocked(e); err != nil {
		e.ObjectID = old
		l.mu.Unlock()
		return err
	}
	e.SetObjectID(firstGap(l.ids))
	l.insertLocked(e)
	active := len(l.ids)
	l.mu.Unlock()

	l.metrics.SetActive(active)
	l.emit([]Event{{Kind: EntityAdded, Eid: e.Eid, ObjectID: e.ObjectID}})
	return nil
}

// Replace retires parents and inserts successor in one step. The
// successor may take over a compact id released by a parent. Either every
// change is applied or none is.
func (l *Ledger) Replace(parents []*entity.Entity, successor *entity.Entity) error {
	l.mu.Lock()
	released := make(map[int]bool, len(parents))
	for _, p := range parents {
		if l.entities[p.Eid] != p {
			l.mu.Unlock()
			return fmt.Errorf("parent %s: %w", p.Eid, entity.ErrNotFound)
		}
		if p.IsActive() && p.ObjectID > 0 {
			released[p.ObjectID] = true
		}
	}
	if err := l.checkEidLocked(successor); err != nil {
		l.mu.Unlock()
		return err
	}
	if id := successor.ObjectID; successor.IsActive() && id > 0 && !released[id] {
		if _, taken := l.byID[id]; taken {
			l.mu.Unlock()
			return fmt.Errorf("object id %d: %w", id, entity.ErrDuplicateID)
		}
	}

	events := make([]Event, 0, len(parents)+1)
	for _, p := range parents {
		if p.IsActive() {
			l.retireLocked(p)
			events = append(events, Event{Kind: EntityRetired, Eid: p.Eid, ObjectID: p.ObjectID})
		}
	}
	l.insertLocked(successor)
	active := len(l.ids)
	l.mu.Unlock()

	events = append(events, Event{Kind: EntityAdded, Eid: successor.Eid, ObjectID: successor.ObjectID})
	l.metrics.SetActive(active)
	l.emit(events)
	return nil
}

// Retire marks a managed entity Historic and releases its compact id for
// reuse. The entity stays addressable by eid.
func (l *Ledger) Retire(e *entity.Entity) error {
	l.mu.Lock()
	if l.entities[e.Eid] != e {
		l.mu.Unlock()
		return fmt.Errorf("retire %s: %w", e.Eid, entity.ErrNotFound)
	}
	if !e.IsActive() {
		l.mu.Unlock()
		return nil
	}
	l.retireLocked(e)
	active := len(l.ids)
	l.mu.Unlock()

	l.metrics.SetActive(active)
	l.emit([]Event{{Kind: EntityRetired, Eid: e.Eid, ObjectID: e.ObjectID}})
	return nil
}

// Touch announces that an entity's shape or annotations changed.
func (l *Ledger) Touch(e *entity.Entity) {
	l.emit([]Event{{Kind: EntityChanged, Eid: e.Eid, ObjectID: e.ObjectID}})
}

// PopEntity removes and returns the entity under key, or nil. Its compact
// id becomes free.
func (l *Ledger) PopEntity(key Key) *entity.Entity {
	l.mu.Lock()
	e := l.lookupLocked(key)
	if e == nil {
		l.mu.Unlock()
		return nil
	}
	delete(l.entities, e.Eid)
	if e.IsActive() && e.ObjectID > 0 && l.byID[e.ObjectID] == e {
		l.releaseIDLocked(e.ObjectID)
	}
	active := len(l.ids)
	l.mu.Unlock()

	l.metrics.SetActive(active)
	l.emit([]Event{{Kind: EntityRemoved, Eid: e.Eid, ObjectID: e.ObjectID}})
	return e
}

// GetEntity returns the entity under key, or nil.
func (l *Ledger) GetEntity(key Key) *entity.Entity {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lookupLocked(key)
}

// AllocateID returns the smallest positive id not held by an active entity.
// The id is not reserved.
func (l *Ledger) AllocateID() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return firstGap(l.ids)
}

// Clear removes every entity.
func (l *Ledger) Clear() {
	l.mu.Lock()
	events := make([]Event, 0, len(l.entities))
	for _, e := range l.entities {
		events = append(events, Event{Kind: EntityRemoved, Eid: e.Eid, ObjectID: e.ObjectID})
	}
	l.entities = make(map[uuid.UUID]*entity.Entity)
	l.byID = make(map[int]*entity.Entity)
	l.ids = nil
	l.mu.Unlock()

	l.metrics.SetActive(0)
	l.emit(events)
}

// Len returns the number of managed entities, historic included.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entities)
}

// ActiveLen returns the number of entities that are not historic.
func (l *Ledger) ActiveLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entities {
		if e.IsActive() {
			n++
		}
	}
	return n
}

// IterAll yields every entity by ascending object id; entities without an
// id come last. Ties break on eid. The sequence runs over a snapshot, so
// the ledger may be modified while iterating.
func (l *Ledger) IterAll() iter.Seq[*entity.Entity] {
	return l.iter(false)
}

// IterActive is IterAll without historic entities.
func (l *Ledger) IterActive() iter.Seq[*entity.Entity] {
	return l.iter(true)
}

func (l *Ledger) iter(activeOnly bool) iter.Seq[*entity.Entity] {
	return func(yield func(*entity.Entity) bool) {
		for _, e := range l.snapshot(activeOnly) {
			if !yield(e) {
				return
			}
		}
	}
}

func (l *Ledger) snapshot(activeOnly bool) []*entity.Entity {
	l.mu.Lock()
	out := make([]*entity.Entity, 0, len(l.entities))
	for _, e := range l.entities {
		if activeOnly && !e.IsActive() {
			continue
		}
		out = append(out, e)
	}
	l.mu.Unlock()

	slices.SortFunc(out, func(a, b *entity.Entity) int {
		ia, ib := a.ObjectID > 0, b.ObjectID > 0
		switch {
		case ia && !ib:
			return -1
		case !ia && ib:
			return 1
		}
		if c := cmp.Compare(a.ObjectID, b.ObjectID); c != 0 {
			return c
		}
		return compareEid(a.Eid, b.Eid)
	})
	return out
}

// Entities returns every entity, historic included, sorted by ascending eid.
func (l *Ledger) Entities() []*entity.Entity {
	l.mu.Lock()
	out := make([]*entity.Entity, 0, len(l.entities))
	for _, e := range l.entities {
		out = append(out, e)
	}
	l.mu.Unlock()

	slices.SortFunc(out, func(a, b *entity.Entity) int { return compareEid(a.Eid, b.Eid) })
	return out
}

// HasEid reports whether an entity with this eid is managed.
func (l *Ledger) HasEid(eid uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entities[eid]
	return ok
}

func compareEid(a, b uuid.UUID) int {
	return slices.Compare(a[:], b[:])
}
