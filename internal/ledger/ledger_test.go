package ledger

import (
	"errors"
	"slices"
	"sync"
	"testing"

	"cell-tracer/internal/entity"
	"cell-tracer/pkg/geometry"

	"github.com/google/uuid"
)

func withIDs(t *testing.T, ids ...int) *Ledger {
	t.Helper()
	l := New(Options{})
	for _, id := range ids {
		if _, err := l.MakeEntityWithID(id); err != nil {
			t.Fatalf("MakeEntityWithID(%d): %v", id, err)
		}
	}
	return l
}

func objectIDs(seq func(func(*entity.Entity) bool)) []int {
	var out []int
	for e := range seq {
		out = append(out, e.ObjectID)
	}
	return out
}

func TestAllocateID(t *testing.T) {
	cases := []struct {
		ids  []int
		want int
	}{
		{nil, 1},
		{[]int{1, 2, 4}, 3},
		{[]int{2, 3, 4}, 1},
		{[]int{1, 2, 3}, 4},
		{[]int{1, 3}, 2},
		{[]int{1, 2, 3, 4, 5, 6, 9, 10}, 7},
	}
	for _, tc := range cases {
		if got := withIDs(t, tc.ids...).AllocateID(); got != tc.want {
			t.Errorf("AllocateID after %v = %d, want %d", tc.ids, got, tc.want)
		}
	}
}

func TestFirstGapMatchesLinearScan(t *testing.T) {
	for mask := 0; mask < 1<<8; mask++ {
		var ids []int
		for b := 0; b < 8; b++ {
			if mask&(1<<b) != 0 {
				ids = append(ids, b+1)
			}
		}
		want := 1
		for slices.Contains(ids, want) {
			want++
		}
		if got := firstGap(ids); got != want {
			t.Fatalf("firstGap(%v) = %d, want %d", ids, got, want)
		}
	}
}

func TestMakeEntity(t *testing.T) {
	l := withIDs(t, 1, 3)
	e, err := l.MakeEntity()
	if err != nil {
		t.Fatal(err)
	}
	if e.ObjectID != 2 || e.Scalars[entity.ObjectIDKey] != 2 {
		t.Errorf("new entity id %d scalars %v", e.ObjectID, e.Scalars)
	}
	if l.GetEntity(ByID(2)) != e || l.GetEntity(ByEid(e.Eid)) != e {
		t.Errorf("lookup of new entity failed")
	}
}

func TestMakeEntityWithIDErrors(t *testing.T) {
	l := withIDs(t, 1)
	if _, err := l.MakeEntityWithID(1); !errors.Is(err, entity.ErrDuplicateID) {
		t.Errorf("duplicate id: %v", err)
	}
	for _, id := range []int{0, -4} {
		if _, err := l.MakeEntityWithID(id); !errors.Is(err, entity.ErrInvalidID) {
			t.Errorf("id %d: %v", id, err)
		}
	}
	if l.Len() != 1 {
		t.Errorf("failed calls changed the ledger: len %d", l.Len())
	}
}

func TestAddEntityDuplicateEid(t *testing.T) {
	l := New(Options{})
	e := entity.NewRandom()
	if err := l.AddEntity(e); err != nil {
		t.Fatal(err)
	}
	twin, _ := entity.New(e.Eid)
	if err := l.AddEntity(twin); !errors.Is(err, entity.ErrDuplicateID) {
		t.Errorf("duplicate eid: %v", err)
	}
	if err := l.AddEntity(&entity.Entity{}); !errors.Is(err, entity.ErrInvalidEid) {
		t.Errorf("nil eid: %v", err)
	}
}

func TestPopFreesID(t *testing.T) {
	l := withIDs(t, 1, 2, 3)
	e := l.PopEntity(ByID(2))
	if e == nil || e.ObjectID != 2 {
		t.Fatalf("pop returned %v", e)
	}
	if l.GetEntity(ByEid(e.Eid)) != nil {
		t.Errorf("popped entity still addressable")
	}
	if got := l.AllocateID(); got != 2 {
		t.Errorf("AllocateID after pop = %d", got)
	}
	if l.PopEntity(ByID(2)) != nil || l.PopEntity(ByEid(uuid.New())) != nil {
		t.Errorf("pop of missing key returned an entity")
	}
}

func TestIterationOrder(t *testing.T) {
	l := withIDs(t, 5, 2, 9)
	loose := entity.NewRandom()
	if err := l.AddEntity(loose); err != nil {
		t.Fatal(err)
	}
	got := objectIDs(l.IterAll())
	if !slices.Equal(got, []int{2, 5, 9, 0}) {
		t.Errorf("IterAll order = %v", got)
	}

	if err := l.Retire(l.GetEntity(ByID(5))); err != nil {
		t.Fatal(err)
	}
	if got := objectIDs(l.IterActive()); !slices.Equal(got, []int{2, 9, 0}) {
		t.Errorf("IterActive order = %v", got)
	}
	if got := len(objectIDs(l.IterAll())); got != 4 {
		t.Errorf("IterAll after retire yields %d", got)
	}
	if l.ActiveLen() != 3 || l.Len() != 4 {
		t.Errorf("ActiveLen %d Len %d", l.ActiveLen(), l.Len())
	}
}

func TestIterationStopsEarly(t *testing.T) {
	l := withIDs(t, 1, 2, 3)
	n := 0
	for range l.IterAll() {
		n++
		break
	}
	if n != 1 {
		t.Errorf("iterated %d times", n)
	}
}

func TestRetireReleasesID(t *testing.T) {
	l := withIDs(t, 1, 2)
	e := l.GetEntity(ByID(1))
	if err := l.Retire(e); err != nil {
		t.Fatal(err)
	}
	if e.IsActive() {
		t.Errorf("retired entity still active")
	}
	if l.GetEntity(ByID(1)) != nil {
		t.Errorf("retired entity still found by id")
	}
	if l.GetEntity(ByEid(e.Eid)) != e {
		t.Errorf("retired entity lost by eid")
	}
	if got := l.AllocateID(); got != 1 {
		t.Errorf("AllocateID after retire = %d", got)
	}
	reused, err := l.MakeEntity()
	if err != nil || reused.ObjectID != 1 {
		t.Errorf("reuse id: %v, %v", reused, err)
	}
	if err := l.Retire(entity.NewRandom()); !errors.Is(err, entity.ErrNotFound) {
		t.Errorf("retire unmanaged: %v", err)
	}
}

func TestReplace(t *testing.T) {
	l := withIDs(t, 3, 4, 7)
	a, b := l.GetEntity(ByID(3)), l.GetEntity(ByID(4))

	succ := entity.NewRandom()
	succ.SetObjectID(3)
	if err := l.Replace([]*entity.Entity{a, b}, succ); err != nil {
		t.Fatal(err)
	}
	if a.IsActive() || b.IsActive() {
		t.Errorf("parents still active")
	}
	if l.GetEntity(ByID(3)) != succ || l.GetEntity(ByID(4)) != nil {
		t.Errorf("id table after replace is wrong")
	}
	if got := objectIDs(l.IterActive()); !slices.Equal(got, []int{3, 7}) {
		t.Errorf("active ids = %v", got)
	}
}

func TestReplaceIsAtomic(t *testing.T) {
	l := withIDs(t, 1, 2)
	a := l.GetEntity(ByID(1))

	clash := entity.NewRandom()
	clash.SetObjectID(2)
	if err := l.Replace([]*entity.Entity{a}, clash); !errors.Is(err, entity.ErrDuplicateID) {
		t.Fatalf("clashing successor: %v", err)
	}
	if !a.IsActive() || l.Len() != 2 {
		t.Errorf("failed replace changed the ledger")
	}

	stranger := entity.NewRandom()
	if err := l.Replace([]*entity.Entity{stranger}, entity.NewRandom()); !errors.Is(err, entity.ErrNotFound) {
		t.Errorf("unmanaged parent: %v", err)
	}
}

func TestAddWithFreshID(t *testing.T) {
	l := withIDs(t, 1)
	e := entity.NewRandom()
	e.SetObjectID(1)
	if err := l.AddWithFreshID(e); err != nil {
		t.Fatal(err)
	}
	if e.ObjectID != 2 {
		t.Errorf("fresh id = %d", e.ObjectID)
	}
}

func TestHistoricDoesNotClaimID(t *testing.T) {
	l := withIDs(t, 1)
	old := entity.NewRandom()
	old.SetObjectID(1)
	old.EType = entity.Historic
	if err := l.AddEntity(old); err != nil {
		t.Fatalf("historic entity with a used id: %v", err)
	}
	if l.GetEntity(ByID(1)) == old {
		t.Errorf("historic entity took the id")
	}
}

func TestEvents(t *testing.T) {
	ch := make(chan Event, 8)
	l := New(Options{Events: ch})
	e, _ := l.MakeEntity()
	l.Touch(e)
	if err := l.Retire(e); err != nil {
		t.Fatal(err)
	}
	l.PopEntity(ByEid(e.Eid))

	want := []EventKind{EntityAdded, EntityChanged, EntityRetired, EntityRemoved}
	for _, k := range want {
		select {
		case ev := <-ch:
			if ev.Kind != k || ev.Eid != e.Eid {
				t.Errorf("event %v, want %v", ev, k)
			}
		default:
			t.Fatalf("missing %v event", k)
		}
	}
}

func TestEventsDoNotBlock(t *testing.T) {
	ch := make(chan Event)
	l := New(Options{Events: ch})
	if _, err := l.MakeEntity(); err != nil {
		t.Fatal(err)
	}
}

func TestEntitiesSortedByEid(t *testing.T) {
	l := withIDs(t, 1, 2, 3, 4, 5)
	all := l.Entities()
	if !slices.IsSortedFunc(all, func(a, b *entity.Entity) int { return compareEid(a.Eid, b.Eid) }) {
		t.Errorf("Entities not sorted by eid")
	}
}

func TestClear(t *testing.T) {
	l := withIDs(t, 1, 2)
	l.Clear()
	if l.Len() != 0 || l.AllocateID() != 1 {
		t.Errorf("Clear left %d entities", l.Len())
	}
}

func TestConcurrentMakeEntity(t *testing.T) {
	l := New(Options{})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if _, err := l.MakeEntity(); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()
	ids := objectIDs(l.IterActive())
	if len(ids) != 400 || ids[0] != 1 || ids[399] != 400 {
		t.Errorf("got %d ids from %d to %d", len(ids), ids[0], ids[len(ids)-1])
	}
}

// Erasing an entity retires it, and its id is handed out again.
func TestRetiredIDReclaimed(t *testing.T) {
	l := New(Options{})
	e, _ := l.MakeEntity()
	if err := e.UpdateContour(geometry.Contour{{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}}}); err != nil {
		t.Fatal(err)
	}
	if err := l.Retire(e); err != nil {
		t.Fatal(err)
	}
	for a := range l.IterActive() {
		if a == e {
			t.Errorf("retired entity yielded by IterActive")
		}
	}
	found := false
	for a := range l.IterAll() {
		found = found || a == e
	}
	if !found {
		t.Errorf("retired entity missing from IterAll")
	}
	if l.AllocateID() != e.ObjectID {
		t.Errorf("id %d not reclaimed", e.ObjectID)
	}
}
