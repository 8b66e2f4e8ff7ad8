package ledger

import "github.com/google/uuid"

// EventKind tags a change notification.
type EventKind int

const (
	EntityAdded EventKind = iota
	EntityChanged
	EntityRetired
	EntityRemoved
)

func (k EventKind) String() string {
	switch k {
	case EntityAdded:
		return "added"
	case EntityChanged:
		return "changed"
	case EntityRetired:
		return "retired"
	case EntityRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event tells a view layer which entity changed. Views keep their own
// eid-keyed state and look the entity up again when they need it.
type Event struct {
	Kind     EventKind
	Eid      uuid.UUID
	ObjectID int
}

// emit delivers events without blocking. A full or missing consumer loses
// the event; the loss is logged and counted.
func (l *Ledger) emit(events []Event) {
	for _, ev := range events {
		l.metrics.IncEvent(ev.Kind.String())
		if l.events == nil {
			continue
		}
		select {
		case l.events <- ev:
		default:
			l.metrics.IncDropped()
			l.log.Warn().Str("kind", ev.Kind.String()).Str("eid", ev.Eid.String()).Msg("event dropped")
		}
	}
}
