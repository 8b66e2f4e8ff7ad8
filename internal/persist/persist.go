// Package persist reads and writes entity files.
//
// The current format is a JSON array with one keyed object per entity,
// sorted by eid. The legacy format is a JSON object whose entities refer to
// tags and scalar keys by index into a shared props table. Load accepts
// both.
package persist

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"cell-tracer/internal/entity"
	"cell-tracer/internal/ledger"
	"cell-tracer/internal/logger"
	"cell-tracer/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures Load.
type Options struct {
	// Strict rejects keys the reader does not know.
	Strict bool
	// Reassign gives colliding entities a new eid and/or object id instead
	// of failing with ErrDuplicateID.
	Reassign bool
	// Ref, when set, is stamped on every loaded entity.
	Ref    uuid.UUID
	Logger zerolog.Logger
}

// Load reads an entity file in either format into l. Either every entity
// is added or none is.
func Load(r io.Reader, l *ledger.Ledger, opts Options) ([]*entity.Entity, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		return nil, &entity.SchemaError{Field: "<root>", Reason: "empty file"}
	}

	var loaded []*entity.Entity
	switch first {
	case '[':
		loaded, err = decodeCurrent(br, opts)
	case '{':
		loaded, err = decodeLegacy(br, opts)
	default:
		return nil, &entity.SchemaError{Field: "<root>", Reason: fmt.Sprintf("unexpected %q", first)}
	}
	if err != nil {
		return nil, err
	}
	return commit(l, loaded, opts)
}

// LoadLegacy is Load restricted to the legacy format.
func LoadLegacy(r io.Reader, l *ledger.Ledger, opts Options) ([]*entity.Entity, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		return nil, &entity.SchemaError{Field: "<root>", Reason: "empty file"}
	}
	if first != '{' {
		return nil, &entity.SchemaError{Field: "<root>", Reason: "not a legacy entity file"}
	}
	loaded, err := decodeLegacy(br, opts)
	if err != nil {
		return nil, err
	}
	return commit(l, loaded, opts)
}

func commit(l *ledger.Ledger, loaded []*entity.Entity, opts Options) ([]*entity.Entity, error) {
	if opts.Ref != uuid.Nil {
		for _, e := range loaded {
			e.Ref = opts.Ref
		}
	}
	if err := addAll(l, loaded, opts); err != nil {
		return nil, err
	}
	logger.Component(opts.Logger, "persist").Info().Int("entities", len(loaded)).Msg("entities loaded")
	return loaded, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case 0xEF: // UTF-8 byte order mark
			if rest, _ := br.Peek(2); bytes.Equal(rest, []byte{0xBB, 0xBF}) {
				br.Discard(2)
				continue
			}
			// Not a byte order mark; no document starts with 0xEF.
			return b, nil
		}
		return b, br.UnreadByte()
	}
}

// addAll inserts entities into l, undoing its own insertions on failure.
func addAll(l *ledger.Ledger, loaded []*entity.Entity, opts Options) error {
	log := logger.Component(opts.Logger, "persist")
	added := make([]*entity.Entity, 0, len(loaded))
	rollback := func() {
		for _, e := range added {
			l.PopEntity(ledger.ByEid(e.Eid))
		}
	}
	for _, e := range loaded {
		err := l.AddEntity(e)
		if err != nil && opts.Reassign && errors.Is(err, entity.ErrDuplicateID) {
			if l.HasEid(e.Eid) {
				old := e.Eid
				e.Eid = uuid.New()
				log.Warn().Str("eid", old.String()).Str("new_eid", e.Eid.String()).Msg("eid collision, reassigned")
			}
			err = l.AddEntity(e)
			if err != nil && errors.Is(err, entity.ErrDuplicateID) {
				old := e.ObjectID
				err = l.AddWithFreshID(e)
				log.Warn().Int("object_id", old).Int("new_object_id", e.ObjectID).Msg("object id collision, reassigned")
			}
		}
		if err != nil {
			rollback()
			return err
		}
		added = append(added, e)
	}
	return nil
}

// LoadFile opens path and calls Load.
func LoadFile(path string, l *ledger.Ledger, opts Options) ([]*entity.Entity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open entity file: %w", err)
	}
	defer file.Close()
	return Load(file, l, opts)
}

// SaveFile writes the current format to path. An existing file is only
// replaced once the whole ledger has been written.
func SaveFile(path string, l *ledger.Ledger) error {
	return storage.WriteFile(path, func(w io.Writer) error {
		return Save(w, l)
	})
}
