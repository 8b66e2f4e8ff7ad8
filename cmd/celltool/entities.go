package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"cell-tracer/internal/entity"
	"cell-tracer/internal/ledger"
	"cell-tracer/internal/persist"
)

// loadEntities reads an entity file (either format) from a local path or
// s3:// location.
func (a *app) loadEntities(ctx context.Context, uri string, l *ledger.Ledger, opts persist.Options) ([]*entity.Entity, error) {
	r, err := a.store.Open(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", uri, err)
	}
	defer r.Close()
	opts.Logger = a.log
	loaded, err := persist.Load(r, l, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", uri, err)
	}
	return loaded, nil
}

// saveEntities writes l to uri; legacy selects the positional format. A
// failed write leaves the previous file in place.
func (a *app) saveEntities(ctx context.Context, uri string, l *ledger.Ledger, legacy bool) error {
	return a.store.Write(ctx, uri, func(w io.Writer) error {
		if legacy {
			return persist.SaveLegacy(w, l)
		}
		return persist.Save(w, l)
	})
}

// isLegacyPath treats .json files as legacy entity files.
func isLegacyPath(uri string) bool {
	return strings.EqualFold(filepath.Ext(uri), ".json")
}

// extent returns the smallest image size covering every active entity.
func extent(l *ledger.Ledger) (w, h int) {
	for e := range l.IterActive() {
		if !e.HasShape() {
			continue
		}
		hi := e.BBox[1]
		w = max(w, hi.X+1)
		h = max(h, hi.Y+1)
	}
	return w, h
}

func activeEntities(l *ledger.Ledger) []*entity.Entity {
	var out []*entity.Entity
	for e := range l.IterActive() {
		out = append(out, e)
	}
	return out
}
