package project

import (
	"path/filepath"
	"testing"

	"cell-tracer/internal/entity"
	"cell-tracer/internal/ledger"
	"cell-tracer/internal/persist"

	"github.com/google/uuid"
)

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run1"+Extension)

	p := New("run1")
	p.AddChannel(path, filepath.Join(dir, "img", "cd3.tif"), map[string]string{"marker": "CD3"})
	p.SetPixmap(path, filepath.Join(dir, "labels.png"))
	if err := p.Save(path); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Ref != p.Ref || got.Name != "run1" {
		t.Errorf("loaded %q ref %s, want %s", got.Name, got.Ref, p.Ref)
	}
	if got.Channels[0].Path != filepath.Join("img", "cd3.tif") || got.Channels[0].Meta["marker"] != "CD3" {
		t.Errorf("channel = %+v", got.Channels[0])
	}
	if paths := got.ChannelPaths(path); paths[0] != filepath.Join(dir, "img", "cd3.tif") {
		t.Errorf("ChannelPaths = %v", paths)
	}
	if got.GetPixmapPath(path) != filepath.Join(dir, "labels.png") {
		t.Errorf("pixmap = %s", got.GetPixmapPath(path))
	}
}

func TestEntitiesPathDefault(t *testing.T) {
	p := New("x")
	if got := p.GetEntitiesPath("/data/run1.cellproj"); got != "/data/run1.ent" {
		t.Errorf("default entities path = %s", got)
	}
	p.SetEntities("/data/run1.cellproj", "/data/out/cells.ent")
	if got := p.GetEntitiesPath("/data/run1.cellproj"); got != "/data/out/cells.ent" {
		t.Errorf("entities path = %s", got)
	}
	if p.EntitiesPath != filepath.Join("out", "cells.ent") {
		t.Errorf("stored path = %s", p.EntitiesPath)
	}
}

func TestNewHasRef(t *testing.T) {
	if New("a").Ref == uuid.Nil {
		t.Error("New should assign a Ref")
	}
}

func TestEntitiesCarryRef(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run"+Extension)
	p := New("run")

	src := ledger.New(ledger.Options{})
	e, err := src.MakeEntity()
	if err != nil {
		t.Fatal(err)
	}
	e.EType = entity.Cell
	if err := p.SaveEntities(path, src); err != nil {
		t.Fatal(err)
	}

	dst := ledger.New(ledger.Options{})
	loaded, err := p.LoadEntities(path, dst, persist.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 || loaded[0].Ref != p.Ref || loaded[0].Eid != e.Eid {
		t.Errorf("loaded %+v, want eid %s ref %s", loaded, e.Eid, p.Ref)
	}
}
