// Package project provides session file handling and persistence.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cell-tracer/internal/entity"
	"cell-tracer/internal/ledger"
	"cell-tracer/internal/persist"

	"github.com/google/uuid"
)

// Extension is the session file extension.
const Extension = ".cellproj"

// File represents a cell tracer session file (.cellproj).
type File struct {
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
	Description string    `json:"description,omitempty"`

	// Ref identifies the session; it is stamped on entities loaded
	// through it.
	Ref uuid.UUID `json:"ref"`

	// Channel images (paths relative to project file)
	Channels []ChannelRef `json:"channels,omitempty"`

	// Data file paths (relative to project file)
	PixmapPath   string `json:"pixmap,omitempty"`
	EntitiesPath string `json:"entities,omitempty"`

	Settings Settings `json:"settings"`
}

// ChannelRef is one channel image and its metadata.
type ChannelRef struct {
	Path string            `json:"path"`
	Meta map[string]string `json:"meta,omitempty"`
}

// Settings holds per-session preferences.
type Settings struct {
	GroupBy      string `json:"group_by,omitempty"`
	SearchWindow int    `json:"search_window,omitempty"`
	Policy       string `json:"policy,omitempty"`
}

// New creates a new session with a fresh Ref.
func New(name string) *File {
	now := time.Now()
	return &File{
		Version:  1,
		Name:     name,
		Created:  now,
		Modified: now,
		Ref:      uuid.New(),
		Settings: Settings{GroupBy: "marker", Policy: "ignore"},
	}
}

// Load loads a session from a .cellproj file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var proj File
	if err := json.Unmarshal(data, &proj); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if proj.Ref == uuid.Nil {
		proj.Ref = uuid.New()
	}
	return &proj, nil
}

// Save saves the session to a file.
func (p *File) Save(path string) error {
	p.Modified = time.Now()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func relativeTo(projectPath, target string) string {
	rel, err := filepath.Rel(filepath.Dir(projectPath), target)
	if err != nil {
		return target
	}
	return rel
}

func resolve(projectPath, stored string) string {
	if stored == "" || filepath.IsAbs(stored) {
		return stored
	}
	return filepath.Join(filepath.Dir(projectPath), stored)
}

// AddChannel records a channel image (relative to project).
func (p *File) AddChannel(projectPath, imagePath string, meta map[string]string) {
	p.Channels = append(p.Channels, ChannelRef{Path: relativeTo(projectPath, imagePath), Meta: meta})
	p.Modified = time.Now()
}

// SetPixmap sets the label pixmap path (relative to project).
func (p *File) SetPixmap(projectPath, pixmapPath string) {
	p.PixmapPath = relativeTo(projectPath, pixmapPath)
	p.Modified = time.Now()
}

// SetEntities sets the entity file path (relative to project).
func (p *File) SetEntities(projectPath, entitiesPath string) {
	p.EntitiesPath = relativeTo(projectPath, entitiesPath)
	p.Modified = time.Now()
}

// ChannelPaths returns the absolute channel image paths.
func (p *File) ChannelPaths(projectPath string) []string {
	out := make([]string, len(p.Channels))
	for i, c := range p.Channels {
		out[i] = resolve(projectPath, c.Path)
	}
	return out
}

// GetPixmapPath returns the absolute path to the label pixmap.
func (p *File) GetPixmapPath(projectPath string) string {
	return resolve(projectPath, p.PixmapPath)
}

// GetEntitiesPath returns the absolute path to the entity file.
func (p *File) GetEntitiesPath(projectPath string) string {
	if p.EntitiesPath == "" {
		// Default: project_name.ent
		base := projectPath[:len(projectPath)-len(filepath.Ext(projectPath))]
		return base + ".ent"
	}
	return resolve(projectPath, p.EntitiesPath)
}

// LoadEntities reads the session's entity file into l, stamping each
// entity with the session Ref.
func (p *File) LoadEntities(projectPath string, l *ledger.Ledger, opts persist.Options) ([]*entity.Entity, error) {
	opts.Ref = p.Ref
	return persist.LoadFile(p.GetEntitiesPath(projectPath), l, opts)
}

// SaveEntities writes l to the session's entity file.
func (p *File) SaveEntities(projectPath string, l *ledger.Ledger) error {
	return persist.SaveFile(p.GetEntitiesPath(projectPath), l)
}
