// Package entity models one segmented region of a 2D image plane.
//
// An Entity carries four linked shape representations (float contour,
// integer contour, bounding box and slice with its mask). They are only
// ever rebuilt together by UpdateContour, so they never drift apart.
package entity

import (
	"encoding/hex"
	"fmt"
	"maps"
	"math"
	"slices"

	"cell-tracer/internal/pixelops"
	"cell-tracer/pkg/geometry"

	"github.com/google/uuid"
)

// EType classifies an entity.
type EType int

const (
	Undefined EType = iota
	Cell
	Artifact
	Semantic
	// Historic marks an entity retired by an edit and kept for lineage.
	Historic
)

func (t EType) String() string {
	switch t {
	case Undefined:
		return "Undefined"
	case Cell:
		return "Cell"
	case Artifact:
		return "Artifact"
	case Semantic:
		return "Semantic"
	case Historic:
		return "Historic"
	default:
		return fmt.Sprintf("EType(%d)", int(t))
	}
}

// Valid reports whether t is one of the known types.
func (t EType) Valid() bool {
	return t >= Undefined && t <= Historic
}

// ObjectIDKey is the scalar mirroring the compact object id.
const ObjectIDKey = "object_id"

// Entity is one identified region with its shape, tags and scalars.
type Entity struct {
	Eid      uuid.UUID
	ObjectID int // 0 when the entity has no compact id
	EType    EType
	Ref      uuid.UUID // parent session, uuid.Nil when unset

	Tags    map[string]struct{}
	Scalars map[string]float64
	Generic map[string][]float64

	Contour    geometry.Contour
	IntContour geometry.IntContour
	BBox       [2]geometry.PointInt // inclusive (min, max) corners, (col, row)
	Slc        pixelops.Slice
	Mask       pixelops.Mask
}

// New returns an empty entity with the given eid.
func New(eid uuid.UUID) (*Entity, error) {
	if eid == uuid.Nil {
		return nil, fmt.Errorf("nil uuid: %w", ErrInvalidEid)
	}
	return &Entity{
		Eid:     eid,
		Tags:    make(map[string]struct{}),
		Scalars: make(map[string]float64),
		Generic: make(map[string][]float64),
	}, nil
}

// NewRandom returns an empty entity with a random eid.
func NewRandom() *Entity {
	e, _ := New(uuid.New())
	return e
}

// ParseEid accepts the 32-digit hex form written to entity files as well as
// the canonical dashed uuid form.
func ParseEid(s string) (uuid.UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse eid %q: %w", s, ErrInvalidEid)
	}
	if u == uuid.Nil {
		return uuid.Nil, fmt.Errorf("nil eid: %w", ErrInvalidEid)
	}
	return u, nil
}

// EidHex formats an eid as 32 lowercase hex digits.
func EidHex(u uuid.UUID) string {
	return hex.EncodeToString(u[:])
}

// IsActive reports whether the entity has not been retired.
func (e *Entity) IsActive() bool {
	return e.EType != Historic
}

// Retire marks the entity Historic. Ledger.Retire should be preferred for
// managed entities so the compact id is released too.
func (e *Entity) Retire() {
	e.EType = Historic
}

// SetObjectID sets the compact id and mirrors it in Scalars["object_id"].
// Zero clears both.
func (e *Entity) SetObjectID(id int) {
	e.ObjectID = id
	if id > 0 {
		e.SetScalar(ObjectIDKey, float64(id))
	} else {
		delete(e.Scalars, ObjectIDKey)
	}
}

// HasShape reports whether a contour has been set.
func (e *Entity) HasShape() bool {
	return len(e.IntContour) > 0
}

// Area returns the number of mask pixels.
func (e *Entity) Area() int {
	return e.Mask.Count()
}

// Centroid returns the mean (col, row) position of the mask pixels.
func (e *Entity) Centroid() geometry.Point2D {
	var pts []geometry.Point2D
	for r := 0; r < e.Mask.Rows; r++ {
		for c := 0; c < e.Mask.Cols; c++ {
			if e.Mask.At(r, c) {
				pts = append(pts, geometry.Point2D{
					X: float64(e.Slc.Cols.Start + c),
					Y: float64(e.Slc.Rows.Start + r),
				})
			}
		}
	}
	return geometry.Centroid(pts)
}

// Clone returns a deep copy sharing nothing with e.
func (e *Entity) Clone() *Entity {
	out := *e
	out.Tags = maps.Clone(e.Tags)
	out.Scalars = maps.Clone(e.Scalars)
	out.Generic = make(map[string][]float64, len(e.Generic))
	for k, v := range e.Generic {
		out.Generic[k] = slices.Clone(v)
	}
	if out.Tags == nil {
		out.Tags = make(map[string]struct{})
	}
	if out.Scalars == nil {
		out.Scalars = make(map[string]float64)
	}
	out.Contour = e.Contour.Clone()
	out.IntContour = e.IntContour.Translate(0, 0)
	out.Mask = e.Mask.Clone()
	return &out
}

// Equal compares identity, annotations and normalized shape: eid, object
// id, type, ref, tags, scalars, generic and integer contour. NaN scalars
// compare equal to each other.
func (e *Entity) Equal(o *Entity) bool {
	if e.Eid != o.Eid || e.ObjectID != o.ObjectID || e.EType != o.EType || e.Ref != o.Ref {
		return false
	}
	if !maps.Equal(e.Tags, o.Tags) {
		return false
	}
	if !maps.EqualFunc(e.Scalars, o.Scalars, sameFloat) {
		return false
	}
	if !maps.EqualFunc(e.Generic, o.Generic, func(a, b []float64) bool {
		return slices.EqualFunc(a, b, sameFloat)
	}) {
		return false
	}
	return e.IntContour.Equal(o.IntContour)
}

func sameFloat(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}
