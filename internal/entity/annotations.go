package entity

import (
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"
)

// ParentsKey is the Generic key listing the eids an entity was merged from.
const ParentsKey = "parents"

// AddTag adds a tag. Tags are a set, so adding twice is a no-op.
func (e *Entity) AddTag(tag string) {
	if e.Tags == nil {
		e.Tags = make(map[string]struct{})
	}
	e.Tags[tag] = struct{}{}
}

// RemoveTag deletes a tag if present.
func (e *Entity) RemoveTag(tag string) {
	delete(e.Tags, tag)
}

// HasTag reports whether the tag is set.
func (e *Entity) HasTag(tag string) bool {
	_, ok := e.Tags[tag]
	return ok
}

// SortedTags returns the tags in lexical order.
func (e *Entity) SortedTags() []string {
	out := make([]string, 0, len(e.Tags))
	for t := range e.Tags {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// SetScalar stores a scalar value under key.
func (e *Entity) SetScalar(key string, v float64) {
	if e.Scalars == nil {
		e.Scalars = make(map[string]float64)
	}
	e.Scalars[key] = v
}

// Scalar returns the value under key.
func (e *Entity) Scalar(key string) (float64, bool) {
	v, ok := e.Scalars[key]
	return v, ok
}

// SortedScalarKeys returns the scalar keys in lexical order.
func (e *Entity) SortedScalarKeys() []string {
	out := make([]string, 0, len(e.Scalars))
	for k := range e.Scalars {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// SetGeneric stores a numeric array under key.
func (e *Entity) SetGeneric(key string, v []float64) {
	if e.Generic == nil {
		e.Generic = make(map[string][]float64)
	}
	e.Generic[key] = v
}

// SortedGenericKeys returns the generic keys in lexical order.
func (e *Entity) SortedGenericKeys() []string {
	out := make([]string, 0, len(e.Generic))
	for k := range e.Generic {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// FuseKey flattens a legacy (name, typetag) scalar key into one string.
func FuseKey(name, typetag string) string {
	if typetag == "" {
		return name
	}
	return name + "_" + typetag
}

// SetParents records the eids this entity was derived from.
func (e *Entity) SetParents(eids []uuid.UUID) {
	e.SetGeneric(ParentsKey, EncodeEids(eids))
}

// Parents decodes Generic["parents"]. An entity without parents returns nil.
func (e *Entity) Parents() ([]uuid.UUID, error) {
	v, ok := e.Generic[ParentsKey]
	if !ok {
		return nil, nil
	}
	return DecodeEids(v)
}

// EncodeEids packs each 128-bit eid into four big-endian 32-bit words.
// Every word is exactly representable as a float64.
func EncodeEids(eids []uuid.UUID) []float64 {
	out := make([]float64, 0, 4*len(eids))
	for _, u := range eids {
		for w := 0; w < 4; w++ {
			b := u[4*w : 4*w+4]
			out = append(out, float64(uint32(b[0])<<24|uint32(b[1])<<16|uint32(b[2])<<8|uint32(b[3])))
		}
	}
	return out
}

// DecodeEids reverses EncodeEids.
func DecodeEids(words []float64) ([]uuid.UUID, error) {
	if len(words)%4 != 0 {
		return nil, fmt.Errorf("%d words is not a whole number of eids: %w", len(words), ErrInvalidEid)
	}
	out := make([]uuid.UUID, 0, len(words)/4)
	for i := 0; i < len(words); i += 4 {
		var u uuid.UUID
		for w := 0; w < 4; w++ {
			f := words[i+w]
			if f < 0 || f > math.MaxUint32 || f != math.Trunc(f) {
				return nil, fmt.Errorf("word %v out of range: %w", f, ErrInvalidEid)
			}
			v := uint32(f)
			u[4*w], u[4*w+1], u[4*w+2], u[4*w+3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
		}
		out = append(out, u)
	}
	return out, nil
}
