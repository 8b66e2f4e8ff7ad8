package persist

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"cell-tracer/internal/entity"
	"cell-tracer/internal/ledger"
	"cell-tracer/internal/logger"
	"cell-tracer/internal/version"
	"cell-tracer/pkg/geometry"

	"github.com/google/uuid"
)

// LegacyVersion is written to the legacy header.
const LegacyVersion = 2

type legacyHeader struct {
	Version   int    `json:"version"`
	Count     int    `json:"count"`
	Generator string `json:"generator"`
}

type legacyObject struct {
	ID         int         `json:"id"`
	Tags       []int       `json:"tags"`
	Scalars    []indexPair `json:"scalars"`
	Contours   [][][2]int  `json:"contours"`
	Ancestors  []int       `json:"ancestors"`
	Historical bool        `json:"historical"`
}

var (
	legacyRootFields   = map[string]bool{"header": true, "objects": true, "props": true}
	legacyObjectFields = map[string]bool{"id": true, "tags": true, "scalars": true, "contours": true, "ancestors": true, "historical": true}
)

// indexPair is an [index, value] array referring into props.
type indexPair struct {
	Index int
	Value number
}

func (p indexPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Index, p.Value})
}

func (p *indexPair) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("pair has %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.Index); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &p.Value)
}

// props interns tag names and scalar keys in order of first use.
type props struct {
	names []string
	index map[string]int
}

func (p *props) intern(name string) int {
	if i, ok := p.index[name]; ok {
		return i
	}
	if p.index == nil {
		p.index = make(map[string]int)
	}
	p.index[name] = len(p.names)
	p.names = append(p.names, name)
	return len(p.names) - 1
}

// MarshalJSON writes the table in index order.
func (p *props) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range p.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		v, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, "%q:%s", strconv.Itoa(i), v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// SaveLegacy writes l in the legacy format. Entities without a compact id
// cannot be represented and are left out. Generic values other than the
// parent list are not part of the format.
func SaveLegacy(w io.Writer, l *ledger.Ledger) error {
	var table props
	var objects []legacyObject
	for _, e := range l.Entities() {
		if e.ObjectID <= 0 {
			continue
		}
		obj := legacyObject{
			ID:         e.ObjectID,
			Tags:       []int{},
			Scalars:    []indexPair{},
			Contours:   [][][2]int{},
			Ancestors:  []int{},
			Historical: !e.IsActive(),
		}
		for _, t := range e.SortedTags() {
			obj.Tags = append(obj.Tags, table.intern(t))
		}
		for _, k := range e.SortedScalarKeys() {
			if k == entity.ObjectIDKey {
				continue
			}
			obj.Scalars = append(obj.Scalars, indexPair{Index: table.intern(k), Value: number(e.Scalars[k])})
		}
		for _, ring := range e.IntContour {
			pts := make([][2]int, len(ring))
			for i, p := range ring {
				pts[i] = [2]int{p.X, p.Y}
			}
			obj.Contours = append(obj.Contours, pts)
		}
		parents, err := e.Parents()
		if err != nil {
			return fmt.Errorf("entity %s: %w", e.Eid, err)
		}
		for _, eid := range parents {
			if p := l.GetEntity(ledger.ByEid(eid)); p != nil && p.ObjectID > 0 {
				obj.Ancestors = append(obj.Ancestors, p.ObjectID)
			}
		}
		objects = append(objects, obj)
	}

	doc := struct {
		Header  legacyHeader   `json:"header"`
		Objects []legacyObject `json:"objects"`
		Props   *props         `json:"props"`
	}{
		Header:  legacyHeader{Version: LegacyVersion, Count: len(objects), Generator: "celltool " + version.Version},
		Objects: objects,
		Props:   &table,
	}
	if doc.Objects == nil {
		doc.Objects = []legacyObject{}
	}
	bw := bufio.NewWriter(w)
	if err := json.NewEncoder(bw).Encode(doc); err != nil {
		return fmt.Errorf("failed to write legacy entity file: %w", err)
	}
	return bw.Flush()
}

func decodeLegacy(r io.Reader, opts Options) ([]*entity.Entity, error) {
	log := logger.Component(opts.Logger, "persist")

	var root map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&root); err != nil {
		return nil, &entity.SchemaError{Field: "<root>", Reason: err.Error()}
	}
	if err := checkFields(root, legacyRootFields, opts); err != nil {
		return nil, err
	}
	rawObjects, ok := root["objects"]
	if !ok {
		return nil, &entity.SchemaError{Field: "objects", Reason: "missing"}
	}
	table, err := decodeProps(root["props"])
	if err != nil {
		return nil, err
	}
	var header legacyHeader
	if raw, ok := root["header"]; ok {
		if err := json.Unmarshal(raw, &header); err != nil {
			return nil, &entity.SchemaError{Field: "header", Reason: err.Error()}
		}
	}

	var items []map[string]json.RawMessage
	if err := json.Unmarshal(rawObjects, &items); err != nil {
		return nil, &entity.SchemaError{Field: "objects", Reason: err.Error()}
	}
	if header.Count != 0 && header.Count != len(items) {
		log.Warn().Int("header_count", header.Count).Int("objects", len(items)).Msg("legacy header count mismatch")
	}

	var (
		out       []*entity.Entity
		ancestors = make(map[*entity.Entity][]int)
	)
	for i, fields := range items {
		if err := checkFields(fields, legacyObjectFields, opts); err != nil {
			return nil, err
		}
		if _, ok := fields["id"]; !ok {
			return nil, &entity.SchemaError{Field: fmt.Sprintf("objects[%d].id", i), Reason: "missing"}
		}
		var obj legacyObject
		for name, dst := range map[string]any{
			"id": &obj.ID, "tags": &obj.Tags, "scalars": &obj.Scalars, "contours": &obj.Contours,
			"ancestors": &obj.Ancestors, "historical": &obj.Historical,
		} {
			if err := field(fields, name, dst); err != nil {
				return nil, err
			}
		}
		e, err := fromLegacy(obj, table)
		if err != nil {
			return nil, err
		}
		if len(obj.Ancestors) > 0 {
			ancestors[e] = obj.Ancestors
		}
		out = append(out, e)
	}

	// Ids are reused after retirement, so prefer the historic holder.
	byID := make(map[int]*entity.Entity, len(out))
	for _, e := range out {
		if prev, ok := byID[e.ObjectID]; !ok || (prev.IsActive() && !e.IsActive()) {
			byID[e.ObjectID] = e
		}
	}
	for _, e := range out {
		ids, ok := ancestors[e]
		if !ok {
			continue
		}
		var eids []uuid.UUID
		for _, id := range ids {
			p, ok := byID[id]
			if !ok || p == e {
				log.Warn().Int("object_id", e.ObjectID).Int("ancestor", id).Msg("unknown ancestor dropped")
				continue
			}
			eids = append(eids, p.Eid)
		}
		if len(eids) > 0 {
			e.SetParents(eids)
		}
	}
	return out, nil
}

func checkFields(fields map[string]json.RawMessage, known map[string]bool, opts Options) error {
	for k := range fields {
		if known[k] {
			continue
		}
		if opts.Strict {
			return &entity.UnknownFieldError{Field: k}
		}
		logger.Component(opts.Logger, "persist").Debug().Str("field", k).Msg("unknown field ignored")
	}
	return nil
}

// decodeProps reads the index table. A value is a tag or scalar name, or a
// [name, typetag] pair which is fused into one key.
func decodeProps(raw json.RawMessage) (map[int]string, error) {
	table := make(map[int]string)
	if len(raw) == 0 {
		return table, nil
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &entity.SchemaError{Field: "props", Reason: err.Error()}
	}
	for k, v := range entries {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 {
			return nil, &entity.SchemaError{Field: "props", Reason: fmt.Sprintf("bad index %q", k)}
		}
		var name string
		if err := json.Unmarshal(v, &name); err == nil {
			table[i] = name
			continue
		}
		var tuple []string
		if err := json.Unmarshal(v, &tuple); err != nil || len(tuple) == 0 || len(tuple) > 2 {
			return nil, &entity.SchemaError{Field: "props." + k, Reason: "expected a string or [name, typetag]"}
		}
		if len(tuple) == 1 {
			tuple = append(tuple, "")
		}
		table[i] = entity.FuseKey(tuple[0], tuple[1])
	}
	return table, nil
}

func fromLegacy(obj legacyObject, table map[int]string) (*entity.Entity, error) {
	if obj.ID <= 0 || obj.ID > math.MaxUint32 {
		return nil, &entity.SchemaError{Field: "id", Reason: fmt.Sprintf("%d is not a positive id", obj.ID)}
	}
	e := entity.NewRandom()
	e.EType = entity.Cell
	if obj.Historical {
		e.EType = entity.Historic
	}
	e.SetObjectID(obj.ID)

	lookup := func(i int) (string, error) {
		name, ok := table[i]
		if !ok {
			return "", &entity.SchemaError{Field: "props", Reason: fmt.Sprintf("index %d not defined", i)}
		}
		return name, nil
	}
	for _, i := range obj.Tags {
		name, err := lookup(i)
		if err != nil {
			return nil, err
		}
		e.AddTag(name)
	}
	for _, p := range obj.Scalars {
		name, err := lookup(p.Index)
		if err != nil {
			return nil, err
		}
		if name == entity.ObjectIDKey {
			continue
		}
		e.SetScalar(name, float64(p.Value))
	}

	if len(obj.Contours) > 0 {
		contour := make(geometry.IntContour, 0, len(obj.Contours))
		for _, ring := range obj.Contours {
			pts := make(geometry.IntRing, len(ring))
			for j, p := range ring {
				pts[j] = geometry.PointInt{X: p[0], Y: p[1]}
			}
			contour = append(contour, pts)
		}
		if err := e.FromIntContour(contour); err != nil {
			return nil, &entity.SchemaError{Field: "contours", Reason: err.Error()}
		}
	}
	return e, nil
}
