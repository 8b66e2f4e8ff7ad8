package persist

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"cell-tracer/internal/entity"
	"cell-tracer/internal/ledger"
	"cell-tracer/internal/logger"
	"cell-tracer/pkg/geometry"

	"github.com/google/uuid"
)

// record is one entity in the current format. Field order is the
// serialised key order.
type record struct {
	Eid     string        `json:"eid"`
	EType   int           `json:"etype"`
	Ref     string        `json:"ref"`
	Tags    []string      `json:"tags"`
	Scalars []scalarPair  `json:"scalars"`
	Generic []genericPair `json:"generic"`
	Contour [][][2]number `json:"contour"`
}

var (
	knownFields    = map[string]bool{"eid": true, "etype": true, "ref": true, "tags": true, "scalars": true, "generic": true, "contour": true}
	requiredFields = []string{"eid", "etype", "contour"}
)

func toRecord(e *entity.Entity) record {
	rec := record{
		Eid:     entity.EidHex(e.Eid),
		EType:   int(e.EType),
		Tags:    e.SortedTags(),
		Scalars: make([]scalarPair, 0, len(e.Scalars)),
		Generic: make([]genericPair, 0, len(e.Generic)),
		Contour: make([][][2]number, 0, len(e.Contour)),
	}
	if e.Ref != uuid.Nil {
		rec.Ref = entity.EidHex(e.Ref)
	}
	for _, k := range e.SortedScalarKeys() {
		rec.Scalars = append(rec.Scalars, scalarPair{Key: k, Value: number(e.Scalars[k])})
	}
	for _, k := range e.SortedGenericKeys() {
		rec.Generic = append(rec.Generic, genericPair{Key: k, Values: numbers(e.Generic[k])})
	}
	for _, ring := range e.Contour {
		pts := make([][2]number, len(ring))
		for i, p := range ring {
			pts[i] = [2]number{number(p.X), number(p.Y)}
		}
		rec.Contour = append(rec.Contour, pts)
	}
	return rec
}

// Save streams every entity of l, historic included, in ascending eid
// order: "[", objects joined by ",\n", "]".
func Save(w io.Writer, l *ledger.Ledger) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("["); err != nil {
		return err
	}
	for i, e := range l.Entities() {
		if i > 0 {
			if _, err := bw.WriteString(",\n"); err != nil {
				return err
			}
		}
		data, err := json.Marshal(toRecord(e))
		if err != nil {
			return fmt.Errorf("failed to encode entity %s: %w", e.Eid, err)
		}
		if _, err := bw.Write(data); err != nil {
			return err
		}
	}
	if _, err := bw.WriteString("]"); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write entity file: %w", err)
	}
	return nil
}

func decodeCurrent(r io.Reader, opts Options) ([]*entity.Entity, error) {
	log := logger.Component(opts.Logger, "persist")
	dec := json.NewDecoder(r)
	if _, err := dec.Token(); err != nil {
		return nil, &entity.SchemaError{Field: "<root>", Reason: err.Error()}
	}

	var out []*entity.Entity
	for i := 0; dec.More(); i++ {
		var fields map[string]json.RawMessage
		if err := dec.Decode(&fields); err != nil {
			return nil, &entity.SchemaError{Field: fmt.Sprintf("[%d]", i), Reason: err.Error()}
		}
		for k := range fields {
			if knownFields[k] {
				continue
			}
			if opts.Strict {
				return nil, &entity.UnknownFieldError{Field: k}
			}
			log.Debug().Str("field", k).Msg("unknown field ignored")
		}
		e, err := fromFields(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if _, err := dec.Token(); err != nil {
		return nil, &entity.SchemaError{Field: "<root>", Reason: "unterminated array"}
	}
	return out, nil
}

func field(fields map[string]json.RawMessage, name string, dst any) error {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &entity.SchemaError{Field: name, Reason: err.Error()}
	}
	return nil
}

func fromFields(fields map[string]json.RawMessage) (*entity.Entity, error) {
	for _, name := range requiredFields {
		if _, ok := fields[name]; !ok {
			return nil, &entity.SchemaError{Field: name, Reason: "missing"}
		}
	}
	var rec record
	for name, dst := range map[string]any{
		"eid": &rec.Eid, "etype": &rec.EType, "ref": &rec.Ref, "tags": &rec.Tags,
		"scalars": &rec.Scalars, "generic": &rec.Generic, "contour": &rec.Contour,
	} {
		if err := field(fields, name, dst); err != nil {
			return nil, err
		}
	}

	eid, err := entity.ParseEid(rec.Eid)
	if err != nil {
		return nil, &entity.SchemaError{Field: "eid", Reason: err.Error()}
	}
	e, _ := entity.New(eid)
	e.EType = entity.EType(rec.EType)
	if !e.EType.Valid() {
		return nil, &entity.SchemaError{Field: "etype", Reason: fmt.Sprintf("%d out of range", rec.EType)}
	}
	if rec.Ref != "" {
		ref, err := entity.ParseEid(rec.Ref)
		if err != nil {
			return nil, &entity.SchemaError{Field: "ref", Reason: err.Error()}
		}
		e.Ref = ref
	}
	for _, t := range rec.Tags {
		e.AddTag(t)
	}
	for _, p := range rec.Scalars {
		e.SetScalar(p.Key, float64(p.Value))
	}
	for _, p := range rec.Generic {
		e.SetGeneric(p.Key, floats(p.Values))
	}
	if err := restoreObjectID(e); err != nil {
		return nil, err
	}

	if len(rec.Contour) > 0 {
		contour := make(geometry.Contour, len(rec.Contour))
		for i, ring := range rec.Contour {
			contour[i] = make(geometry.Ring, len(ring))
			for j, p := range ring {
				contour[i][j] = geometry.Point2D{X: float64(p[0]), Y: float64(p[1])}
			}
		}
		if err := e.UpdateContour(contour); err != nil {
			return nil, &entity.SchemaError{Field: "contour", Reason: err.Error()}
		}
	}
	return e, nil
}

// restoreObjectID takes the compact id from Scalars["object_id"].
func restoreObjectID(e *entity.Entity) error {
	v, ok := e.Scalars[entity.ObjectIDKey]
	if !ok {
		return nil
	}
	if v <= 0 || v != math.Trunc(v) || v > math.MaxUint32 {
		return &entity.SchemaError{Field: "scalars." + entity.ObjectIDKey, Reason: fmt.Sprintf("%v is not a positive integer", v)}
	}
	e.ObjectID = int(v)
	return nil
}
