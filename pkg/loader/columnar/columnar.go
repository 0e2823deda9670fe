// Package columnar reads event files stored as columnar JSON documents:
//
//	{"n_events": 2, "columns": {"b_index": [[1, -1], [2]], "n_LCA_1": [2, 0], ...}}
//
// Row-level columns hold one array per event, event-level columns one scalar
// per event. A null float decodes as NaN.
package columnar

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/OFFIS-RIT/decaygraph/pkg/common"
	"github.com/OFFIS-RIT/decaygraph/pkg/loader"

	"github.com/tidwall/gjson"
)

// Document is a parsed columnar file. Column values are decoded lazily, so a
// column that is never requested is never converted.
type Document struct {
	names   []string
	columns map[string]gjson.Result
	events  int
}

// Open fetches the file through its loader and parses it.
func Open(ctx context.Context, file loader.SourceFile) (*Document, error) {
	data, err := file.GetBytes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", file.ID, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", file.ID, err)
	}
	return doc, nil
}

// Parse decodes the document header and indexes its columns.
func Parse(data []byte) (*Document, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: document is not valid JSON", common.ErrSchemaMismatch)
	}

	nEvents := gjson.GetBytes(data, "n_events")
	if !nEvents.Exists() || nEvents.Int() < 0 {
		return nil, fmt.Errorf("%w: document has no n_events", common.ErrSchemaMismatch)
	}
	cols := gjson.GetBytes(data, "columns")
	if !cols.IsObject() {
		return nil, fmt.Errorf("%w: document has no columns object", common.ErrSchemaMismatch)
	}

	doc := &Document{
		columns: make(map[string]gjson.Result),
		events:  int(nEvents.Int()),
	}
	var parseErr error
	cols.ForEach(func(key, value gjson.Result) bool {
		if !value.IsArray() {
			parseErr = fmt.Errorf("%w: column %q is not an array", common.ErrSchemaMismatch, key.String())
			return false
		}
		name := key.String()
		if _, dup := doc.columns[name]; !dup {
			doc.names = append(doc.names, name)
		}
		doc.columns[name] = value
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return doc, nil
}

// Columns returns every column name in document order.
func (d *Document) Columns() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// NumEvents returns the number of events declared by the document.
func (d *Document) NumEvents() int {
	return d.events
}

// Has reports whether the column exists.
func (d *Document) Has(name string) bool {
	_, ok := d.columns[name]
	return ok
}

func (d *Document) perEvent(name string) ([]gjson.Result, error) {
	col, ok := d.columns[name]
	if !ok {
		return nil, fmt.Errorf("%w: column %q missing", common.ErrSchemaMismatch, name)
	}
	values := col.Array()
	if len(values) != d.events {
		return nil, fmt.Errorf("%w: column %q has %d events, want %d", common.ErrSchemaMismatch, name, len(values), d.events)
	}
	return values, nil
}

func ragged[T any](d *Document, name string, conv func(gjson.Result) T) (common.Ragged[T], error) {
	events, err := d.perEvent(name)
	if err != nil {
		return common.Ragged[T]{}, err
	}
	out := common.Ragged[T]{Offsets: make([]int, 1, len(events)+1)}
	for evt, ev := range events {
		if !ev.IsArray() {
			return common.Ragged[T]{}, fmt.Errorf("%w: column %q event %d is not a row array", common.ErrSchemaMismatch, name, evt)
		}
		ev.ForEach(func(_, v gjson.Result) bool {
			out.Values = append(out.Values, conv(v))
			return true
		})
		out.Offsets = append(out.Offsets, len(out.Values))
	}
	return out, nil
}

func scalars[T any](d *Document, name string, conv func(gjson.Result) T) ([]T, error) {
	events, err := d.perEvent(name)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(events))
	for evt, ev := range events {
		if ev.IsArray() || ev.IsObject() {
			return nil, fmt.Errorf("%w: column %q event %d is not a scalar", common.ErrSchemaMismatch, name, evt)
		}
		out[evt] = conv(ev)
	}
	return out, nil
}

// Ints decodes a row-level integer column.
func (d *Document) Ints(name string) (common.Ragged[int], error) {
	return ragged(d, name, toInt)
}

// Bools decodes a row-level boolean column. Numbers are true when non-zero.
func (d *Document) Bools(name string) (common.Ragged[bool], error) {
	return ragged(d, name, toBool)
}

// Floats decodes a row-level float column.
func (d *Document) Floats(name string) (common.Ragged[float64], error) {
	return ragged(d, name, toFloat)
}

// ScalarInts decodes an event-level integer column.
func (d *Document) ScalarInts(name string) ([]int, error) {
	return scalars(d, name, toInt)
}

// ScalarFloats decodes an event-level float column.
func (d *Document) ScalarFloats(name string) ([]float64, error) {
	return scalars(d, name, toFloat)
}

func toInt(v gjson.Result) int {
	return int(v.Int())
}

func toBool(v gjson.Result) bool {
	return v.Bool()
}

func toFloat(v gjson.Result) float64 {
	switch v.Type {
	case gjson.Null:
		return math.NaN()
	case gjson.String:
		f, err := strconv.ParseFloat(v.Str, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return v.Float()
	}
}
