package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Document form:
//
//	{
//	  "name": "sst_monthly",
//	  "attrs": {"units": "K"},
//	  "coords": {"lat": [...], "lon": [...], "time": [...]},
//	  "vars": {"sst": {"dims": ["time","lat","lon"], "values": [...]}}
//	}
//
// NaN cells are encoded as null.
type document struct {
	Name   string                `json:"name"`
	Attrs  map[string]string     `json:"attrs,omitempty"`
	Coords map[string]jsonValues `json:"coords,omitempty"`
	Vars   map[string]*varDoc    `json:"vars"`
}

type varDoc struct {
	Dims   []string          `json:"dims,omitempty"`
	Values jsonValues        `json:"values"`
	Attrs  map[string]string `json:"attrs,omitempty"`
}

type jsonValues []float64

func (v jsonValues) MarshalJSON() ([]byte, error) {
	cells := make([]*float64, len(v))
	for i := range v {
		if !math.IsNaN(v[i]) {
			cells[i] = &v[i]
		}
	}
	return json.Marshal(cells)
}

func (v *jsonValues) UnmarshalJSON(b []byte) error {
	var cells []*float64
	if err := json.Unmarshal(b, &cells); err != nil {
		return err
	}
	out := make([]float64, len(cells))
	for i, c := range cells {
		if c == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *c
		}
	}
	*v = out
	return nil
}

// Encode writes the dataset as an indented JSON document.
func Encode(w io.Writer, d *Dataset) error {
	doc := document{
		Name:   d.Name,
		Attrs:  d.Attrs,
		Coords: make(map[string]jsonValues, len(d.Coords)),
		Vars:   make(map[string]*varDoc, len(d.Vars)),
	}
	for dim, coord := range d.Coords {
		doc.Coords[dim] = jsonValues(coord)
	}
	for name, v := range d.Vars {
		doc.Vars[name] = &varDoc{Dims: v.Dims, Values: jsonValues(v.Values), Attrs: v.Attrs}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Decode reads a JSON dataset document. Unknown fields are rejected and the
// result is validated before it is returned.
func Decode(r io.Reader) (*Dataset, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}

	ds := New(doc.Name)
	if doc.Attrs != nil {
		ds.Attrs = doc.Attrs
	}
	for dim, coord := range doc.Coords {
		ds.Coords[dim] = []float64(coord)
	}
	for name, v := range doc.Vars {
		nv := &Variable{Dims: v.Dims, Values: []float64(v.Values), Attrs: v.Attrs}
		ds.Vars[name] = nv
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return ds, nil
}

// ReadFile loads a dataset document from disk.
func ReadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ds, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// WriteFile writes an evaluated value to path. Format "csv" writes one row
// per cell and requires a dataset, "json" writes the dataset document (or
// plain indented JSON for other values). An empty format picks by file
// extension. Returns the format actually written.
func WriteFile(path, format string, v any) (string, error) {
	if format == "" {
		if strings.EqualFold(filepath.Ext(path), ".csv") {
			format = "csv"
		} else {
			format = "json"
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	switch format {
	case "csv":
		ds, ok := v.(*Dataset)
		if !ok {
			return "", fmt.Errorf("value is not a dataset, cannot write csv")
		}
		if err := WriteCSV(f, ds); err != nil {
			return "", err
		}
	case "json":
		if ds, ok := v.(*Dataset); ok {
			if err := Encode(f, ds); err != nil {
				return "", err
			}
			break
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("unknown format %q, want csv or json", format)
	}

	if err := f.Close(); err != nil {
		return "", err
	}
	return format, nil
}

// WriteCSV writes one row per cell: variable name, one column per coordinate
// axis the variable spans, and the cell value. Axes the variable does not
// use stay empty, NaN cells are written empty.
func WriteCSV(w io.Writer, d *Dataset) error {
	dims := d.DimNames()

	cw := csv.NewWriter(w)
	header := append([]string{"variable"}, dims...)
	header = append(header, "value")
	if err := cw.Write(header); err != nil {
		return err
	}

	axisCol := make(map[string]int, len(dims))
	for i, dim := range dims {
		axisCol[dim] = 1 + i
	}

	for _, name := range d.VarNames() {
		v := d.Vars[name]
		shape := d.Shape(v)
		idx := make([]int, len(shape))
		for pos := 0; pos < len(v.Values); pos++ {
			row := make([]string, len(header))
			row[0] = name
			for ax, dim := range v.Dims {
				row[axisCol[dim]] = formatCell(d.Coords[dim][idx[ax]])
			}
			row[len(row)-1] = formatCell(v.Values[pos])
			if err := cw.Write(row); err != nil {
				return err
			}

			for ax := len(idx) - 1; ax >= 0; ax-- {
				idx[ax]++
				if idx[ax] < shape[ax] {
					break
				}
				idx[ax] = 0
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
