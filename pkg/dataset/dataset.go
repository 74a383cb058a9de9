// Package dataset provides the in-memory gridded dataset exchanged between
// data stores and operators: named variables laid out row-major over named
// coordinate axes. The workspace engine itself never inspects these values;
// it moves them around as opaque handles.
package dataset

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Dataset is a collection of variables sharing named coordinate axes.
type Dataset struct {
	Name   string
	Attrs  map[string]string
	Coords map[string][]float64
	Vars   map[string]*Variable
}

// Variable holds one array of values over a subset of the dataset's axes,
// row-major in Dims order. A variable with no dims is a scalar with a single
// value.
type Variable struct {
	Dims   []string
	Values []float64
	Attrs  map[string]string
}

// New creates an empty dataset.
func New(name string) *Dataset {
	return &Dataset{
		Name:   name,
		Attrs:  make(map[string]string),
		Coords: make(map[string][]float64),
		Vars:   make(map[string]*Variable),
	}
}

// Scalar creates a dataset holding a single dimensionless value, the shape
// operators use for scalar results.
func Scalar(name string, value float64) *Dataset {
	ds := New(name)
	ds.Vars[name] = &Variable{Values: []float64{value}}
	return ds
}

// ScalarValue returns the single value of a one-variable scalar dataset.
func (d *Dataset) ScalarValue() (float64, bool) {
	if len(d.Vars) != 1 {
		return 0, false
	}
	for _, v := range d.Vars {
		if len(v.Dims) == 0 && len(v.Values) == 1 {
			return v.Values[0], true
		}
	}
	return 0, false
}

// Validate checks structural consistency: every variable dimension must have
// a coordinate axis and every value array must match its shape.
func (d *Dataset) Validate() error {
	for name, v := range d.Vars {
		n := 1
		for _, dim := range v.Dims {
			coord, ok := d.Coords[dim]
			if !ok {
				return fmt.Errorf("variable %q: no coordinate axis %q", name, dim)
			}
			n *= len(coord)
		}
		if len(v.Values) != n {
			return fmt.Errorf("variable %q: have %d values, shape wants %d", name, len(v.Values), n)
		}
	}
	return nil
}

// Shape returns the variable's extent along each of its dims.
func (d *Dataset) Shape(v *Variable) []int {
	shape := make([]int, len(v.Dims))
	for i, dim := range v.Dims {
		shape[i] = len(d.Coords[dim])
	}
	return shape
}

// Copy returns a deep copy.
func (d *Dataset) Copy() *Dataset {
	out := New(d.Name)
	for k, v := range d.Attrs {
		out.Attrs[k] = v
	}
	for dim, coord := range d.Coords {
		out.Coords[dim] = append([]float64(nil), coord...)
	}
	for name, v := range d.Vars {
		nv := &Variable{
			Dims:   append([]string(nil), v.Dims...),
			Values: append([]float64(nil), v.Values...),
		}
		if v.Attrs != nil {
			nv.Attrs = make(map[string]string, len(v.Attrs))
			for k, a := range v.Attrs {
				nv.Attrs[k] = a
			}
		}
		out.Vars[name] = nv
	}
	return out
}

// VarNames returns the variable names sorted.
func (d *Dataset) VarNames() []string {
	names := make([]string, 0, len(d.Vars))
	for name := range d.Vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DimNames returns the coordinate axis names sorted.
func (d *Dataset) DimNames() []string {
	names := make([]string, 0, len(d.Coords))
	for name := range d.Coords {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RenameDim renames a coordinate axis and rewrites every variable using it.
// Renaming a missing axis is a no-op.
func (d *Dataset) RenameDim(old, canonical string) {
	coord, ok := d.Coords[old]
	if !ok || old == canonical {
		return
	}
	d.Coords[canonical] = coord
	delete(d.Coords, old)
	for _, v := range d.Vars {
		for i, dim := range v.Dims {
			if dim == old {
				v.Dims[i] = canonical
			}
		}
	}
}

// Stats are the value statistics shown in summaries, NaN-aware.
type Stats struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
}

// ValueStats computes NaN-aware statistics over a value slice.
func ValueStats(values []float64) Stats {
	s := Stats{Min: math.NaN(), Max: math.NaN(), Mean: math.NaN()}
	sum := 0.0
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if s.Count == 0 {
			s.Min, s.Max = v, v
		} else {
			if v < s.Min {
				s.Min = v
			}
			if v > s.Max {
				s.Max = v
			}
		}
		sum += v
		s.Count++
	}
	if s.Count > 0 {
		s.Mean = sum / float64(s.Count)
	}
	return s
}

// The time axis unit is fractional days since the Unix epoch, UTC.

// DaysSinceEpoch converts a time to the time-axis unit.
func DaysSinceEpoch(t time.Time) float64 {
	return float64(t.UTC().Unix()) / 86400.0
}

// TimeFromDays converts a time-axis value back to a time.
func TimeFromDays(days float64) time.Time {
	sec := int64(math.Round(days * 86400.0))
	return time.Unix(sec, 0).UTC()
}

// ParseTime accepts RFC 3339 or plain dates for temporal subsetting bounds.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q, want RFC 3339 or YYYY-MM-DD", s)
}
