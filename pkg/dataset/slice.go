package dataset

import (
	"fmt"
	"math"
)

// SelectRange returns a copy restricted to coordinate values of dim inside
// [lo, hi], inclusive. Variables without the dim are copied unchanged. The
// range may select nothing; the result is then empty along dim.
func (d *Dataset) SelectRange(dim string, lo, hi float64) (*Dataset, error) {
	coord, ok := d.Coords[dim]
	if !ok {
		return nil, fmt.Errorf("dataset %q has no dimension %q", d.Name, dim)
	}

	keep := make([]int, 0, len(coord))
	for i, c := range coord {
		if c >= lo && c <= hi {
			keep = append(keep, i)
		}
	}

	out := d.Copy()
	newCoord := make([]float64, len(keep))
	for i, idx := range keep {
		newCoord[i] = coord[idx]
	}
	out.Coords[dim] = newCoord

	for name, v := range d.Vars {
		axis := dimAxis(v, dim)
		if axis < 0 {
			continue
		}
		out.Vars[name].Values = gather(v.Values, d.Shape(v), axis, keep)
	}
	return out, nil
}

// ReduceMean collapses dim by averaging over it, NaN values excluded.
// Variables without the dim are copied unchanged; the coordinate axis is
// dropped from the result.
func (d *Dataset) ReduceMean(dim string) (*Dataset, error) {
	if _, ok := d.Coords[dim]; !ok {
		return nil, fmt.Errorf("dataset %q has no dimension %q", d.Name, dim)
	}

	out := d.Copy()
	delete(out.Coords, dim)

	for name, v := range d.Vars {
		axis := dimAxis(v, dim)
		if axis < 0 {
			continue
		}
		nv := out.Vars[name]
		nv.Values = meanAxis(v.Values, d.Shape(v), axis)
		nv.Dims = append(nv.Dims[:axis], nv.Dims[axis+1:]...)
	}
	return out, nil
}

func dimAxis(v *Variable, dim string) int {
	for i, d := range v.Dims {
		if d == dim {
			return i
		}
	}
	return -1
}

// rowStrides returns row-major strides for a shape.
func rowStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

// gather copies the elements whose index along axis is listed in keep,
// preserving row-major layout.
func gather(values []float64, shape []int, axis int, keep []int) []float64 {
	strides := rowStrides(shape)

	outShape := append([]int(nil), shape...)
	outShape[axis] = len(keep)
	outLen := 1
	for _, n := range outShape {
		outLen *= n
	}
	out := make([]float64, outLen)
	if outLen == 0 {
		return out
	}

	idx := make([]int, len(shape))
	for pos := 0; pos < outLen; pos++ {
		src := 0
		for ax, i := range idx {
			if ax == axis {
				src += strides[ax] * keep[i]
			} else {
				src += strides[ax] * i
			}
		}
		out[pos] = values[src]

		for ax := len(idx) - 1; ax >= 0; ax-- {
			idx[ax]++
			if idx[ax] < outShape[ax] {
				break
			}
			idx[ax] = 0
		}
	}
	return out
}

// meanAxis averages values over one axis, skipping NaNs. Cells with no
// finite inputs come out NaN. Row-major input means the flat position is its
// own source index; only the destination needs stride arithmetic.
func meanAxis(values []float64, shape []int, axis int) []float64 {
	outLen := 1
	for ax, n := range shape {
		if ax != axis {
			outLen *= n
		}
	}

	sums := make([]float64, outLen)
	counts := make([]int, outLen)
	idx := make([]int, len(shape))
	for pos := 0; pos < len(values); pos++ {
		dst := 0
		dstStride := 1
		for ax := len(shape) - 1; ax >= 0; ax-- {
			if ax != axis {
				dst += dstStride * idx[ax]
				dstStride *= shape[ax]
			}
		}
		if v := values[pos]; !math.IsNaN(v) {
			sums[dst] += v
			counts[dst]++
		}

		for ax := len(idx) - 1; ax >= 0; ax-- {
			idx[ax]++
			if idx[ax] < shape[ax] {
				break
			}
			idx[ax] = 0
		}
	}

	out := make([]float64, outLen)
	for i := range out {
		if counts[i] == 0 {
			out[i] = math.NaN()
		} else {
			out[i] = sums[i] / float64(counts[i])
		}
	}
	return out
}
