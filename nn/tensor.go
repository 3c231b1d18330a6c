// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nn

import (
	"fmt"

	"github.com/emer/etable/etensor"
)

// NewTensor returns a new zero-valued float32 tensor of given shape
func NewTensor(shape ...int) *etensor.Float32 {
	return etensor.NewFloat32(shape, nil, nil)
}

// NewIntTensor returns a new zero-valued int tensor of given shape
func NewIntTensor(shape ...int) *etensor.Int {
	return etensor.NewInt(shape, nil, nil)
}

// View returns a tensor with the given shape that shares the values of tsr.
// One dimension may be given as -1, in which case it is inferred from
// the total length.
func View(tsr *etensor.Float32, shape ...int) (*etensor.Float32, error) {
	shp, err := inferShape(tsr.Len(), shape)
	if err != nil {
		return nil, err
	}
	vt := &etensor.Float32{Values: tsr.Values}
	vt.SetShape(shp, nil, nil)
	return vt, nil
}

// ViewInt is the int version of View
func ViewInt(tsr *etensor.Int, shape ...int) (*etensor.Int, error) {
	shp, err := inferShape(tsr.Len(), shape)
	if err != nil {
		return nil, err
	}
	vt := &etensor.Int{Values: tsr.Values}
	vt.SetShape(shp, nil, nil)
	return vt, nil
}

// Clone returns a deep copy of tsr
func Clone(tsr *etensor.Float32) *etensor.Float32 {
	ct := NewTensor(tsr.Shapes()...)
	copy(ct.Values, tsr.Values)
	return ct
}

// inferShape fills in a single -1 dimension so the product matches n
func inferShape(n int, shape []int) ([]int, error) {
	shp := make([]int, len(shape))
	copy(shp, shape)
	prod := 1
	free := -1
	for i, sz := range shp {
		if sz < 0 {
			if free >= 0 {
				return nil, fmt.Errorf("view %v: only one dimension can be inferred: %w", shape, ErrShape)
			}
			free = i
			continue
		}
		prod *= sz
	}
	if free >= 0 {
		if prod == 0 || n%prod != 0 {
			return nil, fmt.Errorf("view %v of %d values: %w", shape, n, ErrShape)
		}
		shp[free] = n / prod
		return shp, nil
	}
	if prod != n {
		return nil, fmt.Errorf("view %v of %d values: %w", shape, n, ErrShape)
	}
	return shp, nil
}

// CheckShape returns an ErrShape error if the shape of tsr does not match
// the given shape -- dimensions given as -1 match any size.
func CheckShape(name string, shp []int, want ...int) error {
	if len(shp) != len(want) {
		return fmt.Errorf("%s: shape %v, want %v: %w", name, shp, want, ErrShape)
	}
	for i, sz := range want {
		if sz >= 0 && shp[i] != sz {
			return fmt.Errorf("%s: shape %v, want %v: %w", name, shp, want, ErrShape)
		}
	}
	return nil
}

// Rows returns the number of rows of width cols held in tsr, which must be
// at least 2D with a final dimension of cols.
func Rows(name string, tsr *etensor.Float32, cols int) (int, error) {
	nd := tsr.NumDims()
	if nd < 2 || tsr.Dim(nd-1) != cols {
		return 0, fmt.Errorf("%s: shape %v, want (.., %d): %w", name, tsr.Shapes(), cols, ErrShape)
	}
	n := tsr.Len() / cols
	if n == 0 {
		return 0, fmt.Errorf("%s: empty input: %w", name, ErrShape)
	}
	return n, nil
}

// Image returns the (N, C, Y, X) sizes of a 4D image tensor, checking the
// channel count if chans >= 0.
func Image(name string, tsr *etensor.Float32, chans int) (n, c, h, w int, err error) {
	if err = CheckShape(name, tsr.Shapes(), -1, chans, -1, -1); err != nil {
		return
	}
	n, c, h, w = tsr.Dim(0), tsr.Dim(1), tsr.Dim(2), tsr.Dim(3)
	if n == 0 {
		err = fmt.Errorf("%s: empty input: %w", name, ErrShape)
	}
	return
}

// Concat concatenates 2D tensors along their column dimension.
// All must have the same number of rows.
func Concat(ts ...*etensor.Float32) (*etensor.Float32, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("concat: no inputs: %w", ErrShape)
	}
	n := ts[0].Dim(0)
	cols := 0
	for i, t := range ts {
		if t.NumDims() != 2 || t.Dim(0) != n {
			return nil, fmt.Errorf("concat: input %d shape %v, want (%d, ..): %w", i, t.Shapes(), n, ErrShape)
		}
		cols += t.Dim(1)
	}
	ct := NewTensor(n, cols)
	for r := 0; r < n; r++ {
		off := r * cols
		for _, t := range ts {
			tc := t.Dim(1)
			copy(ct.Values[off:off+tc], t.Values[r*tc:(r+1)*tc])
			off += tc
		}
	}
	return ct, nil
}
