// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/emer/etable/etensor"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Linear is a fully-connected layer computing y = x W^T + b
type Linear struct {
	Nm  string `desc:"name of layer"`
	In  int    `desc:"number of input features"`
	Out int    `desc:"number of output features"`
	W   *Param `desc:"weights, shape (Out, In)"`
	B   *Param `desc:"biases, shape (Out) -- nil if no bias"`
}

// NewLinear returns a new Linear layer with bias, with zero weights
func NewLinear(name string, in, out int) *Linear {
	ln := &Linear{Nm: name, In: in, Out: out}
	ln.W = NewParam(name+".W", in, out, in)
	ln.B = NewParam(name+".B", in, out)
	return ln
}

func (ln *Linear) Name() string { return ln.Nm }

func (ln *Linear) Params() []*Param {
	if ln.B == nil {
		return []*Param{ln.W}
	}
	return []*Param{ln.W, ln.B}
}

// Forward computes the output for input x of shape (.., In), returning (n, Out)
func (ln *Linear) Forward(x *etensor.Float32) (*etensor.Float32, error) {
	n, err := Rows(ln.Nm, x, ln.In)
	if err != nil {
		return nil, err
	}
	y := NewTensor(n, ln.Out)
	ln.Apply(x.Values, y.Values, n)
	return y, nil
}

// Apply computes y = x W^T + b for n rows of raw values, overwriting y
func (ln *Linear) Apply(x, y []float32, n int) {
	if ln.B != nil {
		b := ln.B.Vals.Values
		for r := 0; r < n; r++ {
			copy(y[r*ln.Out:(r+1)*ln.Out], b)
		}
	} else {
		for i := range y[:n*ln.Out] {
			y[i] = 0
		}
	}
	MatMulT(x, ln.W.Vals.Values, y, n, ln.In, ln.Out, 1)
}

// MatMulT computes c = a b^T + beta c, where a is (m, k), b is (n, k) and c is (m, n)
func MatMulT(a, b, c []float32, m, k, n int, beta float32) {
	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: a[:m*k]},
		blas32.General{Rows: n, Cols: k, Stride: k, Data: b[:n*k]},
		beta,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c[:m*n]})
}

// MatMul computes c = a b + beta c, where a is (m, k), b is (k, n) and c is (m, n)
func MatMul(a, b, c []float32, m, k, n int, beta float32) {
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: a[:m*k]},
		blas32.General{Rows: k, Cols: n, Stride: n, Data: b[:k*n]},
		beta,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c[:m*n]})
}

// TMatMul computes c = a^T b + beta c, where a is (k, m), b is (k, n) and c is (m, n)
func TMatMul(a, b, c []float32, m, k, n int, beta float32) {
	blas32.Gemm(blas.Trans, blas.NoTrans, 1,
		blas32.General{Rows: k, Cols: m, Stride: m, Data: a[:k*m]},
		blas32.General{Rows: k, Cols: n, Stride: n, Data: b[:k*n]},
		beta,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c[:m*n]})
}
