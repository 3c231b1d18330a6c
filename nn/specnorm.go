// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nn

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/emer/emergent/erand"
	"github.com/emer/etable/etensor"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// SpecNorm applies spectral normalization to a Conv2D: the kernel, viewed as an
// (Out, In*K*K) matrix, is divided by an estimate of its largest singular value
// sigma, bounding the Lipschitz constant of the layer.  Sigma is estimated by
// power iteration on persistent left (U) and right (V) singular vector estimates,
// which are only updated in Train mode.
type SpecNorm struct {
	Conv       *Conv2D `desc:"the convolution whose kernel is normalized -- W holds the raw, un-normalized kernel"`
	PowerIters int     `def:"1" min:"1" desc:"number of power iterations per Train mode forward pass"`
	Eps        float32 `def:"1e-12" desc:"lower bound on vector norms when normalizing"`
	U          *Param  `desc:"left singular vector estimate, shape (Out)"`
	V          *Param  `desc:"right singular vector estimate, shape (In*K*K)"`
}

// NewSpecNorm returns spectral normalization of given conv.
// InitVecs must be called after the conv weights are initialized.
func NewSpecNorm(cv *Conv2D, powerIters int) *SpecNorm {
	if powerIters < 1 {
		powerIters = 1
	}
	sn := &SpecNorm{Conv: cv, PowerIters: powerIters, Eps: 1e-12}
	sn.U = NewParam(cv.Nm+".U", 0, cv.Out)
	sn.U.Fixed = true
	sn.V = NewParam(cv.Nm+".V", 0, cv.KSize())
	sn.V.Fixed = true
	return sn
}

func (sn *SpecNorm) Name() string { return sn.Conv.Nm }

func (sn *SpecNorm) Params() []*Param {
	return append(sn.Conv.Params(), sn.U, sn.V)
}

// InitVecs sets U to a random unit vector and runs one power iteration
// to initialize V from the current weights
func (sn *SpecNorm) InitVecs() {
	rp := erand.RndParams{Dist: erand.Gaussian, Var: 1}
	u := sn.U.Vals.Values
	for i := range u {
		u[i] = float32(rp.Gen(-1))
	}
	sn.normalize(u)
	sn.PowerIter(1)
}

// wtMat returns the raw kernel as an (Out, In*K*K) matrix
func (sn *SpecNorm) wtMat() blas32.General {
	ksz := sn.Conv.KSize()
	return blas32.General{Rows: sn.Conv.Out, Cols: ksz, Stride: ksz, Data: sn.Conv.W.Vals.Values}
}

func (sn *SpecNorm) normalize(x []float32) {
	ss := float32(0)
	for _, v := range x {
		ss += v * v
	}
	nrm := math32.Max(math32.Sqrt(ss), sn.Eps)
	for i := range x {
		x[i] /= nrm
	}
}

// PowerIter runs n power iterations, updating U and V
func (sn *SpecNorm) PowerIter(n int) {
	wm := sn.wtMat()
	u := blas32.Vector{N: wm.Rows, Inc: 1, Data: sn.U.Vals.Values}
	v := blas32.Vector{N: wm.Cols, Inc: 1, Data: sn.V.Vals.Values}
	for i := 0; i < n; i++ {
		blas32.Gemv(blas.Trans, 1, wm, u, 0, v)
		sn.normalize(v.Data)
		blas32.Gemv(blas.NoTrans, 1, wm, v, 0, u)
		sn.normalize(u.Data)
	}
}

// Sigma returns the current estimate of the largest singular value, u . W v
func (sn *SpecNorm) Sigma() float32 {
	wm := sn.wtMat()
	wv := blas32.Vector{N: wm.Rows, Inc: 1, Data: make([]float32, wm.Rows)}
	blas32.Gemv(blas.NoTrans, 1, wm, blas32.Vector{N: wm.Cols, Inc: 1, Data: sn.V.Vals.Values}, 0, wv)
	return blas32.Dot(blas32.Vector{N: wm.Rows, Inc: 1, Data: sn.U.Vals.Values}, wv)
}

// NormWts returns the kernel divided by Sigma
func (sn *SpecNorm) NormWts() []float32 {
	return sn.scaledWts(sn.Sigma())
}

func (sn *SpecNorm) scaledWts(sig float32) []float32 {
	wt := make([]float32, sn.Conv.W.Len())
	for i, w := range sn.Conv.W.Vals.Values {
		wt[i] = w / sig
	}
	return wt
}

func (sn *SpecNorm) Forward(x *etensor.Float32) (*etensor.Float32, error) {
	return sn.ForwardMode(x, Eval)
}

// ForwardMode runs the normalized convolution, first updating the power
// iteration if mode is Train
func (sn *SpecNorm) ForwardMode(x *etensor.Float32, mode Mode) (*etensor.Float32, error) {
	if mode == Train {
		sn.PowerIter(sn.PowerIters)
	}
	sig := sn.Sigma()
	if sig == 0 || math32.IsNaN(sig) {
		return nil, fmt.Errorf("%s: spectral norm estimate is %v -- call InitVecs after initializing weights", sn.Conv.Nm, sig)
	}
	return sn.Conv.ForwardWt(x, sn.scaledWts(sig))
}
