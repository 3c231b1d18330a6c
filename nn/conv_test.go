// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nn

import (
	"errors"
	"testing"

	"github.com/chewxy/math32"
	"github.com/emer/etable/etensor"
)

// difTol is the numerical difference tolerance for comparing vs. target values
const difTol = float32(1.0e-4)

func randTensor(shape ...int) *etensor.Float32 {
	pr := NewParam("rnd", 1, shape...)
	pr.InitWts()
	return pr.Vals
}

func cmprVals(t *testing.T, name string, got, want []float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: len %d, want %d", name, len(got), len(want))
	}
	for i := range got {
		if dif := math32.Abs(got[i] - want[i]); dif > difTol {
			t.Errorf("%s: idx %d got %v want %v dif %v", name, i, got[i], want[i], dif)
		}
	}
}

// directConv computes a convolution with no unrolling
func directConv(cv *Conv2D, x *etensor.Float32) []float32 {
	n, h, w := x.Dim(0), x.Dim(2), x.Dim(3)
	oh, ow := cv.OutSize(h), cv.OutSize(w)
	y := make([]float32, n*cv.Out*oh*ow)
	for i := 0; i < n; i++ {
		for o := 0; o < cv.Out; o++ {
			for oy := 0; oy < oh; oy++ {
				for ox := 0; ox < ow; ox++ {
					sum := float32(0)
					if cv.B != nil {
						sum = cv.B.Vals.Values[o]
					}
					for c := 0; c < cv.In; c++ {
						for ky := 0; ky < cv.K; ky++ {
							for kx := 0; kx < cv.K; kx++ {
								iy := oy*cv.Stride - cv.Pad + ky
								ix := ox*cv.Stride - cv.Pad + kx
								if iy < 0 || iy >= h || ix < 0 || ix >= w {
									continue
								}
								wt := cv.W.Vals.Values[((o*cv.In+c)*cv.K+ky)*cv.K+kx]
								sum += wt * x.Values[((i*cv.In+c)*h+iy)*w+ix]
							}
						}
					}
					y[((i*cv.Out+o)*oh+oy)*ow+ox] = sum
				}
			}
		}
	}
	return y
}

func TestConv2D(t *testing.T) {
	geoms := []ConvParams{
		{In: 3, Out: 4, K: 3, Stride: 1, Pad: 1},
		{In: 2, Out: 5, K: 4, Stride: 2, Pad: 1},
		{In: 4, Out: 1, K: 4, Stride: 1, Pad: 0},
		{In: 5, Out: 3, K: 5, Stride: 1, Pad: 2},
	}
	for gi, g := range geoms {
		cv := NewConv2D("conv", g.In, g.Out, g.K, g.Stride, g.Pad, gi%2 == 0)
		InitParams(cv.Params())
		x := randTensor(2, g.In, 8, 8)
		y, err := cv.Forward(x)
		if err != nil {
			t.Fatal(err)
		}
		oh := cv.OutSize(8)
		if err := CheckShape("conv", y.Shapes(), 2, g.Out, oh, oh); err != nil {
			t.Error(err)
		}
		cmprVals(t, "conv", y.Values, directConv(cv, x))
	}
}

func TestConv2DShapeErr(t *testing.T) {
	cv := NewConv2D("conv", 3, 4, 3, 1, 1, true)
	if _, err := cv.Forward(NewTensor(2, 2, 8, 8)); !errors.Is(err, ErrShape) {
		t.Errorf("wrong channels: want ErrShape, got %v", err)
	}
	if _, err := cv.Forward(NewTensor(2, 3, 8)); !errors.Is(err, ErrShape) {
		t.Errorf("3D input: want ErrShape, got %v", err)
	}
	cv = NewConv2D("conv", 1, 1, 5, 1, 0, true)
	if _, err := cv.Forward(NewTensor(1, 1, 3, 3)); !errors.Is(err, ErrShape) {
		t.Errorf("too small: want ErrShape, got %v", err)
	}
}

func TestConvTranspose2D(t *testing.T) {
	ct := NewConvTranspose2D("convt", 3, 2, 4, 2, 1, true)
	InitParams(ct.Params())
	h := 4
	x := randTensor(2, 3, h, h)
	y, err := ct.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	oh := ct.OutSize(h)
	if oh != 8 {
		t.Errorf("out size %d, want 8", oh)
	}
	if err := CheckShape("convt", y.Shapes(), 2, 2, oh, oh); err != nil {
		t.Fatal(err)
	}
	// direct scatter of each input value through the kernel
	want := make([]float32, len(y.Values))
	for i := 0; i < 2; i++ {
		for o := 0; o < ct.Out; o++ {
			for j := 0; j < oh*oh; j++ {
				want[(i*ct.Out+o)*oh*oh+j] = ct.B.Vals.Values[o]
			}
		}
		for c := 0; c < ct.In; c++ {
			for iy := 0; iy < h; iy++ {
				for ix := 0; ix < h; ix++ {
					xv := x.Values[((i*ct.In+c)*h+iy)*h+ix]
					for o := 0; o < ct.Out; o++ {
						for ky := 0; ky < ct.K; ky++ {
							for kx := 0; kx < ct.K; kx++ {
								oy := iy*ct.Stride - ct.Pad + ky
								ox := ix*ct.Stride - ct.Pad + kx
								if oy < 0 || oy >= oh || ox < 0 || ox >= oh {
									continue
								}
								wt := ct.W.Vals.Values[((c*ct.Out+o)*ct.K+ky)*ct.K+kx]
								want[((i*ct.Out+o)*oh+oy)*oh+ox] += wt * xv
							}
						}
					}
				}
			}
		}
	}
	cmprVals(t, "convt", y.Values, want)
}

func TestResBlock(t *testing.T) {
	rb := NewResBlock("res", 1)
	// identity-like kernels: conv1 passes x, conv2 scales by -0.5
	rb.Conv1.W.Vals.Values[4] = 1
	rb.Conv2.W.Vals.Values[4] = -0.5
	x := NewTensor(1, 1, 3, 3)
	copy(x.Values, []float32{-2, -1, 0, 1, 2, 3, -0.5, 0.5, 4})
	y, err := rb.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	if err := CheckShape("res", y.Shapes(), x.Shapes()...); err != nil {
		t.Error(err)
	}
	want := make([]float32, len(x.Values))
	for i, v := range x.Values {
		want[i] = Relu(v - 0.5*Relu(v))
	}
	cmprVals(t, "res", y.Values, want)
	if x.Values[0] != -2 {
		t.Errorf("input modified")
	}
}
