// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/chewxy/math32"
	"github.com/emer/etable/etensor"
)

///////////////////////////////////////////////////////////////////////
//  act.go contains the pointwise activation functions and layers

// Relu returns max(0, x)
func Relu(x float32) float32 {
	if x < 0 {
		return 0
	}
	return x
}

// Sigmoid returns the logistic function 1 / (1 + e^-x)
func Sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

// ReluInPlace applies Relu to each value in vals
func ReluInPlace(vals []float32) {
	for i, v := range vals {
		if v < 0 {
			vals[i] = 0
		}
	}
}

// SoftmaxRows computes the softmax over each row of n rows of width cols,
// writing into out (which can be the same as in).
// The max is subtracted first for numerical stability.
func SoftmaxRows(in, out []float32, n, cols int) {
	for r := 0; r < n; r++ {
		iv := in[r*cols : (r+1)*cols]
		ov := out[r*cols : (r+1)*cols]
		mx := iv[0]
		for _, v := range iv[1:] {
			mx = math32.Max(mx, v)
		}
		sum := float32(0)
		for i, v := range iv {
			ev := math32.Exp(v - mx)
			ov[i] = ev
			sum += ev
		}
		for i := range ov {
			ov[i] /= sum
		}
	}
}

// ReLU is a Layer computing max(0, x)
type ReLU struct {
	Nm string
}

func (ly *ReLU) Name() string     { return ly.Nm }
func (ly *ReLU) Params() []*Param { return nil }

func (ly *ReLU) Forward(x *etensor.Float32) (*etensor.Float32, error) {
	y := Clone(x)
	ReluInPlace(y.Values)
	return y, nil
}

// LeakyReLU is a Layer computing x for x > 0, and Slope * x otherwise
type LeakyReLU struct {
	Nm    string
	Slope float32 `def:"0.2" desc:"multiplier on negative inputs"`
}

func (ly *LeakyReLU) Name() string     { return ly.Nm }
func (ly *LeakyReLU) Params() []*Param { return nil }

func (ly *LeakyReLU) Forward(x *etensor.Float32) (*etensor.Float32, error) {
	y := Clone(x)
	for i, v := range y.Values {
		if v < 0 {
			y.Values[i] = ly.Slope * v
		}
	}
	return y, nil
}
