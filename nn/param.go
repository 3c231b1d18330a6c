// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/chewxy/math32"
	"github.com/emer/emergent/erand"
	"github.com/emer/etable/etensor"
)

// Param is one named tensor of learned (or adapting) values
type Param struct {
	Name  string           `desc:"full dotted name of the parameter, unique within a network -- used as the Layer name in weights files"`
	Vals  *etensor.Float32 `desc:"the values"`
	FanIn int              `desc:"number of inputs feeding each output -- sets the initial uniform range 1/sqrt(FanIn)"`
	Fixed bool             `desc:"not initialized by InitWts -- for state such as the spectral norm power-iteration vector"`
}

// NewParam returns a new zero-valued param of given shape
func NewParam(name string, fanIn int, shape ...int) *Param {
	return &Param{Name: name, Vals: NewTensor(shape...), FanIn: fanIn}
}

// WtInit returns the random parameters for initializing this param,
// uniform over +/- 1/sqrt(FanIn)
func (pr *Param) WtInit() erand.RndParams {
	rp := erand.RndParams{Dist: erand.Uniform}
	if pr.FanIn > 0 {
		rp.Var = float64(1 / math32.Sqrt(float32(pr.FanIn)))
	}
	return rp
}

// InitWts initializes the values from the WtInit distribution
func (pr *Param) InitWts() {
	if pr.Fixed {
		return
	}
	rp := pr.WtInit()
	for i := range pr.Vals.Values {
		pr.Vals.Values[i] = float32(rp.Gen(-1))
	}
}

// Len returns the number of values
func (pr *Param) Len() int {
	return len(pr.Vals.Values)
}

// InitParams initializes all of the given params
func InitParams(pars []*Param) {
	for _, pr := range pars {
		pr.InitWts()
	}
}

// CountParams returns the total number of values in the given params
func CountParams(pars []*Param) int {
	n := 0
	for _, pr := range pars {
		n += pr.Len()
	}
	return n
}
