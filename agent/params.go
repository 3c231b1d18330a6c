// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package agent

import (
	"fmt"

	"github.com/emer/spiral/nn"
)

// PerceptParams are the sizes of the perception backbone and the recurrent core
type PerceptParams struct {
	Width      int `def:"32" min:"1" desc:"number of feature channels throughout the backbone, and width of the condition vector"`
	NResBlocks int `def:"8" min:"0" desc:"number of residual blocks after the downsampling convolutions"`
	Hidden     int `def:"256" min:"16" desc:"width of the embedding and the recurrent state -- must be a multiple of 16"`
	NoiseDim   int `def:"10" min:"1" desc:"width of the noise sample"`
	CondHid1   int `def:"64" min:"1" desc:"width of the first hidden layer of the noise and action condition MLPs"`
	CondHid2   int `def:"32" min:"1" desc:"width of the second hidden layer of the noise and action condition MLPs"`
	ObsK       int `def:"5" desc:"kernel size of the initial convolution over canvas and coordinate grid"`
	NDown      int `view:"-" desc:"number of stride-2 downsampling convolutions, 64 -> 8"`
	DownSize   int `view:"-" desc:"height and width of the features after downsampling"`
}

func (pp *PerceptParams) Defaults() {
	pp.Width = 32
	pp.NResBlocks = 8
	pp.Hidden = 256
	pp.NoiseDim = 10
	pp.CondHid1 = 64
	pp.CondHid2 = 32
	pp.ObsK = 5
	pp.Update()
}

// Update updates derived values
func (pp *PerceptParams) Update() {
	pp.NDown = 3
	pp.DownSize = CanvasSize >> pp.NDown
}

// Validate checks the sizes
func (pp *PerceptParams) Validate() error {
	if pp.Hidden < 16 || pp.Hidden%16 != 0 {
		return fmt.Errorf("percept: hidden %d must be a positive multiple of 16: %w", pp.Hidden, nn.ErrShape)
	}
	if pp.Width < 1 || pp.NoiseDim < 1 || pp.CondHid1 < 1 || pp.CondHid2 < 1 || pp.NResBlocks < 0 {
		return fmt.Errorf("percept: invalid sizes %+v: %w", *pp, nn.ErrShape)
	}
	if pp.ObsK < 1 || pp.ObsK%2 == 0 {
		return fmt.Errorf("percept: obs kernel %d must be odd: %w", pp.ObsK, nn.ErrShape)
	}
	return nil
}
