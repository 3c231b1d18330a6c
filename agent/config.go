// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package agent

import (
	"fmt"

	"github.com/emer/spiral/nn"
)

// CanvasSize is the required height and width of the canvas
const CanvasSize = 64

// Config is the construction-time configuration of a Net, fixed for its lifetime
type Config struct {
	ObsShape    []int `toml:"obs_shape" desc:"canvas shape: channels, height, width -- height and width must be 64"`
	ActionShape []int `toml:"action_shape" desc:"ordered cardinalities of the action components -- the first two are spatial over the grid"`
	GridShape   []int `toml:"grid_shape" desc:"width, height of the grid of the spatial action components"`
}

// Defaults sets a 3 channel canvas, a 32 x 32 grid, and a typical stroke
// action: end, control, pressure, size, color (r, g, b), terminal flag
func (cf *Config) Defaults() {
	cf.ObsShape = []int{3, CanvasSize, CanvasSize}
	cf.GridShape = []int{32, 32}
	cf.ActionShape = []int{1024, 1024, 10, 10, 20, 20, 20, 2}
}

// NAct returns the number of action components
func (cf *Config) NAct() int {
	return len(cf.ActionShape)
}

// Chans returns the number of canvas channels
func (cf *Config) Chans() int {
	return cf.ObsShape[0]
}

// Validate returns an nn.ErrShape error describing every inconsistency
// in the configuration
func (cf *Config) Validate() error {
	if len(cf.ObsShape) != 3 {
		return fmt.Errorf("config: obs shape %v must be channels, height, width: %w", cf.ObsShape, nn.ErrShape)
	}
	if cf.ObsShape[0] < 1 || cf.ObsShape[1] != CanvasSize || cf.ObsShape[2] != CanvasSize {
		return fmt.Errorf("config: obs shape %v must have 64 x 64 canvas: %w", cf.ObsShape, nn.ErrShape)
	}
	if len(cf.GridShape) != 2 {
		return fmt.Errorf("config: grid shape %v must be width, height: %w", cf.GridShape, nn.ErrShape)
	}
	if cf.NAct() < 3 {
		return fmt.Errorf("config: need at least 3 action components, have %d: %w", cf.NAct(), nn.ErrShape)
	}
	gn := cf.GridShape[0] * cf.GridShape[1]
	for i, card := range cf.ActionShape {
		if card < 1 {
			return fmt.Errorf("config: action component %d cardinality %d: %w", i, card, nn.ErrShape)
		}
		if i < 2 && card != gn {
			return fmt.Errorf("config: spatial action component %d cardinality %d, want grid %v = %d: %w", i, card, cf.GridShape, gn, nn.ErrShape)
		}
	}
	return nil
}
