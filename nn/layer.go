// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/emer/etable/etensor"
	"github.com/goki/ki/kit"
)

// Layer is one composable transform: everything in a Stack is a Layer
type Layer interface {
	// Name returns the name of the layer, which prefixes its param names
	Name() string

	// Forward computes the output for given input, returning a new tensor
	Forward(in *etensor.Float32) (*etensor.Float32, error)

	// Params returns the learned params of this layer (nil if none)
	Params() []*Param
}

// ModeLayer is a Layer whose computation depends on the Mode
type ModeLayer interface {
	Layer

	// ForwardMode computes the output for given input in given mode
	ForwardMode(in *etensor.Float32, mode Mode) (*etensor.Float32, error)
}

// Mode selects between evaluation and training behavior for layers that
// differ between the two (e.g., spectral norm updates its power iteration
// only while training).
type Mode int32

//go:generate stringer -type=Mode

var KiT_Mode = kit.Enums.AddEnum(ModeN, kit.NotBitFlag, nil)

func (ev Mode) MarshalJSON() ([]byte, error)  { return kit.EnumMarshalJSON(ev) }
func (ev *Mode) UnmarshalJSON(b []byte) error { return kit.EnumUnmarshalJSON(ev, b) }

const (
	// Eval computes outputs without changing any state
	Eval Mode = iota

	// Train computes outputs and updates any adapting state
	Train

	ModeN
)
