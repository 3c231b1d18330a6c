// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package policy

import "github.com/goki/ki/kit"

// Mode selects how the value of each action component is chosen while decoding
type Mode int32

//go:generate stringer -type=Mode

var KiT_Mode = kit.Enums.AddEnum(ModeN, kit.NotBitFlag, nil)

func (ev Mode) MarshalJSON() ([]byte, error)  { return kit.EnumMarshalJSON(ev) }
func (ev *Mode) UnmarshalJSON(b []byte) error { return kit.EnumUnmarshalJSON(ev, b) }

const (
	// TeacherForce takes each component value from the given ground-truth actions,
	// for computing likelihoods of known trajectories.  No randomness is used.
	TeacherForce Mode = iota

	// Sample draws each component value from the softmax of its logits
	Sample

	ModeN
)

// HeadType is the kind of head that produces the logits of an action component
type HeadType int32

//go:generate stringer -type=HeadType

var KiT_HeadType = kit.Enums.AddEnum(HeadTypeN, kit.NotBitFlag, nil)

func (ev HeadType) MarshalJSON() ([]byte, error)  { return kit.EnumMarshalJSON(ev) }
func (ev *HeadType) UnmarshalJSON(b []byte) error { return kit.EnumUnmarshalJSON(ev, b) }

const (
	// LocationHead upsamples the state into spatial logits over the grid
	LocationHead HeadType = iota

	// ScalarHead linearly projects the state into categorical logits
	ScalarHead

	HeadTypeN
)
