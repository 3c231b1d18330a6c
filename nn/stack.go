// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nn

import (
	"fmt"

	"github.com/emer/etable/etensor"
)

// Stack is an ordered sequence of Layers, each applied to the output of the
// previous one.  Use a Builder to construct.
type Stack struct {
	Nm     string  `desc:"name of the stack -- prefixes the names of its layers"`
	Layers []Layer `desc:"the layers, in order of application"`
}

func (st *Stack) Name() string { return st.Nm }

// Params returns all of the params of all layers, in order
func (st *Stack) Params() []*Param {
	var pars []*Param
	for _, ly := range st.Layers {
		pars = append(pars, ly.Params()...)
	}
	return pars
}

// Forward applies each layer in turn, in Eval mode
func (st *Stack) Forward(x *etensor.Float32) (*etensor.Float32, error) {
	return st.ForwardMode(x, Eval)
}

// ForwardMode applies each layer in turn, passing the mode to any ModeLayer
func (st *Stack) ForwardMode(x *etensor.Float32, mode Mode) (*etensor.Float32, error) {
	var err error
	for _, ly := range st.Layers {
		if ml, ok := ly.(ModeLayer); ok {
			x, err = ml.ForwardMode(x, mode)
		} else {
			x, err = ly.Forward(x)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", st.Nm, err)
		}
	}
	return x, nil
}

// Reshape is a Layer that views its input with a different shape,
// e.g., (-1, 16, 4, 4) or Flatten (-1, n).  At most one dim can be -1.
type Reshape struct {
	Nm    string
	Shape []int `desc:"target shape -- one dim can be -1 to be inferred"`
}

func (ly *Reshape) Name() string     { return ly.Nm }
func (ly *Reshape) Params() []*Param { return nil }

func (ly *Reshape) Forward(x *etensor.Float32) (*etensor.Float32, error) {
	y, err := View(x, ly.Shape...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ly.Nm, err)
	}
	return y, nil
}

// Flatten is a Layer that views its input as 2D, keeping the first dimension
type Flatten struct {
	Nm string
}

func (ly *Flatten) Name() string     { return ly.Nm }
func (ly *Flatten) Params() []*Param { return nil }

func (ly *Flatten) Forward(x *etensor.Float32) (*etensor.Float32, error) {
	n := x.Dim(0)
	if n == 0 {
		return nil, fmt.Errorf("%s: empty input: %w", ly.Nm, ErrShape)
	}
	return View(x, n, -1)
}

//////////////////////////////////////////////////////////////////////////////////////
//  Builder

// Builder constructs a Stack, naming each layer by its index in the stack
type Builder struct {
	st *Stack
}

// NewBuilder returns a builder for a new Stack of given name
func NewBuilder(name string) *Builder {
	return &Builder{st: &Stack{Nm: name}}
}

// next returns the name for the next layer
func (bl *Builder) next() string {
	return fmt.Sprintf("%s.%d", bl.st.Nm, len(bl.st.Layers))
}

// Add adds an already-constructed layer
func (bl *Builder) Add(ly Layer) *Builder {
	bl.st.Layers = append(bl.st.Layers, ly)
	return bl
}

// Linear adds a fully-connected layer with bias
func (bl *Builder) Linear(in, out int) *Builder {
	return bl.Add(NewLinear(bl.next(), in, out))
}

// Conv2D adds a convolution with bias
func (bl *Builder) Conv2D(in, out, k, stride, pad int) *Builder {
	return bl.Add(NewConv2D(bl.next(), in, out, k, stride, pad, true))
}

// ConvT2D adds a transposed convolution with bias
func (bl *Builder) ConvT2D(in, out, k, stride, pad int) *Builder {
	return bl.Add(NewConvTranspose2D(bl.next(), in, out, k, stride, pad, true))
}

// SNConv2D adds a spectrally-normalized convolution without bias
func (bl *Builder) SNConv2D(in, out, k, stride, pad, powerIters int) *Builder {
	nm := bl.next()
	return bl.Add(NewSpecNorm(NewConv2D(nm, in, out, k, stride, pad, false), powerIters))
}

// ReLU adds a ReLU
func (bl *Builder) ReLU() *Builder {
	return bl.Add(&ReLU{Nm: bl.next()})
}

// LeakyReLU adds a LeakyReLU with given negative slope
func (bl *Builder) LeakyReLU(slope float32) *Builder {
	return bl.Add(&LeakyReLU{Nm: bl.next(), Slope: slope})
}

// ResBlocks adds n residual blocks of given number of channels
func (bl *Builder) ResBlocks(n, chans int) *Builder {
	for i := 0; i < n; i++ {
		bl.Add(NewResBlock(bl.next(), chans))
	}
	return bl
}

// View adds a Reshape to given shape
func (bl *Builder) View(shape ...int) *Builder {
	return bl.Add(&Reshape{Nm: bl.next(), Shape: shape})
}

// Flatten adds a Flatten to (N, -1)
func (bl *Builder) Flatten() *Builder {
	return bl.Add(&Flatten{Nm: bl.next()})
}

// Stack returns the constructed stack
func (bl *Builder) Stack() *Stack {
	return bl.st
}

// NewMLP returns a Stack of Linear + ReLU layers through the given sizes,
// e.g., NewMLP("noise", 10, 64, 32, 32) has three Linear + ReLU pairs.
func NewMLP(name string, sizes ...int) *Stack {
	bl := NewBuilder(name)
	for i := 1; i < len(sizes); i++ {
		bl.Linear(sizes[i-1], sizes[i]).ReLU()
	}
	return bl.Stack()
}
