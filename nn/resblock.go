// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nn

import (
	"fmt"

	"github.com/emer/etable/etensor"
)

// ResBlock is a shape-preserving residual block over (N, C, Y, X) images:
// out = ReLU(x + Conv2(ReLU(Conv1(x)))), with 3x3, padding 1 convolutions.
type ResBlock struct {
	Nm    string  `desc:"name of layer"`
	Conv1 *Conv2D `desc:"first convolution, C -> C"`
	Conv2 *Conv2D `desc:"second convolution, C -> C"`
}

// NewResBlock returns a new residual block with given number of channels
func NewResBlock(name string, chans int) *ResBlock {
	rb := &ResBlock{Nm: name}
	rb.Conv1 = NewConv2D(name+".Conv1", chans, chans, 3, 1, 1, true)
	rb.Conv2 = NewConv2D(name+".Conv2", chans, chans, 3, 1, 1, true)
	return rb
}

func (rb *ResBlock) Name() string { return rb.Nm }

func (rb *ResBlock) Params() []*Param {
	return append(rb.Conv1.Params(), rb.Conv2.Params()...)
}

func (rb *ResBlock) Forward(x *etensor.Float32) (*etensor.Float32, error) {
	r, err := rb.Conv1.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rb.Nm, err)
	}
	ReluInPlace(r.Values)
	r, err = rb.Conv2.Forward(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rb.Nm, err)
	}
	for i, v := range x.Values {
		r.Values[i] = Relu(r.Values[i] + v)
	}
	return r, nil
}
