// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package embed

import (
	"fmt"

	"github.com/emer/etable/etensor"
	"github.com/emer/spiral/nn"
)

// Encoder embeds every component of an action, multiplies each embedding by
// its validity mask, and concatenates them into one EmbedWidth * N vector.
// The mask covers the N-1 non-terminal components: the terminal component is
// always weighted 1.
type Encoder struct {
	Nm      string     `desc:"name of encoder"`
	Comps   []Embedder `desc:"one embedder per action component, in component order"`
	ActCard []int      `desc:"cardinality of each component"`
}

// NewEncoder returns an encoder for given component cardinalities, the first
// two of which are spatial over the gridW x gridH grid.
func NewEncoder(name string, actShape []int, gridW, gridH int) (*Encoder, error) {
	if len(actShape) < 3 {
		return nil, fmt.Errorf("%s: need at least 3 action components, have %d: %w", name, len(actShape), nn.ErrShape)
	}
	en := &Encoder{Nm: name, ActCard: append([]int{}, actShape...)}
	for i := range actShape {
		em, err := NewComponent(fmt.Sprintf("%s.%d", name, i), i, actShape, gridW, gridH)
		if err != nil {
			return nil, err
		}
		en.Comps = append(en.Comps, em)
	}
	return en, nil
}

func (en *Encoder) Name() string { return en.Nm }

// N returns the number of action components
func (en *Encoder) N() int { return len(en.Comps) }

// Width returns the width of the encoded vector
func (en *Encoder) Width() int { return EmbedWidth * en.N() }

func (en *Encoder) Params() []*nn.Param {
	var pars []*nn.Param
	for _, em := range en.Comps {
		pars = append(pars, em.Params()...)
	}
	return pars
}

// Encode returns the (n, EmbedWidth * N) masked encoding of actions (n, N),
// with mask (n, N-1)
func (en *Encoder) Encode(actions *etensor.Int, mask *etensor.Float32) (*etensor.Float32, error) {
	return en.EncodeGated(actions, mask, nil)
}

// EncodeGated is Encode with every row additionally multiplied by its gate
// value (e.g., the not-done flag of the step).  A nil gate is all 1s.
func (en *Encoder) EncodeGated(actions *etensor.Int, mask *etensor.Float32, gate []float32) (*etensor.Float32, error) {
	nc := en.N()
	if err := nn.CheckShape(en.Nm+" actions", actions.Shapes(), -1, nc); err != nil {
		return nil, err
	}
	n := actions.Dim(0)
	if err := nn.CheckShape(en.Nm+" mask", mask.Shapes(), n, nc-1); err != nil {
		return nil, err
	}
	if gate != nil && len(gate) != n {
		return nil, fmt.Errorf("%s: gate len %d, want %d: %w", en.Nm, len(gate), n, nn.ErrShape)
	}
	if n == 0 {
		return nil, fmt.Errorf("%s: empty input: %w", en.Nm, nn.ErrShape)
	}
	wd := en.Width()
	out := nn.NewTensor(n, wd)
	vals := make([]int, n)
	for ci, em := range en.Comps {
		for r := 0; r < n; r++ {
			vals[r] = actions.Values[r*nc+ci]
		}
		e, err := em.Embed(vals)
		if err != nil {
			return nil, fmt.Errorf("%s: component %d: %w", en.Nm, ci, err)
		}
		for r := 0; r < n; r++ {
			m := float32(1)
			if ci < nc-1 {
				m = mask.Values[r*(nc-1)+ci]
			}
			if gate != nil {
				m *= gate[r]
			}
			dst := out.Values[r*wd+ci*EmbedWidth : r*wd+(ci+1)*EmbedWidth]
			for j, v := range e.Values[r*EmbedWidth : (r+1)*EmbedWidth] {
				dst[j] = m * v
			}
		}
	}
	return out, nil
}
