// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package policy provides the autoregressive action Decoder, which produces the
components of a structured action one at a time.  Each component's logits come
from its Head: spatial logits over the grid from an upsampling convolutional
Stack for LocationHead, or a Linear projection for ScalarHead.  After each
non-terminal component the chosen value (given in TeacherForce mode, or drawn
from the softmax in Sample mode) is embedded and fused back into the state:

	h <- ReLU(h + ReLU(Fuse([h, embed(a_i)])))

so that every component is conditioned on all of the components before it.
*/
package policy

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/emer/etable/etensor"
	"github.com/emer/spiral/embed"
	"github.com/emer/spiral/nn"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrMode is returned (wrapped) when a Decoding does not supply what its Mode
// requires: TeacherForce without Actions, or Sample without a random Src.
var ErrMode = errors.New("decode mode misuse")

// Params are the sizes of the spatial heads
type Params struct {
	Width      int `def:"32" min:"1" desc:"number of channels in the upsampling location heads"`
	NResBlocks int `def:"8" min:"0" desc:"number of residual blocks in each location head"`
}

func (pp *Params) Defaults() {
	pp.Width = 32
	pp.NResBlocks = 8
}

// Validate checks the sizes
func (pp *Params) Validate() error {
	if pp.Width < 1 || pp.NResBlocks < 0 {
		return fmt.Errorf("policy: invalid sizes %+v: %w", *pp, nn.ErrShape)
	}
	return nil
}

// Head produces the logits of one action component, and embeds its chosen
// value (Embed is nil for the terminal component)
type Head struct {
	Type   HeadType       `desc:"kind of head"`
	Card   int            `desc:"number of values the component can take"`
	Logits nn.Layer       `desc:"maps the (n, Hidden) state to (n, Card) logits"`
	Embed  embed.Embedder `desc:"embeds the chosen value, for fusing into the state -- nil for the terminal component"`
}

// Decoding specifies how a Decode call chooses each component
type Decoding struct {
	Mode    Mode         `desc:"how values are chosen -- modes never mix within one call"`
	Actions *etensor.Int `desc:"ground-truth (n, N) actions, for TeacherForce"`
	Src     rand.Source  `desc:"source of randomness, for Sample"`
}

// Decoder is the autoregressive action decoder
type Decoder struct {
	Nm     string     `desc:"name of decoder"`
	Hidden int        `desc:"width of the state h"`
	Heads  []Head     `desc:"one head per action component, in decoding order"`
	Fuse   *nn.Linear `desc:"fusion layer, (EmbedWidth + Hidden) -> Hidden, followed by ReLU"`
}

// NewDecoder returns a decoder for given action cardinalities.  The first two
// components are spatial over a square gridW x gridH grid whose side is a
// power of 2 that is at least 8, and hidden must be a multiple of 16.
func NewDecoder(name string, pp *Params, hidden int, actShape []int, gridW, gridH int) (*Decoder, error) {
	if err := pp.Validate(); err != nil {
		return nil, err
	}
	if len(actShape) < 3 {
		return nil, fmt.Errorf("%s: need at least 3 action components, have %d: %w", name, len(actShape), nn.ErrShape)
	}
	if hidden <= 0 || hidden%16 != 0 {
		return nil, fmt.Errorf("%s: hidden width %d must be a positive multiple of 16: %w", name, hidden, nn.ErrShape)
	}
	if gridW != gridH || gridW < 8 || bits.OnesCount(uint(gridW)) != 1 {
		return nil, fmt.Errorf("%s: grid %dx%d must be square with a power of 2 side >= 8: %w", name, gridW, gridH, nn.ErrShape)
	}
	dc := &Decoder{Nm: name, Hidden: hidden}
	na := len(actShape)
	for i, card := range actShape {
		hnm := fmt.Sprintf("%s.%d", name, i)
		hd := Head{Card: card}
		if i < 2 {
			hd.Type = LocationHead
			hd.Logits = locationLogits(hnm, pp, hidden, gridW)
		} else {
			if card < 1 {
				return nil, fmt.Errorf("%s: component %d cardinality %d: %w", name, i, card, nn.ErrShape)
			}
			hd.Type = ScalarHead
			hd.Logits = nn.NewLinear(hnm+".Logits", hidden, card)
		}
		if i < na-1 {
			em, err := embed.NewComponent(hnm+".Embed", i, actShape, gridW, gridH)
			if err != nil {
				return nil, err
			}
			hd.Embed = em
		}
		dc.Heads = append(dc.Heads, hd)
	}
	dc.Fuse = nn.NewLinear(name+".Fuse", embed.EmbedWidth+hidden, hidden)
	return dc, nil
}

// locationLogits returns the upsampling stack from a (n, hidden) state,
// viewed as (n, hidden/16, 4, 4), to (n, grid * grid) logits
func locationLogits(name string, pp *Params, hidden, grid int) *nn.Stack {
	nup := bits.TrailingZeros(uint(grid / 4))
	bl := nn.NewBuilder(name + ".Logits")
	bl.View(-1, hidden/16, 4, 4).ConvT2D(hidden/16, pp.Width, 4, 2, 1).ResBlocks(pp.NResBlocks, pp.Width)
	for i := 1; i < nup; i++ {
		bl.ConvT2D(pp.Width, pp.Width, 4, 2, 1)
	}
	return bl.Conv2D(pp.Width, 1, 3, 1, 1).View(-1, grid*grid).Stack()
}

// N returns the number of action components
func (dc *Decoder) N() int {
	return len(dc.Heads)
}

func (dc *Decoder) Name() string { return dc.Nm }

// Params returns all params: each head's logits then embedding, then Fuse
func (dc *Decoder) Params() []*nn.Param {
	var pars []*nn.Param
	for _, hd := range dc.Heads {
		pars = append(pars, hd.Logits.Params()...)
		if hd.Embed != nil {
			pars = append(pars, hd.Embed.Params()...)
		}
	}
	return append(pars, dc.Fuse.Params()...)
}

// Validate checks that the decoding supplies what its mode requires
// for n rows, and that any given actions are within range
func (dc *Decoder) Validate(n int, d *Decoding) error {
	switch d.Mode {
	case TeacherForce:
		if d.Actions == nil {
			return fmt.Errorf("%s: TeacherForce without actions: %w", dc.Nm, ErrMode)
		}
		na := dc.N()
		if err := nn.CheckShape(dc.Nm+" actions", d.Actions.Shapes(), n, na); err != nil {
			return err
		}
		for r := 0; r < n; r++ {
			for i, hd := range dc.Heads {
				if v := d.Actions.Values[r*na+i]; v < 0 || v >= hd.Card {
					return fmt.Errorf("%s: row %d component %d value %d not in [0, %d): %w", dc.Nm, r, i, v, hd.Card, nn.ErrRange)
				}
			}
		}
	case Sample:
		if d.Src == nil {
			return fmt.Errorf("%s: Sample without a random source: %w", dc.Nm, ErrMode)
		}
	default:
		return fmt.Errorf("%s: invalid mode %v: %w", dc.Nm, d.Mode, ErrMode)
	}
	return nil
}

// Decode produces the (n, N) actions and the N (n, Card) logits for the
// (n, Hidden) state h.  h is not modified.
func (dc *Decoder) Decode(h *etensor.Float32, d Decoding) (*etensor.Int, []*etensor.Float32, error) {
	n, err := nn.Rows(dc.Nm, h, dc.Hidden)
	if err != nil {
		return nil, nil, err
	}
	if err := dc.Validate(n, &d); err != nil {
		return nil, nil, err
	}
	na := dc.N()
	acts := nn.NewIntTensor(n, na)
	logits := make([]*etensor.Float32, na)
	h, err = nn.View(h, n, dc.Hidden)
	if err != nil {
		return nil, nil, err
	}
	vals := make([]int, n)
	for i, hd := range dc.Heads {
		lg, err := hd.Logits.Forward(h)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: component %d: %w", dc.Nm, i, err)
		}
		if err := nn.CheckShape(hd.Logits.Name(), lg.Shapes(), n, hd.Card); err != nil {
			return nil, nil, err
		}
		logits[i] = lg
		switch d.Mode {
		case TeacherForce:
			for r := 0; r < n; r++ {
				vals[r] = d.Actions.Values[r*na+i]
			}
		case Sample:
			sampleRows(lg.Values, vals, hd.Card, d.Src)
		}
		for r, v := range vals {
			acts.Values[r*na+i] = v
		}
		if hd.Embed == nil {
			continue
		}
		if h, err = dc.fuse(h, hd.Embed, vals); err != nil {
			return nil, nil, fmt.Errorf("%s: component %d: %w", dc.Nm, i, err)
		}
	}
	return acts, logits, nil
}

// fuse returns ReLU(h + ReLU(Fuse([h, embed(vals)])))
func (dc *Decoder) fuse(h *etensor.Float32, em embed.Embedder, vals []int) (*etensor.Float32, error) {
	e, err := em.Embed(vals)
	if err != nil {
		return nil, err
	}
	cat, err := nn.Concat(h, e)
	if err != nil {
		return nil, err
	}
	res, err := dc.Fuse.Forward(cat)
	if err != nil {
		return nil, err
	}
	for i, v := range h.Values {
		res.Values[i] = nn.Relu(v + nn.Relu(res.Values[i]))
	}
	return res, nil
}

// sampleRows draws one categorical sample per row from the softmax of logits
func sampleRows(logits []float32, vals []int, card int, src rand.Source) {
	n := len(vals)
	probs := make([]float32, n*card)
	nn.SoftmaxRows(logits, probs, n, card)
	w := make([]float64, card)
	for r := 0; r < n; r++ {
		for j, p := range probs[r*card : (r+1)*card] {
			w[j] = float64(p)
		}
		vals[r] = int(distuv.NewCategorical(w, src).Rand())
	}
}
