// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package embed maps discrete action components into fixed-width float32
embeddings: Location for flat indexes over a 2D grid, Scalar for categorical
values, and the Encoder which embeds every component of a (previous) action,
gates each by its validity mask, and concatenates the results.
*/
package embed

import (
	"fmt"

	"github.com/emer/etable/etensor"
	"github.com/emer/etable/minmax"
	"github.com/emer/spiral/nn"
	"github.com/goki/mat32"
)

// EmbedWidth is the width of every component embedding
const EmbedWidth = 16

// Embedder maps a batch of discrete values to (len(vals), EmbedWidth) embeddings
type Embedder interface {
	// Name returns the name of the embedder, which prefixes its param names
	Name() string

	// Embed returns the embeddings of given values, failing with nn.ErrRange
	// for any value outside of the declared cardinality
	Embed(vals []int) (*etensor.Float32, error)

	// Params returns the learned params
	Params() []*nn.Param
}

// Location embeds a flat index over a GridW x GridH grid: the index is split
// into col = idx % GridW and row = idx / GridW, each normalized into the
// Range, and the (col, row) pair is projected by a learned Linear layer.
type Location struct {
	Nm     string     `desc:"name of embedder"`
	GridW  int        `desc:"width of the grid (number of columns)"`
	GridH  int        `desc:"height of the grid (number of rows)"`
	Range  minmax.F32 `desc:"normalized coordinate range, -1..1"`
	Linear *nn.Linear `desc:"projection from (col, row) to EmbedWidth"`
}

// NewLocation returns a new Location embedder over a w x h grid.
// Both dimensions must be at least 2.
func NewLocation(name string, w, h int) (*Location, error) {
	if w < 2 || h < 2 {
		return nil, fmt.Errorf("%s: grid %dx%d must be at least 2x2: %w", name, w, h, nn.ErrShape)
	}
	lc := &Location{Nm: name, GridW: w, GridH: h}
	lc.Range.Set(-1, 1)
	lc.Linear = nn.NewLinear(name+".Lin", 2, EmbedWidth)
	return lc, nil
}

func (lc *Location) Name() string        { return lc.Nm }
func (lc *Location) Params() []*nn.Param { return lc.Linear.Params() }

// Card returns the number of grid locations
func (lc *Location) Card() int {
	return lc.GridW * lc.GridH
}

// Coord returns the normalized (col, row) coordinate of given flat index
func (lc *Location) Coord(idx int) (mat32.Vec2, error) {
	if idx < 0 || idx >= lc.Card() {
		return mat32.Vec2{}, fmt.Errorf("%s: index %d not in [0, %d): %w", lc.Nm, idx, lc.Card(), nn.ErrRange)
	}
	col := float32(idx%lc.GridW) / float32(lc.GridW-1)
	row := float32(idx/lc.GridW) / float32(lc.GridH-1)
	return mat32.Vec2{X: lc.Range.ProjVal(col), Y: lc.Range.ProjVal(row)}, nil
}

func (lc *Location) Embed(vals []int) (*etensor.Float32, error) {
	n := len(vals)
	if n == 0 {
		return nil, fmt.Errorf("%s: no values: %w", lc.Nm, nn.ErrShape)
	}
	in := nn.NewTensor(n, 2)
	for i, idx := range vals {
		c, err := lc.Coord(idx)
		if err != nil {
			return nil, err
		}
		in.Values[2*i] = c.X
		in.Values[2*i+1] = c.Y
	}
	return lc.Linear.Forward(in)
}

// Scalar embeds a categorical value in [0, Card) as a learned projection of
// its one-hot encoding
type Scalar struct {
	Nm     string     `desc:"name of embedder"`
	Card   int        `desc:"number of categories"`
	Linear *nn.Linear `desc:"projection from one-hot Card to EmbedWidth"`
}

// NewScalar returns a new Scalar embedder with given cardinality
func NewScalar(name string, card int) (*Scalar, error) {
	if card < 1 {
		return nil, fmt.Errorf("%s: cardinality %d must be positive: %w", name, card, nn.ErrShape)
	}
	return &Scalar{Nm: name, Card: card, Linear: nn.NewLinear(name+".Lin", card, EmbedWidth)}, nil
}

func (sc *Scalar) Name() string        { return sc.Nm }
func (sc *Scalar) Params() []*nn.Param { return sc.Linear.Params() }

func (sc *Scalar) Embed(vals []int) (*etensor.Float32, error) {
	n := len(vals)
	if n == 0 {
		return nil, fmt.Errorf("%s: no values: %w", sc.Nm, nn.ErrShape)
	}
	oh := nn.NewTensor(n, sc.Card)
	for i, v := range vals {
		if v < 0 || v >= sc.Card {
			return nil, fmt.Errorf("%s: value %d not in [0, %d): %w", sc.Nm, v, sc.Card, nn.ErrRange)
		}
		oh.Values[i*sc.Card+v] = 1
	}
	return sc.Linear.Forward(oh)
}

// NewComponent returns the embedder for action component i of given
// cardinalities: Location over the grid for the first two, Scalar otherwise.
func NewComponent(name string, i int, actShape []int, gridW, gridH int) (Embedder, error) {
	if i < 2 {
		if actShape[i] != gridW*gridH {
			return nil, fmt.Errorf("%s: spatial component %d cardinality %d, want grid %dx%d = %d: %w", name, i, actShape[i], gridW, gridH, gridW*gridH, nn.ErrShape)
		}
		return NewLocation(name, gridW, gridH)
	}
	return NewScalar(name, actShape[i])
}
