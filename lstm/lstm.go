// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package lstm provides the recurrent temporal core of the agent: a single-layer
LSTM Cell, its (hidden, cell) State, and a Core that unrolls the cell over a
time-major trajectory, zeroing the state entering any step whose not-done
flag is 0 so that no information crosses an episode boundary.

State is functional: Unroll and Step never modify the State passed in, and
always return a new one.
*/
package lstm

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/emer/etable/etensor"
	"github.com/emer/spiral/nn"
)

// State is the recurrent (hidden, cell) state pair, each shaped (1, B, Hidden)
type State struct {
	H *etensor.Float32 `desc:"hidden state, (1, B, Hidden)"`
	C *etensor.Float32 `desc:"cell state, (1, B, Hidden)"`
}

// NewState returns a zero state for given batch size and hidden width
func NewState(b, hid int) State {
	return State{H: nn.NewTensor(1, b, hid), C: nn.NewTensor(1, b, hid)}
}

// Clone returns a deep copy of the state
func (st State) Clone() State {
	return State{H: nn.Clone(st.H), C: nn.Clone(st.C)}
}

// Batch returns the batch size of the state
func (st State) Batch() int {
	return st.H.Dim(1)
}

// Check returns an nn.ErrShape error if the state is not (1, b, hid)
func (st State) Check(b, hid int) error {
	if st.H == nil || st.C == nil {
		return fmt.Errorf("lstm state: nil tensor: %w", nn.ErrShape)
	}
	if err := nn.CheckShape("lstm state H", st.H.Shapes(), 1, b, hid); err != nil {
		return err
	}
	return nn.CheckShape("lstm state C", st.C.Shapes(), 1, b, hid)
}

// Gate multiplies each batch row of the state by its not-done value,
// returning a new state
func (st State) Gate(notdone []float32) State {
	gs := st.Clone()
	hid := st.H.Dim(2)
	for b, nd := range notdone {
		if nd == 1 {
			continue
		}
		h := gs.H.Values[b*hid : (b+1)*hid]
		c := gs.C.Values[b*hid : (b+1)*hid]
		for j := range h {
			h[j] *= nd
			c[j] *= nd
		}
	}
	return gs
}

// Cell is a single LSTM layer with gates in the order input, forget,
// cell candidate, output:
//
//	i = sigmoid(Wi x + bi + Ui h), f = sigmoid(..), g = tanh(..), o = sigmoid(..)
//	c' = f * c + i * g,  h' = o * tanh(c')
type Cell struct {
	Nm     string    `desc:"name of cell"`
	In     int       `desc:"number of input features"`
	Hidden int       `desc:"width of the hidden state"`
	Wih    *nn.Param `desc:"input weights, (4 * Hidden, In)"`
	Whh    *nn.Param `desc:"recurrent weights, (4 * Hidden, Hidden)"`
	Bih    *nn.Param `desc:"input biases, (4 * Hidden)"`
	Bhh    *nn.Param `desc:"recurrent biases, (4 * Hidden)"`
}

// NewCell returns a new LSTM cell with zero weights.  All params have
// fan-in Hidden, so InitWts draws from +/- 1/sqrt(Hidden).
func NewCell(name string, in, hid int) *Cell {
	cl := &Cell{Nm: name, In: in, Hidden: hid}
	cl.Wih = nn.NewParam(name+".Wih", hid, 4*hid, in)
	cl.Whh = nn.NewParam(name+".Whh", hid, 4*hid, hid)
	cl.Bih = nn.NewParam(name+".Bih", hid, 4*hid)
	cl.Bhh = nn.NewParam(name+".Bhh", hid, 4*hid)
	return cl
}

func (cl *Cell) Name() string { return cl.Nm }

func (cl *Cell) Params() []*nn.Param {
	return []*nn.Param{cl.Wih, cl.Whh, cl.Bih, cl.Bhh}
}

// Step computes one time step for b rows of input x (b * In values),
// returning the new state.  st is not modified.
func (cl *Cell) Step(x []float32, b int, st State) State {
	hid := cl.Hidden
	g4 := 4 * hid
	gates := make([]float32, b*g4)
	for r := 0; r < b; r++ {
		gr := gates[r*g4 : (r+1)*g4]
		for j := range gr {
			gr[j] = cl.Bih.Vals.Values[j] + cl.Bhh.Vals.Values[j]
		}
	}
	nn.MatMulT(x, cl.Wih.Vals.Values, gates, b, cl.In, g4, 1)
	nn.MatMulT(st.H.Values, cl.Whh.Vals.Values, gates, b, hid, g4, 1)

	ns := NewState(b, hid)
	for r := 0; r < b; r++ {
		gr := gates[r*g4 : (r+1)*g4]
		c := st.C.Values[r*hid : (r+1)*hid]
		nh := ns.H.Values[r*hid : (r+1)*hid]
		nc := ns.C.Values[r*hid : (r+1)*hid]
		for j := 0; j < hid; j++ {
			ig := nn.Sigmoid(gr[j])
			fg := nn.Sigmoid(gr[hid+j])
			gg := math32.Tanh(gr[2*hid+j])
			og := nn.Sigmoid(gr[3*hid+j])
			nc[j] = fg*c[j] + ig*gg
			nh[j] = og * math32.Tanh(nc[j])
		}
	}
	return ns
}

// Core unrolls a Cell over time with episode-boundary gating
type Core struct {
	Cell *Cell
}

// NewCore returns a new core with an in -> hid cell
func NewCore(name string, in, hid int) *Core {
	return &Core{Cell: NewCell(name, in, hid)}
}

func (cr *Core) Params() []*nn.Param { return cr.Cell.Params() }

// Unroll runs the cell over x (T, B, In) in time order.  Entering each step t
// the state is multiplied by notdone[t] (T, B), and the (T * B, Hidden)
// outputs are returned along with the final state.  Inputs are not modified.
func (cr *Core) Unroll(x *etensor.Float32, notdone *etensor.Float32, st State) (*etensor.Float32, State, error) {
	cl := cr.Cell
	if err := nn.CheckShape(cl.Nm+" input", x.Shapes(), -1, -1, cl.In); err != nil {
		return nil, State{}, err
	}
	nt, nb := x.Dim(0), x.Dim(1)
	if nt == 0 || nb == 0 {
		return nil, State{}, fmt.Errorf("%s: empty input: %w", cl.Nm, nn.ErrShape)
	}
	if err := nn.CheckShape(cl.Nm+" notdone", notdone.Shapes(), nt, nb); err != nil {
		return nil, State{}, err
	}
	if err := st.Check(nb, cl.Hidden); err != nil {
		return nil, State{}, err
	}
	hid := cl.Hidden
	out := nn.NewTensor(nt*nb, hid)
	for t := 0; t < nt; t++ {
		st = st.Gate(notdone.Values[t*nb : (t+1)*nb])
		st = cl.Step(x.Values[t*nb*cl.In:(t+1)*nb*cl.In], nb, st)
		copy(out.Values[t*nb*hid:(t+1)*nb*hid], st.H.Values)
	}
	return out, st, nil
}

// NotDone returns the (T, B) not-done mask, 1 - done, for T x B done flags
func NotDone(done [][]bool) (*etensor.Float32, error) {
	nt := len(done)
	if nt == 0 {
		return nil, fmt.Errorf("done: no time steps: %w", nn.ErrShape)
	}
	nb := len(done[0])
	nd := nn.NewTensor(nt, nb)
	for t, dr := range done {
		if len(dr) != nb {
			return nil, fmt.Errorf("done: step %d has %d batch entries, want %d: %w", t, len(dr), nb, nn.ErrShape)
		}
		for b, d := range dr {
			if !d {
				nd.Values[t*nb+b] = 1
			}
		}
	}
	return nd, nil
}
