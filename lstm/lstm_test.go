// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lstm

import (
	"errors"
	"testing"

	"github.com/chewxy/math32"
	"github.com/emer/etable/etensor"
	"github.com/emer/spiral/nn"
)

const difTol = float32(1.0e-6)

func TestStep(t *testing.T) {
	cl := NewCell("cell", 1, 1)
	copy(cl.Wih.Vals.Values, []float32{0.5, -0.5, 1, 2})
	copy(cl.Whh.Vals.Values, []float32{0.1, 0.2, 0.3, 0.4})
	copy(cl.Bih.Vals.Values, []float32{0, 0.1, 0, -0.1})
	st := NewState(1, 1)
	st.H.Values[0] = 0.5
	st.C.Values[0] = -1
	ns := cl.Step([]float32{2}, 1, st)

	i := nn.Sigmoid(0.5*2 + 0.1*0.5)
	f := nn.Sigmoid(-0.5*2 + 0.1 + 0.2*0.5)
	g := math32.Tanh(1*2 + 0.3*0.5)
	o := nn.Sigmoid(2*2 - 0.1 + 0.4*0.5)
	c := f*-1 + i*g
	h := o * math32.Tanh(c)
	if math32.Abs(ns.C.Values[0]-c) > difTol || math32.Abs(ns.H.Values[0]-h) > difTol {
		t.Errorf("step: h %v c %v, want h %v c %v", ns.H.Values[0], ns.C.Values[0], h, c)
	}
	if st.H.Values[0] != 0.5 || st.C.Values[0] != -1 {
		t.Errorf("step modified input state")
	}
}

func randInput(t, b, in int) *etensor.Float32 {
	pr := nn.NewParam("x", 1, t, b, in)
	pr.InitWts()
	return pr.Vals
}

// TestDoneReset checks that a done flag at step t gives the same outputs for
// that row from t onward as a fresh zero state started at t.
func TestDoneReset(t *testing.T) {
	const nt, nb, in, hid = 4, 2, 3, 5
	cr := NewCore("core", in, hid)
	nn.InitParams(cr.Params())
	x := randInput(nt, nb, in)
	done := [][]bool{{false, false}, {true, false}, {false, false}, {false, true}}
	nd, err := NotDone(done)
	if err != nil {
		t.Fatal(err)
	}
	st0 := NewState(nb, hid)
	for i := range st0.H.Values {
		st0.H.Values[i] = 1
		st0.C.Values[i] = 1
	}
	out, fin, err := cr.Unroll(x, nd, st0)
	if err != nil {
		t.Fatal(err)
	}
	if err := nn.CheckShape("out", out.Shapes(), nt*nb, hid); err != nil {
		t.Fatal(err)
	}
	if err := fin.Check(nb, hid); err != nil {
		t.Fatal(err)
	}
	if st0.H.Values[0] != 1 || st0.C.Values[0] != 1 {
		t.Errorf("unroll modified input state")
	}

	// suffix runs from each reset step with a fresh state
	cases := []struct{ b, t int }{{0, 1}, {1, 3}}
	for _, cs := range cases {
		sub := nn.NewTensor(nt-cs.t, nb, in)
		copy(sub.Values, x.Values[cs.t*nb*in:])
		ones := nn.NewTensor(nt-cs.t, nb)
		for i := range ones.Values {
			ones.Values[i] = 1
		}
		sout, _, err := cr.Unroll(sub, ones, NewState(nb, hid))
		if err != nil {
			t.Fatal(err)
		}
		for s := cs.t; s < nt; s++ {
			for j := 0; j < hid; j++ {
				got := out.Values[(s*nb+cs.b)*hid+j]
				want := sout.Values[((s-cs.t)*nb+cs.b)*hid+j]
				if math32.Abs(got-want) > difTol {
					t.Errorf("batch %d step %d dim %d: %v, fresh %v", cs.b, s, j, got, want)
				}
			}
		}
	}

	// without the reset, the carried state changes the output
	all := nn.NewTensor(nt, nb)
	for i := range all.Values {
		all.Values[i] = 1
	}
	nout, _, _ := cr.Unroll(x, all, st0)
	dif := float32(0)
	for j := 0; j < hid; j++ {
		dif += math32.Abs(nout.Values[(1*nb+0)*hid+j] - out.Values[(1*nb+0)*hid+j])
	}
	if dif == 0 {
		t.Errorf("reset had no effect")
	}
}

func TestUnrollErrs(t *testing.T) {
	cr := NewCore("core", 3, 4)
	x := randInput(2, 2, 3)
	nd := nn.NewTensor(2, 2)
	if _, _, err := cr.Unroll(x, nn.NewTensor(2, 3), NewState(2, 4)); !errors.Is(err, nn.ErrShape) {
		t.Errorf("notdone batch: want ErrShape, got %v", err)
	}
	if _, _, err := cr.Unroll(x, nd, NewState(3, 4)); !errors.Is(err, nn.ErrShape) {
		t.Errorf("state batch: want ErrShape, got %v", err)
	}
	if _, _, err := cr.Unroll(randInput(2, 2, 4), nd, NewState(2, 4)); !errors.Is(err, nn.ErrShape) {
		t.Errorf("input width: want ErrShape, got %v", err)
	}
	if _, err := NotDone([][]bool{{true, false}, {true}}); !errors.Is(err, nn.ErrShape) {
		t.Errorf("ragged done: want ErrShape, got %v", err)
	}
}
