// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package agent

import (
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chewxy/math32"
	"github.com/emer/emergent/erand"
	"github.com/emer/emergent/params"
	"github.com/emer/etable/etensor"
	"github.com/emer/spiral/nn"
	"github.com/emer/spiral/policy"
	"golang.org/x/exp/rand"
)

// difTol is the numerical difference tolerance for comparing vs. target values
const difTol = float32(1.0e-5)

var testCfg = Config{
	ObsShape:    []int{1, 64, 64},
	ActionShape: []int{64, 64, 3, 2},
	GridShape:   []int{8, 8},
}

// SmallParams are small sizes that keep the tests fast
var SmallParams = params.Sheet{
	{Sel: "Net", Desc: "small sizes for testing",
		Params: params.Params{
			"Net.Percept.Width":      "4",
			"Net.Percept.NResBlocks": "1",
			"Net.Percept.Hidden":     "32",
			"Net.Percept.CondHid1":   "8",
			"Net.Percept.CondHid2":   "8",
			"Net.Policy.Width":       "4",
			"Net.Policy.NResBlocks":  "1",
		}},
}

func testNet(t *testing.T) *Net {
	t.Helper()
	nt := NewNet("test", testCfg)
	if _, err := nt.ApplyParams(&SmallParams, false); err != nil {
		t.Fatal(err)
	}
	if err := nt.Build(); err != nil {
		t.Fatal(err)
	}
	nt.InitWts()
	return nt
}

func randVals(vals []float32) {
	rp := erand.RndParams{Dist: erand.Uniform, Var: 1}
	for i := range vals {
		vals[i] = float32(rp.Gen(-1))
	}
}

func testObs(nt *Net, tn, nb int) (*Obs, *etensor.Int) {
	na := nt.Cfg.NAct()
	obs := &Obs{
		Canvas:      nn.NewTensor(tn, nb, nt.Cfg.Chans(), CanvasSize, CanvasSize),
		PrevAction:  nn.NewIntTensor(tn, nb, na),
		ActionMask:  nn.NewTensor(tn, nb, na-1),
		NoiseSample: nn.NewTensor(tn, nb, nt.Percept.NoiseDim),
	}
	randVals(obs.Canvas.Values)
	randVals(obs.NoiseSample.Values)
	acts := nn.NewIntTensor(tn, nb, na)
	for i := 0; i < tn*nb; i++ {
		for c, card := range nt.Cfg.ActionShape {
			obs.PrevAction.Values[i*na+c] = rand.Intn(card)
			acts.Values[i*na+c] = rand.Intn(card)
			if c < na-1 && rand.Intn(2) == 1 {
				obs.ActionMask.Values[i*(na-1)+c] = 1
			}
		}
	}
	return obs, acts
}

// sliceObs returns the observations and actions from step t0 on
func sliceObs(obs *Obs, acts *etensor.Int, t0 int) (*Obs, *etensor.Int) {
	slf := func(tsr *etensor.Float32) *etensor.Float32 {
		shp := append([]int{}, tsr.Shapes()...)
		per := tsr.Len() / shp[0]
		shp[0] -= t0
		st := nn.NewTensor(shp...)
		copy(st.Values, tsr.Values[t0*per:])
		return st
	}
	sli := func(tsr *etensor.Int) *etensor.Int {
		shp := append([]int{}, tsr.Shapes()...)
		per := tsr.Len() / shp[0]
		shp[0] -= t0
		st := nn.NewIntTensor(shp...)
		copy(st.Values, tsr.Values[t0*per:])
		return st
	}
	return &Obs{Canvas: slf(obs.Canvas), PrevAction: sli(obs.PrevAction),
		ActionMask: slf(obs.ActionMask), NoiseSample: slf(obs.NoiseSample)}, sli(acts)
}

func TestApplyParams(t *testing.T) {
	nt := testNet(t)
	if nt.Percept.Hidden != 32 || nt.Core.Cell.Hidden != 32 || nt.Decoder.Hidden != 32 {
		t.Errorf("hidden not applied: %d %d", nt.Percept.Hidden, nt.Core.Cell.Hidden)
	}
	if len(nt.Base.Layers) != 3*2+1+3 {
		t.Errorf("base has %d layers", len(nt.Base.Layers))
	}
	if _, err := nt.ApplyParams(&SmallParams, false); err == nil {
		t.Errorf("expected error applying params after Build")
	}
	bad := NewNet("bad", testCfg)
	bad.Percept.Hidden = 40
	if err := bad.Build(); !errors.Is(err, nn.ErrShape) {
		t.Errorf("hidden 40: want ErrShape, got %v", err)
	}
	bad = NewNet("bad", testCfg)
	bad.Policy.Width = 0
	if err := bad.Build(); !errors.Is(err, nn.ErrShape) {
		t.Errorf("policy width 0: want ErrShape, got %v", err)
	}
	bad = NewNet("bad", testCfg)
	if _, err := bad.ApplyParams(&params.Sheet{{Sel: "Net", Desc: "bad",
		Params: params.Params{"Net.Policy.NResBlocks": "-1"}}}, false); err != nil {
		t.Fatal(err)
	}
	if err := bad.Build(); !errors.Is(err, nn.ErrShape) {
		t.Errorf("policy res blocks -1: want ErrShape, got %v", err)
	}
}

func TestForwardShapes(t *testing.T) {
	nt := testNet(t)
	const tn, nb = 3, 2
	obs, _ := testObs(nt, tn, nb)
	done := [][]bool{{false, false}, {false, true}, {false, false}}
	st := nt.InitialState(nb)
	out, nst, err := nt.Forward(obs, done, st, policy.Decoding{Mode: policy.Sample, Src: rand.NewSource(1)})
	if err != nil {
		t.Fatal(err)
	}
	if err := nn.CheckShape("action", out.Action.Shapes(), tn, nb, 4); err != nil {
		t.Error(err)
	}
	if err := nn.CheckShape("baseline", out.Baseline.Shapes(), tn, nb); err != nil {
		t.Error(err)
	}
	for i, card := range testCfg.ActionShape {
		if err := nn.CheckShape("logits", out.Logits[i].Shapes(), tn, nb, card); err != nil {
			t.Error(err)
		}
	}
	for i, v := range out.Action.Values {
		if card := testCfg.ActionShape[i%4]; v < 0 || v >= card {
			t.Errorf("action %d: %d not in [0, %d)", i, v, card)
		}
	}
	if err := nst.Check(nb, 32); err != nil {
		t.Error(err)
	}
	for _, v := range st.H.Values {
		if v != 0 {
			t.Fatalf("Forward modified the initial state")
		}
	}
	if nt.FunTimes["Core"] == nil || nt.FunTimes["Decode"] == nil {
		t.Errorf("stage timers not recorded")
	}
}

// TestDoneScenario checks the episode boundaries of a T=4, B=2 trajectory:
// batch 0 restarts at step 1 and batch 1 at step 3, so running from step 1
// with a fresh state gives the same outputs for batch 0 from step 1 on, for
// batch 1 at step 3, and the same final state.
func TestDoneScenario(t *testing.T) {
	nt := testNet(t)
	const tn, nb = 4, 2
	obs, acts := testObs(nt, tn, nb)
	done := [][]bool{{false, false}, {true, false}, {false, false}, {false, true}}
	st := nt.InitialState(nb)
	for i := range st.H.Values {
		st.H.Values[i] = 1
		st.C.Values[i] = 1
	}
	out, fst, err := nt.Forward(obs, done, st, policy.Decoding{Mode: policy.TeacherForce, Actions: acts})
	if err != nil {
		t.Fatal(err)
	}

	sobs, sacts := sliceObs(obs, acts, 1)
	sout, sst, err := nt.Forward(sobs, done[1:], nt.InitialState(nb), policy.Decoding{Mode: policy.TeacherForce, Actions: sacts})
	if err != nil {
		t.Fatal(err)
	}

	cmpr := func(b, t0 int) {
		for s := t0; s < tn; s++ {
			fv := out.Baseline.Values[s*nb+b]
			sv := sout.Baseline.Values[(s-1)*nb+b]
			if math32.Abs(fv-sv) > difTol {
				t.Errorf("batch %d step %d baseline %v, fresh %v", b, s, fv, sv)
			}
			for i, lg := range out.Logits {
				card := testCfg.ActionShape[i]
				for j := 0; j < card; j++ {
					fv := lg.Values[(s*nb+b)*card+j]
					sv := sout.Logits[i].Values[((s-1)*nb+b)*card+j]
					if math32.Abs(fv-sv) > difTol {
						t.Fatalf("batch %d step %d component %d logit %d: %v, fresh %v", b, s, i, j, fv, sv)
					}
				}
			}
		}
	}
	cmpr(0, 1)
	cmpr(1, 3)
	for i, v := range fst.H.Values {
		if math32.Abs(v-sst.H.Values[i]) > difTol || math32.Abs(fst.C.Values[i]-sst.C.Values[i]) > difTol {
			t.Fatalf("final state differs at %d: %v vs %v", i, v, sst.H.Values[i])
		}
	}

	// batch 0 at step 0 carries the initial state, so it differs from a fresh run
	zout, _, _ := nt.Forward(obs, done, nt.InitialState(nb), policy.Decoding{Mode: policy.TeacherForce, Actions: acts})
	if out.Baseline.Values[0] == zout.Baseline.Values[0] {
		t.Errorf("initial state had no effect")
	}
}

func TestTeacherForceDeterminism(t *testing.T) {
	nt := testNet(t)
	obs, acts := testObs(nt, 2, 2)
	done := [][]bool{{false, false}, {false, false}}
	dec := policy.Decoding{Mode: policy.TeacherForce, Actions: acts}
	o1, _, err := nt.Forward(obs, done, nt.InitialState(2), dec)
	if err != nil {
		t.Fatal(err)
	}
	o2, _, _ := nt.Forward(obs, done, nt.InitialState(2), dec)
	for i := range o1.Logits {
		for j, v := range o1.Logits[i].Values {
			if o2.Logits[i].Values[j] != v {
				t.Fatalf("component %d logit %d not identical", i, j)
			}
		}
	}
	for i, v := range acts.Values {
		if o1.Action.Values[i] != v {
			t.Fatalf("action %d: %d, want given %d", i, o1.Action.Values[i], v)
		}
	}
}

func TestForwardErrs(t *testing.T) {
	nt := testNet(t)
	obs, acts := testObs(nt, 2, 2)
	done := [][]bool{{false, false}, {false, false}}
	smp := policy.Decoding{Mode: policy.Sample, Src: rand.NewSource(1)}

	bad, _ := testObs(nt, 2, 3)
	mix := *obs
	mix.NoiseSample = bad.NoiseSample
	if _, _, err := nt.Forward(&mix, done, nt.InitialState(2), smp); !errors.Is(err, nn.ErrShape) {
		t.Errorf("noise batch: want ErrShape, got %v", err)
	}
	if _, _, err := nt.Forward(obs, done[:1], nt.InitialState(2), smp); !errors.Is(err, nn.ErrShape) {
		t.Errorf("done steps: want ErrShape, got %v", err)
	}
	if _, _, err := nt.Forward(obs, done, nt.InitialState(3), smp); !errors.Is(err, nn.ErrShape) {
		t.Errorf("state batch: want ErrShape, got %v", err)
	}
	if _, _, err := nt.Forward(obs, done, nt.InitialState(2), policy.Decoding{Mode: policy.TeacherForce}); !errors.Is(err, policy.ErrMode) {
		t.Errorf("no actions: want ErrMode, got %v", err)
	}
	if _, _, err := nt.Forward(obs, done, nt.InitialState(2), policy.Decoding{Mode: policy.Sample}); !errors.Is(err, policy.ErrMode) {
		t.Errorf("no src: want ErrMode, got %v", err)
	}
	acts.Values[0] = 64
	if _, _, err := nt.Forward(obs, done, nt.InitialState(2), policy.Decoding{Mode: policy.TeacherForce, Actions: acts}); !errors.Is(err, nn.ErrRange) {
		t.Errorf("action range: want ErrRange, got %v", err)
	}
	obs.PrevAction.Values[2] = 3
	if _, _, err := nt.Forward(obs, done, nt.InitialState(2), smp); !errors.Is(err, nn.ErrRange) {
		t.Errorf("prev action range: want ErrRange, got %v", err)
	}
	reset := [][]bool{{true, false}, {false, false}}
	if _, _, err := nt.Forward(obs, reset, nt.InitialState(2), smp); !errors.Is(err, nn.ErrRange) {
		t.Errorf("prev action range on done step: want ErrRange, got %v", err)
	}
	if _, _, err := NewNet("unbuilt", testCfg).Forward(obs, done, nt.InitialState(2), smp); err == nil {
		t.Errorf("expected error before Build")
	}
}

func TestWtsRoundTrip(t *testing.T) {
	nt := testNet(t)
	for _, fn := range []string{"wts.json", "wts.json.gz"} {
		path := filepath.Join(t.TempDir(), fn)
		if err := nt.SaveWtsJSON(path); err != nil {
			t.Fatal(err)
		}
		n2 := testNet(t)
		if err := n2.OpenWtsJSON(path); err != nil {
			t.Fatal(err)
		}
		p1, p2 := nt.Params(), n2.Params()
		for pi, pr := range p1 {
			for i, v := range pr.Vals.Values {
				if p2[pi].Vals.Values[i] != v {
					t.Fatalf("%s: %s idx %d: %v != %v", fn, pr.Name, i, p2[pi].Vals.Values[i], v)
				}
			}
		}
	}

	path := filepath.Join(t.TempDir(), "wts.json.gz")
	if err := nt.SaveWtsJSON(path); err != nil {
		t.Fatal(err)
	}
	fp, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fp.Close()
	gzr, err := gzip.NewReader(fp)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.ReadAll(gzr); err != nil {
		t.Errorf("gzip stream not complete: %v", err)
	}
	if err := nt.SaveWtsJSON(filepath.Join(t.TempDir(), "nodir", "wts.json.gz")); err == nil {
		t.Errorf("expected error saving to a missing directory")
	}

	path = filepath.Join(t.TempDir(), "wts.json")
	nt.SaveWtsJSON(path)
	cfg := testCfg
	cfg.ActionShape = []int{64, 64, 3, 3}
	other := NewNet("other", cfg)
	other.ApplyParams(&SmallParams, false)
	if err := other.Build(); err != nil {
		t.Fatal(err)
	}
	if err := other.OpenWtsJSON(path); !errors.Is(err, nn.ErrShape) {
		t.Errorf("mismatched config: want ErrShape, got %v", err)
	}
}

func TestSizeReport(t *testing.T) {
	nt := testNet(t)
	rpt := nt.SizeReport()
	for _, nm := range []string{"Obs", "Core", "Policy", "Baseline", "test"} {
		if !strings.Contains(rpt, nm) {
			t.Errorf("size report missing %s:\n%s", nm, rpt)
		}
	}
	// Core: 4 * 32 * (32 + 32 + 2)
	if nn.CountParams(nt.Core.Params()) != 4*32*66 {
		t.Errorf("core params %d", nn.CountParams(nt.Core.Params()))
	}
}

func TestConfig(t *testing.T) {
	var cf Config
	cf.Defaults()
	if err := cf.Validate(); err != nil {
		t.Error(err)
	}
	bads := []Config{
		{ObsShape: []int{3, 32, 32}, ActionShape: []int{64, 64, 2}, GridShape: []int{8, 8}},
		{ObsShape: []int{3, 64, 64}, ActionShape: []int{64, 64}, GridShape: []int{8, 8}},
		{ObsShape: []int{3, 64, 64}, ActionShape: []int{64, 32, 2}, GridShape: []int{8, 8}},
		{ObsShape: []int{3, 64, 64}, ActionShape: []int{64, 64, 0}, GridShape: []int{8, 8}},
		{ObsShape: []int{3, 64, 64}, ActionShape: []int{64, 64, 2}, GridShape: []int{8}},
	}
	for i, bc := range bads {
		if err := bc.Validate(); !errors.Is(err, nn.ErrShape) {
			t.Errorf("config %d: want ErrShape, got %v", i, err)
		}
	}
}

func TestCoordGrid(t *testing.T) {
	gr := CoordGrid(64, 64)
	// y channel varies down rows, x channel across columns
	if gr.Value([]int{0, 0, 5}) != -1 || gr.Value([]int{0, 63, 5}) != 1 {
		t.Errorf("y channel ends: %v %v", gr.Value([]int{0, 0, 5}), gr.Value([]int{0, 63, 5}))
	}
	if gr.Value([]int{1, 5, 0}) != -1 || gr.Value([]int{1, 5, 63}) != 1 {
		t.Errorf("x channel ends: %v %v", gr.Value([]int{1, 5, 0}), gr.Value([]int{1, 5, 63}))
	}
	if math32.Abs(gr.Value([]int{1, 0, 21})-(-1+2*21.0/63)) > difTol {
		t.Errorf("x at 21: %v", gr.Value([]int{1, 0, 21}))
	}
}
