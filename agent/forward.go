// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package agent

import (
	"fmt"

	"github.com/emer/etable/etensor"
	"github.com/emer/spiral/lstm"
	"github.com/emer/spiral/nn"
	"github.com/emer/spiral/policy"
)

// Obs is a batch of time-major trajectories of observations
type Obs struct {
	Canvas      *etensor.Float32 `desc:"canvas images, (T, B, C, 64, 64)"`
	PrevAction  *etensor.Int     `desc:"previous action, (T, B, N)"`
	ActionMask  *etensor.Float32 `desc:"which of the N-1 non-terminal previous action components were taken, (T, B, N-1) of 0 or 1"`
	NoiseSample *etensor.Float32 `desc:"noise sample, (T, B, NoiseDim)"`
}

// Output is the result of a Forward pass
type Output struct {
	Action   *etensor.Int       `desc:"chosen (given or sampled) action, (T, B, N)"`
	Logits   []*etensor.Float32 `desc:"logits of each action component, (T, B, Card)"`
	Baseline *etensor.Float32   `desc:"value baseline, (T, B)"`
}

// Check validates all of the observation shapes against the config,
// returning the T, B sizes
func (nt *Net) Check(obs *Obs, done [][]bool) (tn, nb int, err error) {
	if obs.Canvas == nil || obs.PrevAction == nil || obs.ActionMask == nil || obs.NoiseSample == nil {
		return 0, 0, fmt.Errorf("%s: missing observation field: %w", nt.Nm, nn.ErrShape)
	}
	cs := obs.Canvas.Shapes()
	if len(cs) != 5 {
		return 0, 0, fmt.Errorf("%s: canvas shape %v, want (T, B, C, H, W): %w", nt.Nm, cs, nn.ErrShape)
	}
	tn, nb = cs[0], cs[1]
	if tn == 0 || nb == 0 {
		return 0, 0, fmt.Errorf("%s: empty trajectory %v: %w", nt.Nm, cs, nn.ErrShape)
	}
	na := nt.Cfg.NAct()
	if err = nn.CheckShape("canvas", cs, tn, nb, nt.Cfg.Chans(), CanvasSize, CanvasSize); err != nil {
		return
	}
	if err = nn.CheckShape("prev_action", obs.PrevAction.Shapes(), tn, nb, na); err != nil {
		return
	}
	if err = nn.CheckShape("action_mask", obs.ActionMask.Shapes(), tn, nb, na-1); err != nil {
		return
	}
	if err = nn.CheckShape("noise_sample", obs.NoiseSample.Shapes(), tn, nb, nt.Percept.NoiseDim); err != nil {
		return
	}
	if len(done) != tn {
		return 0, 0, fmt.Errorf("done: %d time steps, want %d: %w", len(done), tn, nn.ErrShape)
	}
	for t, dr := range done {
		if len(dr) != nb {
			return 0, 0, fmt.Errorf("done: step %d has %d batch entries, want %d: %w", t, len(dr), nb, nn.ErrShape)
		}
	}
	return
}

// Forward runs the network over a batch of trajectories.  The not-done mask
// (1 - done) gates both the encoded previous action and the recurrent state
// entering each step.  dec selects how actions are chosen: for TeacherForce,
// dec.Actions is the (T, B, N) ground truth.  st is the state from
// InitialState or a previous call, and is not modified: the final state is
// returned.  All shapes are validated before any computation.
// obs.PrevAction must hold in-range values on done steps too: it is
// range-checked before the gating, so a reset sentinel there is an ErrRange.
func (nt *Net) Forward(obs *Obs, done [][]bool, st lstm.State, dec policy.Decoding) (*Output, lstm.State, error) {
	if !nt.built {
		return nil, lstm.State{}, fmt.Errorf("%s: Forward called before Build", nt.Nm)
	}
	tn, nb, err := nt.Check(obs, done)
	if err != nil {
		return nil, lstm.State{}, err
	}
	hid := nt.Percept.Hidden
	if err := st.Check(nb, hid); err != nil {
		return nil, lstm.State{}, err
	}
	n := tn * nb
	na := nt.Cfg.NAct()
	if dec.Mode == policy.TeacherForce && dec.Actions != nil {
		if err := nn.CheckShape("actions", dec.Actions.Shapes(), tn, nb, na); err != nil {
			return nil, lstm.State{}, err
		}
		if dec.Actions, err = nn.ViewInt(dec.Actions, n, na); err != nil {
			return nil, lstm.State{}, err
		}
	}
	if err := nt.Decoder.Validate(n, &dec); err != nil {
		return nil, lstm.State{}, err
	}
	notdone, err := lstm.NotDone(done)
	if err != nil {
		return nil, lstm.State{}, err
	}

	nt.FunTimerStart("Percept")
	emb, err := nt.perceive(obs, notdone.Values, n)
	nt.FunTimerStop("Percept")
	if err != nil {
		return nil, lstm.State{}, err
	}

	nt.FunTimerStart("Core")
	emb, _ = nn.View(emb, tn, nb, hid)
	seed, nst, err := nt.Core.Unroll(emb, notdone, st)
	nt.FunTimerStop("Core")
	if err != nil {
		return nil, lstm.State{}, err
	}

	nt.FunTimerStart("Decode")
	acts, logits, err := nt.Decoder.Decode(seed, dec)
	nt.FunTimerStop("Decode")
	if err != nil {
		return nil, lstm.State{}, err
	}

	nt.FunTimerStart("Baseline")
	bl, err := nt.Baseline.Forward(seed)
	nt.FunTimerStop("Baseline")
	if err != nil {
		return nil, lstm.State{}, err
	}

	out := &Output{Logits: make([]*etensor.Float32, na)}
	out.Action, _ = nn.ViewInt(acts, tn, nb, na)
	out.Baseline, _ = nn.View(bl, tn, nb)
	for i, lg := range logits {
		out.Logits[i], _ = nn.View(lg, tn, nb, -1)
	}
	return out, nst, nil
}

// perceive computes the (n, Hidden) embedding of each observation
func (nt *Net) perceive(obs *Obs, notdone []float32, n int) (*etensor.Float32, error) {
	na := nt.Cfg.NAct()
	pacts, err := nn.ViewInt(obs.PrevAction, n, na)
	if err != nil {
		return nil, err
	}
	mask, err := nn.View(obs.ActionMask, n, na-1)
	if err != nil {
		return nil, err
	}
	enc, err := nt.Encoder.EncodeGated(pacts, mask, notdone)
	if err != nil {
		return nil, err
	}
	acond, err := nt.ActMLP.Forward(enc)
	if err != nil {
		return nil, err
	}
	noise, err := nn.View(obs.NoiseSample, n, nt.Percept.NoiseDim)
	if err != nil {
		return nil, err
	}
	cond, err := nt.NoiseMLP.Forward(noise)
	if err != nil {
		return nil, err
	}
	for i, v := range acond.Values {
		cond.Values[i] += v
	}

	feat, err := nt.Obs.Forward(nt.withGrid(obs.Canvas, n))
	if err != nil {
		return nil, err
	}
	wd := nt.Percept.Width
	psz := CanvasSize * CanvasSize
	for i := 0; i < n; i++ {
		for c := 0; c < wd; c++ {
			cv := cond.Values[i*wd+c]
			pl := feat.Values[(i*wd+c)*psz : (i*wd+c+1)*psz]
			for j, v := range pl {
				pl[j] = nn.Relu(v + cv)
			}
		}
	}
	return nt.Base.Forward(feat)
}

// withGrid returns the (n, C+2, 64, 64) canvas with the coordinate grid
// channels appended
func (nt *Net) withGrid(canvas *etensor.Float32, n int) *etensor.Float32 {
	nc := nt.Cfg.Chans()
	psz := CanvasSize * CanvasSize
	in := nn.NewTensor(n, nc+2, CanvasSize, CanvasSize)
	for i := 0; i < n; i++ {
		copy(in.Values[i*(nc+2)*psz:], canvas.Values[i*nc*psz:(i+1)*nc*psz])
		copy(in.Values[(i*(nc+2)+nc)*psz:(i+1)*(nc+2)*psz], nt.Grid.Values)
	}
	return in
}
