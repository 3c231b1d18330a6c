// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package agent

import (
	"errors"
	"fmt"
	"log"

	"github.com/emer/emergent/params"
	"github.com/emer/emergent/timer"
	"github.com/emer/etable/etensor"
	"github.com/emer/etable/minmax"
	"github.com/emer/spiral/embed"
	"github.com/emer/spiral/lstm"
	"github.com/emer/spiral/nn"
	"github.com/emer/spiral/policy"
)

// Net is the full perception-to-action network of the painting agent.
// Create with NewNet, optionally ApplyParams, then Build and InitWts.
type Net struct {
	Nm       string                 `desc:"overall name of network -- helps discriminate if there are multiple"`
	Cls      string                 `desc:"class name(s) for params selectors"`
	Cfg      Config                 `desc:"construction-time configuration"`
	Percept  PerceptParams          `view:"inline" desc:"backbone and core sizes"`
	Policy   policy.Params          `view:"inline" desc:"action decoder sizes"`
	MetaData map[string]string      `desc:"misc metadata, written into weights files"`
	Obs      *nn.Conv2D             `desc:"initial convolution over canvas + coordinate grid"`
	Encoder  *embed.Encoder         `desc:"masked encoder of the previous action"`
	NoiseMLP *nn.Stack              `desc:"noise sample -> condition"`
	ActMLP   *nn.Stack              `desc:"encoded previous action -> condition"`
	Base     *nn.Stack              `desc:"downsampling convolutions, residual blocks and projection to the Hidden embedding"`
	Core     *lstm.Core             `desc:"recurrent temporal core"`
	Decoder  *policy.Decoder        `desc:"autoregressive action decoder"`
	Baseline *nn.Linear             `desc:"value baseline head, Hidden -> 1"`
	Grid     *etensor.Float32       `view:"-" desc:"coordinate grid channels (2, 64, 64): y then x"`
	FunTimes map[string]*timer.Time `view:"-" desc:"timers for each stage of Forward"`
	built    bool
}

// NewNet returns a new Net with given config and default params
func NewNet(name string, cfg Config) *Net {
	nt := &Net{Nm: name, Cfg: cfg}
	nt.Defaults()
	return nt
}

func (nt *Net) TypeName() string { return "Net" }
func (nt *Net) Class() string    { return nt.Cls }
func (nt *Net) Name() string     { return nt.Nm }

// Defaults sets default params
func (nt *Net) Defaults() {
	nt.Percept.Defaults()
	nt.Policy.Defaults()
}

// UpdateParams updates derived params
func (nt *Net) UpdateParams() {
	nt.Percept.Update()
}

// ApplyParams applies given parameter style Sheet to the Net, which must not
// yet be built.  Paths are relative to the Net, e.g., "Net.Percept.Hidden".
// If setMsg is true, then a message is printed to confirm each parameter that is set.
// Returns true if any params were set, and error if there were any errors.
func (nt *Net) ApplyParams(pars *params.Sheet, setMsg bool) (bool, error) {
	if nt.built {
		err := fmt.Errorf("Net %s: ApplyParams must be called before Build", nt.Nm)
		log.Println(err)
		return false, err
	}
	app, err := pars.Apply(nt, setMsg)
	if app {
		nt.UpdateParams()
	}
	return app, err
}

// Build constructs all of the modules from the Config and params
func (nt *Net) Build() error {
	if err := nt.build(); err != nil {
		log.Println(err)
		return err
	}
	nt.built = true
	return nil
}

func (nt *Net) build() error {
	if err := nt.Cfg.Validate(); err != nil {
		return err
	}
	if err := nt.Percept.Validate(); err != nil {
		return err
	}
	if err := nt.Policy.Validate(); err != nil {
		return err
	}
	nt.UpdateParams()
	pp := &nt.Percept
	gw, gh := nt.Cfg.GridShape[0], nt.Cfg.GridShape[1]
	var err error
	emsg := ""

	nt.Obs = nn.NewConv2D("Obs", nt.Cfg.Chans()+2, pp.Width, pp.ObsK, 1, pp.ObsK/2, true)
	nt.Encoder, err = embed.NewEncoder("Encoder", nt.Cfg.ActionShape, gw, gh)
	if err != nil {
		emsg += err.Error() + "\n"
	}
	nt.NoiseMLP = nn.NewMLP("Noise", pp.NoiseDim, pp.CondHid1, pp.CondHid2, pp.Width)
	nt.ActMLP = nn.NewMLP("Action", embed.EmbedWidth*nt.Cfg.NAct(), pp.CondHid1, pp.CondHid2, pp.Width)

	bl := nn.NewBuilder("Base")
	for i := 0; i < pp.NDown; i++ {
		bl.Conv2D(pp.Width, pp.Width, 4, 2, 1).ReLU()
	}
	nt.Base = bl.ResBlocks(pp.NResBlocks, pp.Width).Flatten().
		Linear(pp.Width*pp.DownSize*pp.DownSize, pp.Hidden).ReLU().Stack()

	nt.Core = lstm.NewCore("Core", pp.Hidden, pp.Hidden)
	nt.Decoder, err = policy.NewDecoder("Policy", &nt.Policy, pp.Hidden, nt.Cfg.ActionShape, gw, gh)
	if err != nil {
		emsg += err.Error() + "\n"
	}
	nt.Baseline = nn.NewLinear("Baseline", pp.Hidden, 1)
	nt.Grid = CoordGrid(CanvasSize, CanvasSize)
	if nt.FunTimes == nil {
		nt.FunTimes = make(map[string]*timer.Time)
	}
	if emsg != "" {
		return errors.New(emsg)
	}
	return nil
}

// CoordGrid returns the (2, h, w) coordinate grid: channel 0 holds the y
// coordinate and channel 1 the x coordinate of each pixel, each spaced
// evenly over -1..1
func CoordGrid(h, w int) *etensor.Float32 {
	var rng minmax.F32
	rng.Set(-1, 1)
	gr := nn.NewTensor(2, h, w)
	for y := 0; y < h; y++ {
		yv := rng.ProjVal(float32(y) / float32(h-1))
		for x := 0; x < w; x++ {
			gr.Values[y*w+x] = yv
			gr.Values[h*w+y*w+x] = rng.ProjVal(float32(x) / float32(w-1))
		}
	}
	return gr
}

// IsBuilt returns true if Build has completed
func (nt *Net) IsBuilt() bool {
	return nt.built
}

// Params returns all of the learned params, in a fixed order
func (nt *Net) Params() []*nn.Param {
	_, mps := nt.modules()
	var pars []*nn.Param
	for _, mp := range mps {
		pars = append(pars, mp...)
	}
	return pars
}

// InitWts initializes all params with uniform random values
// over +/- 1/sqrt(fan-in)
func (nt *Net) InitWts() {
	nn.InitParams(nt.Params())
}

// InitialState returns a fresh zero recurrent state for batch size b
func (nt *Net) InitialState(b int) lstm.State {
	return lstm.NewState(b, nt.Percept.Hidden)
}
