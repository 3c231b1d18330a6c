// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/emer/emergent/timer"
	"github.com/emer/spiral/nn"
)

// modules returns the name and params of each top-level module
func (nt *Net) modules() ([]string, [][]*nn.Param) {
	nms := []string{"Obs", "Encoder", "Noise", "Action", "Base", "Core", "Policy", "Baseline"}
	pars := [][]*nn.Param{nt.Obs.Params(), nt.Encoder.Params(), nt.NoiseMLP.Params(), nt.ActMLP.Params(),
		nt.Base.Params(), nt.Core.Params(), nt.Decoder.Params(), nt.Baseline.Params()}
	return nms, pars
}

// SizeReport returns a string reporting the number of params and their
// memory footprint for each module in the network, and in total.
func (nt *Net) SizeReport() string {
	var b strings.Builder
	nms, pars := nt.modules()
	tot := 0
	for i, nm := range nms {
		np := nn.CountParams(pars[i])
		tot += np
		fmt.Fprintf(&b, "%14s:\t Tensors: %d\t Params: %d\t Mem: %v\n", nm, len(pars[i]), np, (datasize.ByteSize)(np*4).HumanReadable())
	}
	fmt.Fprintf(&b, "\n\n%14s:\t Params: %d\t Mem: %v\n", nt.Nm, tot, (datasize.ByteSize)(tot*4).HumanReadable())
	return b.String()
}

// TimerReport reports the amount of time spent in each stage of Forward
func (nt *Net) TimerReport() {
	fmt.Printf("TimerReport: %v\n", nt.Nm)
	fmt.Printf("\tFunction Name\tTotal Secs\tPct\n")
	nfn := len(nt.FunTimes)
	fnms := make([]string, 0, nfn)
	for k := range nt.FunTimes {
		fnms = append(fnms, k)
	}
	sort.StringSlice(fnms).Sort()
	pcts := make([]float64, nfn)
	tot := 0.0
	for i, fn := range fnms {
		pcts[i] = nt.FunTimes[fn].TotalSecs()
		tot += pcts[i]
	}
	for i, fn := range fnms {
		fmt.Printf("\t%v \t%6.4g\t%6.4g\n", fn, pcts[i], 100*(pcts[i]/tot))
	}
	fmt.Printf("\tTotal   \t%6.4g\n", tot)
}

// TimerReset resets all of the stage timers
func (nt *Net) TimerReset() {
	for _, ft := range nt.FunTimes {
		ft.Reset()
	}
}

// FunTimerStart starts function timer for given function name -- ensures creation of timer
func (nt *Net) FunTimerStart(fun string) {
	if nt.FunTimes == nil {
		nt.FunTimes = make(map[string]*timer.Time)
	}
	ft, ok := nt.FunTimes[fun]
	if !ok {
		ft = &timer.Time{}
		nt.FunTimes[fun] = ft
	}
	ft.Start()
}

// FunTimerStop stops function timer -- timer must already exist
func (nt *Net) FunTimerStop(fun string) {
	ft := nt.FunTimes[fun]
	ft.Stop()
}
