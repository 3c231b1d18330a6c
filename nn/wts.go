// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nn

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/emer/emergent/weights"
	"github.com/goki/ki/indent"
)

// Params are stored in the emergent weights JSON format: each Param is one
// "Layer" named by the param, with its shape in the MetaData, and a single
// "Prjns" entry whose receiving rows (Rs) are the rows of the param viewed
// as a (Dim(0), -1) matrix.  Values are written at full float32 precision,
// so they are read back exactly.

// ShapeString returns the shape of given param as comma-separated sizes
func ShapeString(pr *Param) string {
	shp := pr.Vals.Shapes()
	ss := make([]string, len(shp))
	for i, sz := range shp {
		ss[i] = strconv.Itoa(sz)
	}
	return strings.Join(ss, ",")
}

// WriteWtsJSON writes the given params as a network in the weights JSON format.
// We build in the indentation logic to make it much faster and
// more efficient.
func WriteWtsJSON(w io.Writer, netName string, meta map[string]string, pars []*Param) {
	depth := 0
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("{\n"))
	depth++
	w.Write(indent.TabBytes(depth))
	w.Write([]byte(fmt.Sprintf("\"Network\": %q,\n", netName)))
	if len(meta) > 0 {
		w.Write(indent.TabBytes(depth))
		w.Write([]byte("\"MetaData\": {\n"))
		depth++
		keys := make([]string, 0, len(meta))
		for k := range meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for ki, k := range keys {
			w.Write(indent.TabBytes(depth))
			w.Write([]byte(fmt.Sprintf("%q: %q", k, meta[k])))
			if ki == len(keys)-1 {
				w.Write([]byte("\n"))
			} else {
				w.Write([]byte(",\n"))
			}
		}
		depth--
		w.Write(indent.TabBytes(depth))
		w.Write([]byte("},\n"))
	}
	w.Write(indent.TabBytes(depth))
	np := len(pars)
	if np == 0 {
		w.Write([]byte("\"Layers\": null\n"))
	} else {
		w.Write([]byte("\"Layers\": [\n"))
		depth++
		for pi, pr := range pars {
			writeParamJSON(w, pr, depth)
			if pi == np-1 {
				w.Write([]byte("\n"))
			} else {
				w.Write([]byte(",\n"))
			}
		}
		depth--
		w.Write(indent.TabBytes(depth))
		w.Write([]byte("]\n"))
	}
	depth--
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("}\n"))
}

// writeParamJSON writes one param as a weights Layer, leaving it unterminated
func writeParamJSON(w io.Writer, pr *Param, depth int) {
	nr := 1
	if pr.Vals.NumDims() > 0 {
		nr = pr.Vals.Dim(0)
	}
	nc := pr.Len() / nr
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("{\n"))
	depth++
	w.Write(indent.TabBytes(depth))
	w.Write([]byte(fmt.Sprintf("\"Layer\": %q,\n", pr.Name)))
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("\"MetaData\": {\n"))
	depth++
	w.Write(indent.TabBytes(depth))
	w.Write([]byte(fmt.Sprintf("\"Shape\": %q\n", ShapeString(pr))))
	depth--
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("},\n"))
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("\"Prjns\": [\n"))
	depth++
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("{\n"))
	depth++
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("\"From\": \"Vals\",\n"))
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("\"Rs\": [\n"))
	depth++
	for ri := 0; ri < nr; ri++ {
		w.Write(indent.TabBytes(depth))
		w.Write([]byte("{\n"))
		depth++
		w.Write(indent.TabBytes(depth))
		w.Write([]byte(fmt.Sprintf("\"Ri\": %v,\n", ri)))
		w.Write(indent.TabBytes(depth))
		w.Write([]byte(fmt.Sprintf("\"N\": %v,\n", nc)))
		w.Write(indent.TabBytes(depth))
		w.Write([]byte("\"Wt\": [ "))
		row := pr.Vals.Values[ri*nc : (ri+1)*nc]
		for ci, v := range row {
			w.Write([]byte(strconv.FormatFloat(float64(v), 'g', -1, 32)))
			if ci == nc-1 {
				w.Write([]byte(" "))
			} else {
				w.Write([]byte(", "))
			}
		}
		w.Write([]byte("]\n"))
		depth--
		w.Write(indent.TabBytes(depth))
		if ri == nr-1 {
			w.Write([]byte("}\n"))
		} else {
			w.Write([]byte("},\n"))
		}
	}
	depth--
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("]\n"))
	depth--
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("}\n"))
	depth--
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("]\n"))
	depth--
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("}")) // note: leave unterminated as outer loop needs to add , or just \n depending
}

// SetWts sets the values of the given params from decoded weights, matching
// params to weights Layers by name.  Every param must be present with the same
// shape.  Returns an error joining each problem found.
func SetWts(nw *weights.Network, pars []*Param) error {
	pmap := make(map[string]*Param, len(pars))
	for _, pr := range pars {
		pmap[pr.Name] = pr
	}
	set := make(map[string]bool, len(pars))
	var errs []error
	for li := range nw.Layers {
		lw := &nw.Layers[li]
		pr, ok := pmap[lw.Layer]
		if !ok {
			errs = append(errs, fmt.Errorf("weights: param %q not found in network", lw.Layer))
			continue
		}
		if set[pr.Name] {
			errs = append(errs, fmt.Errorf("weights: param %q listed more than once: %w", pr.Name, ErrShape))
			continue
		}
		if err := setParamWts(pr, lw); err != nil {
			errs = append(errs, err)
			continue
		}
		set[pr.Name] = true
	}
	for _, pr := range pars {
		if !set[pr.Name] {
			errs = append(errs, fmt.Errorf("weights: param %q missing: %w", pr.Name, ErrShape))
		}
	}
	return errors.Join(errs...)
}

func setParamWts(pr *Param, lw *weights.Layer) error {
	if shp, ok := lw.MetaData["Shape"]; ok && shp != ShapeString(pr) {
		return fmt.Errorf("weights: param %q shape %s, want %s: %w", pr.Name, shp, ShapeString(pr), ErrShape)
	}
	if len(lw.Prjns) != 1 {
		return fmt.Errorf("weights: param %q has %d value sets, want 1: %w", pr.Name, len(lw.Prjns), ErrShape)
	}
	vals := pr.Vals.Values
	n := 0
	for _, rw := range lw.Prjns[0].Rs {
		off := rw.Ri * rw.N
		if off < 0 || off+len(rw.Wt) > len(vals) {
			return fmt.Errorf("weights: param %q row %d out of range: %w", pr.Name, rw.Ri, ErrShape)
		}
		copy(vals[off:], rw.Wt)
		n += len(rw.Wt)
	}
	if n != len(vals) {
		return fmt.Errorf("weights: param %q has %d values, want %d: %w", pr.Name, n, len(vals), ErrShape)
	}
	return nil
}
