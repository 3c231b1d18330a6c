// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package agent

import (
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/emer/emergent/weights"
	"github.com/emer/spiral/nn"
)

// SaveWtsJSON saves all network params to a JSON-formatted file.
// If filename has .gz extension, then file is gzip compressed.
func (nt *Net) SaveWtsJSON(filename string) error {
	fp, err := os.Create(filename)
	if err != nil {
		log.Println(err)
		return err
	}
	ext := filepath.Ext(filename)
	if ext == ".gz" {
		gzr := gzip.NewWriter(fp)
		nt.WriteWtsJSON(gzr)
		err = gzr.Close()
	} else {
		nt.WriteWtsJSON(fp)
	}
	if cerr := fp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		log.Println(err)
	}
	return err
}

// OpenWtsJSON opens network params from a JSON-formatted file.
// If filename has .gz extension, then file is gzip uncompressed.
func (nt *Net) OpenWtsJSON(filename string) error {
	fp, err := os.Open(filename)
	if err != nil {
		log.Println(err)
		return err
	}
	defer fp.Close()
	ext := filepath.Ext(filename)
	if ext == ".gz" {
		gzr, err := gzip.NewReader(fp)
		if err != nil {
			log.Println(err)
			return err
		}
		defer gzr.Close()
		return nt.ReadWtsJSON(gzr)
	}
	return nt.ReadWtsJSON(fp)
}

// WtsMetaData returns the metadata written into weights files: the
// config shapes, so a mismatched file is rejected before any values are set
func (nt *Net) WtsMetaData() map[string]string {
	md := make(map[string]string, len(nt.MetaData)+3)
	for k, v := range nt.MetaData {
		md[k] = v
	}
	md["ObsShape"] = intsString(nt.Cfg.ObsShape)
	md["ActionShape"] = intsString(nt.Cfg.ActionShape)
	md["GridShape"] = intsString(nt.Cfg.GridShape)
	return md
}

func intsString(vals []int) string {
	ss := make([]string, len(vals))
	for i, v := range vals {
		ss[i] = strconv.Itoa(v)
	}
	return strings.Join(ss, ",")
}

// WriteWtsJSON writes all of the params in the emergent weights JSON format
func (nt *Net) WriteWtsJSON(w io.Writer) {
	nn.WriteWtsJSON(w, nt.Nm, nt.WtsMetaData(), nt.Params())
}

// ReadWtsJSON reads params in the emergent weights JSON format.
// Reads entire file into a temporary weights.Network structure that is
// then passed to SetWts.
func (nt *Net) ReadWtsJSON(r io.Reader) error {
	nw, err := weights.NetReadJSON(r)
	if err != nil {
		return err // note: already logged
	}
	err = nt.SetWts(nw)
	if err != nil {
		log.Println(err)
	}
	return err
}

// SetWts sets the params from decoded weights.  The config shapes recorded
// in the metadata must match those of this network.
func (nt *Net) SetWts(nw *weights.Network) error {
	md := nt.WtsMetaData()
	for _, k := range []string{"ObsShape", "ActionShape", "GridShape"} {
		if v, ok := nw.MetaData[k]; ok && v != md[k] {
			return fmt.Errorf("%s: weights %s %s, want %s: %w", nt.Nm, k, v, md[k], nn.ErrShape)
		}
	}
	return nn.SetWts(nw, nt.Params())
}
