// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package discrim provides the convolutional Discriminator over canvas images used
for the adversarial reward, with spectral normalization on every convolution,
and the Complement discriminator that scores only the complementary half of
the channels and columns of an image.

Score returns the raw score in nn.Train mode, where the spectral norm power
iterations also advance, and sigmoid(score) in nn.Eval mode, where nothing
changes.  Training of the discriminator itself is outside of this package.
*/
package discrim

import (
	"fmt"

	"github.com/emer/etable/etensor"
	"github.com/emer/spiral/nn"
)

// Params are the sizes of the discriminator
type Params struct {
	NDF        int     `def:"64" min:"1" desc:"number of feature channels in the first convolution -- doubles with each downsampling"`
	Slope      float32 `def:"0.2" desc:"negative slope of the LeakyReLU activations"`
	PowerIters int     `def:"1" min:"1" desc:"spectral norm power iterations per Train mode call"`
}

func (dp *Params) Defaults() {
	dp.NDF = 64
	dp.Slope = 0.2
	dp.PowerIters = 1
}

// Validate checks the sizes
func (dp *Params) Validate() error {
	if dp.NDF < 1 || dp.PowerIters < 1 || dp.Slope < 0 {
		return fmt.Errorf("discrim: invalid sizes %+v: %w", *dp, nn.ErrShape)
	}
	return nil
}

// Discriminator reduces a (B, C, 64, 64) image to one score per image
type Discriminator struct {
	Nm       string         `desc:"name of discriminator"`
	ObsShape []int          `desc:"image shape: channels, height, width"`
	Sizes    Params         `view:"inline" desc:"sizes"`
	Main     *nn.Stack      `desc:"the spectrally-normalized convolutional stack"`
	SNs      []*nn.SpecNorm `view:"-" desc:"the spectral norms in Main, in order"`
}

// NewDiscriminator returns a new discriminator for obsShape (C, 64, 64)
func NewDiscriminator(name string, obsShape []int, dp *Params) (*Discriminator, error) {
	if len(obsShape) != 3 || obsShape[1] != 64 || obsShape[2] != 64 || obsShape[0] < 1 {
		return nil, fmt.Errorf("%s: obs shape %v, want (C, 64, 64): %w", name, obsShape, nn.ErrShape)
	}
	if err := dp.Validate(); err != nil {
		return nil, err
	}
	ds := &Discriminator{Nm: name, ObsShape: append([]int{}, obsShape...), Sizes: *dp}
	bl := nn.NewBuilder(name)
	in := obsShape[0]
	nf := dp.NDF
	for i := 0; i < 4; i++ {
		bl.SNConv2D(in, nf, 4, 2, 1, dp.PowerIters).LeakyReLU(dp.Slope)
		in = nf
		nf *= 2
	}
	ds.Main = bl.SNConv2D(in, 1, 4, 1, 0, dp.PowerIters).Flatten().Stack()
	for _, ly := range ds.Main.Layers {
		if sn, ok := ly.(*nn.SpecNorm); ok {
			ds.SNs = append(ds.SNs, sn)
		}
	}
	return ds, nil
}

func (ds *Discriminator) Name() string { return ds.Nm }

func (ds *Discriminator) Params() []*nn.Param { return ds.Main.Params() }

// InitWts initializes the kernels and then the spectral norm vectors from them
func (ds *Discriminator) InitWts() {
	nn.InitParams(ds.Params())
	for _, sn := range ds.SNs {
		sn.InitVecs()
	}
}

// Score returns one score per image of x (B, C, 64, 64): the raw score in
// nn.Train mode, and sigmoid(score) in nn.Eval mode
func (ds *Discriminator) Score(x *etensor.Float32, mode nn.Mode) (*etensor.Float32, error) {
	if err := nn.CheckShape(ds.Nm, x.Shapes(), -1, ds.ObsShape[0], ds.ObsShape[1], ds.ObsShape[2]); err != nil {
		return nil, err
	}
	y, err := ds.Main.ForwardMode(x, mode)
	if err != nil {
		return nil, err
	}
	y, err = nn.View(y, -1)
	if err != nil {
		return nil, err
	}
	if mode == nn.Eval {
		for i, v := range y.Values {
			y.Values[i] = nn.Sigmoid(v)
		}
	}
	return y, nil
}

// Complement scores images masked to the complement of a partial view: the
// first C/2 channels keep only the right half of the columns, and the last
// C/2 channels keep only the left half.  The mask is computed once, at
// construction.
type Complement struct {
	Discriminator
	Mask *etensor.Float32 `desc:"the (1, C, H, W) mask multiplied into every input"`
}

// NewComplement returns a new complement discriminator for obsShape (C, 64, 64),
// where C must be even
func NewComplement(name string, obsShape []int, dp *Params) (*Complement, error) {
	ds, err := NewDiscriminator(name, obsShape, dp)
	if err != nil {
		return nil, err
	}
	if obsShape[0]%2 != 0 {
		return nil, fmt.Errorf("%s: complement needs an even number of channels, have %d: %w", name, obsShape[0], nn.ErrShape)
	}
	cd := &Complement{Discriminator: *ds}
	cd.Mask = ComplementMask(obsShape[0], obsShape[1], obsShape[2])
	return cd, nil
}

// ComplementMask returns the (1, c, h, w) mask with the first c/2 channels
// 1 on the right half of the columns, and the last c/2 channels 1 on the left
func ComplementMask(c, h, w int) *etensor.Float32 {
	mk := nn.NewTensor(1, c, h, w)
	for ch := 0; ch < c; ch++ {
		right := ch < c/2
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if (x >= w/2) == right {
					mk.Values[(ch*h+y)*w+x] = 1
				}
			}
		}
	}
	return mk
}

// Masked returns x (B, C, H, W) multiplied by the Mask
func (cd *Complement) Masked(x *etensor.Float32) (*etensor.Float32, error) {
	if err := nn.CheckShape(cd.Nm, x.Shapes(), -1, cd.ObsShape[0], cd.ObsShape[1], cd.ObsShape[2]); err != nil {
		return nil, err
	}
	mx := nn.Clone(x)
	msz := cd.Mask.Len()
	for i := range mx.Values {
		mx.Values[i] *= cd.Mask.Values[i%msz]
	}
	return mx, nil
}

// Score returns the score of the masked images
func (cd *Complement) Score(x *etensor.Float32, mode nn.Mode) (*etensor.Float32, error) {
	mx, err := cd.Masked(x)
	if err != nil {
		return nil, err
	}
	return cd.Discriminator.Score(mx, mode)
}
