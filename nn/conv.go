// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nn

import (
	"fmt"

	"github.com/emer/etable/etensor"
)

// ConvParams are the geometry of a square-kernel 2D convolution
type ConvParams struct {
	In     int `desc:"number of input channels"`
	Out    int `desc:"number of output channels"`
	K      int `desc:"kernel size (K x K)"`
	Stride int `def:"1" desc:"stride of the kernel over the input"`
	Pad    int `def:"0" desc:"zero padding added on each side of the input"`
}

// KSize returns the number of kernel values per output channel, In * K * K
func (cp *ConvParams) KSize() int {
	return cp.In * cp.K * cp.K
}

// Conv2D is a 2D convolution over (N, In, Y, X) images
type Conv2D struct {
	ConvParams
	Nm string `desc:"name of layer"`
	W  *Param `desc:"kernel weights, shape (Out, In, K, K)"`
	B  *Param `desc:"biases, shape (Out) -- nil if no bias"`
}

// NewConv2D returns a new Conv2D layer, with zero weights
func NewConv2D(name string, in, out, k, stride, pad int, bias bool) *Conv2D {
	cv := &Conv2D{Nm: name, ConvParams: ConvParams{In: in, Out: out, K: k, Stride: stride, Pad: pad}}
	fan := cv.KSize()
	cv.W = NewParam(name+".W", fan, out, in, k, k)
	if bias {
		cv.B = NewParam(name+".B", fan, out)
	}
	return cv
}

func (cv *Conv2D) Name() string { return cv.Nm }

func (cv *Conv2D) Params() []*Param {
	if cv.B == nil {
		return []*Param{cv.W}
	}
	return []*Param{cv.W, cv.B}
}

// OutSize returns the output size for given input size
func (cv *Conv2D) OutSize(sz int) int {
	return (sz+2*cv.Pad-cv.K)/cv.Stride + 1
}

func (cv *Conv2D) Forward(x *etensor.Float32) (*etensor.Float32, error) {
	return cv.ForwardWt(x, cv.W.Vals.Values)
}

// ForwardWt computes the convolution using given kernel weights in place of W,
// which must have the same layout as W.
func (cv *Conv2D) ForwardWt(x *etensor.Float32, wt []float32) (*etensor.Float32, error) {
	n, _, h, w, err := Image(cv.Nm, x, cv.In)
	if err != nil {
		return nil, err
	}
	oh, ow := cv.OutSize(h), cv.OutSize(w)
	if oh <= 0 || ow <= 0 {
		return nil, fmt.Errorf("%s: input %dx%d too small for kernel %d: %w", cv.Nm, h, w, cv.K, ErrShape)
	}
	y := NewTensor(n, cv.Out, oh, ow)
	ksz := cv.KSize()
	osz := oh * ow
	cols := make([]float32, ksz*osz)
	isz := cv.In * h * w
	for i := 0; i < n; i++ {
		cv.im2col(x.Values[i*isz:(i+1)*isz], cols, h, w, oh, ow)
		yv := y.Values[i*cv.Out*osz : (i+1)*cv.Out*osz]
		cv.fillBias(yv, osz)
		MatMul(wt, cols, yv, cv.Out, ksz, osz, 1)
	}
	return y, nil
}

// fillBias initializes each output channel plane to its bias
func (cv *Conv2D) fillBias(yv []float32, osz int) {
	for o := 0; o < cv.Out; o++ {
		b := float32(0)
		if cv.B != nil {
			b = cv.B.Vals.Values[o]
		}
		pl := yv[o*osz : (o+1)*osz]
		for j := range pl {
			pl[j] = b
		}
	}
}

// im2col unrolls one (In, h, w) image into (In*K*K, oh*ow) kernel patches
func (cv *Conv2D) im2col(img, cols []float32, h, w, oh, ow int) {
	k := cv.K
	osz := oh * ow
	for c := 0; c < cv.In; c++ {
		ch := img[c*h*w : (c+1)*h*w]
		for ky := 0; ky < k; ky++ {
			for kx := 0; kx < k; kx++ {
				row := cols[((c*k+ky)*k+kx)*osz:]
				for oy := 0; oy < oh; oy++ {
					iy := oy*cv.Stride - cv.Pad + ky
					for ox := 0; ox < ow; ox++ {
						ix := ox*cv.Stride - cv.Pad + kx
						if iy < 0 || iy >= h || ix < 0 || ix >= w {
							row[oy*ow+ox] = 0
						} else {
							row[oy*ow+ox] = ch[iy*w+ix]
						}
					}
				}
			}
		}
	}
}

// ConvTranspose2D is a transposed (fractionally-strided) 2D convolution,
// the gradient of Conv2D with respect to its input, used for upsampling.
type ConvTranspose2D struct {
	ConvParams
	Nm string `desc:"name of layer"`
	W  *Param `desc:"kernel weights, shape (In, Out, K, K)"`
	B  *Param `desc:"biases, shape (Out) -- nil if no bias"`
}

// NewConvTranspose2D returns a new ConvTranspose2D layer, with zero weights
func NewConvTranspose2D(name string, in, out, k, stride, pad int, bias bool) *ConvTranspose2D {
	ct := &ConvTranspose2D{Nm: name, ConvParams: ConvParams{In: in, Out: out, K: k, Stride: stride, Pad: pad}}
	fan := out * k * k // fan-in is over the second weight dim
	ct.W = NewParam(name+".W", fan, in, out, k, k)
	if bias {
		ct.B = NewParam(name+".B", fan, out)
	}
	return ct
}

func (ct *ConvTranspose2D) Name() string { return ct.Nm }

func (ct *ConvTranspose2D) Params() []*Param {
	if ct.B == nil {
		return []*Param{ct.W}
	}
	return []*Param{ct.W, ct.B}
}

// OutSize returns the output size for given input size
func (ct *ConvTranspose2D) OutSize(sz int) int {
	return (sz-1)*ct.Stride - 2*ct.Pad + ct.K
}

func (ct *ConvTranspose2D) Forward(x *etensor.Float32) (*etensor.Float32, error) {
	n, _, h, w, err := Image(ct.Nm, x, ct.In)
	if err != nil {
		return nil, err
	}
	oh, ow := ct.OutSize(h), ct.OutSize(w)
	if oh <= 0 || ow <= 0 {
		return nil, fmt.Errorf("%s: input %dx%d gives empty output: %w", ct.Nm, h, w, ErrShape)
	}
	y := NewTensor(n, ct.Out, oh, ow)
	k := ct.K
	ksz := ct.Out * k * k
	isz := h * w
	osz := oh * ow
	cols := make([]float32, ksz*isz)
	for i := 0; i < n; i++ {
		xv := x.Values[i*ct.In*isz : (i+1)*ct.In*isz]
		// cols (Out*K*K, h*w) = W^T (Out*K*K, In) . x (In, h*w)
		TMatMul(ct.W.Vals.Values, xv, cols, ksz, ct.In, isz, 0)
		yv := y.Values[i*ct.Out*osz : (i+1)*ct.Out*osz]
		for o := 0; o < ct.Out; o++ {
			b := float32(0)
			if ct.B != nil {
				b = ct.B.Vals.Values[o]
			}
			pl := yv[o*osz : (o+1)*osz]
			for j := range pl {
				pl[j] = b
			}
		}
		ct.col2im(cols, yv, h, w, oh, ow)
	}
	return y, nil
}

// col2im scatter-adds (Out*K*K, h*w) columns into an (Out, oh, ow) image
func (ct *ConvTranspose2D) col2im(cols, img []float32, h, w, oh, ow int) {
	k := ct.K
	isz := h * w
	for c := 0; c < ct.Out; c++ {
		ch := img[c*oh*ow : (c+1)*oh*ow]
		for ky := 0; ky < k; ky++ {
			for kx := 0; kx < k; kx++ {
				row := cols[((c*k+ky)*k+kx)*isz:]
				for iy := 0; iy < h; iy++ {
					oy := iy*ct.Stride - ct.Pad + ky
					if oy < 0 || oy >= oh {
						continue
					}
					for ix := 0; ix < w; ix++ {
						ox := ix*ct.Stride - ct.Pad + kx
						if ox < 0 || ox >= ow {
							continue
						}
						ch[oy*ow+ox] += row[iy*w+ix]
					}
				}
			}
		}
	}
}
