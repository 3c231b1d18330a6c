// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package nn provides the float32 feed-forward building blocks used by the spiral
agent and discriminator: Linear, Conv2D and ConvTranspose2D layers computed with
gonum blas32 GEMM over etensor.Float32 values, pointwise activations, residual
blocks, spectral normalization, and a Stack of Layers assembled by a Builder.

All tensors are row-major with the batch (or time*batch) dimension first,
and images are laid out as (N, Channels, Y, X).  Forward never modifies its
input tensor -- a new output tensor is always returned.

Learned values are held in Param structs, which are written to and read from
the emergent weights JSON format (see WriteWtsJSON and SetWts).
*/
package nn
