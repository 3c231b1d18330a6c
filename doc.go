// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package spiral is the overall repository for the forward pass of a painting
agent: a recurrent policy network that observes a canvas, and emits a
multi-component brush stroke action, chosen one component at a time.

This top-level of the repository has no functional code -- everything is organized
into the following sub-repositories:

* nn: the float32 layers (Linear, Conv2D, ConvTranspose2D, residual blocks,
spectral normalization) and the weights file format shared by everything else.

* embed: embedding of action components -- spatial components through their
grid coordinates, scalar components through a one-hot code -- and the masked
Encoder of a whole previous action.

* lstm: the recurrent core, unrolled over time with the state reset at episode
boundaries.

* policy: the autoregressive action Decoder, with a location head (transpose
convolutions up to the action grid) or a scalar head per component, in either
TeacherForce or Sample mode.

* agent: the Net wiring these together: Config, params, Build, Forward,
weights files, and size and timing reports.

* discrim: the spectrally-normalized Discriminator over canvases, and its
Complement variant.

* examples/rollout: runs the agent on a toy brush environment -- the place to
start to see the whole acting loop.
*/
package spiral
