// Copyright (c) 2019, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nn

import "errors"

var (
	// ErrShape is returned (wrapped) for any disagreement between declared sizes
	// and the shapes of the tensors actually passed in.
	ErrShape = errors.New("shape mismatch")

	// ErrRange is returned (wrapped) when a discrete value falls outside of its
	// declared cardinality.
	ErrRange = errors.New("value out of range")
)
