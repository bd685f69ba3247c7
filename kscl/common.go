// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kscl

import "github.com/nviradia/scl/platform"

// spinThenYield mirrors cond_resched()-style spin loops in
// original_source/k-scl/fairlock.c: busy-spin a bounded number of times,
// doubling each call, then fall back to yielding the processor. See
// uscl/common.go, grounded the same way on nsync's spinDelay.
func spinThenYield(attempts uint, limit int) uint {
	if attempts < uint(limit) {
		for i := 0; i != 1<<attempts; i++ {
		}
		attempts++
	} else {
		platform.Yield()
	}
	return attempts
}
