// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package platform

import "fmt"

// prioToWeight is the Linux CFS nice-to-weight table, indexed by nice+20.
// Ported verbatim from original_source/u-scl/common.h and
// original_source/RW-SCL/common.h.
var prioToWeight = [40]uint32{
	/* -20 */ 88761, 71755, 56483, 46273, 36291,
	/* -15 */ 29154, 23254, 18705, 14949, 11916,
	/* -10 */ 9548, 7620, 6100, 4904, 3906,
	/*  -5 */ 3121, 2501, 1991, 1586, 1277,
	/*   0 */ 1024, 820, 655, 526, 423,
	/*   5 */ 335, 272, 215, 172, 137,
	/*  10 */ 110, 87, 70, 56, 45,
	/*  15 */ 36, 29, 23, 18, 15,
}

// WeightForNice returns prio_to_weight[nice+20]. nice must be in [-20, 19].
func WeightForNice(nice int) uint32 {
	idx := nice + 20
	if idx < 0 || idx >= len(prioToWeight) {
		panic(fmt.Sprintf("platform: nice value %d out of range [-20, 19]", nice))
	}
	return prioToWeight[idx]
}

// WeightForCurrentThread derives a weight from the calling goroutine's OS
// thread scheduling priority, used when a lock's Register() is called with
// weight==0.
func WeightForCurrentThread() uint32 {
	return WeightForNice(GetNice())
}
