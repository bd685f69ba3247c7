// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package platform

// GetNice returns 0 on platforms without a getpriority(2) syscall; weighted
// fairness still applies among threads that explicitly register a nonzero
// weight.
func GetNice() int {
	return 0
}
