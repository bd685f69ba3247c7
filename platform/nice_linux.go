// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package platform

import "golang.org/x/sys/unix"

// GetNice returns the calling process's nice value, the Go analogue of
// getpriority(PRIO_PROCESS, 0) used in flthread_info_create() and
// rwlock_{reader,writer}_lock() in the original sources.
//
// unix.Getpriority returns the kernel value offset by 20 (i.e. it returns
// values in [1, 40] rather than [-20, 19]); undo that offset here so callers
// see the conventional nice range.
func GetNice() int {
	prio, err := unix.Getpriority(unix.PRIO_PROCESS, 0)
	if err != nil {
		return 0
	}
	return 20 - prio
}
