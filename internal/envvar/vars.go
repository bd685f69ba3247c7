// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package envvar

import "strings"

// SliceToMap converts a slice of "key=value" strings, as returned by
// os.Environ, into a map. Entries without an "=" are ignored; entries
// whose key repeats keep the last value, matching how the OS environment
// itself resolves duplicate entries.
func SliceToMap(vars []string) map[string]string {
	m := make(map[string]string, len(vars))
	for _, kv := range vars {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

// MapToSlice converts a map into a slice of "key=value" strings suitable
// for exec.Cmd.Env. The result order is unspecified.
func MapToSlice(vars map[string]string) []string {
	slice := make([]string, 0, len(vars))
	for k, v := range vars {
		slice = append(slice, k+"="+v)
	}
	return slice
}

// CopyMap returns a shallow copy of vars, so callers can hand it out
// without letting the recipient mutate the original.
func CopyMap(vars map[string]string) map[string]string {
	cp := make(map[string]string, len(vars))
	for k, v := range vars {
		cp[k] = v
	}
	return cp
}
