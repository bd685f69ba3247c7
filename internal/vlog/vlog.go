// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vlog is a thin leveled-logging wrapper, preserving the call
// shape of the teacher corpus's own vlog package (V(level).Infof(...),
// package-level Info/Error/Fatal) while backing it with
// github.com/golang/glog instead of the unretrievable
// github.com/cosmosnicolaou/llog fork the original wrapped. glog is that
// fork's real upstream, so every call site below reads exactly as it would
// against the original wrapper.
package vlog

import "github.com/golang/glog"

// Level is the verbosity level accepted by V. It implements flag.Value via
// glog.Level, so it can be wired into a -v flag the same way.
type Level = glog.Level

// Verbose is the value V returns: Infof/Info/Infoln only log when the
// configured verbosity is at least as high as the level passed to V.
type Verbose = glog.Verbose

// V reports whether verbosity at the given level is enabled, returning a
// Verbose that logs if so and silently discards otherwise.
func V(level Level) Verbose { return glog.V(level) }

// Info logs to the INFO log. Arguments are handled as with fmt.Print.
func Info(args ...interface{}) { glog.InfoDepth(1, args...) }

// Infof logs to the INFO log. Arguments are handled as with fmt.Printf.
func Infof(format string, args ...interface{}) { glog.Infof(format, args...) }

// Error logs to the ERROR and INFO logs. Arguments are handled as with
// fmt.Print.
func Error(args ...interface{}) { glog.ErrorDepth(1, args...) }

// Errorf logs to the ERROR and INFO logs. Arguments are handled as with
// fmt.Printf.
func Errorf(format string, args ...interface{}) { glog.Errorf(format, args...) }

// Fatal logs to the FATAL, ERROR and INFO logs, then calls os.Exit(255) by
// way of glog's own fatal handling.
func Fatal(args ...interface{}) { glog.FatalDepth(1, args...) }

// Fatalf logs to the FATAL, ERROR and INFO logs, then calls os.Exit(255).
func Fatalf(format string, args ...interface{}) { glog.Fatalf(format, args...) }

// FlushLog flushes all pending log I/O.
func FlushLog() { glog.Flush() }
