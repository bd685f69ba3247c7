// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package platform provides the machine primitives that the scheduler-
// cooperative locks in uscl, rwscl and kscl are built on: a monotonic cycle
// clock, the scheduler nice-to-weight table, single-address futex-style
// parking, and core/NUMA topology.
package platform

import (
	"errors"
	"runtime"
	"sync/atomic"
	"time"
)

// Cycles is a monotonically non-decreasing machine timestamp. It plays the
// role of the rdtsc() cycle count in the original C implementation.
type Cycles uint64

// ErrCyclesPerUSUnset is returned by NewClock when cyclesPerUS is zero. The
// original C sources fail the build with "#error Must define CYCLE_PER_US";
// Go has no build-time equivalent, so callers must check this at startup.
var ErrCyclesPerUSUnset = errors.New("platform: CyclesPerUS must be configured (nonzero) before use")

// DefaultCyclesPerUS is a nominal rate (1 cycle == 1ns) for callers, like
// the benchmark harness, that have no calibrated CYCLE_PER_US of their own
// and only need the lock algorithms' relative-time formulas to behave
// sensibly, not to track real CPU cycles.
const DefaultCyclesPerUS = 1000

// Clock converts between wall-clock time and Cycles at a fixed, configured
// rate. Real RDTSC/RDTSCP counters run at a CPU-model-specific frequency
// that must be calibrated per machine; this realization instead derives
// Cycles from the runtime's monotonic clock and a caller-supplied
// CyclesPerUS, which keeps every formula in the lock algorithms (all
// expressed relative to CYCLE_PER_US/MS/S) unchanged while remaining
// portable to any GOARCH/GOOS pair Go itself supports.
type Clock struct {
	CyclesPerUS uint64
}

// NewClock validates cyclesPerUS and returns a ready Clock.
func NewClock(cyclesPerUS uint64) (*Clock, error) {
	if cyclesPerUS == 0 {
		return nil, ErrCyclesPerUSUnset
	}
	return &Clock{CyclesPerUS: cyclesPerUS}, nil
}

// MustNewClock is NewClock but panics on error; convenient for package-level
// default clocks in tests and the benchmark harness.
func MustNewClock(cyclesPerUS uint64) *Clock {
	c, err := NewClock(cyclesPerUS)
	if err != nil {
		panic(err)
	}
	return c
}

// CyclesPerMS and CyclesPerS mirror CYCLE_PER_MS / CYCLE_PER_S from
// u-scl/common.h and RW-SCL/common.h.
func (c *Clock) CyclesPerMS() uint64 { return c.CyclesPerUS * 1000 }
func (c *Clock) CyclesPerS() uint64  { return c.CyclesPerMS() * 1000 }

var epoch = time.Now()

// Now reads the clock without an explicit ordering fence. Cheap; acceptable
// inside bounded spin loops per the design note on fenced vs. unfenced
// timestamps.
func (c *Clock) Now() Cycles {
	return c.fromDuration(time.Since(epoch))
}

// NowFenced reads the clock with a preceding atomic operation that acts as
// a serializing point against concurrent writes to shared lock state, the
// Go analogue of using rdtscp (or cpuid;rdtsc) instead of a bare rdtsc at
// acquire entry and deadline checks.
func (c *Clock) NowFenced() Cycles {
	var fence atomic.Uint32
	fence.Add(1) // full memory barrier on all Go-supported architectures
	return c.fromDuration(time.Since(epoch))
}

func (c *Clock) fromDuration(d time.Duration) Cycles {
	return Cycles(uint64(d) * c.CyclesPerUS / uint64(time.Microsecond))
}

// CyclesFor converts a time.Duration to the equivalent Cycles at this
// clock's rate.
func (c *Clock) CyclesFor(d time.Duration) Cycles {
	return c.fromDuration(d)
}

// DurationOf converts a Cycles count back to a time.Duration.
func (c *Clock) DurationOf(cy Cycles) time.Duration {
	return time.Duration(uint64(cy) * uint64(time.Microsecond) / c.CyclesPerUS)
}

// SleepFor is a coarse sleep; the caller is responsible for recomputing
// time after waking, as spurious early/late wakeups are allowed.
func (c *Clock) SleepFor(d time.Duration) {
	time.Sleep(d)
}

// Yield cooperatively yields the processor to another goroutine, the Go
// analogue of sched_yield()/cond_resched().
func Yield() {
	runtime.Gosched()
}
