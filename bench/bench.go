// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bench implements the thread-spawning benchmark harness described
// in spec.md §6: one goroutine per requested participant, each looping
// acquire/hold-for-cs-us/release against a shared lock for the run's
// duration, reporting how many critical sections each participant
// completed and how many of those releases left it banned.
package bench

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nviradia/scl/internal/timing"
	"github.com/nviradia/scl/internal/vlog"
	"github.com/nviradia/scl/kscl"
	"github.com/nviradia/scl/platform"
	"github.com/nviradia/scl/rwscl"
	"github.com/nviradia/scl/uscl"
)

// Participant describes one goroutine's share of a run: the nice value its
// weight is derived from, the length of its simulated critical section, and
// the think-time it spends outside the lock between acquisitions.
type Participant struct {
	Nice      int
	CSTime    time.Duration
	NonCSTime time.Duration
}

// Result is one participant's outcome, reported at the end of a run.
type Result struct {
	Nice        int
	Completions uint64
	Banned      uint64
}

// Locker is the subset of uscl.Mutex/kscl.Mutex's API the harness drives a
// single participant through. Each lock family's adapter in this package
// implements it against its own handle type.
type Locker interface {
	Acquire()
	Release()
	Banned() bool
}

// RunUSCL drives participants against a single uscl.Mutex for duration,
// returning one Result per participant in the order given. Any warmup
// period elapses before Completions/Banned start accumulating.
func RunUSCL(clock *platform.Clock, participants []Participant, warmup, duration time.Duration) []Result {
	m := uscl.NewMutex(clock)
	handles := make([]*uscl.ThreadHandle, len(participants))
	for i, p := range participants {
		handles[i] = m.Register(platform.WeightForNice(p.Nice))
	}
	run := func(i int) Locker { return uSCLAdapter{m: m, h: handles[i]} }
	return drive(participants, warmup, duration, run)
}

// RunKSCL drives participants against a single kscl.Mutex for duration.
func RunKSCL(clock *platform.Clock, participants []Participant, warmup, duration time.Duration) []Result {
	m := kscl.NewMutex(clock)
	waiters := make([]*kscl.Waiter, len(participants))
	for i := range participants {
		waiters[i] = m.Register()
	}
	run := func(i int) Locker { return kSCLAdapter{m: m, w: waiters[i]} }
	return drive(participants, warmup, duration, run)
}

// RunRWSCL drives reader participants and writer participants against a
// single rwscl.RWMutex for duration. writers is the number of leading
// entries in participants that should take the write lock instead of the
// read lock.
func RunRWSCL(clock *platform.Clock, topo *platform.Topology, participants []Participant, writers int, warmup, duration time.Duration) []Result {
	m := rwscl.NewRWMutex(clock, topo)
	run := func(i int) Locker {
		if i < writers {
			return rwSCLWriterAdapter{m: m}
		}
		return rwSCLReaderAdapter{m: m}
	}
	return drive(participants, warmup, duration, run)
}

func drive(participants []Participant, warmup, duration time.Duration, newLocker func(i int) Locker) []Result {
	results := make([]Result, len(participants))
	timer := timing.NewCompactTimer("bench")
	if warmup > 0 {
		timer.Push("warmup")
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	measureFrom := time.Now().Add(warmup)
	measureUntil := measureFrom.Add(duration)
	for i, p := range participants {
		wg.Add(1)
		go func(i int, p Participant) {
			defer wg.Done()
			l := newLocker(i)
			var completions, banned uint64
			for {
				select {
				case <-stop:
					results[i] = Result{Nice: p.Nice, Completions: completions, Banned: banned}
					return
				default:
				}
				l.Acquire()
				if p.CSTime > 0 {
					time.Sleep(p.CSTime)
				}
				l.Release()
				if now := time.Now(); now.After(measureFrom) && !now.After(measureUntil) {
					completions++
					if l.Banned() {
						banned++
					}
				}
				if p.NonCSTime > 0 {
					time.Sleep(p.NonCSTime)
				}
			}
		}(i, p)
	}

	if warmup > 0 {
		time.Sleep(warmup)
		timer.Pop()
	}
	timer.Push("steady-state")
	time.Sleep(duration)
	timer.Pop()
	close(stop)
	wg.Wait()
	timer.Finish()
	vlog.V(1).Infof("bench: run finished: %s", timer.Root().String())
	return results
}

// PrintResults writes one summary line per Result to w, matching spec.md
// §6's per-thread output contract.
func PrintResults(w io.Writer, results []Result) {
	for i, r := range results {
		fmt.Fprintf(w, "thread %d: nice=%d completions=%d banned=%d\n", i, r.Nice, r.Completions, r.Banned)
	}
}

type uSCLAdapter struct {
	m *uscl.Mutex
	h *uscl.ThreadHandle
}

func (a uSCLAdapter) Acquire()     { a.m.Acquire(a.h) }
func (a uSCLAdapter) Release()     { a.m.Release(a.h) }
func (a uSCLAdapter) Banned() bool { return a.h.IsBanned() }

type kSCLAdapter struct {
	m *kscl.Mutex
	w *kscl.Waiter
}

func (a kSCLAdapter) Acquire()     { a.m.Lock(a.w) }
func (a kSCLAdapter) Release()     { a.m.Unlock(a.w) }
func (a kSCLAdapter) Banned() bool { return a.w.IsBanned() }

type rwSCLWriterAdapter struct{ m *rwscl.RWMutex }

func (a rwSCLWriterAdapter) Acquire()     { a.m.WriterLock() }
func (a rwSCLWriterAdapter) Release()     { a.m.WriterUnlock() }
func (a rwSCLWriterAdapter) Banned() bool { return false }

type rwSCLReaderAdapter struct{ m *rwscl.RWMutex }

func (a rwSCLReaderAdapter) Acquire()     { a.m.ReaderLock() }
func (a rwSCLReaderAdapter) Release()     { a.m.ReaderUnlock() }
func (a rwSCLReaderAdapter) Banned() bool { return false }
