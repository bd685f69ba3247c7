// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package uscl implements the u-scl fairlock: a user-space weighted-fair
// mutex built on a modified MCS queue, a time-sliced "owner reentry" fast
// path, and futex-based successor wakeups.
//
// Ported from original_source/u-scl/fairlock.h, with the MCS-style
// spinlock-free queueing discipline and cache-line layout borrowed from
// nsync.Mu (see nsync/mu.go in the retrieval pack), which solves the
// closely related problem of a queued, futex-backed mutex in Go.
package uscl

import (
	"sync/atomic"
	"time"

	"github.com/nviradia/scl/internal/vlog"
	"github.com/nviradia/scl/platform"
)

// Policy constants from spec.md §3/§6.
const (
	// FairlockGranularity is the length of a slice once a thread becomes
	// the holder: FAIRLOCK_GRANULARITY in the original source.
	FairlockGranularity = 2 * time.Millisecond

	// SleepGranularity bounds how coarsely a thread sleeps while serving a
	// ban or waiting out another holder's slice before switching to a
	// spin-then-yield loop.
	SleepGranularity = 8 * time.Microsecond

	// SpinLimit bounds the number of busy-spin iterations at any spin site
	// before falling back to platform.Yield().
	SpinLimit = 20

	// MaxBanDuration caps banned_until-now per the design note on banned-
	// until overflow, preventing pathological stalls after bursts of
	// severe weight disparity.
	MaxBanDuration = time.Second
)

type qstate uint32

const (
	stateInit qstate = iota
	stateNext
	stateRunnable
	stateRunning
)

// queueNode is one MCS-style waiter record, created fresh on each Acquire
// call that must queue. Fields are cache-line padded as in
// original_source/u-scl/fairlock.h's qnode_t
// (__attribute__((aligned(CACHELINE)))). state is a plain uint32 (not
// atomic.Uint32) manipulated through the atomic package so its address can
// be handed to platform.FutexWait/FutexWake, mirroring how the C futex(2)
// wrapper operates directly on the qnode's state word.
type queueNode struct {
	state uint32
	_     [60]byte
	next  atomic.Pointer[queueNode]
	_     [56]byte
}

func (n *queueNode) load() qstate             { return qstate(atomic.LoadUint32(&n.state)) }
func (n *queueNode) store(s qstate)           { atomic.StoreUint32(&n.state, uint32(s)) }
func (n *queueNode) cas(old, new qstate) bool {
	return atomic.CompareAndSwapUint32(&n.state, uint32(old), uint32(new))
}

// ThreadHandle is a u-scl fairlock's per-thread-per-lock record
// (flthread_info_t in the original). It is the Go analogue of the value
// returned by pthread_getspecific(lock->flthread_info_key): since Go has no
// portable thread-local storage keyed by a lock-owned key, Register returns
// this handle explicitly and the caller threads it through Acquire/Release,
// one per goroutine that uses the lock.
type ThreadHandle struct {
	weight      uint32
	slice       atomic.Uint64 // the slice deadline installed the last time this thread ran
	startTicks  atomic.Uint64
	bannedUntil atomic.Uint64
	banned      atomic.Bool
}

// Mutex is a u-scl weighted-fair mutex. The zero value is not usable; use
// NewMutex.
type Mutex struct {
	clock *platform.Clock

	qtail atomic.Pointer[queueNode]
	_     [56]byte
	qnext atomic.Pointer[queueNode]
	_     [56]byte
	slice atomic.Uint64
	_     [56]byte
	// sliceValid doubles as the futex word waiters park on while a slice
	// is outstanding (lock.slice_valid in the original). Plain uint32 so
	// its address can be passed to platform.FutexWait/FutexWake.
	sliceValid uint32
	_          [60]byte

	totalWeight atomic.Uint64

	// sentinel stands in for flqnode(lock): a placeholder occupying the
	// queue position of the current holder, so an arriving waiter can
	// distinguish "lock is free" from "lock is held, but has no queued
	// successor yet" using a single CAS on qtail. See the design note on
	// sentinel-node aliasing.
	sentinel *queueNode
}

// NewMutex creates a u-scl fairlock driven by clock.
func NewMutex(clock *platform.Clock) *Mutex {
	return &Mutex{clock: clock, sentinel: &queueNode{}}
}

// Register must be called once per goroutine that will use m, before its
// first Acquire. weight==0 derives the weight from the calling OS thread's
// scheduling priority (mutex_thread_init's "0 weight ⇒ derive from nice").
func (m *Mutex) Register(weight uint32) *ThreadHandle {
	if weight == 0 {
		weight = platform.WeightForCurrentThread()
	}
	h := &ThreadHandle{weight: weight}
	h.bannedUntil.Store(uint64(m.clock.Now()))
	m.totalWeight.Add(uint64(weight))
	return h
}

// IsBanned reports whether h's most recent Release left it serving a ban
// (i.e. whether its next Acquire will block in serveBan before it can
// queue).
func (h *ThreadHandle) IsBanned() bool { return h.banned.Load() }

// Destroy marks the lock as no longer usable. Per spec.md §7, no
// acquire/release after Destroy is checked for; this exists to mirror
// fairlock_destroy in the external interface table.
func (m *Mutex) Destroy() {}

// Acquire blocks until the calling thread (identified by h) holds m.
func (m *Mutex) Acquire(h *ThreadHandle) {
	if m.tryReenter(h) {
		return
	}
	m.serveBan(h)

	n := new(queueNode)
	m.enqueue(n)
	m.waitForSliceExpiry()
	m.becomeRunning(n)
	m.installSliceAndWake(h, n)
}

// tryReenter implements Step A: if the calling thread is the current
// slice's owner and the slice hasn't expired, it reenters without
// allocating a queue node or refreshing the slice.
func (m *Mutex) tryReenter(h *ThreadHandle) bool {
	if atomic.LoadUint32(&m.sliceValid) == 0 {
		return false
	}
	currSlice := platform.Cycles(m.slice.Load())
	if currSlice != platform.Cycles(h.slice.Load()) {
		return false
	}
	now := m.clock.Now()
	if now >= currSlice {
		return false
	}

	succ := m.qnext.Load()
	if succ == nil {
		if m.qtail.CompareAndSwap(nil, m.sentinel) {
			h.startTicks.Store(uint64(now))
			return true
		}
		attempts := uint(0)
		for {
			now = m.clock.Now()
			succ = m.qnext.Load()
			if now >= currSlice || succ != nil {
				break
			}
			attempts = spinThenYield(attempts, SpinLimit)
		}
		if now >= currSlice {
			// Let the successor invalidate the slice; it expires
			// naturally, no wakeup required.
			return false
		}
	}
	if succ == nil {
		return false
	}
	// If state < RUNNABLE, it can't become RUNNABLE without someone
	// releasing the lock; since no one holds it, there's no race.
	if succ.load() < stateRunnable || succ.cas(stateRunnable, stateNext) {
		h.startTicks.Store(uint64(now))
		return true
	}
	return false
}

// serveBan implements Step B.
func (m *Mutex) serveBan(h *ThreadHandle) {
	if !h.banned.Load() {
		return
	}
	now := m.clock.Now()
	bannedUntil := platform.Cycles(h.bannedUntil.Load())
	if now >= bannedUntil {
		return
	}
	vlog.V(1).Infof("uscl: serving ban for %s", m.clock.DurationOf(bannedUntil-now))

	for {
		now = m.clock.Now()
		if now >= bannedUntil {
			break
		}
		remaining := m.clock.DurationOf(bannedUntil - now)
		if remaining <= SleepGranularity {
			break
		}
		m.clock.SleepFor(remaining - remaining%SleepGranularity)
	}
	attempts := uint(0)
	for m.clock.Now() < bannedUntil {
		attempts = spinThenYield(attempts, SpinLimit)
	}
}

// enqueue implements Step C: publish n as the new queue tail, linking it
// after whatever the CAS observed as the previous tail.
func (m *Mutex) enqueue(n *queueNode) {
	for {
		prev := m.qtail.Load()
		if !m.qtail.CompareAndSwap(prev, n) {
			continue
		}
		switch {
		case prev == nil:
			// Queue was empty.
			n.store(stateRunnable)
			m.qnext.Store(n)
		case prev == m.sentinel:
			// A holder exists but has no queued successor yet.
			n.store(stateNext)
			prev.next.Store(n)
		default:
			prev.next.Store(n)
			for n.load() == stateInit {
				platform.FutexWait(&n.state, uint32(stateInit), 0)
			}
		}
		return
	}
}

// waitForSliceExpiry implements Step D: park on the slice-valid futex word
// until the current holder's slice expires.
func (m *Mutex) waitForSliceExpiry() {
	for {
		sliceValid := atomic.LoadUint32(&m.sliceValid)
		if sliceValid == 0 {
			break
		}
		currSlice := platform.Cycles(m.slice.Load())
		now := m.clock.Now()
		if now+m.clock.CyclesFor(SleepGranularity) >= currSlice {
			break
		}
		remaining := m.clock.DurationOf(currSlice - now)
		platform.FutexWait(&m.sliceValid, 1, remaining)
	}
	if atomic.LoadUint32(&m.sliceValid) != 0 {
		attempts := uint(0)
		for atomic.LoadUint32(&m.sliceValid) != 0 && m.clock.Now() < platform.Cycles(m.slice.Load()) {
			attempts = spinThenYield(attempts, SpinLimit)
		}
		atomic.StoreUint32(&m.sliceValid, 0)
	}
}

// becomeRunning implements Step E: spin-then-yield until this node is
// RUNNABLE, then claim it by CASing to RUNNING.
func (m *Mutex) becomeRunning(n *queueNode) {
	attempts := uint(0)
	for !(n.load() == stateRunnable && n.cas(stateRunnable, stateRunning)) {
		attempts = spinThenYield(attempts, SpinLimit)
	}
}

// installSliceAndWake implements Step F.
func (m *Mutex) installSliceAndWake(h *ThreadHandle, n *queueNode) {
	succ := n.next.Load()
	if succ == nil {
		m.qnext.Store(nil)
		if !m.qtail.CompareAndSwap(n, m.sentinel) {
			attempts := uint(0)
			for {
				succ = n.next.Load()
				if succ != nil {
					break
				}
				attempts = spinThenYield(attempts, SpinLimit)
			}
			m.qnext.Store(succ)
		}
	} else {
		m.qnext.Store(succ)
	}

	now := m.clock.Now()
	h.startTicks.Store(uint64(now))
	newSlice := now + m.clock.CyclesFor(FairlockGranularity)
	h.slice.Store(uint64(newSlice))
	m.slice.Store(uint64(newSlice))
	atomic.StoreUint32(&m.sliceValid, 1)

	if succ != nil {
		succ.store(stateNext)
		platform.FutexWake(&succ.state, 1)
	}
}

// Release releases m. Precondition: the calling thread, identified by h,
// currently holds m.
func (m *Mutex) Release(h *ThreadHandle) {
	succ := m.qnext.Load()
	if succ == nil {
		if !m.qtail.CompareAndSwap(m.sentinel, nil) {
			attempts := uint(0)
			for {
				succ = m.qnext.Load()
				if succ != nil {
					break
				}
				attempts = spinThenYield(attempts, SpinLimit)
			}
		}
	}
	if succ != nil {
		succ.store(stateRunnable)
	}

	now := m.clock.Now()
	cs := now - platform.Cycles(h.startTicks.Load())
	totalWeight := m.totalWeight.Load()
	share := platform.Cycles(uint64(cs) * (totalWeight / uint64(h.weight)))
	newBan := platform.Cycles(h.bannedUntil.Load()) + share
	if banCeiling := now + m.clock.CyclesFor(MaxBanDuration); newBan > banCeiling {
		newBan = banCeiling
	}
	h.bannedUntil.Store(uint64(newBan))
	banned := now < newBan
	h.banned.Store(banned)

	if banned {
		if atomic.CompareAndSwapUint32(&m.sliceValid, 1, 0) {
			platform.FutexWake(&m.sliceValid, 1)
		}
	}

	vlog.V(2).Infof("uscl: release cs=%s banned=%v", m.clock.DurationOf(cs), banned)
}
