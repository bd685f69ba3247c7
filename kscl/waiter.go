// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kscl

// dll is a doubly-linked list node, ported from nsync's dll (see
// nsync/waiter.go in the retrieval pack). k-scl uses it for the lock's
// global waiter list that original_source/k-scl/fairlock.c threads through
// struct fairlock.waiters, so the current holder's Unlock can walk it
// backwards to reclaim long-idle waiters.
type dll struct {
	next *dll
	prev *dll
	elem *Waiter // the Waiter this node is embedded in, or nil for a list head
}

// makeEmpty makes list *l an empty list (a list head).
func (l *dll) makeEmpty() {
	l.next = l
	l.prev = l
}

// insertAfter inserts e into the list right after p. e must not already be
// in a list.
func (e *dll) insertAfter(p *dll) {
	e.next = p.next
	e.prev = p
	e.next.prev = e
	e.prev.next = e
}

// remove removes e from whatever list it is currently in.
func (e *dll) remove() {
	e.next.prev = e.prev
	e.prev.next = e.next
	e.next = nil
	e.prev = nil
}

// Waiter is a k-scl lock's per-caller record (struct fairlock_waiter in the
// original), returned by Mutex.Register. The kernel variant looks this up
// by hashing the calling thread's pid; Go goroutines have no equivalent
// stable identifier, so callers hold their own *Waiter and pass it to every
// Lock/TryLock/Unlock call, exactly as uscl.ThreadHandle stands in for
// pthread_getspecific there.
type Waiter struct {
	q dll

	bannedUntil uint64
	startTicks  uint64
	endTicks    uint64
	banned      bool // set by Unlock; reported to callers via IsBanned

	// inList reports whether q is currently linked into the lock's
	// waiters list. A Waiter starts out not in the list; the first
	// Lock/TryLock call after Register (or after idle reclamation removes
	// it) inserts it and resets its banned/start/end history, mirroring
	// create_waiter's "not found by pid, allocate fresh" branch.
	inList bool
}
