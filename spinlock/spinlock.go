// Package spinlock provides a test-and-set lock for short critical sections.
package spinlock

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

const (
	activeSpin    = 4
	activeSpinCnt = 30
)

// Lock is a spin lock. The zero value is unlocked. It sits on its own cache
// line so that spinning cores do not contend with neighbouring fields.
type Lock struct {
	_     cpu.CacheLinePad
	state atomic.Uint32
	_     cpu.CacheLinePad
}

var _ interface {
	Lock()
	Unlock()
} = (*Lock)(nil)

// Lock spins until the lock is acquired. After a few rounds of busy waiting
// it yields the processor between attempts.
func (l *Lock) Lock() {
	if l.state.CompareAndSwap(0, 1) {
		return
	}
	for spin := 0; ; spin++ {
		if spin < activeSpin {
			for i := 0; i < activeSpinCnt; i++ {
				if l.state.Load() == 0 {
					break
				}
			}
		} else {
			runtime.Gosched()
		}
		if l.state.Load() == 0 && l.state.CompareAndSwap(0, 1) {
			return
		}
	}
}

// TryLock acquires the lock if it is free.
func (l *Lock) TryLock() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Unlock releases the lock. Unlocking an unlocked Lock panics.
func (l *Lock) Unlock() {
	if !l.state.CompareAndSwap(1, 0) {
		panic("spinlock: unlock of unlocked lock")
	}
}

// Held reports whether the lock is currently held by someone.
func (l *Lock) Held() bool {
	return l.state.Load() == 1
}
