package xmutex

import (
	"go.uber.org/zap"

	"github.com/NirvanaNimbusa/interprocess/xatomic"
)

const (
	stateUnlocked int32 = 0
	stateLocked   int32 = 1
)

// Mutex is an exclusive lock over a single atomic word, safe across
// processes mapping the same memory. The zero value is an unlocked mutex.
//
// Acquisition is a test-and-set spin with a scheduler yield, so the lock is
// usable on hosts that offer shared memory but no cross-process blocking
// primitive. Ownership is not tracked: any thread of any attached process
// may unlock it, which the condition variable relies on for its enter-lock
// handoff.
type Mutex struct {
	state xatomic.Word
}

func (m *Mutex) Lock() {
	for !m.state.CompareAndSwap(stateUnlocked, stateLocked) {
		xatomic.Yield()
	}
}

func (m *Mutex) TryLock() bool {
	return m.state.CompareAndSwap(stateUnlocked, stateLocked)
}

// Unlock releases the mutex. Unlocking an unlocked mutex means some
// participant broke the locking protocol; the shared state can no longer be
// trusted, so this is treated as unrecoverable.
func (m *Mutex) Unlock() {
	if m.state.CompareExchange(stateLocked, stateUnlocked) != stateLocked {
		zap.L().Error("Unlock of unlocked mutex")
		panic("xmutex: unlock of unlocked mutex")
	}
}
