package xmutex

import (
	"go.uber.org/zap"

	"github.com/NirvanaNimbusa/interprocess/xatomic"
)

const noOwner uint64 = 0

// RecursiveMutex is a pass-through over Mutex that allows the owning
// goroutine to lock it repeatedly. The zero value is an unlocked mutex.
//
// The owner slot records pid + goroutine id, so recursion works across
// processes sharing the memory but stays scoped to a single goroutine.
// Keep the struct 8-byte aligned when placing it into a shared segment.
type RecursiveMutex struct {
	owner xatomic.Word64
	mu    Mutex
	depth int32
}

func (m *RecursiveMutex) Lock() {
	id := callerID()
	if m.owner.Load() == id {
		m.depth++
		return
	}

	m.mu.Lock()
	m.owner.Store(id)
	m.depth = 1
}

func (m *RecursiveMutex) TryLock() bool {
	id := callerID()
	if m.owner.Load() == id {
		m.depth++
		return true
	}

	if !m.mu.TryLock() {
		return false
	}
	m.owner.Store(id)
	m.depth = 1
	return true
}

func (m *RecursiveMutex) Unlock() {
	if m.owner.Load() != callerID() {
		zap.L().Error("Unlock of recursive mutex by non-owner")
		panic("xmutex: unlock of recursive mutex by non-owner")
	}

	m.depth--
	if m.depth == 0 {
		m.owner.Store(noOwner)
		m.mu.Unlock()
	}
}
