package xatomic

import (
	"runtime"
	"sync/atomic"
)

// Word is a 32-bit atomic cell. Unlike the sync/atomic wrapper types it is
// meant to live anywhere, including inside a struct placed into an mmap'd
// MAP_SHARED region, so that processes mapping the same page coordinate
// through it.
type Word struct {
	v int32
}

func (w *Word) Load() int32 {
	return atomic.LoadInt32(&w.v)
}

func (w *Word) Store(v int32) {
	atomic.StoreInt32(&w.v, v)
}

// Add atomically adds delta and returns the new value.
func (w *Word) Add(delta int32) int32 {
	return atomic.AddInt32(&w.v, delta)
}

func (w *Word) CompareAndSwap(old, new int32) bool {
	return atomic.CompareAndSwapInt32(&w.v, old, new)
}

// CompareExchange is CompareAndSwap reporting the previous value instead of
// a success flag. Callers that need to tell apart more than two states of
// the cell in a single atomic step use this form.
func (w *Word) CompareExchange(old, new int32) int32 {
	for {
		cur := atomic.LoadInt32(&w.v)
		if cur != old {
			return cur
		}
		if atomic.CompareAndSwapInt32(&w.v, old, new) {
			return old
		}
	}
}

// Word64 is a 64-bit atomic cell with the same placement properties as Word.
// It must be 8-byte aligned; keep it at an aligned offset when embedding.
type Word64 struct {
	v uint64
}

func (w *Word64) Load() uint64 {
	return atomic.LoadUint64(&w.v)
}

func (w *Word64) Store(v uint64) {
	atomic.StoreUint64(&w.v, v)
}

func (w *Word64) CompareAndSwap(old, new uint64) bool {
	return atomic.CompareAndSwapUint64(&w.v, old, new)
}

// Yield hints the scheduler to run somebody else. Every spin loop in this
// module calls it once per iteration.
func Yield() {
	runtime.Gosched()
}
