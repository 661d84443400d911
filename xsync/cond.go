package xsync

import (
	"context"
	"sync"
)

// Cond is an in-process condition variable blocking on a channel instead of
// busy-waiting. When all parties live in one Go process this is the
// primitive to prefer over xcond.Cond, which exists for the cross-process
// case where no native blocking on shared memory is available.
type Cond struct {
	lock    sync.Locker
	notify  chan struct{}
	waiters int
}

func NewCond(lock sync.Locker) *Cond {
	return &Cond{
		lock:   lock,
		notify: make(chan struct{}, 1),
	}
}

// Wait must be called with the lock held. It releases the lock while
// blocked and holds it again on return. Returns false when ctx expired
// before a wakeup; a wakeup racing the expiry wins over the timeout.
func (w *Cond) Wait(ctx context.Context) bool {
	w.waiters++
	notify := w.notify
	w.lock.Unlock()

	woken := true
	select {
	case <-notify:
	case <-ctx.Done():
		select {
		case <-notify:
		default:
			woken = false
		}
	}

	w.lock.Lock()
	w.waiters--
	return woken
}

// Signal must be called with the lock held.
func (w *Cond) Signal() {
	if w.waiters > 0 {
		select {
		case w.notify <- struct{}{}:
		default:
		}
	}
}

// Broadcast must be called with the lock held. Current waiters hold the old
// channel and observe the close; waiters arriving later pick up the
// replacement and are unaffected.
func (w *Cond) Broadcast() {
	if w.waiters > 0 {
		close(w.notify)
		w.notify = make(chan struct{}, 1)
	}
}
