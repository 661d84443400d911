// Package xcond implements a condition variable for processes that share
// memory but have no native process-shared condition variable to lean on.
// The whole state is four words wide and placeable into a shared segment;
// waiting is cooperative busy-waiting with a scheduler yield, since the
// target environment offers no portable "block on this word" call.
//
// Within a single process prefer xsync.Cond, which blocks on a channel
// instead of spinning.
package xcond

import (
	"sync"
	"time"

	"github.com/NirvanaNimbusa/interprocess/xatomic"
	"github.com/NirvanaNimbusa/interprocess/xmutex"
)

// Command word states. Mutated only via compare-and-swap.
const (
	cmdSleep int32 = iota
	cmdNotifyOne
	cmdNotifyAll
)

// Now supplies the clock for deadline checks. Override for tests or to
// substitute a different time source.
var Now = time.Now

// Cond is a process-shared condition variable. The zero value is ready to
// use; place the struct into a shm segment to share it across processes.
//
// A notification is driven through the command word: a notifier arms it
// with notify-one or notify-all, and the spinning waiters race to consume
// it. The enter mutex serializes notifier transitions against waiter
// registration, the check mutex serializes which waiter consumes a
// notify-one. As with any condition variable, a wakeup does not imply the
// predicate holds; callers re-check it in a loop.
type Cond struct {
	command xatomic.Word
	waiters xatomic.Word
	enter   xmutex.Mutex
	check   xmutex.Mutex
}

func New() *Cond {
	return &Cond{}
}

// NotifyOne wakes exactly one currently waiting thread, if any. No fairness
// order is guaranteed among waiters.
func (c *Cond) NotifyOne() {
	c.notify(cmdNotifyOne)
}

// NotifyAll wakes every thread waiting at the moment of the call. Threads
// that start waiting afterward are not affected.
func (c *Cond) NotifyAll() {
	c.notify(cmdNotifyAll)
}

func (c *Cond) notify(cmd int32) {
	// While enter is held no waiter can register or unregister, so the
	// waiter count stays constant until the command is armed, and no second
	// notification can start before this one is fully consumed.
	c.enter.Lock()

	if c.waiters.Load() == 0 {
		c.enter.Unlock()
		measureNotify(cmd, true)
		return
	}

	c.command.CompareExchange(cmdSleep, cmd)
	measureNotify(cmd, false)
	// enter stays locked; the waiter that consumes the notification last
	// releases it.
}

// Wait atomically releases m and blocks until a notification arrives, then
// reacquires m before returning. m must be held on entry.
func (c *Cond) Wait(m sync.Locker) {
	c.timedWait(m, false, time.Time{})
}

// TimedWait is Wait with an absolute deadline. It returns true when woken
// by a notification and false on timeout; either way m is held again on
// return.
//
// Timeout is subordinate to notification: when the deadline expires while
// a notification transition is in flight, the waiter consumes the
// notification instead of reporting a timeout, so timeout latency may
// overrun the deadline under contention.
func (c *Cond) TimedWait(m sync.Locker, deadline time.Time) bool {
	return c.timedWait(m, true, deadline)
}

func (c *Cond) timedWait(m sync.Locker, hasDeadline bool, deadline time.Time) bool {
	if hasDeadline && !Now().Before(deadline) {
		// Not registered yet, and m was never released: the exit contract
		// (m held on return) already holds.
		measureWait(true)
		return false
	}

	// Register under enter so a notifier sees a stable waiter count, and
	// release the caller's mutex within the same critical section so the
	// two appear atomic to that notifier.
	c.enter.Lock()
	c.waiters.Add(1)
	m.Unlock()
	c.enter.Unlock()

	timedOut := false
	unlockEnter := false

spin:
	for {
		for c.command.Load() == cmdSleep {
			xatomic.Yield()

			if !hasDeadline || Now().Before(deadline) {
				continue
			}
			// Deadline passed. Only if enter can be taken is nobody mid
			// notification and the timeout genuine; otherwise keep
			// spinning and play the notification out.
			if c.enter.TryLock() {
				timedOut = true
				break
			}
		}

		if timedOut {
			c.waiters.Add(-1)
			unlockEnter = true
			break spin
		}

		// A notification is armed. check serializes consumption so a
		// notify-one releases exactly one of us.
		c.check.Lock()
		switch c.command.CompareExchange(cmdNotifyOne, cmdSleep) {
		case cmdSleep:
			// Another waiter already consumed a notify-one; back to sleep.
			c.check.Unlock()

		case cmdNotifyOne:
			// We won the swap and are the sole thread to exit.
			c.waiters.Add(-1)
			unlockEnter = true
			c.check.Unlock()
			break spin

		default:
			// Notify-all: everybody leaves, the last one out resets the
			// command and releases enter.
			if c.waiters.Add(-1) == 0 {
				c.command.CompareExchange(cmdNotifyAll, cmdSleep)
				unlockEnter = true
			}
			c.check.Unlock()
			break spin
		}
	}

	if unlockEnter {
		c.enter.Unlock()
	}

	m.Lock()
	measureWait(timedOut)
	return !timedOut
}
