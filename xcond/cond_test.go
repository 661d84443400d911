package xcond

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/NirvanaNimbusa/interprocess/xmutex"
)

func waitForWaiters(t *testing.T, c *Cond, n int32) {
	deadline := time.Now().Add(5 * time.Second)
	for c.waiters.Load() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d waiters, got %d", n, c.waiters.Load())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWaitNotifyOne(t *testing.T) {
	var mu xmutex.Mutex
	c := New()

	woken := make(chan struct{})
	go func() {
		mu.Lock()
		c.Wait(&mu)
		mu.Unlock()
		close(woken)
	}()

	waitForWaiters(t, c, 1)
	c.NotifyOne()
	<-woken

	assert.Equal(t, int32(0), c.waiters.Load())
	assert.Equal(t, cmdSleep, c.command.Load())
}

func TestNotifyAllWakesEveryone(t *testing.T) {
	var mu xmutex.Mutex
	c := New()

	var wg sync.WaitGroup
	var woken atomic.Int32
	for idx := 0; idx < 3; idx++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mu.Lock()
			c.Wait(&mu)
			mu.Unlock()
			woken.Add(1)
		}()
	}

	waitForWaiters(t, c, 3)
	c.NotifyAll()
	wg.Wait()

	assert.Equal(t, int32(3), woken.Load())
	assert.Equal(t, int32(0), c.waiters.Load())
	assert.Equal(t, cmdSleep, c.command.Load())
}

func TestNotifyWithoutWaiters(t *testing.T) {
	c := New()

	c.NotifyOne()
	c.NotifyAll()

	assert.Equal(t, cmdSleep, c.command.Load())
	// The no-op path must leave enter released.
	assert.True(t, c.enter.TryLock())
	c.enter.Unlock()
}

func TestNotifyOneWakesExactlyOne(t *testing.T) {
	var mu xmutex.Mutex
	c := New()

	var wg sync.WaitGroup
	var woken atomic.Int32
	for idx := 0; idx < 5; idx++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mu.Lock()
			c.Wait(&mu)
			mu.Unlock()
			woken.Add(1)
		}()
	}

	waitForWaiters(t, c, 5)
	c.NotifyOne()

	waitForWaiters(t, c, 4)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), woken.Load())
	assert.Equal(t, int32(4), c.waiters.Load())
	assert.Equal(t, cmdSleep, c.command.Load())

	c.NotifyAll()
	wg.Wait()
	assert.Equal(t, int32(5), woken.Load())
	assert.Equal(t, int32(0), c.waiters.Load())
}

func TestTimedWaitPastDeadline(t *testing.T) {
	var mu xmutex.Mutex
	c := New()

	mu.Lock()
	result := c.TimedWait(&mu, time.Now().Add(-time.Second))
	assert.False(t, result)

	// Never registered, mutex still held.
	assert.Equal(t, int32(0), c.waiters.Load())
	assert.False(t, mu.TryLock())
	mu.Unlock()
}

func TestTimedWaitTimeout(t *testing.T) {
	var mu xmutex.Mutex
	c := New()

	mu.Lock()
	started := time.Now()
	result := c.TimedWait(&mu, started.Add(10*time.Millisecond))
	elapsed := time.Since(started)

	assert.False(t, result)
	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
	assert.Equal(t, int32(0), c.waiters.Load())
	assert.Equal(t, cmdSleep, c.command.Load())

	// The external mutex must be ours again.
	assert.False(t, mu.TryLock())
	mu.Unlock()
}

func TestTimedWaitNotified(t *testing.T) {
	var mu xmutex.Mutex
	c := New()

	result := make(chan bool)
	go func() {
		mu.Lock()
		r := c.TimedWait(&mu, time.Now().Add(5*time.Second))
		mu.Unlock()
		result <- r
	}()

	waitForWaiters(t, c, 1)
	c.NotifyOne()

	assert.True(t, <-result)
	assert.Equal(t, int32(0), c.waiters.Load())
	assert.Equal(t, cmdSleep, c.command.Load())
}

func TestTimeoutYieldsToNotification(t *testing.T) {
	var mu xmutex.Mutex
	c := New()

	result := make(chan bool)
	go func() {
		mu.Lock()
		r := c.TimedWait(&mu, time.Now().Add(30*time.Millisecond))
		mu.Unlock()
		result <- r
	}()

	waitForWaiters(t, c, 1)

	// Play a notifier that has begun its transition: enter is held, the
	// command not yet armed. The deadline passes meanwhile, but the waiter
	// must not report a timeout while the transition is in flight.
	c.enter.Lock()
	time.Sleep(60 * time.Millisecond)
	select {
	case <-result:
		t.Fatal("Waiter timed out during an in-flight notification")
	default:
	}

	c.command.CompareExchange(cmdSleep, cmdNotifyOne)
	assert.True(t, <-result)
	assert.Equal(t, int32(0), c.waiters.Load())
	assert.Equal(t, cmdSleep, c.command.Load())
}

func TestWaitWithSyncMutex(t *testing.T) {
	var mu sync.Mutex
	c := New()

	woken := make(chan struct{})
	go func() {
		mu.Lock()
		c.Wait(&mu)
		mu.Unlock()
		close(woken)
	}()

	waitForWaiters(t, c, 1)
	c.NotifyAll()
	<-woken
}

func TestHighLoad(t *testing.T) {
	var (
		mu       xmutex.Mutex
		c        = New()
		wg       sync.WaitGroup
		capacity = 2000
		started  = time.Now()
	)

	var stop atomic.Bool
	notifierDone := make(chan struct{})

	// Notifier: random mix of one-shot and broadcast wakeups.
	go func() {
		defer close(notifierDone)
		for !stop.Load() {
			time.Sleep(time.Duration(rand.Int63n(int64(200 * time.Microsecond))))
			if rand.Intn(2) == 0 {
				c.NotifyOne()
			} else {
				c.NotifyAll()
			}
		}
	}()

	var timeouts atomic.Int32
	for i := 0; i < capacity; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mu.Lock()
			deadline := time.Now().Add(time.Duration(rand.Int63n(int64(2 * time.Millisecond))))
			if !c.TimedWait(&mu, deadline) {
				timeouts.Add(1)
			}
			mu.Unlock()
		}()
		time.Sleep(time.Duration(rand.Int63n(int64(50 * time.Microsecond))))
	}
	wg.Wait()
	stop.Store(true)
	<-notifierDone

	assert.Equal(t, int32(0), c.waiters.Load())
	assert.Equal(t, cmdSleep, c.command.Load())
	// Nobody left holding the protocol locks.
	assert.True(t, c.enter.TryLock())
	c.enter.Unlock()
	assert.True(t, c.check.TryLock())
	c.check.Unlock()

	fmt.Println("Load test done,", timeouts.Load(), "timeouts out of", capacity, "duration", time.Since(started))
}
