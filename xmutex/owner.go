package xmutex

import (
	"bytes"
	"os"
	"runtime"
	"strconv"
)

// callerID identifies the locking context across processes: pid in the high
// half, goroutine id in the low half. Goroutines may migrate between OS
// threads, so the goroutine id, not the thread id, is the unit of recursive
// ownership.
func callerID() uint64 {
	return uint64(os.Getpid())<<32 | uint64(goroutineID())&0xffffffff
}

// goroutineID parses the current goroutine id out of runtime.Stack. Slow
// (~microseconds), which is acceptable here: it runs once per
// RecursiveMutex operation, never inside a spin loop.
func goroutineID() int64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]

	// First line looks like "goroutine 123 [running]:".
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if idx := bytes.IndexByte(buf, ' '); idx > 0 {
		buf = buf[:idx]
	}

	id, err := strconv.ParseInt(string(buf), 10, 64)
	if err != nil {
		panic("xmutex: failed to parse goroutine id: " + err.Error())
	}
	return id
}
