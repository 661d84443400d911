//go:build linux

// Package xpipe is a byte pipe over a shared-memory ring buffer. Both ends
// attach to the same shm segment and talk through xmutex/xcond, so reader
// and writer may live in different processes.
package xpipe

import (
	"fmt"
	"os"
	"time"
	"unsafe"

	"github.com/NirvanaNimbusa/interprocess/shm"
	"github.com/NirvanaNimbusa/interprocess/xcond"
	"github.com/NirvanaNimbusa/interprocess/xmutex"
)

// state lives inside the shared segment. head/used/closed are guarded by mu.
type state struct {
	mu     xmutex.Mutex
	rcond  xcond.Cond
	wcond  xcond.Cond
	head   int32
	used   int32
	closed int32
}

// Pipe is one end of the shared pipe. Deadlines are local to the end that
// set them, like on a net.Conn.
type Pipe struct {
	state *state
	data  []byte

	rdeadline time.Time
	wdeadline time.Time
}

// New lays the pipe into the segment: the state struct first, every
// remaining byte as ring storage. Each attached process calls New on its
// own mapping of the same segment; the layout is deterministic, so the
// ends agree on it without any handshake.
func New(seg *shm.Segment) (*Pipe, error) {
	st, err := shm.Place[state](seg)
	if err != nil {
		return nil, err
	}

	size := seg.Remaining()
	if size < 1 {
		return nil, fmt.Errorf("segment too small for a pipe buffer")
	}
	p, err := seg.Alloc(size, 1)
	if err != nil {
		return nil, err
	}

	return &Pipe{
		state: st,
		data:  unsafe.Slice((*byte)(p), size),
	}, nil
}

func (p *Pipe) Available() int {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()

	return int(p.state.used)
}

func (p *Pipe) Read(b []byte) (int, error) {
	st := p.state
	st.mu.Lock()
	defer st.mu.Unlock()

	if isDeadlineHappened(&p.rdeadline) {
		return 0, os.ErrDeadlineExceeded
	}
	if len(b) == 0 {
		return 0, nil
	}

	for st.used == 0 {
		if st.closed != 0 {
			return 0, os.ErrClosed
		}
		if err := p.wait(&st.rcond, &p.rdeadline); err != nil {
			return 0, err
		}
	}

	n := min(len(b), int(st.used))
	head := int(st.head)
	first := min(n, len(p.data)-head)
	copy(b[:first], p.data[head:head+first])
	copy(b[first:n], p.data[:n-first])

	st.head = int32((head + n) % len(p.data))
	st.used -= int32(n)
	st.wcond.NotifyAll()

	return n, nil
}

func (p *Pipe) Write(b []byte) (n int, err error) {
	st := p.state
	st.mu.Lock()
	defer st.mu.Unlock()

	if isDeadlineHappened(&p.wdeadline) {
		return 0, os.ErrDeadlineExceeded
	}

	for len(b) > 0 {
		if st.closed != 0 {
			return n, os.ErrClosed
		}

		spaceleft := len(p.data) - int(st.used)
		if spaceleft == 0 {
			if err := p.wait(&st.wcond, &p.wdeadline); err != nil {
				return n, err
			}
			continue
		}

		chunk := min(len(b), spaceleft)
		tail := (int(st.head) + int(st.used)) % len(p.data)
		first := min(chunk, len(p.data)-tail)
		copy(p.data[tail:tail+first], b[:first])
		copy(p.data[:chunk-first], b[first:chunk])

		st.used += int32(chunk)
		b = b[chunk:]
		n += chunk
		st.rcond.NotifyAll()
	}

	return n, nil
}

func (p *Pipe) Close() error {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()

	return p.close()
}

func (p *Pipe) SetDeadline(t time.Time) error {
	p.state.mu.Lock()
	p.rdeadline = t
	p.wdeadline = t
	p.state.mu.Unlock()

	p.kick()
	return nil
}

func (p *Pipe) SetReadDeadline(t time.Time) error {
	p.state.mu.Lock()
	p.rdeadline = t
	p.state.mu.Unlock()

	p.kick()
	return nil
}

func (p *Pipe) SetWriteDeadline(t time.Time) error {
	p.state.mu.Lock()
	p.wdeadline = t
	p.state.mu.Unlock()

	p.kick()
	return nil
}

// kick wakes blocked operations so they re-evaluate their deadline.
func (p *Pipe) kick() {
	p.state.rcond.NotifyAll()
	p.state.wcond.NotifyAll()
}

func isDeadlineHappened(deadline *time.Time) bool {
	if deadline.IsZero() {
		return false
	}

	return time.Now().After(*deadline)
}

func (p *Pipe) close() error {
	st := p.state
	if st.closed != 0 {
		return os.ErrClosed
	}
	st.closed = 1
	st.rcond.NotifyAll()
	st.wcond.NotifyAll()

	return nil
}

// wait blocks on trigger until woken or the deadline passes. Called with
// the state mutex held; holds it again on return.
func (p *Pipe) wait(trigger *xcond.Cond, deadline *time.Time) error {
	if isDeadlineHappened(deadline) {
		return os.ErrDeadlineExceeded
	}

	if deadline.IsZero() {
		trigger.Wait(&p.state.mu)
		return nil
	}
	if !trigger.TimedWait(&p.state.mu, *deadline) {
		return os.ErrDeadlineExceeded
	}

	return nil
}
