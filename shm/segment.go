//go:build linux

// Package shm maps named shared-memory segments and places synchronization
// primitives into them. Segments are POSIX shared-memory objects living in
// tmpfs; any process that knows the name can attach.
package shm

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const shmDir = "/dev/shm/"

type Segment struct {
	name string
	fd   int
	data []byte
	off  int
}

// Create creates and maps a new segment of the given size. An empty name
// draws a random one; use Name to share it with peer processes.
func Create(name string, size int) (*Segment, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid segment size %d", size)
	}
	if name == "" {
		name = "ipc-" + uuid.NewString()
	}

	fd, err := unix.Open(shmDir+name, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment %s: %w", name, err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		_ = unix.Unlink(shmDir + name)
		return nil, fmt.Errorf("failed to size segment %s: %w", name, err)
	}

	return mapSegment(name, fd, size)
}

// Open maps an existing segment created by this or another process.
func Open(name string) (*Segment, error) {
	fd, err := unix.Open(shmDir+name, unix.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment %s: %w", name, err)
	}

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to stat segment %s: %w", name, err)
	}

	return mapSegment(name, fd, int(stat.Size))
}

func mapSegment(name string, fd, size int) (*Segment, error) {
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to map segment %s: %w", name, err)
	}

	return &Segment{
		name: name,
		fd:   fd,
		data: data,
	}, nil
}

func (s *Segment) Name() string {
	return s.name
}

func (s *Segment) Bytes() []byte {
	return s.data
}

func (s *Segment) Size() int {
	return len(s.data)
}

// Remaining reports how many bytes are still allocatable.
func (s *Segment) Remaining() int {
	return len(s.data) - s.off
}

// Alloc bump-allocates size bytes inside the mapping, aligned to align.
// The mapping is zero-filled by the kernel, so allocated memory reads as
// zero until somebody writes it. Peer processes attaching to the same
// segment must perform the same Alloc/Place sequence to agree on the
// layout; there is no allocation metadata inside the segment.
func (s *Segment) Alloc(size, align int) (unsafe.Pointer, error) {
	if align <= 0 || align&(align-1) != 0 {
		return nil, fmt.Errorf("invalid alignment %d", align)
	}

	off := (s.off + align - 1) &^ (align - 1)
	if off+size > len(s.data) {
		return nil, fmt.Errorf("segment %s exhausted: need %d bytes at offset %d of %d", s.name, size, off, len(s.data))
	}
	s.off = off + size

	return unsafe.Pointer(&s.data[off]), nil
}

// Place allocates a zeroed, properly aligned T inside the segment. All the
// primitives of this module (xatomic.Word, xmutex.Mutex, xcond.Cond) are
// valid at their zero value, so the returned object is ready to use.
func Place[T any](s *Segment) (*T, error) {
	var zero T
	p, err := s.Alloc(int(unsafe.Sizeof(zero)), int(unsafe.Alignof(zero)))
	if err != nil {
		return nil, err
	}
	return (*T)(p), nil
}

// Close unmaps the segment. The object itself stays alive for other
// processes until Unlink.
func (s *Segment) Close() error {
	if s.data == nil {
		return nil
	}

	if err := unix.Munmap(s.data); err != nil {
		zap.L().Error("Failed to unmap segment", zap.String("name", s.name), zap.Error(err))
		return err
	}
	s.data = nil

	if err := unix.Close(s.fd); err != nil {
		return err
	}
	s.fd = -1
	return nil
}

// Unlink removes the named object from the system. Existing mappings keep
// working until their owners close them.
func (s *Segment) Unlink() error {
	if err := unix.Unlink(shmDir + s.name); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to unlink segment %s: %w", s.name, err)
	}
	return nil
}
