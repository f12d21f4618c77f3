package poller

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// MaxDescriptors is the number of descriptor values a Set can hold, FD_SETSIZE.
const MaxDescriptors = int(unsafe.Sizeof(unix.FdSet{})) * 8

const (
	// WaitForever blocks in Wait until a descriptor becomes ready.
	WaitForever = -1
	// NoWait makes Wait return immediately.
	NoWait = 0
)

// Set is a readiness set: descriptor membership plus the highest descriptor
// ever added. The maximum is never lowered on removal.
type Set struct {
	fds unix.FdSet
	max int
	n   int
}

func NewSet() *Set {
	return &Set{max: -1}
}

// Add marks fd as interesting. Out of range values are ignored.
func (s *Set) Add(fd int) {
	if fd < 0 || fd >= MaxDescriptors {
		return
	}
	if !s.fds.IsSet(fd) {
		s.fds.Set(fd)
		s.n++
	}
	if fd > s.max {
		s.max = fd
	}
}

func (s *Set) Remove(fd int) {
	if fd < 0 || fd >= MaxDescriptors || !s.fds.IsSet(fd) {
		return
	}
	s.fds.Clear(fd)
	s.n--
}

func (s *Set) Has(fd int) bool {
	if fd < 0 || fd >= MaxDescriptors {
		return false
	}
	return s.fds.IsSet(fd)
}

// Max returns the highest descriptor ever added, or -1.
func (s *Set) Max() int {
	return s.max
}

func (s *Set) Len() int {
	return s.n
}

// Clone returns an independent copy, used as the per-iteration snapshot.
func (s *Set) Clone() *Set {
	c := *s
	return &c
}

// Descriptors lists members in ascending order.
func (s *Set) Descriptors() []int {
	fds := make([]int, 0, s.n)
	for fd := 0; fd <= s.max; fd++ {
		if s.fds.IsSet(fd) {
			fds = append(fds, fd)
		}
	}
	return fds
}

func (s *Set) recount() {
	s.n = 0
	for fd := 0; fd <= s.max; fd++ {
		if s.fds.IsSet(fd) {
			s.n++
		}
	}
}
