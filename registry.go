package sockev

import (
	"fmt"

	"github.com/rocinan/sockev/poller"
)

// Role tells the loop which callback a registered socket carries.
type Role int

const (
	// RoleListening sockets accept connections and carry an AcceptHandler.
	RoleListening Role = iota
	// RoleData sockets carry a RecvHandler.
	RoleData
)

func (r Role) String() string {
	switch r {
	case RoleListening:
		return "listening"
	case RoleData:
		return "data"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// AcceptHandler is invoked when a listening socket has a pending connection.
type AcceptHandler interface {
	OnAccept(loop *EventLoop, fd int)
}

// RecvHandler is invoked when a data socket is readable.
type RecvHandler interface {
	OnRecv(loop *EventLoop, fd int)
}

type AcceptFunc func(loop *EventLoop, fd int)

func (f AcceptFunc) OnAccept(loop *EventLoop, fd int) { f(loop, fd) }

type RecvFunc func(loop *EventLoop, fd int)

func (f RecvFunc) OnRecv(loop *EventLoop, fd int) { f(loop, fd) }

type entry struct {
	fd      int
	role    Role
	accept  AcceptHandler
	recv    RecvHandler
	removed bool
}

func (e *entry) dispatch(loop *EventLoop) {
	switch e.role {
	case RoleListening:
		e.accept.OnAccept(loop, e.fd)
	case RoleData:
		e.recv.OnRecv(loop, e.fd)
	}
}

// registry keeps entries in registration order with an fd index beside it.
// watched is the readiness set handed to the poller.
type registry struct {
	index   map[int]*entry
	order   []*entry
	watched *poller.Set
}

func newRegistry() *registry {
	return &registry{
		index:   make(map[int]*entry),
		watched: poller.NewSet(),
	}
}

// add validates everything before touching the set, so a rejected
// registration leaves no readiness interest behind.
func (r *registry) add(fd int, role Role, accept AcceptHandler, recv RecvHandler) error {
	if fd < 0 || fd >= poller.MaxDescriptors {
		return fmt.Errorf("%w: %d (limit %d)", ErrDescriptorRange, fd, poller.MaxDescriptors)
	}
	e := &entry{fd: fd, role: role}
	switch role {
	case RoleListening:
		if accept == nil {
			return ErrNilHandler
		}
		e.accept = accept
	case RoleData:
		if recv == nil {
			return ErrNilHandler
		}
		e.recv = recv
	default:
		return fmt.Errorf("sockev: unknown role %s", role)
	}
	if _, ok := r.index[fd]; ok {
		return fmt.Errorf("%w: %d", ErrAlreadyRegistered, fd)
	}
	r.index[fd] = e
	r.order = append(r.order, e)
	r.watched.Add(fd)
	return nil
}

func (r *registry) remove(fd int) bool {
	e := r.lookup(fd)
	if e == nil {
		return false
	}
	e.removed = true
	delete(r.index, fd)
	for i, o := range r.order {
		if o == e {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.watched.Remove(fd)
	return true
}

func (r *registry) lookup(fd int) *entry {
	return r.index[fd]
}

func (r *registry) reset() {
	for _, e := range r.order {
		e.removed = true
	}
	r.index = make(map[int]*entry)
	r.order = nil
	r.watched = poller.NewSet()
}
