package sockev

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rocinan/sockev/poller"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

const kCloseTimeout = 15 * time.Second

// EventLoop is a single-threaded select(2) reactor. Registration, polling and
// every callback run on one goroutine; only Stop and Close may be called from
// elsewhere.
type EventLoop struct {
	policy  Policy
	timeout time.Duration
	backlog int

	reg         *registry
	pending     []*entry
	dispatching bool
	wake        [2]int

	mu       sync.Mutex
	waitDone chan struct{}
	isStop   atomic.Bool
	closing  atomic.Bool
	closed   atomic.Bool

	log *logrus.Entry
}

// Create allocates a loop with an empty registry.
func Create(cfg Config) (*EventLoop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("create wake pipe: %w", err)
	}
	if p[0] >= poller.MaxDescriptors {
		unix.Close(p[0])
		unix.Close(p[1])
		return nil, fmt.Errorf("%w: wake pipe %d", ErrDescriptorRange, p[0])
	}
	return &EventLoop{
		policy:  cfg.Policy,
		timeout: cfg.PollTimeout,
		backlog: cfg.Backlog,
		reg:     newRegistry(),
		wake:    p,
		log:     log.WithField("component", "loop"),
	}, nil
}

// RegisterListener adds fd as a listening socket; h runs on every poll that
// finds a pending connection.
func (e *EventLoop) RegisterListener(fd int, h AcceptHandler) error {
	return e.register(fd, RoleListening, h, nil)
}

// RegisterConn adds fd as a data socket; h runs on every poll that finds it
// readable, until the socket is drained or unregistered.
func (e *EventLoop) RegisterConn(fd int, h RecvHandler) error {
	return e.register(fd, RoleData, nil, h)
}

func (e *EventLoop) register(fd int, role Role, accept AcceptHandler, recv RecvHandler) error {
	if e.closed.Load() {
		return ErrLoopClosed
	}
	if err := e.reg.add(fd, role, accept, recv); err != nil {
		return err
	}
	e.log.WithField("category", role.String()).Debugf("register fd %d", fd)
	return nil
}

// Unregister drops fd from the registry and the readiness set. Unknown
// descriptors are ignored.
func (e *EventLoop) Unregister(fd int) {
	if e.closed.Load() {
		return
	}
	if e.reg.remove(fd) {
		e.log.Debugf("unregister fd %d", fd)
	}
}

func (e *EventLoop) Registered(fd int) bool {
	if e.closed.Load() {
		return false
	}
	return e.reg.lookup(fd) != nil
}

// Watching reports whether fd is in the readiness set.
func (e *EventLoop) Watching(fd int) bool {
	if e.closed.Load() {
		return false
	}
	return e.reg.watched.Has(fd)
}

func (e *EventLoop) Len() int {
	if e.closed.Load() {
		return 0
	}
	return len(e.reg.order)
}

// MaxFd is the highest descriptor ever registered, or -1.
func (e *EventLoop) MaxFd() int {
	if e.closed.Load() {
		return -1
	}
	return e.reg.watched.Max()
}

func (e *EventLoop) waitTimeout() int {
	switch e.policy {
	case PolicyBlock:
		return poller.WaitForever
	case PolicyBounded:
		return int(e.timeout / time.Millisecond)
	}
	return poller.NoWait
}

// Poll runs one iteration: wait for readiness per the loop policy, then
// invoke the callback of every ready entry in registration order. It returns
// the number of callbacks invoked. Calling Poll from a callback fails with
// ErrAlreadyRunning.
func (e *EventLoop) Poll() (int, error) {
	if e.closed.Load() {
		return 0, ErrLoopClosed
	}
	// called from a callback of the pass in progress
	if e.dispatching {
		return 0, ErrAlreadyRunning
	}
	ready := e.reg.watched.Clone()
	ready.Add(e.wake[0])
	n, err := poller.Wait(ready, e.waitTimeout())
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		e.log.Error("select: ", err)
		return 0, fmt.Errorf("select: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	if ready.Has(e.wake[0]) {
		e.drainWake()
		ready.Remove(e.wake[0])
	}
	if ready.Len() == 0 {
		return 0, nil
	}
	return e.dispatch(ready), nil
}

func (e *EventLoop) dispatch(ready *poller.Set) int {
	e.dispatching = true
	defer func() { e.dispatching = false }()
	e.pending = append(e.pending[:0], e.reg.order...)
	serviced := 0
	for _, en := range e.pending {
		// unregistered by an earlier callback in this pass
		if en.removed || !ready.Has(en.fd) {
			continue
		}
		e.invoke(en)
		serviced++
		if !en.removed {
			e.reg.watched.Add(en.fd)
		}
	}
	for i := range e.pending {
		e.pending[i] = nil
	}
	e.pending = e.pending[:0]
	return serviced
}

func (e *EventLoop) invoke(en *entry) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("category", en.role.String()).Errorf("callback on fd %d panicked: %v", en.fd, r)
		}
	}()
	en.dispatch(e)
}

// Run polls until Stop is called. A select failure other than EINTR ends the
// loop and is returned.
func (e *EventLoop) Run() error {
	e.mu.Lock()
	if e.closing.Load() {
		e.mu.Unlock()
		return ErrLoopClosed
	}
	if e.waitDone != nil {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	done := make(chan struct{})
	e.waitDone = done
	e.mu.Unlock()

	defer func() {
		e.isStop.Store(false)
		e.mu.Lock()
		e.waitDone = nil
		e.mu.Unlock()
		close(done)
	}()

	e.log.Debugf("run with %s policy", e.policy)
	for !e.isStop.Load() {
		if _, err := e.Poll(); err != nil {
			return err
		}
	}
	return nil
}

// Stop makes the current, or next, Run return after the iteration in
// progress. It wakes a blocked select.
func (e *EventLoop) Stop() {
	if e.closed.Load() || e.isStop.Swap(true) {
		return
	}
	if _, err := unix.Write(e.wake[1], []byte{1}); err != nil && !errors.Is(err, unix.EAGAIN) {
		e.log.Warn("wake loop: ", err)
	}
}

func (e *EventLoop) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(e.wake[0], buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// Close stops a running loop, waits for Run to return, and releases the
// registry. Registered sockets are not closed. Close must not be called from
// a callback.
func (e *EventLoop) Close() error {
	e.mu.Lock()
	if e.closing.Load() {
		e.mu.Unlock()
		return nil
	}
	e.closing.Store(true)
	done := e.waitDone
	e.mu.Unlock()
	if done != nil {
		e.Stop()
		select {
		case <-done:
		case <-time.After(kCloseTimeout):
			e.mu.Lock()
			e.closing.Store(false)
			e.mu.Unlock()
			return errors.New("close eventloop error: timeout")
		}
	}
	e.closed.Store(true)
	e.reg.reset()
	_ = unix.Close(e.wake[0])
	_ = unix.Close(e.wake[1])
	e.log.Debug("closed")
	return nil
}
