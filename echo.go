package sockev

import (
	"errors"

	"golang.org/x/sys/unix"
)

type echoConn struct {
	fd  int
	svc *Service
	buf []byte
}

func (s *Service) onAccept(loop *EventLoop, lfd int) {
	fd, err := AcceptConn(lfd)
	if err != nil {
		if !errors.Is(err, unix.EAGAIN) {
			s.log.Warn("[accept] ", err)
		}
		return
	}
	c := &echoConn{fd: fd, svc: s, buf: make([]byte, s.cfg.BufferSize)}
	if err = loop.RegisterConn(fd, c); err != nil {
		s.log.Warn("[accept] register conn: ", err)
		CloseSocket(nil, fd)
		return
	}
	s.conns[fd] = c
	s.log.Debugf("[accept] fd %d", fd)
}

// OnRecv echoes whatever is readable. Whatever does not fit in the peer's
// buffer is dropped, the loop has no write readiness.
func (c *echoConn) OnRecv(loop *EventLoop, fd int) {
	n, err := Recv(fd, c.buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return
		}
		c.svc.log.Warn("[echo] recv: ", err)
		c.destroy(loop)
		return
	}
	if n == 0 {
		c.destroy(loop)
		return
	}
	if err = c.writeAll(c.buf[:n]); err != nil {
		c.svc.log.Warn("[echo] send: ", err)
		c.destroy(loop)
	}
}

func (c *echoConn) writeAll(p []byte) error {
	for len(p) > 0 {
		n, err := Send(c.fd, p)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EAGAIN) {
				c.svc.log.Debugf("[echo] fd %d: peer buffer full, dropped %d bytes", c.fd, len(p))
				return nil
			}
			return err
		}
		p = p[n:]
	}
	return nil
}

func (c *echoConn) destroy(loop *EventLoop) {
	if c.fd < 0 {
		return
	}
	CloseSocket(loop, c.fd)
	delete(c.svc.conns, c.fd)
	c.fd = -1
}
