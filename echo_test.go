package sockev

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newEchoConn(t *testing.T, loop *EventLoop) (*echoConn, int) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() { unix.Close(fds[1]) })

	svc, err := NewService(NewConfig())
	require.NoError(t, err)
	c := &echoConn{fd: fds[0], svc: svc, buf: make([]byte, 64)}
	svc.conns[c.fd] = c
	require.NoError(t, loop.RegisterConn(c.fd, c))
	t.Cleanup(func() { c.destroy(loop) })
	return c, fds[1]
}

// fillSendBuffer writes from fd until the kernel refuses more.
func fillSendBuffer(t *testing.T, fd int) {
	chunk := make([]byte, 4096)
	for {
		_, err := unix.Write(fd, chunk)
		if errors.Is(err, unix.EAGAIN) {
			return
		}
		require.NoError(t, err)
	}
}

func TestEcho_RoundTrip(t *testing.T) {
	loop := newTestLoop(t)
	c, peer := newEchoConn(t, loop)

	_, err := unix.Write(peer, []byte("ping"))
	require.NoError(t, err)
	n, err := loop.Poll()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	buf := make([]byte, 8)
	n, err = unix.Read(peer, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))
	require.True(t, loop.Registered(c.fd))
}

func TestEcho_FullPeerBufferKeepsConnection(t *testing.T) {
	loop := newTestLoop(t)
	c, peer := newEchoConn(t, loop)
	fd := c.fd
	fillSendBuffer(t, fd)

	_, err := unix.Write(peer, []byte("ping"))
	require.NoError(t, err)
	n, err := loop.Poll()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.Equal(t, fd, c.fd)
	require.True(t, loop.Registered(fd))
	require.Contains(t, c.svc.conns, fd)
}

func TestEcho_PeerCloseDestroys(t *testing.T) {
	loop := newTestLoop(t)
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	svc, err := NewService(NewConfig())
	require.NoError(t, err)
	c := &echoConn{fd: fds[0], svc: svc, buf: make([]byte, 64)}
	svc.conns[c.fd] = c
	require.NoError(t, loop.RegisterConn(c.fd, c))

	fd := c.fd
	require.NoError(t, unix.Close(fds[1]))
	_, err = loop.Poll()
	require.NoError(t, err)
	require.Equal(t, -1, c.fd)
	require.False(t, loop.Registered(fd))
	require.Empty(t, svc.conns)
}
