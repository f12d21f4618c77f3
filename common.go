package sockev

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// maxPathLen includes the terminating NUL of sun_path.
var maxPathLen = len(unix.RawSockaddrUnix{}.Path)

func unixSockaddr(path string) (*unix.SockaddrUnix, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	if len(path) >= maxPathLen {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrPathTooLong, len(path), maxPathLen-1)
	}
	return &unix.SockaddrUnix{Name: path}, nil
}

// Listen binds a stream socket at path, replacing any stale endpoint there,
// and registers it as a listening socket on loop.
func Listen(loop *EventLoop, path string, h AcceptHandler) (int, error) {
	if h == nil {
		return -1, ErrNilHandler
	}
	sa, err := unixSockaddr(path)
	if err != nil {
		return -1, err
	}
	if err = unix.Unlink(path); err != nil && !errors.Is(err, unix.ENOENT) {
		return -1, fmt.Errorf("unlink %s: %w", path, err)
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err = unix.Bind(fd, sa); err != nil {
		CloseSocket(nil, fd)
		return -1, fmt.Errorf("bind %s: %w", path, err)
	}
	if err = unix.Listen(fd, loop.backlog); err != nil {
		CloseSocket(nil, fd)
		return -1, fmt.Errorf("listen %s: %w", path, err)
	}
	if err = SetNoBlock(fd); err != nil {
		CloseSocket(nil, fd)
		return -1, err
	}
	if err = loop.RegisterListener(fd, h); err != nil {
		CloseSocket(nil, fd)
		return -1, err
	}
	return fd, nil
}

// Connect dials the endpoint at path and registers the connection as a data
// socket on loop. The registered socket is non-blocking.
func Connect(loop *EventLoop, path string, h RecvHandler) (int, error) {
	if h == nil {
		return -1, ErrNilHandler
	}
	fd, err := ConnectStandalone(path)
	if err != nil {
		return -1, err
	}
	if err = SetNoBlock(fd); err != nil {
		CloseSocket(nil, fd)
		return -1, err
	}
	if err = loop.RegisterConn(fd, h); err != nil {
		CloseSocket(nil, fd)
		return -1, err
	}
	return fd, nil
}

// ConnectStandalone dials path without registering the socket anywhere. The
// returned socket is blocking.
func ConnectStandalone(path string) (int, error) {
	sa, err := unixSockaddr(path)
	if err != nil {
		return -1, err
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err = unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("connect %s: %w", path, err)
	}
	return fd, nil
}

// AcceptConn takes one pending connection off a listening socket. It returns
// unix.EAGAIN when none is pending.
func AcceptConn(fd int) (int, error) {
	nfd, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, err
	}
	return nfd, nil
}

// CloseSocket unregisters fd from loop, when loop is non-nil, and closes it.
func CloseSocket(loop *EventLoop, fd int) error {
	if loop != nil {
		loop.Unregister(fd)
	}
	return unix.Close(fd)
}

func Send(fd int, p []byte) (int, error) {
	return unix.Write(fd, p)
}

func Recv(fd int, p []byte) (int, error) {
	return unix.Read(fd, p)
}

func SetNoBlock(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("set nonblock: %w", err)
	}
	return nil
}
