package poller

import (
	"time"

	"golang.org/x/sys/unix"
)

// Wait reports which members of set are readable. On return set holds only the
// ready descriptors. timeout follows epoll conventions: WaitForever blocks,
// NoWait polls, anything else is a bound in milliseconds.
func Wait(set *Set, timeout int) (int, error) {
	var tv *unix.Timeval
	if timeout >= 0 {
		t := unix.NsecToTimeval(int64(time.Duration(timeout) * time.Millisecond))
		tv = &t
	}
	n, err := unix.Select(set.max+1, &set.fds, nil, nil, tv)
	if err != nil {
		set.fds.Zero()
		set.n = 0
		return 0, err
	}
	set.recount()
	return n, nil
}
