package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/rocinan/sockev"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

var pingWait time.Duration

func newPingCommand() *cobra.Command {
	command := &cobra.Command{
		Use:     "ping [message]",
		Short:   "Send a message to an echo server and print the reply.",
		Example: "sockev ping -p /tmp/test.sock hello",
		Args:    cobra.MaximumNArgs(1),
		RunE:    ping,
	}
	command.Flags().DurationVarP(&pingWait, "wait", "w", 5*time.Second, "reply timeout")
	return command
}

func ping(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	message := "ping"
	if len(args) == 1 {
		message = args[0]
	}

	fd, err := sockev.ConnectStandalone(cfg.SocketPath)
	if err != nil {
		return err
	}
	defer sockev.CloseSocket(nil, fd)

	tv := unix.NsecToTimeval(pingWait.Nanoseconds())
	if err = unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return err
	}
	start := time.Now()
	if _, err = sockev.Send(fd, []byte(message)); err != nil {
		return err
	}
	reply := make([]byte, 0, len(message))
	buf := make([]byte, len(message))
	for len(reply) < len(message) {
		n, err := sockev.Recv(fd, buf[:len(message)-len(reply)])
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return fmt.Errorf("no reply within %s", pingWait)
			}
			return err
		}
		if n == 0 {
			return errors.New("server closed the connection")
		}
		reply = append(reply, buf[:n]...)
	}
	fmt.Printf("%s (%s)\n", reply, time.Since(start))
	return nil
}
