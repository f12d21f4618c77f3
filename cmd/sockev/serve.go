package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rocinan/sockev"
	"github.com/spf13/cobra"
)

var (
	policy      string
	pollTimeout time.Duration
)

func newServeCommand() *cobra.Command {
	command := &cobra.Command{
		Use:     "serve",
		Short:   "Run an echo server on a Unix socket.",
		Example: "sockev serve -p /tmp/test.sock --policy block",
		Args:    cobra.NoArgs,
		RunE:    serve,
	}
	command.Flags().StringVar(&policy, "policy", "", "poll policy [possible values: busy, block, bounded]")
	command.Flags().DurationVar(&pollTimeout, "timeout", 0, "poll timeout for the bounded policy")
	return command
}

func loadConfig() (sockev.Config, error) {
	cfg := sockev.NewConfig()
	if configPath != "" {
		var err error
		if cfg, err = sockev.LoadConfig(configPath); err != nil {
			return cfg, err
		}
	}
	if socketPath != "" {
		cfg.SocketPath = socketPath
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if policy != "" {
		if cfg.Policy, err = sockev.ParsePolicy(policy); err != nil {
			return err
		}
	}
	if pollTimeout > 0 {
		cfg.PollTimeout = pollTimeout
	}
	if err = sockev.SetLogLevel(cfg.LogLevel); err != nil {
		return err
	}

	svc, err := sockev.NewService(cfg)
	if err != nil {
		return err
	}
	if err = svc.Start(); err != nil {
		return err
	}
	fmt.Println("Start Service Successfully")
	fmt.Println("PID: ", os.Getpid())

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-signalChan:
		fmt.Println("")
	case <-svc.Done():
	}
	if err = svc.Stop(); err != nil {
		return err
	}
	return svc.Err()
}
