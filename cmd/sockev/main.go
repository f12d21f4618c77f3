package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	socketPath string
	verbose    bool
)

func main() {
	command := &cobra.Command{
		Use:   "sockev",
		Short: "Unix socket event reactor.",
	}
	command.PersistentFlags().StringVarP(&configPath, "config", "c", "", "INI config file")
	command.PersistentFlags().StringVarP(&socketPath, "path", "p", "", "socket path (overrides config)")
	command.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose mode")
	command.AddCommand(newServeCommand(), newPingCommand())
	if err := command.Execute(); err != nil {
		logrus.Fatal(err)
	}
}
