package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	apiAddr string
)

var rootCmd = &cobra.Command{
	Use:   "haul",
	Short: "HTTP download manager with durable jobs",
	Long: `haul runs a download daemon that groups resources into jobs,
survives restarts by resuming interrupted transfers, and archives every
finished job. The other commands talk to a running daemon over its API.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the config file")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:8080", "base URL of the haul daemon")
}
