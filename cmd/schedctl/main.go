package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverAddr string
	apiToken   string
	timeout    int
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "schedctl",
		Short:         "schedctl - manage scheduled deliveries",
		Long:          `schedctl lists, schedules and cancels announcements and reminders on a running scheduler`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "localhost:8080", "Server address")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("SCHEDULER_SERVER_API_TOKEN"), "API token")
	rootCmd.PersistentFlags().IntVar(&timeout, "timeout", 30, "Request timeout in seconds")

	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(cancelCmd())

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
