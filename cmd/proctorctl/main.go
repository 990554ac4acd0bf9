// Package main provides proctorctl, the operator tool for proctored
// sessions: offline replay of recorded client logs and snapshot inspection.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-proctor/internal/logger"
)

const (
	Version = "0.1.0"
	appName = "proctorctl"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Operator tool for proctored assessment sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	newLog := func() zerolog.Logger {
		return logger.New(os.Stderr, logLevel, "pretty")
	}

	cmd.AddCommand(replayCmd(newLog))
	cmd.AddCommand(snapshotCmd(newLog))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})

	return cmd
}
