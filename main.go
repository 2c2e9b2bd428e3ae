package main

import (
	"fmt"
	"io"
	"os"

	"faultline/config"
	"faultline/version"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	// Read before the flags are declared, so flags still win over the file.
	if err := config.LoadFile(os.Getenv("CONFIG_FILE")); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	err := newRootCmd().Execute()
	closeLog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var logFile io.Closer

func closeLog() {
	if logFile == nil {
		return
	}
	if err := logFile.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close log file: %v\n", err)
	}
	logFile = nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "faultline",
		Short:         "Error telemetry server and admin client",
		Version:       version.GetFullVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			f, err := setupLogging(config.Settings.LogFilePath, config.Settings.LogLevel, config.Settings.LogFormat)
			if err != nil {
				return err
			}
			logFile = f
			logrus.WithField("command", cmd.Name()).Debug("Starting command")
			return nil
		},
	}
	config.BindLogFlags(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(),
		newStatsCmd(),
		newCleanupCmd(),
		newHealthCmd(),
		newReportCmd(),
		newProfileCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetBuildInfo())
		},
	}
}
