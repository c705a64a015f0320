package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/metalagman/evalrunner/internal/config"
	"github.com/metalagman/evalrunner/internal/logging"
)

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var (
		debug   bool
		envFile string
		cfgFile string
	)
	rootCmd := &cobra.Command{
		Use:           "evalrunner",
		Short:         "evalrunner verifies a web app's user journeys with a browser agent",
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logging.Init(debug)
			return config.LoadDotEnv(envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (json or yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "env file loaded before config; missing is fine")

	rootCmd.AddCommand(runCmd(&cfgFile))
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(renderCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
}
