package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/qa-tooling/uiprobe/internal/version"
)

// errScenariosFailed is returned when a run finished with FAIL or ERROR
// results. The reports already say why, so main only sets the exit status.
var errScenariosFailed = errors.New("one or more scenarios failed")

const (
	exitFailed = 1
	exitError  = 2
)

func newRootCmd() *cobra.Command {
	return newRootCmdFor(&app{})
}

func newRootCmdFor(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "uiprobe",
		Short: "uiprobe - declarative browser scenarios for login pages",
		Long: `uiprobe drives a real browser through YAML scenario suites and
reports one PASS, FAIL, ERROR or SKIP per scenario.

Without suite arguments the suites built into the binary are used. The
"fixture" command serves a local copy of the login page that every
scenario, including the credential ones, can run against.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "Config file (default ./uiprobe.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: console or json")
	rootCmd.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", nil, "Dotenv files to load instead of ./.env")

	rootCmd.AddCommand(
		newRunCmd(a),
		newListCmd(a),
		newValidateCmd(a),
		newScheduleCmd(a),
		newFixtureCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

func exitCode(err error) int {
	if errors.Is(err, errScenariosFailed) {
		return exitFailed
	}
	return exitError
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errScenariosFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(exitCode(err))
	}
}
