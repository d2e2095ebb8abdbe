package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/qa-tooling/uiprobe/internal/fixture"
	"github.com/qa-tooling/uiprobe/internal/version"
)

func newFixtureCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Serve the local login page fixture",
		Long: `Fixture serves a stand-in for the bank login page with the same
structure, field limits and messages. It accepts one fixed test account,
printed on start, so the credential scenarios can run without a real one.`,
		Example: `  uiprobe fixture --addr 127.0.0.1:8089
  uiprobe run --base-url http://127.0.0.1:8089/ --var account=12345678 --var secret=4242`,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := fixture.New(a.cfg.Fixture, a.logger)
			if err != nil {
				return err
			}
			fc := srv.Config()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Serving login fixture on http://%s/\n", fc.Addr)
			fmt.Fprintln(out, "Suite variables for this fixture:")
			vars := fixtureVars(fc)
			names := make([]string, 0, len(vars))
			for name := range vars {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "  --var %s=%s\n", name, vars[name])
			}
			return srv.ListenAndServe(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default 127.0.0.1:8089)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// No config is needed to print the version.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(version.GetInfo())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uiprobe %s\n", version.Full())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
