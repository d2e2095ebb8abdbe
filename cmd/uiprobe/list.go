package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/qa-tooling/uiprobe/internal/runner"
	"github.com/qa-tooling/uiprobe/internal/scenario"
)

func newListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list [suite.yaml|dir...]",
		Aliases: []string{"ls"},
		Short:   "List suites and their scenarios",
		Long: `List prints every scenario with the state it would start in:
run, pending with the reason, or the variables it still needs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.loadSuites(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, s := range reg.All() {
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "%s  %s\n", s.Name, s.BaseURL)
				env := scenario.NewEnv(s, a.cfg.Run.Vars)
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				for _, c := range s.Cases() {
					fmt.Fprintf(tw, "  %s\t%s\n", c.ID(), caseState(c, env))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&a.vars, "var", nil, "Suite variable name=value, repeatable")
	return cmd
}

func caseState(c scenario.Case, env *scenario.Env) string {
	if c.Pending != "" {
		return "pending: " + c.Pending
	}
	if unmet := c.Unmet(env); len(unmet) > 0 {
		return "requires " + strings.Join(unmet, ", ")
	}
	return "run"
}

func newValidateCmd(a *app) *cobra.Command {
	var printSchema bool
	cmd := &cobra.Command{
		Use:   "validate [suite.yaml|dir...]",
		Short: "Check suite files without running them",
		Long: `Validate parses each suite, checks it against the suite schema and
resolves every locator, message and translation reference. All problems
are printed, not only the first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if printSchema {
				_, err := out.Write(scenario.Schema())
				return err
			}

			if len(args) == 0 {
				args = a.cfg.Run.Suites
			}
			if len(args) == 0 {
				reg, err := a.loadSuites(nil)
				if err != nil {
					return err
				}
				for _, s := range reg.All() {
					fmt.Fprintf(out, "ok    %s (built-in, %d scenarios)\n", s.Name, len(s.Cases()))
				}
				return nil
			}

			files, err := suiteFiles(args)
			if err != nil {
				return err
			}
			failed := 0
			for _, path := range files {
				s, err := scenario.LoadFile(path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "FAIL  %v\n", err)
					continue
				}
				fmt.Fprintf(out, "ok    %s (%s, %d scenarios)\n", s.Name, path, len(s.Cases()))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d suite file(s) invalid", failed, len(files))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&printSchema, "schema", false, "Print the suite JSON schema and exit")
	return cmd
}

// suiteFiles expands directories into the suite files they contain.
func suiteFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && runner.IsSuiteFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if len(files) == 0 {
		return nil, errors.New("no suite files found")
	}
	return files, nil
}
