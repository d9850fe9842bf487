package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/pulsewatch/monitor/internal/checks"
	"github.com/obsidianstack/pulsewatch/monitor/internal/records"
	"github.com/obsidianstack/pulsewatch/pkg/types"
)

var errInvalidChecks = errors.New("some checks are invalid")

var checksCmd = &cobra.Command{
	Use:   "checks",
	Short: "Work with check records",
}

var checksValidateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Validate check documents; with no files, every stored check",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) > 0 {
			return validateFiles(out, args)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := records.New(cfg.Monitor.DataDir)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		ids, err := store.List(ctx, types.NamespaceChecks)
		if err != nil {
			return err
		}

		bad := 0
		for _, id := range ids {
			raw, err := store.ReadRaw(ctx, types.NamespaceChecks, id)
			if err != nil {
				return err
			}
			if !report(out, id, raw) {
				bad++
			}
		}
		return summary(out, len(ids), bad)
	},
}

func init() {
	checksCmd.AddCommand(checksValidateCmd)
}

func validateFiles(out io.Writer, paths []string) error {
	bad := 0
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if !report(out, p, raw) {
			bad++
		}
	}
	return summary(out, len(paths), bad)
}

// report prints one line for name and returns whether raw is valid.
func report(out io.Writer, name string, raw []byte) bool {
	c, err := checks.Validate(raw)
	if err != nil {
		fmt.Fprintf(out, "INVALID %s: %v\n", name, err)
		return false
	}
	fmt.Fprintf(out, "ok      %s (%s %s, state %s)\n", name, c.Method, c.Target(), c.State)
	return true
}

func summary(out io.Writer, total, bad int) error {
	fmt.Fprintf(out, "%d checked, %d invalid\n", total, bad)
	if bad > 0 {
		return errInvalidChecks
	}
	return nil
}
