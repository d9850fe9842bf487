package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/obsidianstack/pulsewatch/monitor/internal/journal"
)

var listCompressed bool

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect check logs and rotated artifacts",
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live log ids, and artifact ids with --compressed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournal()
		if err != nil {
			return err
		}
		ids, err := j.List(cmd.Context(), listCompressed)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

var logsShowCmd = &cobra.Command{
	Use:   "show <artifact>",
	Short: "Print the decompressed contents of a rotated artifact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := openJournal()
		if err != nil {
			return err
		}
		text, err := j.Decompress(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("show %s: %w", args[0], err)
		}
		fmt.Fprint(cmd.OutOrStdout(), text)
		return nil
	},
}

func init() {
	logsListCmd.Flags().BoolVar(&listCompressed, "compressed", false, "include rotated artifacts")
	logsCmd.AddCommand(logsListCmd)
	logsCmd.AddCommand(logsShowCmd)
}

func openJournal() (*journal.Journal, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return journal.New(cfg.Monitor.LogsDir)
}
