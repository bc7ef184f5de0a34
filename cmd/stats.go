package cmd

import (
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats FILE...",
	Short: "Show per-file statistics",
	Long: `Decode each capture and print only its counters.

Shows: records read, kept and filtered, decode failures per layer,
records whose captured length exceeds their original length and whether the file was truncated.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd.Context(), cfg, args, cmd.OutOrStdout(), true)
	},
}
