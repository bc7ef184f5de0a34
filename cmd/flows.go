package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/echoscan/internal/config"
	"firestige.xyz/echoscan/internal/core"
	"firestige.xyz/echoscan/internal/flow"
	"firestige.xyz/echoscan/internal/metrics"
	"firestige.xyz/echoscan/internal/report"
)

var flowsCmd = &cobra.Command{
	Use:   "flows FILE...",
	Short: "Group records into flows and report their timing",
	Long: `Group the kept records of every file by address pair (or destination)
and report packet counts and inter-packet intervals per flow.

Examples:
  echoscan flows --icmp-type 8 --intervals trace.pcap
  echoscan flows --key destination --min-packets 3 -o yaml a.pcap b.pcap`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFlows(cmd.Context(), cfg, args, cmd.OutOrStdout())
	},
}

func init() {
	flowsCmd.Flags().String("key", "", "flow key: pair or destination")
	flowsCmd.Flags().Int("min-packets", 1, "hide flows with fewer packets (0 shows all)")
	flowsCmd.Flags().Bool("intervals", false, "list every inter-packet interval")
}

func runFlows(ctx context.Context, c *config.Config, paths []string, out io.Writer) error {
	key, err := flow.KeyFuncByName(c.Flows.Key)
	if err != nil {
		return err
	}

	mc := newCollector(c)
	table := flow.NewTable(key)
	for _, path := range paths {
		if err := collectFlows(ctx, c, path, table, mc); err != nil {
			return err
		}
	}
	flows := table.Flows(c.Flows.MinPackets)

	w, err := report.NewWriter(c.Output.Format, out, report.Options{
		Payload:   c.Output.Payload,
		Intervals: c.Flows.Intervals,
	})
	if err != nil {
		return err
	}
	if err := w.WriteFlows(flows); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	if mc != nil {
		mc.ObserveFlows(flows)
	}
	return exportMetrics(c, mc)
}

func collectFlows(ctx context.Context, c *config.Config, path string, table *flow.Table, mc *metrics.Collector) error {
	s, err := openSession(c, path)
	if err != nil {
		return err
	}
	defer s.Close()

	err = s.scanner.Run(ctx, func(rec core.DecodedRecord) error {
		table.Add(rec)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	s.logStats()
	if mc != nil {
		mc.ObserveScan(path, s.scanner.Stats())
	}
	return nil
}
