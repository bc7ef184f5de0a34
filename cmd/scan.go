package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/echoscan/internal/config"
	"firestige.xyz/echoscan/internal/core"
	"firestige.xyz/echoscan/internal/metrics"
	"firestige.xyz/echoscan/internal/report"
)

var scanCmd = &cobra.Command{
	Use:   "scan FILE...",
	Short: "Decode captures and print every kept record",
	Long: `Decode each capture in turn and print one line per kept record, followed
by the counters of the file.

Records whose link or IPv4 header cannot be decoded are logged and left out.
Records whose ICMP header cannot be decoded are printed with the error.

Examples:
  echoscan scan trace.pcap
  echoscan scan --icmp-type 8 --icmp-type 0 -o json trace.pcap.gz`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd.Context(), cfg, args, cmd.OutOrStdout(), false)
	},
}

// runScan scans paths in order into one report. With statsOnly the records
// are decoded and counted but not printed.
func runScan(ctx context.Context, c *config.Config, paths []string, out io.Writer, statsOnly bool) error {
	w, err := report.NewWriter(c.Output.Format, out, report.Options{Payload: c.Output.Payload})
	if err != nil {
		return err
	}
	mc := newCollector(c)
	for _, path := range paths {
		if err := scanFile(ctx, c, path, w, mc, statsOnly); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	return exportMetrics(c, mc)
}

func scanFile(ctx context.Context, c *config.Config, path string, w *report.Writer, mc *metrics.Collector, statsOnly bool) error {
	s, err := openSession(c, path)
	if err != nil {
		return err
	}
	defer s.Close()

	err = s.scanner.Run(ctx, func(rec core.DecodedRecord) error {
		if statsOnly {
			return nil
		}
		return w.Write(rec)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	s.logStats()
	st := s.scanner.Stats()
	if mc != nil {
		mc.ObserveScan(path, st)
	}
	return w.WriteStats(report.NewStatsRow(path, s.id, st))
}
