package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/echoscan/internal/capture"
	"firestige.xyz/echoscan/internal/config"
	"firestige.xyz/echoscan/internal/core"
)

var carveCmd = &cobra.Command{
	Use:   "carve IN OUT",
	Short: "Copy the kept records into a new capture",
	Long: `Copy every record of IN that decodes and passes the filters into OUT,
an uncompressed little-endian microsecond pcap with the link type and
snaplen of IN.

Examples:
  echoscan carve --icmp-type 0 trace.pcap.zst replies.pcap`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := runCarve(cmd.Context(), cfg, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d record(s) written to %s\n", n, args[1])
		return nil
	},
}

// runCarve returns the number of records written to out.
func runCarve(ctx context.Context, c *config.Config, in, out string) (int, error) {
	s, err := openSession(c, in)
	if err != nil {
		return 0, err
	}
	defer s.Close()

	f, err := os.Create(out)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", out, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	hdr := s.reader.Header()
	pw, err := capture.NewWriter(bw, hdr.SnapLen, s.reader.LinkType(), hdr.Nanosecond)
	if err != nil {
		return 0, err
	}

	err = s.scanner.Run(ctx, func(core.DecodedRecord) error {
		return pw.WritePacket(s.scanner.Packet())
	})
	if err != nil {
		return pw.Written(), fmt.Errorf("%s: %w", in, err)
	}
	if err := bw.Flush(); err != nil {
		return pw.Written(), fmt.Errorf("failed to write %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return pw.Written(), fmt.Errorf("failed to close %s: %w", out, err)
	}

	s.logStats()
	return pw.Written(), nil
}
