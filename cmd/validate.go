package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/echoscan/internal/config"
	"firestige.xyz/echoscan/internal/filter"
)

var validateCmd = &cobra.Command{
	Use:   "validate [FILE]",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without scanning anything.

The file is checked as Load reads it, ECHOSCAN_* environment overrides
included. A configured BPF program is also parsed. Without FILE the
--config path is used.

Examples:
  echoscan validate echoscan.yml
  echoscan -c /etc/echoscan/echoscan.yml validate`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if len(args) == 1 {
			path = args[0]
		}
		return runValidate(path, cmd.OutOrStdout())
	},
}

func runValidate(path string, out io.Writer) error {
	c, err := config.Load(path)
	if err != nil {
		return err
	}
	if c.Scan.BPFProgram != "" {
		if _, err := filter.LoadBPF(c.Scan.BPFProgram); err != nil {
			return err
		}
	}

	name := path
	if name == "" {
		name = "(defaults)"
	}
	_, err = fmt.Fprintf(out, "VALID: %s: log=%s/%s output=%s flows=%s min_packets=%d icmp_types=%v bpf=%q\n",
		name,
		c.Log.Level, c.Log.Format,
		c.Output.Format,
		c.Flows.Key, c.Flows.MinPackets,
		c.Scan.ICMPTypes,
		c.Scan.BPFProgram,
	)
	return err
}
