// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/echoscan/internal/config"
	"firestige.xyz/echoscan/internal/core"
	"firestige.xyz/echoscan/internal/log"
)

var (
	// Global flags
	configFile string

	// Loaded by setup before any subcommand runs
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "echoscan",
	Short: "echoscan - offline ICMP analysis of pcap captures",
	Long: `echoscan reads classic pcap captures (Ethernet or raw IP), decodes the
IPv4 and ICMP headers of every record and reports what it finds.

Captures may be gzip, zstd or lz4 compressed; the compression is detected
from the first bytes of the file.

Commands:
  scan    print every kept record and per-file counters
  stats   print only the per-file counters
  flows   group records by address pair and report their timing
  carve   copy the kept records into a new capture`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "config file path (built-in defaults when empty)")
	pf.String("log-level", "", "log level: trace, debug, info, warn, error")
	pf.StringP("output", "o", "", "output format: text, json, yaml, log")
	pf.Bool("payload", false, "include payload bytes as hex")
	pf.String("bpf", "", "BPF program file in `tcpdump -ddd` format")
	pf.IntSlice("icmp-type", nil, "keep only records with these ICMP types")
	pf.Bool("no-transport", false, "stop decoding at the IPv4 header")
	pf.String("metrics-file", "", "write Prometheus metrics to this .prom file")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(flowsCmd)
	rootCmd.AddCommand(carveCmd)
	rootCmd.AddCommand(validateCmd)
}

// setup loads the config, applies flag overrides and initializes logging.
func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, c); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}
	if err := log.Init(c.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	cfg = c
	return nil
}

// applyFlags copies every flag set on the command line over c. Flags left at
// their defaults keep the config file values.
func applyFlags(cmd *cobra.Command, c *config.Config) error {
	f := cmd.Flags()
	var err error
	set := func(name string, apply func() error) {
		if err == nil && f.Changed(name) {
			err = apply()
		}
	}

	set("log-level", func() (e error) { c.Log.Level, e = f.GetString("log-level"); return })
	set("output", func() (e error) { c.Output.Format, e = f.GetString("output"); return })
	set("payload", func() (e error) { c.Output.Payload, e = f.GetBool("payload"); return })
	set("bpf", func() (e error) { c.Scan.BPFProgram, e = f.GetString("bpf"); return })
	set("icmp-type", func() (e error) { c.Scan.ICMPTypes, e = f.GetIntSlice("icmp-type"); return })
	set("no-transport", func() error {
		skip, e := f.GetBool("no-transport")
		c.Scan.DecodeTransport = !skip
		return e
	})
	set("metrics-file", func() (e error) { c.Metrics.Textfile, e = f.GetString("metrics-file"); return })
	set("key", func() (e error) { c.Flows.Key, e = f.GetString("key"); return })
	set("min-packets", func() (e error) { c.Flows.MinPackets, e = f.GetInt("min-packets"); return })
	set("intervals", func() (e error) { c.Flows.Intervals, e = f.GetBool("intervals"); return })

	if err != nil {
		return fmt.Errorf("invalid flag: %w", err)
	}
	return nil
}
