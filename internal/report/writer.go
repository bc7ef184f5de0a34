package report

import (
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"firestige.xyz/echoscan/internal/config"
	"firestige.xyz/echoscan/internal/core"
	"firestige.xyz/echoscan/internal/flow"
	"firestige.xyz/echoscan/internal/log"
)

// Format selects how a Writer renders.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatLog  Format = "log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options tune a Writer.
type Options struct {
	Payload   bool // include payload bytes as hex
	Intervals bool // include per-flow interval lists
}

// Writer renders records, flows and counters in one format. It is not safe
// for concurrent use.
type Writer struct {
	format Format
	w      io.Writer
	opts   Options

	json    *jsoniter.Encoder
	yaml    *yaml.Encoder
	logger  log.Logger
	written int
}

// NewWriter creates a writer for format on w.
func NewWriter(format string, w io.Writer, opts Options) (*Writer, error) {
	wr := &Writer{format: Format(strings.ToLower(format)), w: w, opts: opts}
	switch wr.format {
	case FormatText:
	case FormatJSON:
		wr.json = json.NewEncoder(w)
	case FormatYAML:
		wr.yaml = yaml.NewEncoder(w)
		wr.yaml.SetIndent(2)
	case FormatLog:
		cfg := config.Default().Log
		cfg.Pattern = "%time [%level] %field %msg"
		l, err := log.New(cfg, w)
		if err != nil {
			return nil, err
		}
		wr.logger = l
	default:
		return nil, fmt.Errorf("unsupported output format: %s (must be text, json, yaml or log)", format)
	}
	return wr, nil
}

// Write renders one decoded record.
func (w *Writer) Write(rec core.DecodedRecord) error {
	row := NewRow(rec, w.opts.Payload)
	if w.format == FormatText {
		if _, err := io.WriteString(w.w, textRow(row)+"\n"); err != nil {
			return err
		}
		w.written++
		return nil
	}
	if err := w.encode(row, "record"); err != nil {
		return fmt.Errorf("write record %d: %w", rec.Index, err)
	}
	w.written++
	return nil
}

// WriteFlows renders flow summaries, with intervals when enabled.
func (w *Writer) WriteFlows(flows []flow.Flow) error {
	if w.format == FormatText {
		return w.textFlows(flows)
	}
	for _, f := range flows {
		if err := w.encode(NewFlowRow(f, w.opts.Intervals), "flow"); err != nil {
			return fmt.Errorf("write flow %s: %w", f.Key, err)
		}
		w.written++
	}
	return nil
}

// WriteStats renders the counters of one scanned file.
func (w *Writer) WriteStats(row StatsRow) error {
	if w.format == FormatText {
		_, err := fmt.Fprintf(w.w,
			"%s: read=%d emitted=%d filtered=%d link_errors=%d network_errors=%d transport_errors=%d inconsistent=%d truncated=%t\n",
			row.File, row.Read, row.Emitted, row.Filtered, row.LinkErrors, row.NetworkErrors,
			row.TransportErrors, row.Inconsistent, row.Truncated)
		return err
	}
	return w.encode(row, "scan complete")
}

// Written returns the number of records and flows written.
func (w *Writer) Written() int {
	return w.written
}

// Close finishes the output stream.
func (w *Writer) Close() error {
	if w.yaml != nil {
		return w.yaml.Close()
	}
	return nil
}

func (w *Writer) encode(v interface{}, msg string) error {
	switch w.format {
	case FormatJSON:
		return w.json.Encode(v)
	case FormatYAML:
		return w.yaml.Encode(v)
	case FormatLog:
		fields, err := Fields(v)
		if err != nil {
			return err
		}
		w.logger.WithFields(fields).Info(msg)
		return nil
	}
	return fmt.Errorf("format %s cannot encode %T", w.format, v)
}

func textRow(row Row) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] #%d %s -> %s proto=%d ttl=%d len=%d",
		row.Time, row.Index, row.Src, row.Dst, row.Protocol, row.TTL, row.OrigLen)
	if row.ICMPType != nil {
		fmt.Fprintf(&b, " icmp=%s type=%d code=%d id=%d seq=%d",
			row.ICMPName, *row.ICMPType, *row.ICMPCode, *row.ICMPID, *row.ICMPSeq)
	}
	fmt.Fprintf(&b, " payload_len=%d", row.PayloadLen)
	if row.Payload != "" {
		fmt.Fprintf(&b, " payload=%s", row.Payload)
	}
	if row.TransportError != "" {
		fmt.Fprintf(&b, " transport_error=%q", row.TransportError)
	}
	return b.String()
}

func (w *Writer) textFlows(flows []flow.Flow) error {
	table := tablewriter.NewWriter(w.w)
	table.SetHeader([]string{"Flow", "Packets", "First", "Last", "Duration", "Min", "Max", "Mean"})
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	for _, f := range flows {
		s := f.Summary()
		table.Append([]string{
			string(s.Key),
			fmt.Sprint(s.Packets),
			fmt.Sprintf("%.6f", s.First),
			fmt.Sprintf("%.6f", s.Last),
			fmt.Sprintf("%.6f", s.Duration),
			fmt.Sprintf("%.6f", s.MinInterval),
			fmt.Sprintf("%.6f", s.MaxInterval),
			fmt.Sprintf("%.6f", s.MeanInterval),
		})
		w.written++
	}
	table.Render()

	if !w.opts.Intervals {
		return nil
	}
	for _, f := range flows {
		intervals := f.Intervals()
		if len(intervals) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w.w, "\nFlow: %s\n", f.Key); err != nil {
			return err
		}
		for i, d := range intervals {
			if _, err := fmt.Fprintf(w.w, "  Packet %d->%d: %.6fs\n", i+1, i+2, d); err != nil {
				return err
			}
		}
	}
	return nil
}
