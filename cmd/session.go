package cmd

import (
	"fmt"

	"github.com/google/uuid"

	"firestige.xyz/echoscan/internal/capture"
	"firestige.xyz/echoscan/internal/config"
	"firestige.xyz/echoscan/internal/core/decoder"
	"firestige.xyz/echoscan/internal/filter"
	"firestige.xyz/echoscan/internal/log"
	"firestige.xyz/echoscan/internal/metrics"
	"firestige.xyz/echoscan/internal/scan"
)

// session is one capture opened for scanning.
type session struct {
	path    string
	id      string
	logger  log.Logger
	reader  *capture.Reader
	scanner *scan.Scanner
}

func openSession(c *config.Config, path string) (*session, error) {
	f, err := buildFilter(c.Scan)
	if err != nil {
		return nil, err
	}

	r, err := capture.Open(path, capture.WithMaxRecordLen(c.Scan.MaxRecordLen))
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger := log.GetLogger().WithFields(map[string]interface{}{
		"scan_id": id,
		"file":    path,
	})
	logger.WithField("link_type", r.LinkType().String()).Debug("capture opened")

	sc := scan.New(r,
		scan.WithDecoder(decoder.NewStandardDecoder(decoder.Config{SkipTransport: !c.Scan.DecodeTransport})),
		scan.WithFilter(f),
		scan.WithLogger(logger),
		scan.WithLogLimit(scan.LogLimitConfig{MaxPerLayer: c.Scan.LogLimit}),
	)
	return &session{path: path, id: id, logger: logger, reader: r, scanner: sc}, nil
}

func (s *session) Close() error {
	return s.reader.Close()
}

// logStats reports the counters of a finished scan.
func (s *session) logStats() {
	st := s.scanner.Stats()
	s.logger.WithFields(map[string]interface{}{
		"read":       st.Read,
		"emitted":    st.Emitted,
		"filtered":   st.Filtered,
		"dropped":    st.Dropped(),
		"suppressed": st.Suppressed,
	}).Info("scan complete")
}

// buildFilter chains the BPF program and the ICMP type list, both optional.
func buildFilter(c config.ScanConfig) (filter.Filter, error) {
	var filters []filter.Filter
	if c.BPFProgram != "" {
		bpf, err := filter.LoadBPF(c.BPFProgram)
		if err != nil {
			return nil, err
		}
		filters = append(filters, bpf)
	}

	types := make([]uint8, 0, len(c.ICMPTypes))
	for _, t := range c.ICMPTypes {
		if t < 0 || t > 255 {
			return nil, fmt.Errorf("invalid ICMP type %d", t)
		}
		types = append(types, uint8(t))
	}
	filters = append(filters, filter.ICMPTypes(types...))

	return filter.NewChain(filters...), nil
}

// newCollector returns nil when no metrics textfile is configured.
func newCollector(c *config.Config) *metrics.Collector {
	if c.Metrics.Textfile == "" {
		return nil
	}
	return metrics.New()
}

func exportMetrics(c *config.Config, mc *metrics.Collector) error {
	if mc == nil {
		return nil
	}
	if err := mc.WriteTextfile(c.Metrics.Textfile); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	log.GetLogger().WithField("path", c.Metrics.Textfile).Debug("metrics written")
	return nil
}
