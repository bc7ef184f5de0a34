// Package scan drives a capture reader through the decoder pipeline.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/gopacket/layers"

	"firestige.xyz/echoscan/internal/capture"
	"firestige.xyz/echoscan/internal/core"
	"firestige.xyz/echoscan/internal/core/decoder"
	"firestige.xyz/echoscan/internal/filter"
	"firestige.xyz/echoscan/internal/log"
)

// Stats counts what happened to the records of one capture.
type Stats struct {
	Read     int // Records returned by the reader
	Emitted  int // Records handed to the caller
	Filtered int // Records rejected by the filter

	LinkErrors      int // Records dropped: link layer failed
	NetworkErrors   int // Records dropped: network layer failed
	TransportErrors int // Records emitted without their ICMP header

	ICMPPackets  int
	TCPPackets   int
	UDPPackets   int
	OtherPackets int

	Inconsistent int  // Records with captured length above original length
	Truncated    bool // The capture ended inside a record
	Suppressed   int  // Failures not logged because of the log limit
}

// Dropped returns the number of records lost to link or network failures.
func (s Stats) Dropped() int {
	return s.LinkErrors + s.NetworkErrors
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithDecoder replaces the standard decoder.
func WithDecoder(d decoder.Decoder) Option {
	return func(s *Scanner) {
		if d != nil {
			s.decoder = d
		}
	}
}

// WithFilter sets the filter records must pass.
func WithFilter(f filter.Filter) Option {
	return func(s *Scanner) { s.filter = f }
}

// WithLogger sets the logger decode failures are reported to.
func WithLogger(l log.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLogLimit caps the number of failures logged per layer.
func WithLogLimit(cfg LogLimitConfig) Option {
	return func(s *Scanner) { s.limiter = newLogLimiter(cfg) }
}

// Scanner yields the decoded records of one capture in file order. Records
// whose link or network layer cannot be decoded are logged and left out;
// records whose ICMP header cannot be decoded are kept with ICMP nil. A
// Scanner is single-pass and not safe for concurrent use.
type Scanner struct {
	r        *capture.Reader
	linkType layers.LinkType
	decoder  decoder.Decoder
	filter   filter.Filter
	logger   log.Logger
	limiter  *logLimiter

	pr    core.PacketRecord
	rec   core.DecodedRecord
	err   error
	done  bool
	stats Stats
}

// New creates a scanner over r.
func New(r *capture.Reader, opts ...Option) *Scanner {
	s := &Scanner{
		r:        r,
		linkType: r.LinkType(),
		decoder:  decoder.NewStandardDecoder(decoder.Config{}),
		logger:   log.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan advances to the next emitted record. It returns false at the end of
// the capture or on a read error; Err tells the two apart.
func (s *Scanner) Scan() bool {
	for !s.done {
		pr, err := s.r.Next()
		if err != nil {
			s.finish(err)
			return false
		}
		s.stats.Read++
		if pr.CaptureLen > pr.OrigLen {
			s.logger.WithFields(map[string]interface{}{
				"record":      pr.Index,
				"capture_len": pr.CaptureLen,
				"orig_len":    pr.OrigLen,
			}).Debug("captured length exceeds original length")
		}

		if s.filter != nil && !s.filter.MatchRaw(s.linkType, pr.Data) {
			s.stats.Filtered++
			continue
		}

		rec, err := s.decoder.Decode(s.linkType, pr)
		if err != nil {
			s.fail(pr.Index, pr.Timestamp, err)
			continue
		}
		if rec.TransportErr != nil {
			s.fail(pr.Index, pr.Timestamp, rec.TransportErr)
		}

		if s.filter != nil && !s.filter.Match(rec) {
			s.stats.Filtered++
			continue
		}

		s.count(rec)
		s.pr = pr
		s.rec = rec
		return true
	}
	return false
}

func (s *Scanner) finish(err error) {
	s.done = true
	s.pr = core.PacketRecord{}
	s.rec = core.DecodedRecord{}
	if !errors.Is(err, io.EOF) {
		s.err = err
	}
	if s.r.Truncated() {
		s.logger.WithField("records", s.stats.Read).Warn("capture ends inside a record")
	}
}

func (s *Scanner) fail(index int, ts float64, err error) {
	layer, _ := core.IsDecodeError(err)
	switch layer {
	case core.LayerLink:
		s.stats.LinkErrors++
	case core.LayerNetwork:
		s.stats.NetworkErrors++
	case core.LayerTransport:
		s.stats.TransportErrors++
	}

	rec := core.DecodedRecord{Timestamp: ts}
	if !s.limiter.Allow(layer, rec.Time()) {
		return
	}
	s.logger.WithFields(map[string]interface{}{
		"record": index,
		"layer":  layer.String(),
	}).WithError(err).Debug("decode failed")
}

func (s *Scanner) count(rec core.DecodedRecord) {
	s.stats.Emitted++
	switch rec.Network.Protocol {
	case layers.IPProtocolICMPv4:
		s.stats.ICMPPackets++
	case layers.IPProtocolTCP:
		s.stats.TCPPackets++
	case layers.IPProtocolUDP:
		s.stats.UDPPackets++
	default:
		s.stats.OtherPackets++
	}
}

// Record returns the record found by the last successful Scan.
func (s *Scanner) Record() core.DecodedRecord {
	return s.rec
}

// Packet returns the raw record behind Record. Its Data is only valid until
// the next call to Scan.
func (s *Scanner) Packet() core.PacketRecord {
	return s.pr
}

// Err returns the first non-EOF error met while reading.
func (s *Scanner) Err() error {
	return s.err
}

// Stats returns the counters so far.
func (s *Scanner) Stats() Stats {
	st := s.stats
	st.Inconsistent = s.r.Inconsistent()
	st.Truncated = s.r.Truncated()
	st.Suppressed = s.limiter.Suppressed()
	return st
}

// Run calls fn for every emitted record until the capture ends, ctx is done
// or fn fails.
func (s *Scanner) Run(ctx context.Context, fn func(core.DecodedRecord) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.Scan() {
			return s.Err()
		}
		if err := fn(s.rec); err != nil {
			return fmt.Errorf("record %d: %w", s.rec.Index, err)
		}
	}
}

// Collect runs the scanner to the end and returns every emitted record.
func (s *Scanner) Collect(ctx context.Context) ([]core.DecodedRecord, error) {
	var recs []core.DecodedRecord
	err := s.Run(ctx, func(rec core.DecodedRecord) error {
		recs = append(recs, rec)
		return nil
	})
	return recs, err
}
