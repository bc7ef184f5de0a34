package capture

import (
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/echoscan/internal/core"
)

// Writer writes records to a little-endian microsecond pcap stream.
type Writer struct {
	w          *pcapgo.Writer
	nanosecond bool
	written    int
}

// NewWriter writes the global header and returns a Writer. nanosecond tells
// how TsFrac of the records passed to WritePacket is to be read.
func NewWriter(w io.Writer, snapLen uint32, linkType layers.LinkType, nanosecond bool) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, linkType); err != nil {
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	return &Writer{w: pw, nanosecond: nanosecond}, nil
}

// WritePacket appends one record, keeping its timestamp and lengths. An
// original length below the captured length is raised to match it.
func (w *Writer) WritePacket(rec core.PacketRecord) error {
	ci := gopacket.CaptureInfo{
		Timestamp:     rec.Time(w.nanosecond).Truncate(time.Microsecond),
		CaptureLength: len(rec.Data),
		Length:        max(int(rec.OrigLen), len(rec.Data)),
	}
	if err := w.w.WritePacket(ci, rec.Data); err != nil {
		return fmt.Errorf("write record %d: %w", rec.Index, err)
	}
	w.written++
	return nil
}

// Written returns the number of records written so far.
func (w *Writer) Written() int {
	return w.written
}
