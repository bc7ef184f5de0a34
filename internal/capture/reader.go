// Package capture reads classic pcap capture files record by record.
package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/gopacket/layers"

	"firestige.xyz/echoscan/internal/core"
)

const (
	globalHeaderLen = 24
	recordHeaderLen = 16

	magicMicroseconds = 0xa1b2c3d4
	magicNanoseconds  = 0xa1b23c4d
	magicPcapNG       = 0x0a0d0d0a

	versionMajor = 2

	// DefaultMaxRecordLen matches the largest snaplen libpcap writes.
	DefaultMaxRecordLen = 262144
)

// Option configures a Reader.
type Option func(*Reader)

// WithMaxRecordLen bounds the captured length a record may declare. Larger
// declarations end the stream. A header snaplen above the bound raises it.
func WithMaxRecordLen(n uint32) Option {
	return func(r *Reader) {
		if n > 0 {
			r.maxRecordLen = n
		}
	}
}

// Reader iterates the records of one capture. It is single-pass: once Next
// has returned io.EOF the capture must be reopened to be read again. A Reader
// is not safe for concurrent use; readers of different files share nothing.
type Reader struct {
	r            io.Reader
	closer       io.Closer
	header       core.CaptureHeader
	maxRecordLen uint32

	buf          [recordHeaderLen]byte
	index        int
	inconsistent int
	truncated    bool
	done         bool
}

// NewReader parses the global header from r. A missing, short or
// inconsistent header yields a *core.FormatError.
func NewReader(r io.Reader, opts ...Option) (*Reader, error) {
	rd := &Reader{r: r, maxRecordLen: DefaultMaxRecordLen}
	for _, opt := range opts {
		opt(rd)
	}

	hdr, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	rd.header = hdr
	if hdr.SnapLen > rd.maxRecordLen {
		rd.maxRecordLen = hdr.SnapLen
	}
	return rd, nil
}

func readHeader(r io.Reader) (core.CaptureHeader, error) {
	var buf [globalHeaderLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return core.CaptureHeader{}, &core.FormatError{Err: core.ErrHeaderTooShort}
		}
		return core.CaptureHeader{}, fmt.Errorf("read capture header: %w", err)
	}

	hdr := core.CaptureHeader{}

	// Magic number decides byte order and timestamp resolution
	switch magic := binary.LittleEndian.Uint32(buf[0:4]); magic {
	case magicMicroseconds:
		hdr.ByteOrder = binary.LittleEndian
	case magicNanoseconds:
		hdr.ByteOrder, hdr.Nanosecond = binary.LittleEndian, true
	default:
		switch binary.BigEndian.Uint32(buf[0:4]) {
		case magicMicroseconds:
			hdr.ByteOrder = binary.BigEndian
		case magicNanoseconds:
			hdr.ByteOrder, hdr.Nanosecond = binary.BigEndian, true
		case magicPcapNG:
			return hdr, &core.FormatError{Err: core.ErrPcapNG}
		default:
			return hdr, &core.FormatError{Err: fmt.Errorf("%w: 0x%08x", core.ErrBadMagic, magic)}
		}
	}

	order := hdr.ByteOrder
	hdr.Magic = order.Uint32(buf[0:4])
	hdr.VersionMajor = order.Uint16(buf[4:6])
	hdr.VersionMinor = order.Uint16(buf[6:8])
	hdr.ThisZone = int32(order.Uint32(buf[8:12]))
	hdr.SigFigs = order.Uint32(buf[12:16])
	hdr.SnapLen = order.Uint32(buf[16:20])
	hdr.Network = order.Uint32(buf[20:24])
	hdr.LinkType = layers.LinkType(hdr.Network & 0xFFFF)

	if hdr.VersionMajor != versionMajor {
		return hdr, &core.FormatError{Err: fmt.Errorf("%w: %d.%d", core.ErrBadVersion, hdr.VersionMajor, hdr.VersionMinor)}
	}
	return hdr, nil
}

// Header returns the global header read when the reader was created.
func (r *Reader) Header() core.CaptureHeader {
	return r.header
}

// LinkType returns the link type every record's link layer is decoded with.
func (r *Reader) LinkType() layers.LinkType {
	return r.header.LinkType
}

// Next returns the next complete record. io.EOF marks the end of the
// capture, including a capture cut short in the middle of a record. Records
// whose captured length exceeds their original length are returned as read
// and counted by Inconsistent.
func (r *Reader) Next() (core.PacketRecord, error) {
	if r.done {
		return core.PacketRecord{}, io.EOF
	}
	rec, err := r.next()
	if err != nil {
		r.done = true
		return core.PacketRecord{}, err
	}
	return rec, nil
}

func (r *Reader) next() (core.PacketRecord, error) {
	n, err := io.ReadFull(r.r, r.buf[:])
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			r.truncated = n > 0
			return core.PacketRecord{}, io.EOF
		}
		return core.PacketRecord{}, fmt.Errorf("read record header: %w", err)
	}

	order := r.header.ByteOrder
	rec := core.PacketRecord{
		Index:      r.index,
		TsSec:      order.Uint32(r.buf[0:4]),
		TsFrac:     order.Uint32(r.buf[4:8]),
		CaptureLen: order.Uint32(r.buf[8:12]),
		OrigLen:    order.Uint32(r.buf[12:16]),
	}
	r.index++

	// An absurd length means the framing is lost; nothing after it can be trusted
	if rec.CaptureLen > r.maxRecordLen {
		r.truncated = true
		return core.PacketRecord{}, io.EOF
	}

	rec.Data = make([]byte, rec.CaptureLen)
	if _, err := io.ReadFull(r.r, rec.Data); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			r.truncated = true
			return core.PacketRecord{}, io.EOF
		}
		return core.PacketRecord{}, fmt.Errorf("read record %d: %w", rec.Index, err)
	}

	// Hand-built captures often leave the original length at 0
	if rec.CaptureLen > rec.OrigLen {
		r.inconsistent++
	}

	divisor := 1e6
	if r.header.Nanosecond {
		divisor = 1e9
	}
	rec.Timestamp = float64(rec.TsSec) + float64(rec.TsFrac)/divisor
	return rec, nil
}

// Truncated reports whether the capture ended inside a record.
func (r *Reader) Truncated() bool {
	return r.truncated
}

// Inconsistent returns the number of records read so far that declare a
// captured length larger than their original length.
func (r *Reader) Inconsistent() int {
	return r.inconsistent
}

// Close releases the underlying file, if the reader owns one. It is safe to
// call more than once.
func (r *Reader) Close() error {
	r.done = true
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}
