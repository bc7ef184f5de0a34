// Package core defines sentinel errors.
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors: one package-level value per failure, wrapped with context
// where it is raised.
var (
	// Capture file header errors
	ErrHeaderTooShort = errors.New("echoscan: capture header too short")
	ErrBadMagic       = errors.New("echoscan: unrecognized capture magic number")
	ErrPcapNG         = errors.New("echoscan: pcapng captures are not supported")
	ErrBadVersion     = errors.New("echoscan: unsupported capture format version")

	// Packet decoding errors
	ErrPacketTooShort       = errors.New("echoscan: packet too short")
	ErrUnsupportedLinkType  = errors.New("echoscan: unsupported link type")
	ErrUnsupportedEtherType = errors.New("echoscan: unsupported ethernet type")
	ErrUnsupportedProto     = errors.New("echoscan: unsupported protocol")
	ErrBadHeaderLength      = errors.New("echoscan: bad header length")

	// Configuration errors
	ErrConfigInvalid = errors.New("echoscan: invalid configuration")
)

// FormatError reports a capture whose global header cannot be used. It aborts
// the scan before any record is produced.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("capture format: %v", e.Err)
	}
	return fmt.Sprintf("capture format %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Layer identifies the protocol layer a DecodeError was raised at.
type Layer uint8

const (
	LayerLink Layer = iota + 1
	LayerNetwork
	LayerTransport
)

func (l Layer) String() string {
	switch l {
	case LayerLink:
		return "link"
	case LayerNetwork:
		return "network"
	case LayerTransport:
		return "transport"
	default:
		return fmt.Sprintf("layer(%d)", uint8(l))
	}
}

// DecodeError is a per-record failure at one layer. The scan recovers from
// it by skipping (or partially emitting) the record.
type DecodeError struct {
	Layer Layer
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s layer: %v", e.Layer, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err is a per-record DecodeError and returns
// the layer it was raised at.
func IsDecodeError(err error) (Layer, bool) {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Layer, true
	}
	return 0, false
}
