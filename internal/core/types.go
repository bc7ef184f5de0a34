// Package core defines core types shared by the reader, the decoders and the
// consumers of decoded records.
package core

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/google/gopacket/layers"
	"golang.org/x/net/ipv4"
)

// CaptureHeader is the 24-byte global header of a classic pcap file.
type CaptureHeader struct {
	Magic        uint32
	ByteOrder    binary.ByteOrder
	Nanosecond   bool // Sub-second field counts nanoseconds instead of microseconds
	VersionMajor uint16
	VersionMinor uint16
	ThisZone     int32
	SigFigs      uint32
	SnapLen      uint32
	Network      uint32          // Raw link-type field, FCS bits included
	LinkType     layers.LinkType // Link type proper, taken from the low bits of Network
}

// LinkHeader represents the stripped link-layer header.
type LinkHeader struct {
	LinkType  layers.LinkType
	EtherType layers.EthernetType // Network-layer protocol hint
	SrcMAC    [6]byte             // Zero for raw IP captures
	DstMAC    [6]byte
}

// NetworkHeader represents a decoded IPv4 header.
type NetworkHeader struct {
	Version   uint8
	HeaderLen int // IHL * 4, always 20..60
	TotalLen  uint16
	ID        uint16
	TTL       uint8
	Protocol  layers.IPProtocol
	SrcIP     netip.Addr
	DstIP     netip.Addr
	Payload   []byte // Bytes after the header, zero-copy slice of the record
}

// Datagram returns Payload cut to the length declared by TotalLen, which
// drops trailing link-layer padding. A total length below the header or
// beyond the captured bytes is ignored and Payload is returned whole.
func (h NetworkHeader) Datagram() []byte {
	total := int(h.TotalLen)
	if total < h.HeaderLen || total-h.HeaderLen >= len(h.Payload) {
		return h.Payload
	}
	return h.Payload[:total-h.HeaderLen]
}

// ICMPHeader represents a decoded ICMP header. The checksum is reported as
// read and never validated.
type ICMPHeader struct {
	Type     uint8
	Code     uint8
	Checksum uint16
	ID       uint16
	Seq      uint16
	Payload  []byte // Application bytes after the 8-byte header
}

// TypeName returns the IANA name of the ICMP message type, e.g. "echo reply".
// Unassigned types render as "type N".
func (h ICMPHeader) TypeName() string {
	if s := ipv4.ICMPType(h.Type).String(); s != "<nil>" {
		return s
	}
	return fmt.Sprintf("type %d", h.Type)
}

// IsEcho reports whether the message is an echo request or reply.
func (h ICMPHeader) IsEcho() bool {
	return h.Type == layers.ICMPv4TypeEchoRequest || h.Type == layers.ICMPv4TypeEchoReply
}
