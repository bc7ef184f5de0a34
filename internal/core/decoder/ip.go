// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"
	"net/netip"

	"github.com/google/gopacket/layers"

	"firestige.xyz/echoscan/internal/core"
)

const (
	ipv4HeaderMinLen = 20
)

// DecodeIPv4 decodes an IPv4 header.
// Returns the NetworkHeader with every byte after the header attached as
// payload. The version nibble is recorded but not checked; the link layer
// already selected IPv4.
func DecodeIPv4(data []byte) (core.NetworkHeader, error) {
	if len(data) < ipv4HeaderMinLen {
		return core.NetworkHeader{}, core.ErrPacketTooShort
	}

	// IP version (first 4 bits)
	version := data[0] >> 4

	// IHL (Internet Header Length) - lower 4 bits of first byte
	headerLen := int(data[0]&0x0F) * 4 // IHL is in 32-bit words

	if headerLen < ipv4HeaderMinLen || len(data) < headerLen {
		return core.NetworkHeader{Version: version, HeaderLen: headerLen}, core.ErrBadHeaderLength
	}

	ip := core.NetworkHeader{
		Version:   version,
		HeaderLen: headerLen,
	}

	// Total Length (2 bytes at offset 2)
	ip.TotalLen = binary.BigEndian.Uint16(data[2:4])

	// Identification (2 bytes at offset 4)
	ip.ID = binary.BigEndian.Uint16(data[4:6])

	// TTL (1 byte at offset 8)
	ip.TTL = data[8]

	// Protocol (1 byte at offset 9)
	ip.Protocol = layers.IPProtocol(data[9])

	// Source IP (4 bytes at offset 12)
	ip.SrcIP = netip.AddrFrom4([4]byte(data[12:16]))

	// Destination IP (4 bytes at offset 16)
	ip.DstIP = netip.AddrFrom4([4]byte(data[16:20]))

	// Payload is everything after the IP header, link-layer padding included.
	// Datagram bounds it by the total length.
	ip.Payload = data[headerLen:]
	return ip, nil
}
