// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"

	"firestige.xyz/echoscan/internal/core"
)

const (
	icmpHeaderLen = 8
)

// DecodeICMP decodes an ICMP header. The checksum is not verified; short and
// malformed input both fail with ErrPacketTooShort.
func DecodeICMP(data []byte) (core.ICMPHeader, error) {
	if len(data) < icmpHeaderLen {
		return core.ICMPHeader{}, core.ErrPacketTooShort
	}

	icmp := core.ICMPHeader{
		Type: data[0],
		Code: data[1],
	}

	// Checksum (2 bytes at offset 2) - reported, not validated
	icmp.Checksum = binary.BigEndian.Uint16(data[2:4])

	// Identifier (2 bytes at offset 4)
	icmp.ID = binary.BigEndian.Uint16(data[4:6])

	// Sequence Number (2 bytes at offset 6)
	icmp.Seq = binary.BigEndian.Uint16(data[6:8])

	icmp.Payload = data[icmpHeaderLen:]
	return icmp, nil
}
