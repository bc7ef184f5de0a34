// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"

	"github.com/google/gopacket/layers"

	"firestige.xyz/echoscan/internal/core"
)

const (
	// Ethernet constants
	ethernetHeaderLen = 14
)

// DecodeLink strips the link-layer header selected by the capture's declared
// link type. Returns the LinkHeader and the network-layer bytes.
func DecodeLink(linkType layers.LinkType, data []byte) (core.LinkHeader, []byte, error) {
	switch linkType {
	case layers.LinkTypeEthernet:
		return decodeEthernet(data)
	case layers.LinkTypeRaw, layers.LinkTypeIPv4:
		return decodeRawIP(linkType, data)
	default:
		return core.LinkHeader{LinkType: linkType}, nil, core.ErrUnsupportedLinkType
	}
}

// decodeEthernet decodes an untagged Ethernet II header. Only IPv4 frames are
// passed on.
func decodeEthernet(data []byte) (core.LinkHeader, []byte, error) {
	eth := core.LinkHeader{LinkType: layers.LinkTypeEthernet}
	if len(data) < ethernetHeaderLen {
		return eth, nil, core.ErrPacketTooShort
	}

	// Destination MAC (6 bytes)
	copy(eth.DstMAC[:], data[0:6])

	// Source MAC (6 bytes)
	copy(eth.SrcMAC[:], data[6:12])

	// EtherType (2 bytes)
	eth.EtherType = layers.EthernetType(binary.BigEndian.Uint16(data[12:14]))
	if eth.EtherType != layers.EthernetTypeIPv4 {
		return eth, nil, core.ErrUnsupportedEtherType
	}

	return eth, data[ethernetHeaderLen:], nil
}

// decodeRawIP handles captures without a link layer: the whole record is the
// network-layer payload.
func decodeRawIP(linkType layers.LinkType, data []byte) (core.LinkHeader, []byte, error) {
	link := core.LinkHeader{
		LinkType:  linkType,
		EtherType: layers.EthernetTypeIPv4,
	}
	// LINKTYPE_RAW may carry either IP version; LINKTYPE_IPV4 is IPv4 only.
	if linkType == layers.LinkTypeRaw && len(data) > 0 && data[0]>>4 == 6 {
		link.EtherType = layers.EthernetTypeIPv6
	}
	return link, data, nil
}
