// Package decoder implements L2-L4 protocol stack decoding.
package decoder

import (
	"github.com/google/gopacket/layers"

	"firestige.xyz/echoscan/internal/core"
)

// Decoder decodes raw packet records into structured format.
type Decoder interface {
	Decode(linkType layers.LinkType, rec core.PacketRecord) (core.DecodedRecord, error)
}

// Config controls which layers the standard decoder walks.
type Config struct {
	// SkipTransport stops after the network layer, leaving ICMP undecoded.
	SkipTransport bool
}

// StandardDecoder walks link → IPv4 → ICMP. It holds no per-record state and
// is safe for concurrent use.
type StandardDecoder struct {
	cfg Config
}

// NewStandardDecoder creates a decoder with the given config.
func NewStandardDecoder(cfg Config) *StandardDecoder {
	return &StandardDecoder{cfg: cfg}
}

// Decode runs one record through the pipeline. A link or network failure
// returns a *core.DecodeError and the record should be dropped. An ICMP
// failure is not returned: the record comes back with ICMP nil and
// TransportErr set, since its earlier layers are still usable.
func (d *StandardDecoder) Decode(linkType layers.LinkType, rec core.PacketRecord) (core.DecodedRecord, error) {
	out := core.DecodedRecord{
		Index:      rec.Index,
		Timestamp:  rec.Timestamp,
		CaptureLen: rec.CaptureLen,
		OrigLen:    rec.OrigLen,
	}

	link, netData, err := DecodeLink(linkType, rec.Data)
	out.Link = link
	if err != nil {
		return out, &core.DecodeError{Layer: core.LayerLink, Err: err}
	}

	if link.EtherType != layers.EthernetTypeIPv4 {
		return out, &core.DecodeError{Layer: core.LayerNetwork, Err: core.ErrUnsupportedProto}
	}
	ip, err := DecodeIPv4(netData)
	out.Network = ip
	if err != nil {
		return out, &core.DecodeError{Layer: core.LayerNetwork, Err: err}
	}

	// Only ICMP reaches the transport decoder
	if d.cfg.SkipTransport || ip.Protocol != layers.IPProtocolICMPv4 {
		return out, nil
	}

	icmp, err := DecodeICMP(ip.Payload)
	if err != nil {
		out.TransportErr = &core.DecodeError{Layer: core.LayerTransport, Err: err}
		return out, nil
	}
	out.ICMP = &icmp
	return out, nil
}
