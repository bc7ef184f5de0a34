// Package core defines core data structures.
package core

import (
	"math"
	"time"
)

// PacketRecord is one captured frame as read from the capture file.
// It is transient: the reader does not keep it after Next returns.
type PacketRecord struct {
	Index      int     // 0-based position in the capture
	Timestamp  float64 // Epoch seconds, sub-second fraction included
	TsSec      uint32
	TsFrac     uint32 // Microseconds, or nanoseconds for nanosecond captures
	CaptureLen uint32 // Bytes present in Data
	OrigLen    uint32 // Bytes on the wire
	Data       []byte
}

// Time returns the timestamp as a time.Time. The float Timestamp stays the
// ordering key; Time is exact because it is rebuilt from the raw fields.
func (p PacketRecord) Time(nanosecond bool) time.Time {
	if nanosecond {
		return time.Unix(int64(p.TsSec), int64(p.TsFrac)).UTC()
	}
	return time.Unix(int64(p.TsSec), int64(p.TsFrac)*int64(time.Microsecond)).UTC()
}

// DecodedRecord is the result of running one PacketRecord through the
// link → network → transport pipeline.
type DecodedRecord struct {
	Index      int
	Timestamp  float64
	CaptureLen uint32
	OrigLen    uint32
	Link       LinkHeader
	Network    NetworkHeader
	ICMP       *ICMPHeader // nil unless the protocol is ICMP and it decoded
	// TransportErr is set when the protocol was ICMP but the ICMP header
	// could not be decoded. Link and network fields remain valid.
	TransportErr error
}

// Src returns the source address in dotted-decimal form.
func (r DecodedRecord) Src() string { return r.Network.SrcIP.String() }

// Dst returns the destination address in dotted-decimal form.
func (r DecodedRecord) Dst() string { return r.Network.DstIP.String() }

// Payload returns the ICMP payload when ICMP decoded, otherwise the
// transport-layer bytes following the IP header.
func (r DecodedRecord) Payload() []byte {
	if r.ICMP != nil {
		return r.ICMP.Payload
	}
	return r.Network.Payload
}

// Time converts the float timestamp to a time.Time with microsecond rounding.
func (r DecodedRecord) Time() time.Time {
	sec, frac := math.Modf(r.Timestamp)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond)).UTC()
}
