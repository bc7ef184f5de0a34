// Package capturetest builds synthetic capture files for tests: frames are
// serialized with gopacket and framed with pcapgo, and raw header helpers
// cover the byte layouts pcapgo refuses to produce (big endian, nanosecond,
// truncated or inconsistent records).
package capturetest

import (
	"bytes"
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Base is the timestamp of the first packet in generated captures.
var Base = time.Unix(1700000000, 0).UTC()

var (
	srcMAC = net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	dstMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
)

// Echo describes an ICMP message to serialize.
type Echo struct {
	Src     string
	Dst     string
	Type    uint8
	Code    uint8
	ID      uint16
	Seq     uint16
	Payload []byte
}

// Packet is one record of a generated capture.
type Packet struct {
	Time    time.Time
	Data    []byte
	OrigLen int // 0 means len(Data)
}

var serializeOpts = gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

func ipv4Layer(src, dst string, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Id:       0x1234,
		Protocol: proto,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
}

func serialize(tb testing.TB, ls ...gopacket.SerializableLayer) []byte {
	tb.Helper()
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOpts, ls...); err != nil {
		tb.Fatalf("serialize layers: %v", err)
	}
	return append([]byte(nil), buf.Bytes()...)
}

func icmpLayers(e Echo) []gopacket.SerializableLayer {
	return []gopacket.SerializableLayer{
		ipv4Layer(e.Src, e.Dst, layers.IPProtocolICMPv4),
		&layers.ICMPv4{
			TypeCode: layers.CreateICMPv4TypeCode(e.Type, e.Code),
			Id:       e.ID,
			Seq:      e.Seq,
		},
		gopacket.Payload(e.Payload),
	}
}

// RawICMP returns an IPv4+ICMP datagram with no link layer.
func RawICMP(tb testing.TB, e Echo) []byte {
	tb.Helper()
	return serialize(tb, icmpLayers(e)...)
}

// EthernetICMP returns an Ethernet frame carrying IPv4+ICMP.
func EthernetICMP(tb testing.TB, e Echo) []byte {
	tb.Helper()
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	return serialize(tb, append([]gopacket.SerializableLayer{eth}, icmpLayers(e)...)...)
}

// RawUDP returns an IPv4+UDP datagram with no link layer.
func RawUDP(tb testing.TB, src, dst string, payload []byte) []byte {
	tb.Helper()
	ip := ipv4Layer(src, dst, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 40000, DstPort: 53}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		tb.Fatalf("udp checksum layer: %v", err)
	}
	return serialize(tb, ip, udp, gopacket.Payload(payload))
}

// EthernetARP returns a non-IP Ethernet frame.
func EthernetARP(tb testing.TB) []byte {
	tb.Helper()
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: layers.EthernetBroadcast, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	return serialize(tb, eth, arp)
}

// Capture frames pkts into a little-endian microsecond pcap with pcapgo.
func Capture(tb testing.TB, linkType layers.LinkType, pkts ...Packet) []byte {
	tb.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	if err := w.WriteFileHeader(65535, linkType); err != nil {
		tb.Fatalf("write file header: %v", err)
	}
	for i, p := range pkts {
		orig := p.OrigLen
		if orig == 0 {
			orig = len(p.Data)
		}
		ci := gopacket.CaptureInfo{Timestamp: p.Time, CaptureLength: len(p.Data), Length: orig}
		if err := w.WritePacket(ci, p.Data); err != nil {
			tb.Fatalf("write packet %d: %v", i, err)
		}
	}
	return buf.Bytes()
}

// Sequence returns packets spaced by the given gaps, starting at Base.
func Sequence(gaps []time.Duration, frames ...[]byte) []Packet {
	pkts := make([]Packet, len(frames))
	ts := Base
	for i, f := range frames {
		if i > 0 && i-1 < len(gaps) {
			ts = ts.Add(gaps[i-1])
		}
		pkts[i] = Packet{Time: ts, Data: f}
	}
	return pkts
}

// GlobalHeader returns a 24-byte pcap global header in the given byte order.
func GlobalHeader(order binary.ByteOrder, nanosecond bool, network uint32) []byte {
	magic := uint32(0xa1b2c3d4)
	if nanosecond {
		magic = 0xa1b23c4d
	}
	b := make([]byte, 24)
	order.PutUint32(b[0:4], magic)
	order.PutUint16(b[4:6], 2)
	order.PutUint16(b[6:8], 4)
	order.PutUint32(b[16:20], 65535)
	order.PutUint32(b[20:24], network)
	return b
}

// RecordHeader returns a 16-byte per-record header.
func RecordHeader(order binary.ByteOrder, sec, frac, capLen, origLen uint32) []byte {
	b := make([]byte, 16)
	order.PutUint32(b[0:4], sec)
	order.PutUint32(b[4:8], frac)
	order.PutUint32(b[8:12], capLen)
	order.PutUint32(b[12:16], origLen)
	return b
}

// WriteFile stores data under the test's temp dir and returns the path.
func WriteFile(tb testing.TB, name string, data []byte) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}
