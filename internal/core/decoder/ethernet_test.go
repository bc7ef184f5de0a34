package decoder

import (
	"errors"
	"testing"

	"github.com/google/gopacket/layers"

	"firestige.xyz/echoscan/internal/core"
)

func TestDecodeEthernetBasic(t *testing.T) {
	// Simple Ethernet frame: Dst MAC, Src MAC, EtherType
	data := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, // Dst MAC
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, // Src MAC
		0x08, 0x00, // EtherType: IPv4
		0x45, 0x00, // Payload (start of IP header)
	}

	eth, payload, err := DecodeLink(layers.LinkTypeEthernet, data)
	if err != nil {
		t.Fatalf("DecodeLink failed: %v", err)
	}

	// Check Dst MAC
	expectedDstMAC := [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	if eth.DstMAC != expectedDstMAC {
		t.Errorf("Expected DstMAC %v, got %v", expectedDstMAC, eth.DstMAC)
	}

	// Check Src MAC
	expectedSrcMAC := [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	if eth.SrcMAC != expectedSrcMAC {
		t.Errorf("Expected SrcMAC %v, got %v", expectedSrcMAC, eth.SrcMAC)
	}

	// Check EtherType
	if eth.EtherType != layers.EthernetTypeIPv4 {
		t.Errorf("Expected EtherType 0x0800, got 0x%04x", uint16(eth.EtherType))
	}

	// Check payload
	if len(payload) != 2 {
		t.Errorf("Expected payload length 2, got %d", len(payload))
	}
}

func TestDecodeEthernetNonIPv4(t *testing.T) {
	tests := []struct {
		name      string
		etherType [2]byte
	}{
		{"ARP", [2]byte{0x08, 0x06}},
		{"IPv6", [2]byte{0x86, 0xDD}},
		{"VLAN", [2]byte{0x81, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, 42)
			data[12], data[13] = tt.etherType[0], tt.etherType[1]

			_, payload, err := DecodeLink(layers.LinkTypeEthernet, data)
			if !errors.Is(err, core.ErrUnsupportedEtherType) {
				t.Errorf("Expected ErrUnsupportedEtherType, got %v", err)
			}
			if payload != nil {
				t.Errorf("Expected nil payload, got %d bytes", len(payload))
			}
		})
	}
}

func TestDecodeEthernetTooShort(t *testing.T) {
	data := []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x08}

	_, _, err := DecodeLink(layers.LinkTypeEthernet, data)
	if !errors.Is(err, core.ErrPacketTooShort) {
		t.Errorf("Expected ErrPacketTooShort, got %v", err)
	}
}

func TestDecodeRawIP(t *testing.T) {
	data := []byte{0x45, 0x00, 0x00, 0x14}

	for _, lt := range []layers.LinkType{layers.LinkTypeRaw, layers.LinkTypeIPv4} {
		link, payload, err := DecodeLink(lt, data)
		if err != nil {
			t.Fatalf("DecodeLink(%v) failed: %v", lt, err)
		}
		if link.EtherType != layers.EthernetTypeIPv4 {
			t.Errorf("Expected IPv4 hint, got 0x%04x", uint16(link.EtherType))
		}
		if len(payload) != len(data) || &payload[0] != &data[0] {
			t.Errorf("Raw IP payload must be the whole record, unstripped")
		}
	}
}

func TestDecodeRawIPv6Hint(t *testing.T) {
	data := []byte{0x60, 0x00, 0x00, 0x00}

	link, _, err := DecodeLink(layers.LinkTypeRaw, data)
	if err != nil {
		t.Fatalf("DecodeLink failed: %v", err)
	}
	if link.EtherType != layers.EthernetTypeIPv6 {
		t.Errorf("Expected IPv6 hint, got 0x%04x", uint16(link.EtherType))
	}
}

func TestDecodeLinkUnsupported(t *testing.T) {
	_, _, err := DecodeLink(layers.LinkTypeLinuxSLL, make([]byte, 32))
	if !errors.Is(err, core.ErrUnsupportedLinkType) {
		t.Errorf("Expected ErrUnsupportedLinkType, got %v", err)
	}
}

func BenchmarkDecodeEthernet(b *testing.B) {
	data := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55,
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
		0x08, 0x00,
		0x45, 0x00,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, err := DecodeLink(layers.LinkTypeEthernet, data)
		if err != nil {
			b.Fatal(err)
		}
	}
}
