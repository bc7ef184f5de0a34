package core

import (
	"errors"
	"fmt"
	"net/netip"
	"testing"
	"time"

	"golang.org/x/net/ipv4"
)

// Test zero values of core structs
func TestStructZeroValues(t *testing.T) {
	t.Run("NetworkHeader", func(t *testing.T) {
		var ip NetworkHeader
		if ip.Version != 0 {
			t.Errorf("expected Version=0, got %d", ip.Version)
		}
		if ip.SrcIP.IsValid() {
			t.Errorf("expected invalid SrcIP, got %v", ip.SrcIP)
		}
		if ip.Payload != nil {
			t.Errorf("expected Payload=nil, got %v", ip.Payload)
		}
	})

	t.Run("DecodedRecord", func(t *testing.T) {
		var rec DecodedRecord
		if rec.ICMP != nil {
			t.Errorf("expected ICMP=nil, got %+v", rec.ICMP)
		}
		if rec.TransportErr != nil {
			t.Errorf("expected TransportErr=nil, got %v", rec.TransportErr)
		}
		if rec.Payload() != nil {
			t.Errorf("expected nil payload, got %v", rec.Payload())
		}
	})
}

func TestSentinelErrors(t *testing.T) {
	t.Run("ErrorMessages", func(t *testing.T) {
		tests := []struct {
			err     error
			message string
		}{
			{ErrPacketTooShort, "echoscan: packet too short"},
			{ErrBadMagic, "echoscan: unrecognized capture magic number"},
			{ErrBadHeaderLength, "echoscan: bad header length"},
			{ErrUnsupportedLinkType, "echoscan: unsupported link type"},
		}

		for _, tt := range tests {
			if tt.err.Error() != tt.message {
				t.Errorf("expected error message %q, got %q", tt.message, tt.err.Error())
			}
		}
	})

	t.Run("FormatErrorUnwrap", func(t *testing.T) {
		err := fmt.Errorf("open: %w", &FormatError{Path: "a.pcap", Err: ErrBadMagic})
		if !errors.Is(err, ErrBadMagic) {
			t.Error("errors.Is failed for wrapped FormatError")
		}
		var fe *FormatError
		if !errors.As(err, &fe) || fe.Path != "a.pcap" {
			t.Errorf("errors.As failed, got %v", fe)
		}
		if got := fe.Error(); got != "capture format a.pcap: echoscan: unrecognized capture magic number" {
			t.Errorf("unexpected message %q", got)
		}
	})

	t.Run("DecodeErrorLayer", func(t *testing.T) {
		err := &DecodeError{Layer: LayerNetwork, Err: ErrBadHeaderLength}
		layer, ok := IsDecodeError(err)
		if !ok || layer != LayerNetwork {
			t.Errorf("expected network layer, got %v ok=%v", layer, ok)
		}
		if !errors.Is(err, ErrBadHeaderLength) {
			t.Error("errors.Is failed for DecodeError")
		}
		if _, ok := IsDecodeError(ErrBadMagic); ok {
			t.Error("plain sentinel must not be a DecodeError")
		}
	})
}

func TestLayerString(t *testing.T) {
	for layer, want := range map[Layer]string{
		LayerLink:      "link",
		LayerNetwork:   "network",
		LayerTransport: "transport",
		Layer(9):       "layer(9)",
	} {
		if got := layer.String(); got != want {
			t.Errorf("Layer(%d).String() = %q, want %q", layer, got, want)
		}
	}
}

func TestICMPHeaderTypeName(t *testing.T) {
	echo := ICMPHeader{Type: 8}
	if echo.TypeName() != ipv4.ICMPTypeEcho.String() {
		t.Errorf("unexpected name %q", echo.TypeName())
	}
	if !echo.IsEcho() || !(ICMPHeader{Type: 0}).IsEcho() {
		t.Error("echo request and reply must be echo messages")
	}
	if (ICMPHeader{Type: 3}).IsEcho() {
		t.Error("destination unreachable is not an echo message")
	}
	if got := (ICMPHeader{Type: 200}).TypeName(); got != "type 200" {
		t.Errorf("expected fallback name, got %q", got)
	}
}

func TestRecordAccessors(t *testing.T) {
	rec := DecodedRecord{
		Timestamp: 1700000000.25,
		Network: NetworkHeader{
			SrcIP:   netip.MustParseAddr("10.0.0.1"),
			DstIP:   netip.MustParseAddr("10.0.0.2"),
			Payload: []byte{1, 2, 3},
		},
	}
	if rec.Src() != "10.0.0.1" || rec.Dst() != "10.0.0.2" {
		t.Errorf("unexpected addresses %s -> %s", rec.Src(), rec.Dst())
	}
	if len(rec.Payload()) != 3 {
		t.Errorf("expected network payload without ICMP, got %v", rec.Payload())
	}

	rec.ICMP = &ICMPHeader{Payload: []byte("hi")}
	if string(rec.Payload()) != "hi" {
		t.Errorf("expected ICMP payload, got %q", rec.Payload())
	}

	want := time.Unix(1700000000, 250*int64(time.Millisecond)).UTC()
	if !rec.Time().Equal(want) {
		t.Errorf("expected %v, got %v", want, rec.Time())
	}
}

func TestPacketRecordTime(t *testing.T) {
	p := PacketRecord{TsSec: 10, TsFrac: 5}
	if got := p.Time(false); !got.Equal(time.Unix(10, 5000)) {
		t.Errorf("microsecond time mismatch: %v", got)
	}
	if got := p.Time(true); !got.Equal(time.Unix(10, 5)) {
		t.Errorf("nanosecond time mismatch: %v", got)
	}
}
