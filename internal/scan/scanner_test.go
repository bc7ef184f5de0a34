package scan

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/echoscan/internal/capture"
	"firestige.xyz/echoscan/internal/capture/capturetest"
	"firestige.xyz/echoscan/internal/config"
	"firestige.xyz/echoscan/internal/core"
	"firestige.xyz/echoscan/internal/core/decoder"
	"firestige.xyz/echoscan/internal/filter"
	"firestige.xyz/echoscan/internal/log"
)

func newScanner(t *testing.T, data []byte, opts ...Option) *Scanner {
	t.Helper()
	r, err := capture.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	return New(r, opts...)
}

func echo(seq uint16, typ uint8) capturetest.Echo {
	return capturetest.Echo{Src: "10.0.0.1", Dst: "10.0.0.2", Type: typ, ID: 0x1234, Seq: seq}
}

func bufferLogger(t *testing.T, buf *bytes.Buffer) log.Logger {
	t.Helper()
	cfg := config.Default().Log
	cfg.Level = "debug"
	l, err := log.New(cfg, buf)
	require.NoError(t, err)
	return l
}

func TestScanRawIPEchoRequest(t *testing.T) {
	var data bytes.Buffer
	data.Write(capturetest.GlobalHeader(binary.LittleEndian, false, 101))
	data.Write(capturetest.RecordHeader(binary.LittleEndian, 1700000000, 0, 28, 28))
	data.Write([]byte{
		0x45, 0x00, 0x00, 0x1C, 0x00, 0x01, 0x00, 0x00,
		0x40, 0x01, 0x00, 0x00, 10, 0, 0, 1, 10, 0, 0, 2,
		0x08, 0x00, 0x00, 0x00, 0x12, 0x34, 0x00, 0x01,
	})

	recs, err := newScanner(t, data.Bytes()).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, layers.IPProtocolICMPv4, rec.Network.Protocol)
	require.NotNil(t, rec.ICMP)
	assert.Equal(t, uint8(8), rec.ICMP.Type)
	assert.Equal(t, uint16(4660), rec.ICMP.ID)
	assert.Equal(t, uint16(1), rec.ICMP.Seq)
}

func TestScanKeepsRecordWithUnsetOriginalLength(t *testing.T) {
	var data bytes.Buffer
	data.Write(capturetest.GlobalHeader(binary.LittleEndian, false, 101))
	data.Write(capturetest.RecordHeader(binary.LittleEndian, 1700000000, 0, 28, 0))
	data.Write([]byte{
		0x45, 0x00, 0x00, 0x1C, 0x00, 0x01, 0x00, 0x00,
		0x40, 0x01, 0x00, 0x00, 10, 0, 0, 1, 10, 0, 0, 2,
		0x08, 0x00, 0x00, 0x00, 0x12, 0x34, 0x00, 0x01,
	})

	var logs bytes.Buffer
	s := newScanner(t, data.Bytes(), WithLogger(bufferLogger(t, &logs)))
	recs, err := s.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].ICMP)
	assert.Equal(t, uint16(1), recs[0].ICMP.Seq)

	st := s.Stats()
	assert.Equal(t, 1, st.Read)
	assert.Equal(t, 1, st.Emitted)
	assert.Equal(t, 1, st.Inconsistent)
	assert.Contains(t, logs.String(), "captured length exceeds original length")
}

func TestScanYieldsEveryRecordInOrder(t *testing.T) {
	for _, linkType := range []layers.LinkType{layers.LinkTypeEthernet, layers.LinkTypeRaw} {
		t.Run(linkType.String(), func(t *testing.T) {
			var frames [][]byte
			for i := 0; i < 20; i++ {
				e := echo(uint16(i), uint8(8*(i%2)))
				if linkType == layers.LinkTypeEthernet {
					frames = append(frames, capturetest.EthernetICMP(t, e))
				} else {
					frames = append(frames, capturetest.RawICMP(t, e))
				}
			}
			gaps := make([]time.Duration, len(frames))
			for i := range gaps {
				gaps[i] = time.Duration(i%3) * 250 * time.Millisecond
			}
			data := capturetest.Capture(t, linkType, capturetest.Sequence(gaps, frames...)...)

			s := newScanner(t, data)
			recs, err := s.Collect(context.Background())
			require.NoError(t, err)
			require.Len(t, recs, len(frames))

			for i, rec := range recs {
				assert.Equal(t, i, rec.Index)
				assert.Equal(t, uint16(i), rec.ICMP.Seq)
				if i > 0 {
					assert.GreaterOrEqual(t, rec.Timestamp, recs[i-1].Timestamp)
				}
			}

			st := s.Stats()
			assert.Equal(t, 20, st.Read)
			assert.Equal(t, 20, st.Emitted)
			assert.Equal(t, 20, st.ICMPPackets)
			assert.False(t, st.Truncated)
		})
	}
}

func TestScanHeaderLengthBeyondDataDropsOneRecord(t *testing.T) {
	good := capturetest.RawICMP(t, echo(2, 8))
	bad := append([]byte(nil), good[:20]...)
	bad[0] = 0x4F // 60-byte header, 20 bytes present

	frames := func(middle []byte) []byte {
		return capturetest.Capture(t, layers.LinkTypeRaw, capturetest.Sequence(nil,
			capturetest.RawICMP(t, echo(1, 8)), middle, capturetest.RawICMP(t, echo(3, 8)))...)
	}

	s := newScanner(t, frames(bad))
	recs, err := s.Collect(context.Background())
	require.NoError(t, err)

	corrected, err := newScanner(t, frames(good)).Collect(context.Background())
	require.NoError(t, err)

	assert.Len(t, recs, len(corrected)-1)
	require.Len(t, recs, 2)
	assert.Equal(t, uint16(1), recs[0].ICMP.Seq)
	assert.Equal(t, uint16(3), recs[1].ICMP.Seq, "scan continues after the failed record")
	assert.Equal(t, 1, s.Stats().NetworkErrors)
	assert.Equal(t, 1, s.Stats().Dropped())
}

func TestScanNonICMPHasNoTransport(t *testing.T) {
	data := capturetest.Capture(t, layers.LinkTypeRaw, capturetest.Sequence(nil,
		capturetest.RawUDP(t, "10.0.0.1", "10.0.0.53", []byte("query")),
		capturetest.RawICMP(t, echo(1, 8)))...)

	s := newScanner(t, data)
	recs, err := s.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, layers.IPProtocolUDP, recs[0].Network.Protocol)
	assert.Nil(t, recs[0].ICMP)
	assert.NoError(t, recs[0].TransportErr)
	assert.Equal(t, 1, s.Stats().UDPPackets)
	assert.Equal(t, 1, s.Stats().ICMPPackets)
}

func TestScanKeepsPartialTransportRecords(t *testing.T) {
	short := capturetest.RawICMP(t, echo(1, 8))[:24]
	short[3] = 24 // total length

	var logs bytes.Buffer
	s := newScanner(t, capturetest.Capture(t, layers.LinkTypeRaw, capturetest.Sequence(nil, short)...),
		WithLogger(bufferLogger(t, &logs)))

	recs, err := s.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].ICMP)
	assert.Error(t, recs[0].TransportErr)
	assert.Equal(t, 1, s.Stats().TransportErrors)
	assert.Equal(t, 0, s.Stats().Dropped())
	assert.Contains(t, logs.String(), "layer=transport")
}

func TestScanSkipsNonIPFrames(t *testing.T) {
	data := capturetest.Capture(t, layers.LinkTypeEthernet, capturetest.Sequence(nil,
		capturetest.EthernetARP(t),
		capturetest.EthernetICMP(t, echo(1, 8)))...)

	s := newScanner(t, data)
	recs, err := s.Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, 1, s.Stats().LinkErrors)
}

func TestScanTruncatedCapture(t *testing.T) {
	data := capturetest.Capture(t, layers.LinkTypeRaw, capturetest.Sequence(nil,
		capturetest.RawICMP(t, echo(1, 8)),
		capturetest.RawICMP(t, echo(2, 8)))...)

	var logs bytes.Buffer
	s := newScanner(t, data[:len(data)-5], WithLogger(bufferLogger(t, &logs)))
	recs, err := s.Collect(context.Background())
	require.NoError(t, err, "truncation is not an error")
	assert.Len(t, recs, 1)
	assert.True(t, s.Stats().Truncated)
	assert.Contains(t, logs.String(), "capture ends inside a record")

	assert.False(t, s.Scan(), "scanner is single-pass")
}

func TestScanFilters(t *testing.T) {
	data := capturetest.Capture(t, layers.LinkTypeRaw, capturetest.Sequence(nil,
		capturetest.RawICMP(t, echo(1, 8)),
		capturetest.RawICMP(t, echo(1, 0)),
		capturetest.RawUDP(t, "10.0.0.1", "10.0.0.53", nil),
		capturetest.RawICMP(t, echo(2, 8)))...)

	s := newScanner(t, data, WithFilter(filter.ICMPTypes(8)))
	recs, err := s.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, uint16(1), recs[0].ICMP.Seq)
	assert.Equal(t, uint16(2), recs[1].ICMP.Seq)
	assert.Equal(t, 2, s.Stats().Filtered)
}

type mockDecoder struct {
	mock.Mock
}

func (m *mockDecoder) Decode(linkType layers.LinkType, rec core.PacketRecord) (core.DecodedRecord, error) {
	args := m.Called(linkType, rec.Index)
	return args.Get(0).(core.DecodedRecord), args.Error(1)
}

func TestScanWithDecoder(t *testing.T) {
	data := capturetest.Capture(t, layers.LinkTypeRaw, capturetest.Sequence(nil,
		capturetest.RawICMP(t, echo(1, 8)),
		capturetest.RawICMP(t, echo(2, 8)))...)

	d := &mockDecoder{}
	d.On("Decode", layers.LinkTypeRaw, 0).Return(core.DecodedRecord{Index: 0}, nil)
	d.On("Decode", layers.LinkTypeRaw, 1).
		Return(core.DecodedRecord{}, &core.DecodeError{Layer: core.LayerLink, Err: core.ErrPacketTooShort})

	s := newScanner(t, data, WithDecoder(d))
	recs, err := s.Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, 1, s.Stats().LinkErrors)
	d.AssertExpectations(t)
}

func TestScanSkipTransportDecoder(t *testing.T) {
	data := capturetest.Capture(t, layers.LinkTypeRaw, capturetest.Sequence(nil, capturetest.RawICMP(t, echo(1, 8)))...)

	recs, err := newScanner(t, data, WithDecoder(decoder.NewStandardDecoder(decoder.Config{SkipTransport: true}))).
		Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].ICMP)
}

func TestRunStopsOnCallbackError(t *testing.T) {
	data := capturetest.Capture(t, layers.LinkTypeRaw, capturetest.Sequence(nil,
		capturetest.RawICMP(t, echo(1, 8)),
		capturetest.RawICMP(t, echo(2, 8)))...)

	stop := errors.New("stop")
	calls := 0
	err := newScanner(t, data).Run(context.Background(), func(core.DecodedRecord) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestRunHonoursContext(t *testing.T) {
	data := capturetest.Capture(t, layers.LinkTypeRaw, capturetest.Sequence(nil, capturetest.RawICMP(t, echo(1, 8)))...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newScanner(t, data).Run(ctx, func(core.DecodedRecord) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanLogLimit(t *testing.T) {
	var frames [][]byte
	for i := 0; i < 4; i++ {
		frames = append(frames, capturetest.EthernetARP(t))
	}
	gaps := []time.Duration{time.Second, time.Second, time.Minute}
	data := capturetest.Capture(t, layers.LinkTypeEthernet, capturetest.Sequence(gaps, frames...)...)

	var logs bytes.Buffer
	s := newScanner(t, data,
		WithLogger(bufferLogger(t, &logs)),
		WithLogLimit(LogLimitConfig{MaxPerLayer: 1, Window: 10 * time.Second}))
	recs, err := s.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)

	// First and last fall in different windows
	assert.Equal(t, 2, strings.Count(logs.String(), "decode failed"))
	assert.Equal(t, 2, s.Stats().Suppressed)
	assert.Equal(t, 4, s.Stats().LinkErrors)
}

func TestScanPacketFollowsRecord(t *testing.T) {
	arp := capturetest.EthernetARP(t)
	icmp := capturetest.EthernetICMP(t, echo(7, 8))
	data := capturetest.Capture(t, layers.LinkTypeEthernet, capturetest.Sequence(nil, arp, icmp)...)

	sc := newScanner(t, data)
	require.True(t, sc.Scan())
	assert.Equal(t, 1, sc.Packet().Index)
	assert.Equal(t, icmp, sc.Packet().Data)
	assert.Equal(t, sc.Record().Index, sc.Packet().Index)

	assert.False(t, sc.Scan())
	assert.Empty(t, sc.Packet().Data)
}
