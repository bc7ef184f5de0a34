package capture

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/echoscan/internal/capture/capturetest"
	"firestige.xyz/echoscan/internal/core"
)

func sampleCapture(t *testing.T) []byte {
	t.Helper()
	frames := [][]byte{
		capturetest.EthernetICMP(t, capturetest.Echo{Src: "10.0.0.1", Dst: "10.0.0.2", Type: 8, ID: 7, Seq: 1}),
		capturetest.EthernetICMP(t, capturetest.Echo{Src: "10.0.0.2", Dst: "10.0.0.1", Type: 0, ID: 7, Seq: 1}),
	}
	return capturetest.Capture(t, layers.LinkTypeEthernet, capturetest.Sequence(nil, frames...)...)
}

func compress(t *testing.T, kind Compression, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch kind {
	case CompressionGzip:
		w = gzip.NewWriter(&buf)
	case CompressionZstd:
		enc, err := zstd.NewWriter(&buf)
		require.NoError(t, err)
		w = enc
	case CompressionLZ4:
		w = lz4.NewWriter(&buf)
	default:
		return data
	}
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestOpenCompressedCaptures(t *testing.T) {
	raw := sampleCapture(t)

	for _, kind := range []Compression{CompressionNone, CompressionGzip, CompressionZstd, CompressionLZ4} {
		t.Run(string(kind), func(t *testing.T) {
			data := compress(t, kind, raw)
			assert.Equal(t, kind, Sniff(bufio.NewReader(bytes.NewReader(data))))

			path := capturetest.WriteFile(t, "sample.pcap", data)
			r, err := Open(path)
			require.NoError(t, err)
			defer r.Close()

			assert.Equal(t, layers.LinkTypeEthernet, r.LinkType())
			recs := readAll(t, r)
			require.Len(t, recs, 2)
			assert.False(t, r.Truncated())
		})
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open("/nonexistent/capture.pcap")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/nonexistent/capture.pcap")
}

func TestOpenFormatErrorCarriesPath(t *testing.T) {
	path := capturetest.WriteFile(t, "bad.pcap", []byte("not a capture at all, really"))

	_, err := Open(path)
	var fe *core.FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, path, fe.Path)
	assert.ErrorIs(t, err, core.ErrBadMagic)
}

func TestOpenCloseIsIdempotent(t *testing.T) {
	path := capturetest.WriteFile(t, "sample.pcap.gz", compress(t, CompressionGzip, sampleCapture(t)))

	r, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}
