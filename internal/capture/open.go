package capture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"firestige.xyz/echoscan/internal/core"
)

// Compression identifies how a capture file is wrapped on disk.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

const readBufferSize = 64 * 1024

// Open opens a capture file and parses its global header. Compressed
// captures (gzip, zstd, lz4 frame) are detected by their magic bytes and
// decompressed on the fly. The caller must Close the reader.
func Open(path string, opts ...Option) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture %s: %w", path, err)
	}

	src, closers, err := decompress(bufio.NewReaderSize(f, readBufferSize))
	closers = append(closers, f)
	if err != nil {
		closeAll(closers)
		return nil, fmt.Errorf("failed to open capture %s: %w", path, err)
	}

	rd, err := NewReader(src, opts...)
	if err != nil {
		closeAll(closers)
		var fe *core.FormatError
		if errors.As(err, &fe) {
			fe.Path = path
			return nil, fe
		}
		return nil, fmt.Errorf("failed to open capture %s: %w", path, err)
	}
	rd.closer = closerFunc(func() error { return closeAll(closers) })
	return rd, nil
}

// Sniff reports the compression of the stream behind br without consuming it.
func Sniff(br *bufio.Reader) Compression {
	head, _ := br.Peek(4)
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return CompressionGzip
	case bytes.HasPrefix(head, zstdMagic):
		return CompressionZstd
	case bytes.HasPrefix(head, lz4Magic):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

func decompress(br *bufio.Reader) (io.Reader, []io.Closer, error) {
	switch Sniff(br) {
	case CompressionGzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, []io.Closer{zr}, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}
		rc := zr.IOReadCloser()
		return rc, []io.Closer{rc}, nil
	case CompressionLZ4:
		return lz4.NewReader(br), nil, nil
	default:
		return br, nil, nil
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
