package transform

import (
	"bytes"
	"compress/bzip2"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/indrora/darn/darn/format"
)

var (
	ErrUnknownCompression = errors.New("unknown compression")
	ErrWriteUnsupported   = errors.New("compression is supported for reading only")
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewCompressor returns a writer that compresses into w. Closing it flushes
// the compressed stream but does not close w.
func NewCompressor(algo format.CompressionAlgo, w io.Writer) (io.WriteCloser, error) {
	switch algo {
	case format.CompressionNone:
		return nopWriteCloser{w}, nil // no compression = passthru
	case format.CompressionGzip:
		return gzip.NewWriter(w), nil
	case format.CompressionZstd:
		return zstd.NewWriter(w)
	case format.CompressionS2:
		return s2.NewWriter(w), nil
	case format.CompressionBrotli:
		return brotli.NewWriter(w), nil
	case format.CompressionBzip2:
		return nil, errors.Wrap(ErrWriteUnsupported, algo.String())
	default:
		return nil, errors.Wrapf(ErrUnknownCompression, "%q", byte(algo))
	}
}

// NewDecompressor returns a reader that decompresses r.
func NewDecompressor(algo format.CompressionAlgo, r io.Reader) (io.ReadCloser, error) {
	switch algo {
	case format.CompressionNone:
		return io.NopCloser(r), nil
	case format.CompressionGzip:
		return gzip.NewReader(r)
	case format.CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case format.CompressionS2:
		return io.NopCloser(s2.NewReader(r)), nil
	case format.CompressionBrotli:
		return io.NopCloser(brotli.NewReader(r)), nil
	case format.CompressionBzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	default:
		return nil, errors.Wrapf(ErrUnknownCompression, "%q", byte(algo))
	}
}

// Compress compresses data in one go.
func Compress(algo format.CompressionAlgo, data []byte) ([]byte, error) {
	if algo == format.CompressionNone {
		return data, nil
	}
	buf := new(bytes.Buffer)
	zw, err := NewCompressor(algo, buf)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, errors.Wrap(err, "failed to compress data")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to finish compressed stream")
	}
	return buf.Bytes(), nil
}

// Decompress is the inverse of Compress.
func Decompress(algo format.CompressionAlgo, data []byte) ([]byte, error) {
	zr, err := NewDecompressor(algo, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress data")
	}
	return out, nil
}
