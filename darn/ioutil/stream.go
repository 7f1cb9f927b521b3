package ioutil

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

// Positioner reports how many bytes have passed through a stream.
type Positioner interface {
	Position() uint64
}

// Stream is the byte-stream port the archive codecs run over.
type Stream interface {
	io.Reader
	io.Writer
	Positioner
}

// Position returns the position of x if it tracks one.
func Position(x any) (uint64, bool) {
	if p, ok := x.(Positioner); ok {
		return p.Position(), true
	}
	return 0, false
}

// CountingWriter counts the bytes written to the underlying writer.
type CountingWriter struct {
	writer  io.Writer
	written uint64
}

func NewCountingWriter(destination io.Writer) *CountingWriter {
	return &CountingWriter{writer: destination}
}

func (k *CountingWriter) Write(p []byte) (n int, err error) {
	n, err = k.writer.Write(p)
	k.written += uint64(n)
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}

func (k *CountingWriter) Position() uint64 {
	return k.written
}

// Flush flushes the underlying writer if it buffers.
func (k *CountingWriter) Flush() error {
	if f, ok := k.writer.(interface{ Flush() error }); ok {
		return errors.Wrap(f.Flush(), "failed to flush stream")
	}
	return nil
}

func (k *CountingWriter) Close() error {
	if err := k.Flush(); err != nil {
		return err
	}
	if closer, ok := k.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// CountingReader counts the bytes read from the underlying reader. It is
// buffered, so it also implements io.ByteReader.
type CountingReader struct {
	reader *bufio.Reader
	read   uint64
}

func NewCountingReader(source io.Reader) *CountingReader {
	return &CountingReader{reader: bufio.NewReader(source)}
}

// NewCountingReaderAt is NewCountingReader for a source whose first byte
// sits at offset start of the archive.
func NewCountingReaderAt(source io.Reader, start uint64) *CountingReader {
	return &CountingReader{reader: bufio.NewReader(source), read: start}
}

func (cr *CountingReader) Read(b []byte) (int, error) {
	n, err := cr.reader.Read(b)
	cr.read += uint64(n)
	return n, err
}

func (cr *CountingReader) ReadByte() (byte, error) {
	b, err := cr.reader.ReadByte()
	if err == nil {
		cr.read++
	}
	return b, err
}

func (cr *CountingReader) Position() uint64 {
	return cr.read
}

// Discard skips n bytes.
func (cr *CountingReader) Discard(n uint64) error {
	for n > 0 {
		chunk := n
		if chunk > 1<<20 {
			chunk = 1 << 20
		}
		got, err := cr.reader.Discard(int(chunk))
		cr.read += uint64(got)
		n -= uint64(got)
		if err != nil {
			return err
		}
	}
	return nil
}
