// Package escape interleaves resynchronization marks with a byte stream.
//
// A mark is the five magic bytes followed by a type byte. Payload bytes that
// happen to spell the magic are written as the magic followed by Literal, so
// a reader can always tell data from marks and, after corruption, skip ahead
// to the next mark of a known type.
package escape

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

var magic = []byte{0xad, 0xfd, 0xea, 0x77, 0x21}

// Mark types.
const (
	Literal   byte = 'X'
	Catalogue byte = 'C'
	Entry     byte = 'E'
	Trailer   byte = 'T'
)

// MarkLen is the encoded size of a mark.
const MarkLen = 6

var (
	// ErrMark is returned by Reader.Read when the next bytes are a mark
	// rather than data.
	ErrMark        = errors.New("escape mark reached")
	ErrNotAtMark   = errors.New("expected an escape mark, found data")
	ErrInvalidType = errors.New("invalid mark type")
)

// Writer escapes everything written to it and inserts marks on demand.
type Writer struct {
	w       io.Writer
	matched int
	written uint64
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (ew *Writer) emit(b []byte) error {
	n, err := ew.w.Write(b)
	ew.written += uint64(n)
	return err
}

func (ew *Writer) Write(p []byte) (int, error) {
	out := new(bytes.Buffer)
	for _, b := range p {
		if b == magic[ew.matched] {
			ew.matched++
			if ew.matched == len(magic) {
				out.Write(magic)
				out.WriteByte(Literal)
				ew.matched = 0
			}
			continue
		}
		if ew.matched > 0 {
			out.Write(magic[:ew.matched])
			ew.matched = 0
		}
		if b == magic[0] {
			ew.matched = 1
		} else {
			out.WriteByte(b)
		}
	}
	if err := ew.emit(out.Bytes()); err != nil {
		return 0, errors.Wrap(err, "failed to write escaped data")
	}
	return len(p), nil
}

// Flush writes out a partially matched magic prefix held back by Write.
func (ew *Writer) Flush() error {
	if ew.matched == 0 {
		return nil
	}
	held := magic[:ew.matched]
	ew.matched = 0
	return errors.Wrap(ew.emit(held), "failed to write escaped data")
}

// Mark inserts a mark of the given type.
func (ew *Writer) Mark(typ byte) error {
	if typ == Literal {
		return ErrInvalidType
	}
	if err := ew.Flush(); err != nil {
		return err
	}
	m := append(append(make([]byte, 0, MarkLen), magic...), typ)
	return errors.Wrap(ew.emit(m), "failed to write escape mark")
}

// Position returns the number of escaped bytes written so far.
func (ew *Writer) Position() uint64 {
	return ew.written
}

// Reader removes escaping and stops at marks.
type Reader struct {
	r       *bufio.Reader
	queue   []byte
	mark    byte
	hasMark bool
	err     error
	read    uint64
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// NewReaderAt returns a Reader whose Position starts at origin.
func NewReaderAt(r io.Reader, origin uint64) *Reader {
	return &Reader{r: bufio.NewReader(r), read: origin}
}

// Position returns the number of raw bytes consumed so far, plus the origin.
func (er *Reader) Position() uint64 {
	return er.read
}

func (er *Reader) readRaw() (byte, error) {
	b, err := er.r.ReadByte()
	if err == nil {
		er.read++
	}
	return b, err
}

func (er *Reader) unreadRaw() {
	if er.r.UnreadByte() == nil {
		er.read--
	}
}

// fill decodes at least one byte into the queue, or records a mark.
func (er *Reader) fill() error {
	b, err := er.readRaw()
	if err != nil {
		return err
	}
	if b != magic[0] {
		er.queue = append(er.queue, b)
		return nil
	}
	for matched := 1; matched < len(magic); matched++ {
		b, err = er.readRaw()
		if err != nil {
			er.queue = append(er.queue, magic[:matched]...)
			return err
		}
		if b != magic[matched] {
			er.queue = append(er.queue, magic[:matched]...)
			er.unreadRaw()
			return nil
		}
	}
	typ, err := er.readRaw()
	if err != nil {
		er.queue = append(er.queue, magic...)
		return err
	}
	if typ == Literal {
		er.queue = append(er.queue, magic...)
		return nil
	}
	er.mark, er.hasMark = typ, true
	return nil
}

// Read returns unescaped data. It returns ErrMark once the data runs up to a
// mark; NextMark or SkipTo consumes it.
func (er *Reader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(er.queue) == 0 {
			if er.hasMark || er.err != nil {
				break
			}
			er.err = er.fill()
			continue
		}
		c := copy(p[n:], er.queue)
		er.queue = er.queue[c:]
		n += c
	}
	if n > 0 {
		return n, nil
	}
	if er.hasMark {
		return 0, ErrMark
	}
	return 0, er.err
}

// NextMark consumes the mark at the current position and returns its type.
func (er *Reader) NextMark() (byte, error) {
	for !er.hasMark {
		if len(er.queue) > 0 {
			return 0, ErrNotAtMark
		}
		if er.err != nil {
			return 0, er.err
		}
		er.err = er.fill()
	}
	er.hasMark = false
	return er.mark, nil
}

// SkipTo discards data and marks until the reader sits in front of a mark
// whose type is one of types. The mark is left for NextMark. It returns the
// mark type and the number of bytes discarded on the way, counting MarkLen
// for each foreign mark.
func (er *Reader) SkipTo(types ...byte) (byte, uint64, error) {
	var skipped uint64
	for {
		if er.hasMark {
			if bytes.IndexByte(types, er.mark) >= 0 {
				return er.mark, skipped, nil
			}
			er.hasMark = false
			skipped += MarkLen
			continue
		}
		if len(er.queue) > 0 {
			skipped += uint64(len(er.queue))
			er.queue = er.queue[:0]
			continue
		}
		if er.err != nil {
			return 0, skipped, er.err
		}
		er.err = er.fill()
	}
}
