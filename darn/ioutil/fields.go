package ioutil

import (
	"encoding/binary"
	"io"

	"github.com/indrora/darn/darn/bignum"
	"github.com/pkg/errors"
)

// MaxStringLen bounds the length of a string field accepted by ReadString.
const MaxStringLen = 1 << 24

var ErrStringTooLong = errors.New("string field exceeds maximum length")

func WriteUint16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint16 reads a big-endian 16-bit field. Running out of input at any
// point is reported as io.ErrUnexpectedEOF.
func ReadUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, unexpected(err)
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func WriteByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func ReadByte(r io.Reader) (byte, error) {
	if br, ok := r.(io.ByteReader); ok {
		b, err := br.ReadByte()
		return b, err
	}
	var buf [1]byte
	_, err := io.ReadFull(r, buf[:])
	return buf[0], err
}

// WriteString writes the length of s as a bignum followed by its raw bytes.
func WriteString(w io.Writer, s string) error {
	if err := bignum.FromUint64(uint64(len(s))).Write(w); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// ReadString reads a field written by WriteString. The bytes are returned
// unchanged; no text encoding is assumed.
func ReadString(r io.Reader) (string, error) {
	n, err := bignum.Read(r)
	if err != nil {
		return "", unexpected(err)
	}
	size, ok := n.Uint64()
	if !ok || size > MaxStringLen {
		return "", ErrStringTooLong
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", unexpected(err)
	}
	return string(buf), nil
}

// ReadBignum reads a bignum field; running out of input is io.ErrUnexpectedEOF.
func ReadBignum(r io.Reader) (bignum.Uint, error) {
	v, err := bignum.Read(r)
	return v, unexpected(err)
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
