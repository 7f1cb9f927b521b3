// Package bignum implements the unsigned arbitrary-precision integer used by
// the archive format for quantities that have no fixed bound (owner ids,
// device ids, offsets and lengths).
//
// On the wire a value occupies n 4-byte groups, written big-endian, where n is
// the smallest group count able to hold it (at least one). The group count is
// announced by a self-delimiting prefix: (n-1)/8 zero bytes followed by a
// single byte with bit 0x80>>((n-1)%8) set.
package bignum

import (
	"bytes"
	"errors"
	"io"
	"math/big"
)

const (
	// GroupSize is the number of bytes in one encoding group.
	GroupSize = 4
	// MaxGroups bounds the size of a value accepted by Read.
	MaxGroups = 1 << 16
)

var (
	ErrMarker   = errors.New("bignum: malformed length marker")
	ErrTooLarge = errors.New("bignum: value exceeds maximum encoded size")
)

// Uint is an immutable unsigned integer. The zero value is 0.
type Uint struct {
	n *big.Int
}

// FromUint64 returns x as a Uint.
func FromUint64(x uint64) Uint {
	if x == 0 {
		return Uint{}
	}
	return Uint{n: new(big.Int).SetUint64(x)}
}

// FromBig copies x. Negative values are clamped to zero.
func FromBig(x *big.Int) Uint {
	if x == nil || x.Sign() <= 0 {
		return Uint{}
	}
	return Uint{n: new(big.Int).Set(x)}
}

// FromBytes interprets b as a big-endian unsigned integer.
func FromBytes(b []byte) Uint {
	return FromBig(new(big.Int).SetBytes(b))
}

// Big returns a copy of u as a *big.Int.
func (u Uint) Big() *big.Int {
	if u.n == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(u.n)
}

// Uint64 returns u and whether it fit in 64 bits.
func (u Uint) Uint64() (uint64, bool) {
	if u.n == nil {
		return 0, true
	}
	if !u.n.IsUint64() {
		return 0, false
	}
	return u.n.Uint64(), true
}

func (u Uint) IsZero() bool {
	return u.n == nil || u.n.Sign() == 0
}

// Cmp compares u and v and returns -1, 0 or +1.
func (u Uint) Cmp(v Uint) int {
	switch {
	case u.IsZero() && v.IsZero():
		return 0
	case u.IsZero():
		return -1
	case v.IsZero():
		return 1
	}
	return u.n.Cmp(v.n)
}

func (u Uint) Equal(v Uint) bool {
	return u.Cmp(v) == 0
}

func (u Uint) String() string {
	if u.n == nil {
		return "0"
	}
	return u.n.String()
}

// Bytes returns the minimal big-endian representation of u; zero is empty.
func (u Uint) Bytes() []byte {
	if u.n == nil {
		return nil
	}
	return u.n.Bytes()
}

func groups(raw int) int {
	n := (raw + GroupSize - 1) / GroupSize
	if n == 0 {
		n = 1
	}
	return n
}

// EncodedLen returns the number of bytes Write emits for u.
func (u Uint) EncodedLen() int {
	n := groups(len(u.Bytes()))
	return (n-1)/8 + 1 + n*GroupSize
}

// Append appends the wire encoding of u to dst.
func (u Uint) Append(dst []byte) []byte {
	raw := u.Bytes()
	n := groups(len(raw))
	dst = append(dst, make([]byte, (n-1)/8)...)
	dst = append(dst, byte(0x80>>uint((n-1)%8)))
	dst = append(dst, make([]byte, n*GroupSize-len(raw))...)
	return append(dst, raw...)
}

// Write writes the wire encoding of u to w.
func (u Uint) Write(w io.Writer) error {
	_, err := w.Write(u.Append(make([]byte, 0, u.EncodedLen())))
	return err
}

// Read decodes one value from r. A stream that ends before the first byte
// yields io.EOF; one that ends inside the value yields io.ErrUnexpectedEOF.
func Read(r io.Reader) (Uint, error) {
	var one [1]byte
	zeros := 0
	for {
		if _, err := io.ReadFull(r, one[:]); err != nil {
			if err == io.EOF && zeros > 0 {
				err = io.ErrUnexpectedEOF
			}
			return Uint{}, err
		}
		if one[0] != 0 {
			break
		}
		zeros++
		if zeros*8 >= MaxGroups {
			return Uint{}, ErrTooLarge
		}
	}

	marker := one[0]
	if marker&(marker-1) != 0 {
		return Uint{}, ErrMarker
	}
	pos := 0
	for m := byte(0x80); m != marker; m >>= 1 {
		pos++
	}
	n := zeros*8 + pos + 1
	if n > MaxGroups {
		return Uint{}, ErrTooLarge
	}

	buf := make([]byte, n*GroupSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Uint{}, err
	}
	return FromBytes(bytes.TrimLeft(buf, "\x00")), nil
}
