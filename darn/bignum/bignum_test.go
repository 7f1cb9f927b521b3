package bignum

import (
	"bytes"
	"io"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustBig(tb testing.TB, s string) *big.Int {
	tb.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(tb, ok, "bad literal %q", s)
	return v
}

func TestEncoding(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		value    Uint
		expected []byte
	}{
		{
			name:     "zero",
			value:    Uint{},
			expected: []byte{0x80, 0, 0, 0, 0},
		},
		{
			name:     "one group",
			value:    FromUint64(12345),
			expected: []byte{0x80, 0, 0, 0x30, 0x39},
		},
		{
			name:     "two groups",
			value:    FromUint64(1 << 32),
			expected: []byte{0x40, 0, 0, 0, 1, 0, 0, 0, 0},
		},
		{
			name:     "max uint64",
			value:    FromUint64(^uint64(0)),
			expected: []byte{0x40, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			buf := new(bytes.Buffer)
			require.NoError(t, tc.value.Write(buf))
			assert.Equal(t, tc.expected, buf.Bytes())
			assert.Equal(t, len(tc.expected), tc.value.EncodedLen())

			got, err := Read(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			assert.True(t, got.Equal(tc.value), "got %s, want %s", got, tc.value)
		})
	}
}

func TestNineGroupsUsesZeroPrefix(t *testing.T) {
	t.Parallel()

	// 9 groups = 36 bytes; the marker moves past the first prefix byte.
	v := FromBig(new(big.Int).Lsh(big.NewInt(1), 8*33))
	enc := v.Append(nil)
	require.Len(t, enc, 1+1+36)
	assert.Equal(t, byte(0), enc[0])
	assert.Equal(t, byte(0x80), enc[1])

	got, err := Read(bytes.NewReader(enc))
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cmp(v))
}

func TestRoundTripBeyond64Bits(t *testing.T) {
	t.Parallel()

	for _, s := range []string{
		"18446744073709551616",
		"340282366920938463463374607431768211457",
		"99999999999999999999999999999999999999999999999999999999999999999999",
	} {
		v := FromBig(mustBig(t, s))
		buf := new(bytes.Buffer)
		require.NoError(t, v.Write(buf))
		got, err := Read(buf)
		require.NoError(t, err)
		assert.Equal(t, s, got.String())
		_, fits := got.Uint64()
		assert.False(t, fits)
	}
}

func TestReadErrors(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		_, err := Read(bytes.NewReader(nil))
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("bad marker", func(t *testing.T) {
		t.Parallel()
		_, err := Read(bytes.NewReader([]byte{0x81, 0, 0, 0, 0}))
		assert.ErrorIs(t, err, ErrMarker)
	})

	t.Run("truncated body", func(t *testing.T) {
		t.Parallel()
		_, err := Read(bytes.NewReader([]byte{0x80, 0, 0}))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("only zero prefix", func(t *testing.T) {
		t.Parallel()
		_, err := Read(bytes.NewReader([]byte{0, 0}))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("too large", func(t *testing.T) {
		t.Parallel()
		_, err := Read(bytes.NewReader(make([]byte, MaxGroups)))
		assert.ErrorIs(t, err, ErrTooLarge)
	})
}

func TestCmp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, Uint{}.Cmp(FromUint64(0)))
	assert.Equal(t, -1, Uint{}.Cmp(FromUint64(1)))
	assert.Equal(t, 1, FromUint64(2).Cmp(FromUint64(1)))
	assert.True(t, FromBig(big.NewInt(-5)).IsZero())
}
