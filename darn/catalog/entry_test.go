package catalog

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indrora/darn/darn/bignum"
	"github.com/indrora/darn/darn/escape"
	"github.com/indrora/darn/darn/format"
	"github.com/indrora/darn/darn/ioutil"
)

func wideID(extra int64) bignum.Uint {
	v := new(big.Int).Lsh(big.NewInt(1), 70)
	return bignum.FromBig(v.Add(v, big.NewInt(extra)))
}

func sampleBase(name string) Inode {
	return Inode{
		UID:   wideID(1),
		GID:   wideID(2),
		Perm:  0o755,
		Atime: Datetime{Sec: 1700000000, Nsec: 123456789},
		Mtime: Datetime{Sec: 1700000001, Nsec: 5000},
		Ctime: Datetime{Sec: 1700000002},
		Name:  name,
	}
}

func sampleEntries(status format.SaveStatus) []Entry {
	f := NewFile(sampleBase("data.bin"), status, bignum.FromUint64(1<<40))
	f.Compression = format.CompressionZstd
	if status.HasData() {
		f.StorageSize = bignum.FromUint64(12345)
		for i := range f.Checksum {
			f.Checksum[i] = byte(i)
		}
	}
	return []Entry{
		f,
		NewDirectory(sampleBase("etc"), status),
		NewSymlink(sampleBase("link"), status, "../target/\xff\xfe"),
		NewCharDevice(sampleBase("tty0"), status, 4, 0, wideID(9)),
		NewBlockDevice(sampleBase("sda"), status, 8, 0, bignum.FromUint64(7)),
		NewFifo(sampleBase("pipe"), status),
		NewSocket(sampleBase("sock"), status),
		NewHardLink(sampleBase("again"), status, bignum.FromUint64(3), "etc/first"),
	}
}

func mustEncode(tb testing.TB, e Entry) []byte {
	tb.Helper()
	buf := new(bytes.Buffer)
	require.NoError(tb, Encode(buf, e))
	return buf.Bytes()
}

func TestEntryRoundTrip(t *testing.T) {
	t.Parallel()

	for _, status := range format.Statuses {
		status := status
		t.Run(status.String(), func(t *testing.T) {
			t.Parallel()
			buf := new(bytes.Buffer)
			entries := sampleEntries(status)
			for _, e := range entries {
				require.NoError(t, Encode(buf, e))
			}
			require.NoError(t, WriteTerminator(buf))

			r := ioutil.NewCountingReader(buf)
			for _, want := range entries {
				got, err := Decode(r, DecodeContext{})
				require.NoError(t, err)
				assert.Equal(t, want, got)
				assert.Equal(t, Signature(want), Signature(got))
			}
			_, err := Decode(r, DecodeContext{})
			assert.ErrorIs(t, err, ErrEnd)
		})
	}
}

func TestBlockDeviceScenario(t *testing.T) {
	t.Parallel()

	base := Inode{Perm: 0o660, Name: "sdb"}
	dev := NewBlockDevice(base, format.StatusSaved, 8, 1, bignum.FromUint64(12345))

	raw := mustEncode(t, dev)
	want, err := format.MakeSignature('b', format.StatusSaved)
	require.NoError(t, err)
	assert.Equal(t, want, raw[0])
	assert.Equal(t, byte('b'), raw[0])

	got, err := Decode(bytes.NewReader(raw), DecodeContext{})
	require.NoError(t, err)
	require.IsType(t, &BlockDevice{}, got)
	bd := got.(*BlockDevice)
	assert.True(t, bd.UID.IsZero())
	assert.True(t, bd.GID.IsZero())
	assert.Equal(t, uint16(0o660), bd.Perm)
	assert.Equal(t, uint16(8), bd.Major)
	assert.Equal(t, uint16(1), bd.Minor)
	assert.Equal(t, "sdb", bd.Name)
	assert.Equal(t, "12345", bd.FSDevice.String())
	assert.Equal(t, format.StatusSaved, bd.Status())
	assert.Equal(t, byte('b'), bd.Kind())
}

func TestDecodeTruncated(t *testing.T) {
	t.Parallel()

	for _, status := range []format.SaveStatus{format.StatusSaved, format.StatusNotSaved} {
		for _, e := range sampleEntries(status) {
			raw := mustEncode(t, e)
			for i := 0; i < len(raw); i++ {
				got, err := Decode(ioutil.NewCountingReader(bytes.NewReader(raw[:i])), DecodeContext{})
				assert.Nil(t, got)
				var fe *format.FormatError
				if assert.True(t, errors.As(err, &fe), "%q cut at %d: %v", e.Kind(), i, err) {
					assert.ErrorIs(t, err, format.ErrTruncated)
					assert.True(t, fe.HasOffset)
					assert.Equal(t, uint64(i), fe.Offset)
				}
			}
		}
	}
}

func TestUnknownSignature(t *testing.T) {
	t.Parallel()

	for b := 1; b < 256; b++ {
		kind, _, err := format.ParseSignature(byte(b))
		if err == nil {
			if _, ok := registry[kind]; ok {
				continue
			}
		}
		_, err = Decode(bytes.NewReader([]byte{byte(b), 0, 0, 0}), DecodeContext{})
		var fe *format.FormatError
		assert.True(t, errors.As(err, &fe), "0x%02x", b)
		assert.ErrorIs(t, err, format.ErrUnknownSignature, "0x%02x", b)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []byte("bcdflmps"), Kinds())

	for _, k := range Kinds() {
		e, err := New(k, format.StatusAbsent)
		require.NoError(t, err)
		assert.Equal(t, k, e.Kind())
		assert.Equal(t, format.StatusAbsent, e.Status())
	}

	_, err := New('z', format.StatusSaved)
	assert.ErrorIs(t, err, format.ErrUnknownSignature)
	_, err = New('f', format.SaveStatus(42))
	assert.Error(t, err)

	assert.Panics(t, func() {
		register('f', func(s format.SaveStatus) Entry { return nil })
	})
}

func TestClone(t *testing.T) {
	t.Parallel()

	for _, e := range sampleEntries(format.StatusSaved) {
		c := e.Clone()
		require.Equal(t, e, c)
		assert.NotSame(t, e, c)

		c.Base().Name = "changed"
		c.Base().Perm = 0
		switch v := c.(type) {
		case *File:
			v.Checksum[0] = 0xff
		case *Symlink:
			v.Target = "elsewhere"
		case *BlockDevice:
			v.Major = 99
		}
		assert.NotEqual(t, "changed", e.Base().Name)
		assert.NotEqual(t, e, c)
	}
}

func TestChangedSince(t *testing.T) {
	t.Parallel()

	ref := NewSymlink(sampleBase("l"), format.StatusSaved, "a")

	same := ref.Clone()
	assert.False(t, same.HasChangedSince(ref, 0))

	shifted := ref.Clone()
	shifted.Base().Mtime.Sec += 3600
	assert.True(t, shifted.HasChangedSince(ref, 0))
	assert.False(t, shifted.HasChangedSince(ref, 1))
	assert.True(t, shifted.IsMoreRecentThan(ref, 0))
	assert.False(t, shifted.IsMoreRecentThan(ref, 1))
	assert.False(t, ref.IsMoreRecentThan(shifted, 0))

	retarget := NewSymlink(sampleBase("l"), format.StatusSaved, "b")
	assert.True(t, retarget.HasChangedSince(ref, 0))

	chmod := ref.Clone()
	chmod.Base().Perm = 0o700
	assert.True(t, chmod.HasChangedSince(ref, 0))

	assert.True(t, NewDirectory(sampleBase("l"), format.StatusSaved).HasChangedSince(ref, 0))

	dev := NewCharDevice(sampleBase("c"), format.StatusSaved, 1, 2, bignum.Uint{})
	renumbered := NewCharDevice(sampleBase("c"), format.StatusSaved, 1, 3, bignum.Uint{})
	assert.True(t, renumbered.HasChangedSince(dev, 0))
	moved := NewCharDevice(sampleBase("c"), format.StatusSaved, 1, 2, bignum.FromUint64(5))
	assert.False(t, moved.HasChangedSince(dev, 0))

	f := NewFile(sampleBase("f"), format.StatusSaved, bignum.FromUint64(10))
	grown := NewFile(sampleBase("f"), format.StatusSaved, bignum.FromUint64(11))
	assert.True(t, grown.HasChangedSince(f, 0))
}

func TestOldEditionLayouts(t *testing.T) {
	t.Parallel()

	base := sampleBase("x")
	base.UID = bignum.FromUint64(1000)
	base.GID = bignum.FromUint64(100)

	for _, ed := range []format.Edition{
		format.Edition1,
		format.EditionFlags,
		format.EditionInitialOffset,
		format.EditionSymAlgo,
		format.EditionCryptedKey,
	} {
		ed := ed
		t.Run(ed.String(), func(t *testing.T) {
			t.Parallel()
			f := NewFile(base, format.StatusSaved, bignum.FromUint64(3))
			f.Compression = format.CompressionGzip
			f.StorageSize = bignum.FromUint64(2)

			buf := new(bytes.Buffer)
			require.NoError(t, EncodeEdition(buf, f, ed))
			got, err := Decode(buf, DecodeContext{Edition: ed, Compression: format.CompressionBrotli})
			require.NoError(t, err)
			gf := got.(*File)

			// sub-second precision is an edition 6 feature
			assert.Equal(t, Datetime{Sec: base.Mtime.Sec}, gf.Mtime)
			assert.Equal(t, "1000", gf.UID.String())
			if ed.AtLeast(format.EditionSymAlgo) {
				assert.Equal(t, Datetime{Sec: base.Ctime.Sec}, gf.Ctime)
				assert.Equal(t, format.CompressionGzip, gf.Compression)
			} else {
				assert.Equal(t, gf.Mtime, gf.Ctime)
				assert.Equal(t, format.CompressionBrotli, gf.Compression)
			}
		})
	}
}

func TestEditionOneBlockDevice(t *testing.T) {
	t.Parallel()

	raw := []byte{
		'b',
		0x00, 0x00, // uid
		0x00, 0x06, // gid
		0x01, 0xb0, // perm 0660
		0x80, 0x00, 0x00, 0x00, 0x10, // atime
		0x80, 0x00, 0x00, 0x00, 0x20, // mtime
		0x80, 0x00, 0x00, 0x00, 0x03, 's', 'd', 'b',
		0x00, 0x08, // major
		0x00, 0x01, // minor
	}
	got, err := Decode(bytes.NewReader(raw), DecodeContext{Edition: format.Edition1})
	require.NoError(t, err)

	base := Inode{
		GID:   bignum.FromUint64(6),
		Perm:  0o660,
		Atime: Datetime{Sec: 16},
		Mtime: Datetime{Sec: 32},
		Ctime: Datetime{Sec: 32},
		Name:  "sdb",
	}
	assert.Equal(t, NewBlockDevice(base, format.StatusSaved, 8, 1, bignum.Uint{}), got)

	buf := new(bytes.Buffer)
	require.NoError(t, EncodeEdition(buf, got, format.Edition1))
	assert.Equal(t, raw, buf.Bytes())
}

func TestLayoutErrors(t *testing.T) {
	t.Parallel()

	var le *LayoutError

	wide := NewDirectory(sampleBase("d"), format.StatusSaved)
	err := EncodeEdition(new(bytes.Buffer), wide, format.EditionFlags)
	assert.True(t, errors.As(err, &le))

	base := sampleBase("d")
	base.UID, base.GID = bignum.Uint{}, bignum.Uint{}
	dev := NewBlockDevice(base, format.StatusSaved, 1, 1, bignum.FromUint64(1))
	buf := new(bytes.Buffer)
	err = EncodeEdition(buf, dev, format.EditionSymAlgo)
	assert.True(t, errors.As(err, &le))
	assert.Zero(t, buf.Len())

	err = EncodeEdition(buf, dev, format.Edition{Major: 99})
	var ue *format.UnsupportedEditionError
	assert.True(t, errors.As(err, &ue))

	_, err = Decode(buf, DecodeContext{Edition: format.Edition{Major: 99}})
	assert.True(t, errors.As(err, &ue))
}

func TestEncodeInvalidStatus(t *testing.T) {
	t.Parallel()

	dev := NewBlockDevice(Inode{Name: "x"}, format.SaveStatus(9), 1, 1, bignum.Uint{})
	buf := new(bytes.Buffer)
	var err error
	require.NotPanics(t, func() { err = Encode(buf, dev) })
	assert.ErrorContains(t, err, "invalid save status 9")
	assert.Zero(t, buf.Len())

	assert.Panics(t, func() { Signature(dev) })
}

func TestDecodeWithEscapeMarks(t *testing.T) {
	t.Parallel()

	entries := sampleEntries(format.StatusNotSaved)
	garbage := []byte{0xff, 0x01, 0x02, 0x03}

	buf := new(bytes.Buffer)
	w := escape.NewWriter(buf)
	_, err := w.Write([]byte("junk before any mark"))
	require.NoError(t, err)
	require.NoError(t, w.Mark(escape.Entry))
	require.NoError(t, Encode(w, entries[0]))
	require.NoError(t, w.Mark(escape.Entry))
	_, err = w.Write(garbage)
	require.NoError(t, err)
	require.NoError(t, w.Mark(escape.Entry))
	require.NoError(t, Encode(w, entries[1]))
	require.NoError(t, w.Mark(escape.Trailer))
	require.NoError(t, w.Flush())

	ctx := DecodeContext{Escape: escape.NewReader(buf)}

	_, err = Decode(nil, ctx)
	var rc *format.RecoverableCorruption
	require.True(t, errors.As(err, &rc), "%v", err)
	assert.Zero(t, rc.Offset)
	assert.Equal(t, uint64(len("junk before any mark")), rc.Skipped)

	got, err := Decode(nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, entries[0], got)

	_, err = Decode(nil, ctx)
	require.True(t, errors.As(err, &rc), "%v", err)
	assert.Equal(t, uint64(escape.MarkLen+len(garbage)), rc.Skipped)
	assert.ErrorIs(t, err, format.ErrUnknownSignature)

	got, err = Decode(nil, ctx)
	require.NoError(t, err)
	assert.Equal(t, entries[1], got)

	_, err = Decode(nil, ctx)
	assert.ErrorIs(t, err, ErrEnd)
}

func TestDecodeWithEscapeTruncated(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)
	w := escape.NewWriter(buf)
	require.NoError(t, w.Mark(escape.Entry))
	raw := mustEncode(t, sampleEntries(format.StatusSaved)[2])
	_, err := w.Write(raw[:len(raw)-2])
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	_, err = Decode(nil, DecodeContext{Escape: escape.NewReader(buf)})
	var fe *format.FormatError
	assert.True(t, errors.As(err, &fe))
	assert.ErrorIs(t, err, format.ErrTruncated)
}
