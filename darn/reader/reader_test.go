package reader

import (
	"bytes"
	"io"
	"math/big"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indrora/darn/darn/bignum"
	"github.com/indrora/darn/darn/catalog"
	"github.com/indrora/darn/darn/escape"
	"github.com/indrora/darn/darn/format"
	"github.com/indrora/darn/darn/transform"
	"github.com/indrora/darn/darn/writer"
)

type recorder struct {
	warnings    []string
	corruptions []uint64
}

func (r *recorder) Warning(msg string, _ map[string]any) {
	r.warnings = append(r.warnings, msg)
}

func (r *recorder) Corruption(offset, skipped uint64, _ error) {
	r.corruptions = append(r.corruptions, skipped)
}

var content = bytes.Repeat([]byte("all work and no play makes jack a dull boy\n"), 100)

func base(name string) catalog.Inode {
	return catalog.Inode{
		UID:   bignum.FromUint64(1000),
		GID:   bignum.FromUint64(1000),
		Perm:  0o644,
		Mtime: catalog.Datetime{Sec: 1700000000, Nsec: 1},
		Name:  name,
	}
}

// fixture is what every test archive holds, in order. Files with data carry
// content as payload.
func fixture() []catalog.Entry {
	return []catalog.Entry{
		catalog.NewDirectory(base("a-dir"), format.StatusSaved),
		catalog.NewFile(base("b-file"), format.StatusSaved, bignum.Uint{}),
		catalog.NewSymlink(base("c-link"), format.StatusSaved, "b-file"),
		catalog.NewFile(base("d-old"), format.StatusNotSaved, bignum.FromUint64(10)),
		catalog.NewBlockDevice(base("e-dev"), format.StatusSaved, 8, 1, bignum.FromUint64(12345)),
		catalog.NewFile(base("f-delta"), format.StatusDelta, bignum.Uint{}),
	}
}

func mustArchive(tb testing.TB, opts writer.Options) ([]byte, []catalog.Entry) {
	tb.Helper()
	buf := new(bytes.Buffer)
	w, err := writer.NewWriter(buf, opts)
	require.NoError(tb, err)
	entries := fixture()
	for _, e := range entries {
		if f, ok := e.(*catalog.File); ok && f.Status().HasData() {
			require.NoError(tb, w.AppendFile(f, bytes.NewReader(content)))
		} else {
			require.NoError(tb, w.Append(e))
		}
	}
	require.NoError(tb, w.Close())
	return buf.Bytes(), entries
}

func readAll(tb testing.TB, r *Reader, withBodies bool) []catalog.Entry {
	tb.Helper()
	var got []catalog.Entry
	for {
		e, err := r.Next()
		if err == io.EOF {
			return got
		}
		require.NoError(tb, err)
		got = append(got, e)
		if !withBodies {
			continue
		}
		body, err := r.Body()
		if f, ok := e.(*catalog.File); ok && f.Status().HasData() {
			require.NoError(tb, err)
			data, err := io.ReadAll(body)
			require.NoError(tb, err)
			assert.Equal(tb, content, data)
			require.NoError(tb, body.Close())
		} else {
			assert.ErrorIs(tb, err, ErrNoBody)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		opts  writer.Options
		marks bool
	}{
		{name: "plain", opts: writer.Options{}},
		{name: "gzip", opts: writer.Options{Compression: format.CompressionGzip}},
		{name: "zstd marks", opts: writer.Options{Compression: format.CompressionZstd, SequenceMarks: true}},
		{name: "s2", opts: writer.Options{Compression: format.CompressionS2}},
		{name: "brotli marks", opts: writer.Options{Compression: format.CompressionBrotli, SequenceMarks: true}},
		{name: "aes", opts: writer.Options{Compression: format.CompressionZstd, Crypto: format.CryptoAES256, Passphrase: []byte("pw")}},
		{name: "twofish marks", opts: writer.Options{Crypto: format.CryptoTwofish256, Passphrase: []byte("pw"), SequenceMarks: true}},
		{name: "blowfish", opts: writer.Options{Compression: format.CompressionGzip, Crypto: format.CryptoBlowfish, Passphrase: []byte("pw")}},
		{name: "scrambling marks", opts: writer.Options{Crypto: format.CryptoScrambling, Passphrase: []byte("pw"), SequenceMarks: true}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			raw, want := mustArchive(t, tc.opts)

			r, err := Open(bytes.NewReader(raw), Options{Passphrase: tc.opts.Passphrase})
			require.NoError(t, err)
			assert.Equal(t, tc.opts.Comment, r.Header().Comment)
			assert.Equal(t, tc.opts.SequenceMarks, r.Header().SequenceMarks())

			got := readAll(t, r, true)
			assert.Equal(t, want, got)
			assert.Equal(t, uint64(len(want)), r.Stats().Entries)
			assert.Zero(t, r.Stats().SkippedBytes)

			_, err = r.Next()
			assert.Equal(t, io.EOF, err)
		})
	}
}

func TestSkipBodies(t *testing.T) {
	t.Parallel()

	raw, want := mustArchive(t, writer.Options{Compression: format.CompressionZstd})
	r, err := Open(bytes.NewReader(raw), Options{})
	require.NoError(t, err)

	assert.Equal(t, want, readAll(t, r, false))
}

func TestPartialBody(t *testing.T) {
	t.Parallel()

	raw, want := mustArchive(t, writer.Options{Compression: format.CompressionGzip, SequenceMarks: true})
	r, err := Open(bytes.NewReader(raw), Options{})
	require.NoError(t, err)

	_, err = r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	require.NoError(t, err)
	body, err := r.Body()
	require.NoError(t, err)
	_, err = io.ReadFull(body, make([]byte, 10))
	require.NoError(t, err)
	_, err = r.Body()
	assert.ErrorIs(t, err, ErrBodyOpened)

	e, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, want[2], e)
}

func TestSealedKey(t *testing.T) {
	t.Parallel()

	kp, err := transform.GenerateKeyPair()
	require.NoError(t, err)
	raw, want := mustArchive(t, writer.Options{Crypto: format.CryptoAES256, Recipient: kp.Public, SequenceMarks: true})

	r, err := Open(bytes.NewReader(raw), Options{KeyPair: kp})
	require.NoError(t, err)
	assert.Equal(t, want, readAll(t, r, true))

	_, err = Open(bytes.NewReader(raw), Options{Passphrase: []byte("pw")})
	assert.ErrorIs(t, err, transform.ErrSealedKey)

	other, err := transform.GenerateKeyPair()
	require.NoError(t, err)
	_, err = Open(bytes.NewReader(raw), Options{KeyPair: other})
	assert.ErrorIs(t, err, transform.ErrSealedKey)
}

func TestEncryptedNeedsKey(t *testing.T) {
	t.Parallel()

	raw, _ := mustArchive(t, writer.Options{Crypto: format.CryptoAES256, Passphrase: []byte("right"), SequenceMarks: true})

	_, err := Open(bytes.NewReader(raw), Options{})
	assert.ErrorIs(t, err, ErrNoKey)

	// the wrong key turns the catalogue into noise with no marks in it
	_, err = Open(bytes.NewReader(raw), Options{Passphrase: []byte("wrong")})
	var fe *format.FormatError
	assert.True(t, errors.As(err, &fe), "%v", err)
}

func TestBadInitialOffset(t *testing.T) {
	t.Parallel()

	h := format.NewHeader(format.CompressionNone, format.CryptoAES256, "")
	h.InitialOffset = bignum.FromUint64(999)
	buf := new(bytes.Buffer)
	require.NoError(t, format.WriteMagic(buf))
	require.NoError(t, h.Write(buf))
	buf.Write(make([]byte, 64))

	_, err := Open(buf, Options{Passphrase: []byte("pw")})
	var fe *format.FormatError
	require.True(t, errors.As(err, &fe), "%v", err)
	assert.Contains(t, fe.Reason, "cleartext prefix")
}

func TestUnsupportedEdition(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)
	require.NoError(t, format.WriteMagic(buf))
	buf.Write([]byte{0x00, 0x07, 0x00, 'n', 0x80, 0, 0, 0, 2, 'h', 'i', 0x00})

	rec := new(recorder)
	_, err := Open(buf, Options{Dialog: rec})
	var ue *format.UnsupportedEditionError
	require.True(t, errors.As(err, &ue), "%v", err)
	assert.Equal(t, format.Edition{Major: 7}, ue.Edition)
	assert.Len(t, rec.warnings, 1)
}

func TestNotAnArchive(t *testing.T) {
	t.Parallel()

	_, err := Open(bytes.NewReader([]byte("PK\x03\x04 definitely a zip")), Options{})
	assert.ErrorIs(t, err, format.ErrBadMagic)
}

// entryMark returns the index just past the n-th entry mark in raw.
func entryMark(tb testing.TB, raw []byte, n int) int {
	tb.Helper()
	mark := []byte{0xad, 0xfd, 0xea, 0x77, 0x21, escape.Entry}
	idx := 0
	for i := 0; i <= n; i++ {
		j := bytes.Index(raw[idx:], mark)
		require.GreaterOrEqual(tb, j, 0)
		idx += j + len(mark)
	}
	return idx
}

func TestRecoverWithMarks(t *testing.T) {
	t.Parallel()

	raw, want := mustArchive(t, writer.Options{SequenceMarks: true})
	// spoil the signature of the symlink
	raw[entryMark(t, raw, 2)] = 0xff

	rec := new(recorder)
	r, err := Open(bytes.NewReader(raw), Options{Dialog: rec})
	require.NoError(t, err)

	got := readAll(t, r, true)
	assert.Equal(t, append(append([]catalog.Entry{}, want[:2]...), want[3:]...), got)

	stats := r.Stats()
	assert.Equal(t, uint64(len(want)-1), stats.Entries)
	assert.Equal(t, uint64(1), stats.SkippedRecords)
	require.Len(t, stats.Regions, 1)
	assert.ErrorIs(t, stats.Regions[0].Err, format.ErrUnknownSignature)
	assert.Equal(t, stats.SkippedBytes, stats.Regions[0].Length)
	assert.Greater(t, stats.SkippedBytes, uint64(escape.MarkLen))
	assert.Equal(t, []uint64{stats.SkippedBytes}, rec.corruptions)
}

func TestRecoverShortPayload(t *testing.T) {
	t.Parallel()

	raw, want := mustArchive(t, writer.Options{SequenceMarks: true})
	// cut the first payload short by dropping 50 bytes before the next mark
	next := entryMark(t, raw, 2) - escape.MarkLen
	raw = append(raw[:next-50:next-50], raw[next:]...)

	rec := new(recorder)
	r, err := Open(bytes.NewReader(raw), Options{Dialog: rec})
	require.NoError(t, err)

	got := readAll(t, r, false)
	assert.Equal(t, want, got)
	assert.Equal(t, uint64(1), r.Stats().SkippedRecords)
	assert.Len(t, rec.corruptions, 1)
}

func TestCorruptionWithoutMarks(t *testing.T) {
	t.Parallel()

	raw, _ := mustArchive(t, writer.Options{})
	idx := bytes.Index(raw, []byte("c-link"))
	require.Greater(t, idx, 0)
	// the signature sits before the owner ids, times and name length
	sig := bytes.LastIndexByte(raw[:idx], 'l')
	require.Greater(t, sig, 0)
	raw[sig] = 0xff

	r, err := Open(bytes.NewReader(raw), Options{})
	require.NoError(t, err)

	var fe *format.FormatError
	for {
		_, err = r.Next()
		if err != nil {
			break
		}
	}
	require.True(t, errors.As(err, &fe), "%v", err)
	assert.ErrorIs(t, err, format.ErrUnknownSignature)
	assert.True(t, fe.HasOffset)
	assert.Equal(t, uint64(sig+1), fe.Offset)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestChecksumMismatch(t *testing.T) {
	t.Parallel()

	raw, _ := mustArchive(t, writer.Options{})
	idx := bytes.Index(raw, content[:20])
	require.Greater(t, idx, 0)
	raw[idx] ^= 0x01

	r, err := Open(bytes.NewReader(raw), Options{})
	require.NoError(t, err)
	_, err = r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	require.NoError(t, err)

	body, err := r.Body()
	require.NoError(t, err)
	_, err = io.ReadAll(body)
	assert.ErrorIs(t, err, ErrMalformedHash)
}

func TestOversizedPayload(t *testing.T) {
	t.Parallel()

	for _, shift := range []uint{63, 64, 90} {
		buf := new(bytes.Buffer)
		require.NoError(t, format.WriteMagic(buf))
		require.NoError(t, format.NewHeader(format.CompressionNone, format.CryptoNone, "").Write(buf))
		f := catalog.NewFile(base("huge"), format.StatusSaved, bignum.FromUint64(1))
		f.Compression = format.CompressionNone
		f.StorageSize = bignum.FromBig(new(big.Int).Lsh(big.NewInt(1), shift))
		require.NoError(t, catalog.Encode(buf, f))
		require.NoError(t, catalog.WriteTerminator(buf))

		r, err := Open(bytes.NewReader(buf.Bytes()), Options{})
		require.NoError(t, err)
		_, err = r.Next()
		var fe *format.FormatError
		require.True(t, errors.As(err, &fe), "2^%d: %v", shift, err)
		assert.ErrorIs(t, err, format.ErrTruncated)

		_, err = r.Next()
		assert.Equal(t, io.EOF, err)
	}
}

func TestSkipTruncatedPayload(t *testing.T) {
	t.Parallel()

	raw, _ := mustArchive(t, writer.Options{})
	idx := bytes.Index(raw, content[:20])
	require.Greater(t, idx, 0)
	raw = raw[:idx+10]

	r, err := Open(bytes.NewReader(raw), Options{})
	require.NoError(t, err)
	_, err = r.Next()
	require.NoError(t, err)
	f, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "b-file", f.Base().Name)

	_, err = r.Next()
	var fe *format.FormatError
	require.True(t, errors.As(err, &fe), "%v", err)
	assert.ErrorIs(t, err, format.ErrTruncated)
	assert.Equal(t, uint64(len(raw)), fe.Offset)
}
