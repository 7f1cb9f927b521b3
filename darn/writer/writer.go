package writer

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/indrora/darn/darn/bignum"
	"github.com/indrora/darn/darn/catalog"
	"github.com/indrora/darn/darn/escape"
	"github.com/indrora/darn/darn/format"
	"github.com/indrora/darn/darn/ioutil"
	"github.com/indrora/darn/darn/transform"
	"github.com/indrora/darn/darn/ui"
)

var (
	ErrMisalignedWrite = errors.New("unexpected number of bytes written")
	ErrNoKey           = errors.New("encryption requested without a passphrase or recipient key")
	ErrClosed          = errors.New("archive already closed")
	ErrNeedsPayload    = errors.New("entry status requires a payload")
	ErrNoPayload       = errors.New("entry status does not carry a payload")
)

// Options configure a new archive.
type Options struct {
	Compression format.CompressionAlgo
	Crypto      format.CryptoAlgo
	Comment     string
	// SequenceMarks interleaves escape marks with the entries so a damaged
	// archive can be read past the damage.
	SequenceMarks bool
	// Passphrase derives the key when Recipient is nil.
	Passphrase []byte
	// Recipient, when set, receives a random key sealed into the header.
	Recipient *[32]byte
	Dialog    ui.Dialog
}

// ArchiveWriter writes one archive. It is not safe for concurrent use.
type ArchiveWriter struct {
	raw    *ioutil.CountingWriter
	esc    *escape.Writer
	body   io.Writer
	header *format.Header
	dialog ui.Dialog
	closed bool
}

// NewWriter writes the cleartext prefix of a new archive to file and readies
// the (possibly encrypted) entry region.
func NewWriter(file io.Writer, opts Options) (*ArchiveWriter, error) {
	if opts.Compression == 0 {
		opts.Compression = format.CompressionNone
	}
	if opts.Crypto == 0 {
		opts.Crypto = format.CryptoNone
	}
	if opts.Dialog == nil {
		opts.Dialog = ui.Discard
	}
	cw, err := transform.NewCompressor(opts.Compression, io.Discard)
	if err != nil {
		return nil, err
	}
	cw.Close()

	h := format.NewHeader(opts.Compression, opts.Crypto, opts.Comment)
	h.SetSequenceMarks(opts.SequenceMarks)

	archive := &ArchiveWriter{
		raw:    ioutil.NewCountingWriter(file),
		header: h,
		dialog: opts.Dialog,
	}

	var key, iv []byte
	if opts.Crypto != format.CryptoNone {
		if iv, err = transform.NewIV(opts.Crypto); err != nil {
			return nil, err
		}
		switch {
		case opts.Recipient != nil:
			if key, err = transform.NewKey(opts.Crypto); err != nil {
				return nil, err
			}
			if h.CryptedKey, err = transform.SealKey(key, opts.Recipient); err != nil {
				return nil, err
			}
		case len(opts.Passphrase) > 0:
			key = transform.DeriveKey(opts.Crypto, opts.Passphrase, iv)
		default:
			return nil, ErrNoKey
		}
		if opts.Crypto == format.CryptoScrambling {
			opts.Dialog.Warning("scrambling does not protect the archive contents", nil)
		}
		if err = settleInitialOffset(h); err != nil {
			return nil, err
		}
	}

	if err = format.WriteMagic(archive.raw); err != nil {
		return nil, err
	}
	if err = h.Write(archive.raw); err != nil {
		return nil, err
	}

	archive.body = archive.raw
	if opts.Crypto != format.CryptoNone {
		if off, _ := h.InitialOffset.Uint64(); archive.raw.Position() != off {
			return nil, errors.Wrapf(ErrMisalignedWrite, "cleartext prefix is %d bytes, header says %d", archive.raw.Position(), off)
		}
		if _, err = archive.raw.Write(iv); err != nil {
			return nil, errors.Wrap(err, "failed to write IV")
		}
		if archive.body, err = transform.NewCipherWriter(opts.Crypto, key, iv, archive.raw); err != nil {
			return nil, err
		}
	}

	if opts.SequenceMarks {
		archive.esc = escape.NewWriter(archive.body)
		archive.body = archive.esc
		if err = archive.esc.Mark(escape.Catalogue); err != nil {
			return nil, err
		}
	}
	return archive, nil
}

// settleInitialOffset stores the length of the cleartext prefix in h. The
// header's own length depends on the width of the offset it records, so
// iterate until the two agree.
func settleInitialOffset(h *format.Header) error {
	off := uint64(len(format.MagicBytes))
	for {
		h.InitialOffset = bignum.FromUint64(off)
		n, err := h.EncodedLen()
		if err != nil {
			return err
		}
		next := uint64(len(format.MagicBytes) + n)
		if next == off {
			return nil
		}
		off = next
	}
}

// Header returns the header written at the start of the archive.
func (archive *ArchiveWriter) Header() *format.Header {
	return archive.header
}

func (archive *ArchiveWriter) mark(typ byte) error {
	if archive.esc == nil {
		return nil
	}
	return archive.esc.Mark(typ)
}

// Append adds an entry that carries no payload. A file entry without a
// compression is written with the archive's; e itself is left unchanged.
func (archive *ArchiveWriter) Append(e catalog.Entry) error {
	if archive.closed {
		return ErrClosed
	}
	if e.Status().HasData() && e.Kind() == 'f' {
		return errors.Wrapf(ErrNeedsPayload, "%q", e.Base().Name)
	}
	if f, ok := e.(*catalog.File); ok && f.Compression == 0 {
		c := f.Clone().(*catalog.File)
		c.Compression = archive.header.Compression
		e = c
	}
	return archive.writeEntry(e, nil)
}

// AppendFile adds a file entry followed by its content. It fills in f's
// Size, StorageSize and Checksum and, when unset, its Compression, so that
// f afterwards matches what was written.
func (archive *ArchiveWriter) AppendFile(f *catalog.File, content io.Reader) error {
	if archive.closed {
		return ErrClosed
	}
	if !f.Status().HasData() {
		return errors.Wrapf(ErrNoPayload, "%q is %s", f.Name, f.Status())
	}
	if f.Compression == 0 {
		f.Compression = archive.header.Compression
	}

	packed, sum, size, err := pack(f.Compression, content)
	if err != nil {
		return errors.Wrapf(err, "failed to pack %q", f.Name)
	}
	f.Size = bignum.FromUint64(size)
	f.StorageSize = bignum.FromUint64(uint64(packed.Len()))
	f.Checksum = sum
	return archive.writeEntry(f, packed.Bytes())
}

// writeEntry encodes e before its mark goes out, so a rejected entry
// leaves nothing in the archive.
func (archive *ArchiveWriter) writeEntry(e catalog.Entry, payload []byte) error {
	record := new(bytes.Buffer)
	if err := catalog.Encode(record, e); err != nil {
		return err
	}
	if err := archive.mark(escape.Entry); err != nil {
		return err
	}
	for _, b := range [][]byte{record.Bytes(), payload} {
		n, err := archive.body.Write(b)
		if err != nil {
			return errors.Wrap(err, "failed to write to underlying stream")
		}
		if n != len(b) {
			return ErrMisalignedWrite
		}
	}
	return nil
}

// pack compresses content into memory, hashing it on the way.
func pack(algo format.CompressionAlgo, content io.Reader) (*bytes.Buffer, [catalog.ChecksumSize]byte, uint64, error) {
	var sum [catalog.ChecksumSize]byte
	hash, err := blake2b.New256(nil)
	if err != nil {
		return nil, sum, 0, errors.Wrap(err, "failed to initialize BLAKE2b hash")
	}

	packed := new(bytes.Buffer)
	cw, err := transform.NewCompressor(algo, packed)
	if err != nil {
		return nil, sum, 0, err
	}
	size, err := io.Copy(cw, io.TeeReader(content, hash))
	if err != nil {
		cw.Close()
		return nil, sum, 0, errors.Wrap(err, "failed to read content")
	}
	if err := cw.Close(); err != nil {
		return nil, sum, 0, errors.Wrap(err, "failed to finish compression")
	}
	copy(sum[:], hash.Sum(nil))
	return packed, sum, uint64(size), nil
}

// Close ends the entry sequence and flushes. The underlying writer is left
// open.
func (archive *ArchiveWriter) Close() error {
	if archive.closed {
		return ErrClosed
	}
	archive.closed = true
	if err := archive.mark(escape.Trailer); err != nil {
		return err
	}
	if err := catalog.WriteTerminator(archive.body); err != nil {
		return err
	}
	if archive.esc != nil {
		if err := archive.esc.Flush(); err != nil {
			return err
		}
	}
	return archive.raw.Flush()
}
