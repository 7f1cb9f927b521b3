package reader

import (
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/indrora/darn/darn/catalog"
	"github.com/indrora/darn/darn/escape"
	"github.com/indrora/darn/darn/format"
	"github.com/indrora/darn/darn/ioutil"
	"github.com/indrora/darn/darn/transform"
	"github.com/indrora/darn/darn/ui"
)

var (
	ErrNoKey         = errors.New("archive is encrypted; a passphrase or key pair is needed")
	ErrNoBody        = errors.New("current entry has no payload")
	ErrBodyOpened    = errors.New("payload already opened")
	ErrMalformedHash = errors.New("hash does not match")
)

// Options configure how an archive is opened.
type Options struct {
	Passphrase []byte
	// KeyPair opens a key sealed into the header.
	KeyPair *transform.KeyPair
	Dialog  ui.Dialog
}

// Region is a stretch of the archive skipped while recovering.
type Region struct {
	Offset uint64
	Length uint64
	Err    error
}

// Stats summarizes what a read has seen so far.
type Stats struct {
	Entries        uint64
	SkippedBytes   uint64
	SkippedRecords uint64
	Regions        []Region
}

// Reader reads the entries of one archive in order. It is not safe for
// concurrent use.
type Reader struct {
	raw     *ioutil.CountingReader
	src     io.Reader
	esc     *escape.Reader
	header  *format.Header
	ctx     catalog.DecodeContext
	dialog  ui.Dialog
	stats   Stats
	pending *payload
	done    bool
}

// Open reads the cleartext prefix of an archive and readies the entry
// region for Next.
func Open(file io.Reader, opts Options) (*Reader, error) {
	if opts.Dialog == nil {
		opts.Dialog = ui.Discard
	}
	reader := &Reader{
		raw:    ioutil.NewCountingReader(file),
		dialog: opts.Dialog,
	}

	if err := format.ReadMagic(reader.raw); err != nil {
		return nil, err
	}
	h, err := format.ReadHeader(reader.raw)
	if err != nil {
		var ue *format.UnsupportedEditionError
		if errors.As(err, &ue) {
			opts.Dialog.Warning("archive was written by a newer version", map[string]any{
				"edition": ue.Edition.String(),
				"comment": h.Comment,
			})
		}
		return nil, err
	}
	reader.header = h
	reader.src = reader.raw

	if h.IsEncrypted() {
		if err := reader.decrypt(opts); err != nil {
			return nil, err
		}
	}

	reader.ctx = catalog.DecodeContext{Edition: h.Edition, Compression: h.Compression}
	if h.SequenceMarks() {
		pos, _ := ioutil.Position(reader.src)
		reader.esc = escape.NewReaderAt(reader.src, pos)
		reader.ctx.Escape = reader.esc
		typ, skipped, err := reader.esc.SkipTo(escape.Catalogue, escape.Entry, escape.Trailer)
		if err != nil {
			return nil, &format.FormatError{Offset: reader.esc.Position(), HasOffset: true, Reason: "looking for the catalogue", Err: err}
		}
		if skipped > 0 {
			reader.corruption(pos, skipped, errors.New("damaged catalogue start"))
		}
		if typ == escape.Catalogue {
			if _, err := reader.esc.NextMark(); err != nil {
				return nil, err
			}
		}
	}
	return reader, nil
}

func (reader *Reader) decrypt(opts Options) error {
	h := reader.header
	if h.Has(format.FlagInitialOffset) {
		off, _ := h.InitialOffset.Uint64()
		if pos := reader.raw.Position(); pos != off {
			return &format.FormatError{
				Offset:    pos,
				HasOffset: true,
				Reason:    "cleartext prefix length disagrees with the header",
			}
		}
	}

	iv := make([]byte, transform.IVSize(h.Crypto))
	if _, err := io.ReadFull(reader.raw, iv); err != nil {
		return &format.FormatError{Offset: reader.raw.Position(), HasOffset: true, Reason: "reading IV", Err: format.ErrTruncated}
	}

	var key []byte
	switch {
	case h.Has(format.FlagHasCryptedKey):
		var err error
		if key, err = transform.OpenKey(h.CryptedKey, opts.KeyPair); err != nil {
			return err
		}
	case len(opts.Passphrase) > 0:
		key = transform.DeriveKey(h.Crypto, opts.Passphrase, iv)
	default:
		return ErrNoKey
	}

	plain, err := transform.NewCipherReader(h.Crypto, key, iv, reader.raw)
	if err != nil {
		return err
	}
	reader.src = ioutil.NewCountingReaderAt(plain, reader.raw.Position())
	return nil
}

func (reader *Reader) Header() *format.Header {
	return reader.header
}

// Stats returns a snapshot of the read so far.
func (reader *Reader) Stats() Stats {
	s := reader.stats
	s.Regions = append([]Region(nil), s.Regions...)
	return s
}

func (reader *Reader) corruption(offset, skipped uint64, err error) {
	reader.stats.SkippedBytes += skipped
	reader.stats.SkippedRecords++
	reader.stats.Regions = append(reader.stats.Regions, Region{Offset: offset, Length: skipped, Err: err})
	reader.dialog.Corruption(offset, skipped, err)
}

func (reader *Reader) stream() io.Reader {
	if reader.esc != nil {
		return reader.esc
	}
	return reader.src
}

// Next returns the next entry, or io.EOF after the last one. Any payload
// of the previous entry that was not read is skipped.
func (reader *Reader) Next() (catalog.Entry, error) {
	if reader.done {
		return nil, io.EOF
	}
	if err := reader.skipPayload(); err != nil {
		reader.done = true
		return nil, err
	}

	for {
		e, err := catalog.Decode(reader.src, reader.ctx)
		var rc *format.RecoverableCorruption
		switch {
		case err == catalog.ErrEnd:
			reader.done = true
			return nil, io.EOF
		case errors.As(err, &rc):
			reader.corruption(rc.Offset, rc.Skipped, rc.Err)
			continue
		case err != nil:
			reader.done = true
			return nil, err
		}

		reader.stats.Entries++
		if f, ok := e.(*catalog.File); ok && f.Status().HasData() {
			size, fits := f.StorageSize.Uint64()
			if !fits || size > math.MaxInt64 {
				reader.done = true
				return nil, &format.FormatError{Reason: "payload size " + f.StorageSize.String(), Err: format.ErrTruncated}
			}
			reader.pending = newPayload(f, reader.stream(), size)
		}
		return e, nil
	}
}

func (reader *Reader) skipPayload() error {
	p := reader.pending
	if p == nil {
		return nil
	}
	reader.pending = nil
	start, _ := ioutil.Position(reader.stream())
	err := p.discard()
	if err == nil {
		return nil
	}
	if reader.esc != nil && errors.Is(err, escape.ErrMark) {
		// the payload is shorter than its entry claims; the next mark is
		// intact so the read goes on from there
		reader.corruption(start, reader.esc.Position()-start-escape.MarkLen, errors.Wrapf(format.ErrTruncated, "payload of %q", p.entry.Name))
		return nil
	}
	pos, ok := ioutil.Position(reader.stream())
	return &format.FormatError{Offset: pos, HasOffset: ok, Reason: "skipping payload", Err: format.ErrTruncated}
}

// Body returns the payload of the entry last returned by Next. Reading it
// to the end verifies its checksum; a mismatch is ErrMalformedHash.
func (reader *Reader) Body() (io.ReadCloser, error) {
	if reader.pending == nil {
		return nil, ErrNoBody
	}
	return reader.pending.open()
}
