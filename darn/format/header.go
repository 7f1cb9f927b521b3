package format

import (
	"bytes"
	"io"

	"github.com/indrora/darn/darn/bignum"
	"github.com/indrora/darn/darn/ioutil"
	"github.com/pkg/errors"
)

// MaxCryptedKeyLen bounds the key blob accepted by ReadHeader.
const MaxCryptedKeyLen = 1 << 16

// Header is the container-level record at the start of every archive.
type Header struct {
	Edition     Edition
	Compression CompressionAlgo
	// Comment has been command-line text, unused, and a free-form comment
	// over the format's life. Its bytes are carried unchanged.
	Comment string
	Flags   HeaderFlags
	// InitialOffset is the length of the cleartext prefix preceding the
	// encrypted region; zero means there is none.
	InitialOffset bignum.Uint
	Crypto        CryptoAlgo
	// CryptedKey is the symmetric key sealed for a public key, or nil.
	CryptedKey []byte
}

// NewHeader returns a header for the current edition.
func NewHeader(compression CompressionAlgo, crypto CryptoAlgo, comment string) *Header {
	return &Header{
		Edition:     EditionCurrent,
		Compression: compression,
		Comment:     comment,
		Crypto:      crypto,
	}
}

func (h *Header) Has(flag HeaderFlags) bool {
	return h.Flags&flag == flag
}

func (h *Header) IsEncrypted() bool {
	return h.Has(FlagScrambled)
}

func (h *Header) SequenceMarks() bool {
	return h.Has(FlagSequenceMark)
}

// SetSequenceMarks sets or clears FlagSequenceMark.
func (h *Header) SetSequenceMarks(on bool) {
	if on {
		h.Flags |= FlagSequenceMark
	} else {
		h.Flags &^= FlagSequenceMark
	}
}

// syncFlags makes the derived flags agree with the field values.
func (h *Header) syncFlags() {
	if h.Crypto == 0 {
		h.Crypto = CryptoNone
	}
	h.Flags &^= FlagInitialOffset | FlagHasCryptedKey | FlagHasExtendedSize | FlagScrambled
	if !h.InitialOffset.IsZero() {
		h.Flags |= FlagInitialOffset
	}
	if len(h.CryptedKey) > 0 {
		h.Flags |= FlagHasCryptedKey
	}
	if h.Crypto != CryptoNone {
		h.Flags |= FlagScrambled
	}
}

// EncodedLen returns the number of bytes Write would emit.
func (h *Header) EncodedLen() (int, error) {
	var cw countWriter
	clone := *h
	if err := clone.Write(&cw); err != nil {
		return 0, err
	}
	return cw.n, nil
}

type countWriter struct{ n int }

func (c *countWriter) Write(p []byte) (int, error) {
	c.n += len(p)
	return len(p), nil
}

// Write recomputes the derived flags, then encodes the header in the layout
// of h.Edition (the current edition when unset). Fields the edition cannot
// represent are an error rather than silently dropped.
func (h *Header) Write(w io.Writer) error {
	if h.Edition == (Edition{}) {
		h.Edition = EditionCurrent
	}
	if !h.Edition.Supported() {
		return &UnsupportedEditionError{Edition: h.Edition, Max: EditionCurrent}
	}
	if !h.Crypto.Valid() && h.Crypto != 0 {
		return errors.Errorf("invalid crypto algorithm %q", byte(h.Crypto))
	}
	h.syncFlags()

	ed := h.Edition
	switch {
	case !ed.AtLeast(EditionFlags) && h.Flags != 0:
		return errors.Errorf("edition %s cannot record header flags", ed)
	case !ed.AtLeast(EditionInitialOffset) && h.Has(FlagInitialOffset):
		return errors.Errorf("edition %s cannot record an initial offset", ed)
	case !ed.AtLeast(EditionSymAlgo) && h.Crypto != CryptoNone && h.Crypto != CryptoScrambling:
		return errors.Errorf("edition %s only supports scrambling", ed)
	case !ed.AtLeast(EditionCryptedKey) && h.Has(FlagHasCryptedKey):
		return errors.Errorf("edition %s cannot record a crypted key", ed)
	case len(h.CryptedKey) > MaxCryptedKeyLen:
		return errors.Errorf("crypted key of %d bytes exceeds %d", len(h.CryptedKey), MaxCryptedKeyLen)
	}

	b := new(bytes.Buffer)
	if err := ed.Write(b); err != nil {
		return err
	}
	b.WriteByte(byte(h.Compression))
	if err := ioutil.WriteString(b, h.Comment); err != nil {
		return errors.Wrap(err, "failed to write comment")
	}
	if ed.AtLeast(EditionFlags) {
		b.WriteByte(byte(h.Flags))
	}
	if h.Has(FlagInitialOffset) {
		b.Write(h.InitialOffset.Append(nil))
	}
	if ed.AtLeast(EditionSymAlgo) {
		b.WriteByte(byte(h.Crypto))
	}
	if h.Has(FlagHasCryptedKey) {
		b.Write(bignum.FromUint64(uint64(len(h.CryptedKey))).Append(nil))
		b.Write(h.CryptedKey)
	}

	if _, err := w.Write(b.Bytes()); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	return nil
}

func formatErr(r io.Reader, reason string, err error) *FormatError {
	fe := &FormatError{Reason: reason, Err: err}
	fe.Offset, fe.HasOffset = ioutil.Position(r)
	return fe
}

func truncated(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrTruncated
	}
	return err
}

// ReadHeader decodes a header. The fixed prefix (edition, compression,
// comment, flags) is read first since it decides the layout of the rest.
//
// When the edition is newer than EditionCurrent the decoded prefix is
// returned together with an *UnsupportedEditionError and nothing further is
// consumed.
func ReadHeader(r io.Reader) (*Header, error) {
	h := &Header{}
	var err error

	if h.Edition, err = ReadEdition(r); err != nil {
		return nil, formatErr(r, "reading edition", truncated(err))
	}
	if h.Edition.Major == 0 {
		return nil, formatErr(r, "invalid edition 00", nil)
	}
	algo, err := ioutil.ReadByte(r)
	if err != nil {
		return nil, formatErr(r, "reading compression", truncated(err))
	}
	h.Compression = CompressionAlgo(algo)
	if h.Comment, err = ioutil.ReadString(r); err != nil {
		return nil, formatErr(r, "reading comment", truncated(err))
	}
	if h.Edition.AtLeast(EditionFlags) {
		flags, err := ioutil.ReadByte(r)
		if err != nil {
			return nil, formatErr(r, "reading flags", truncated(err))
		}
		h.Flags = HeaderFlags(flags)
	}

	if !h.Edition.Supported() {
		return h, &UnsupportedEditionError{Edition: h.Edition, Max: EditionCurrent}
	}

	if h.Has(FlagInitialOffset) {
		if !h.Edition.AtLeast(EditionInitialOffset) {
			return nil, formatErr(r, "initial offset flag set before edition "+EditionInitialOffset.String(), nil)
		}
		if h.InitialOffset, err = ioutil.ReadBignum(r); err != nil {
			return nil, formatErr(r, "reading initial offset", truncated(err))
		}
		if h.InitialOffset.IsZero() {
			return nil, formatErr(r, "initial offset flag set with a zero offset", nil)
		}
	}

	if h.Edition.AtLeast(EditionSymAlgo) {
		sym, err := ioutil.ReadByte(r)
		if err != nil {
			return nil, formatErr(r, "reading crypto algorithm", truncated(err))
		}
		h.Crypto = CryptoAlgo(sym)
		if !h.Crypto.Valid() {
			return nil, formatErr(r, "unknown crypto algorithm", nil)
		}
		if (h.Crypto != CryptoNone) != h.IsEncrypted() {
			return nil, formatErr(r, "crypto algorithm disagrees with scrambled flag", nil)
		}
	} else if h.IsEncrypted() {
		h.Crypto = CryptoScrambling
	} else {
		h.Crypto = CryptoNone
	}

	if h.Has(FlagHasCryptedKey) {
		if !h.Edition.AtLeast(EditionCryptedKey) {
			return nil, formatErr(r, "crypted key flag set before edition "+EditionCryptedKey.String(), nil)
		}
		n, err := ioutil.ReadBignum(r)
		if err != nil {
			return nil, formatErr(r, "reading crypted key length", truncated(err))
		}
		size, ok := n.Uint64()
		if !ok || size == 0 || size > MaxCryptedKeyLen {
			return nil, formatErr(r, "crypted key length "+n.String(), ErrKeyInconsistent)
		}
		h.CryptedKey = make([]byte, size)
		if _, err := io.ReadFull(r, h.CryptedKey); err != nil {
			return nil, formatErr(r, "reading crypted key", truncated(err))
		}
	}

	return h, nil
}

// WriteMagic writes the archive magic bytes.
func WriteMagic(w io.Writer) error {
	_, err := w.Write(MagicBytes)
	return errors.Wrap(err, "failed to write magic")
}

// ReadMagic checks that r starts with the archive magic bytes.
func ReadMagic(r io.Reader) error {
	buf := make([]byte, len(MagicBytes))
	if _, err := io.ReadFull(r, buf); err != nil {
		return formatErr(r, "reading magic", truncated(err))
	}
	if !bytes.Equal(buf, MagicBytes) {
		return formatErr(r, "", ErrBadMagic)
	}
	return nil
}
