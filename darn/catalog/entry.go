// Package catalog implements the catalogue entries: one record per scanned
// filesystem object, carrying what is needed to restore or compare it later.
//
// Every entry starts with a signature byte naming its kind and save status,
// followed by the shared Inode fields and then the kind's own fields. The
// layout of older editions is read as well as the current one.
package catalog

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/indrora/darn/darn/escape"
	"github.com/indrora/darn/darn/format"
	"github.com/indrora/darn/darn/ioutil"
)

// Terminator ends the entry sequence. Zero is never a valid signature.
const Terminator = 0x00

// ErrEnd is returned by Decode when it reaches the end of the catalogue.
var ErrEnd = errors.New("end of catalogue")

// Entry is a catalogue record. The set of kinds is closed; see Kinds.
type Entry interface {
	// Kind returns the signature letter of the entry's kind.
	Kind() byte
	Status() format.SaveStatus
	Base() *Inode
	// Clone returns a deep copy.
	Clone() Entry
	IsMoreRecentThan(other Entry, hourshift int) bool
	// HasChangedSince reports whether the object differs from ref, a
	// previous record of the same path. Entries of different kinds always
	// differ.
	HasChangedSince(ref Entry, hourshift int) bool

	encodeFields(w io.Writer, ed format.Edition) error
	decodeFields(r io.Reader, ctx *DecodeContext) error
}

// LayoutError is returned when an entry holds a value the target edition
// cannot represent.
type LayoutError struct {
	Edition format.Edition
	Field   string
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("edition %s cannot represent %s", e.Edition, e.Field)
}

var registry = map[byte]func(format.SaveStatus) Entry{}

// register binds a kind letter to its constructor. Each kind registers
// itself from init; a letter may only be bound once.
func register(kind byte, ctor func(format.SaveStatus) Entry) {
	if _, err := format.MakeSignature(kind, format.StatusSaved); err != nil {
		panic(err)
	}
	if _, dup := registry[kind]; dup {
		panic(fmt.Sprintf("catalog: kind %q registered twice", kind))
	}
	registry[kind] = ctor
}

// Kinds returns the registered kind letters in order.
func Kinds() []byte {
	kinds := make([]byte, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// New returns an empty entry of the given kind and status.
func New(kind byte, status format.SaveStatus) (Entry, error) {
	ctor, ok := registry[kind]
	if !ok {
		return nil, errors.Wrapf(format.ErrUnknownSignature, "kind %q", kind)
	}
	if !status.Valid() {
		return nil, errors.Errorf("invalid save status %d", status)
	}
	return ctor(status), nil
}

// Signature returns the signature byte of e. It panics on a status no
// signature exists for; EncodeEdition reports that as an error instead.
func Signature(e Entry) byte {
	sig, err := format.MakeSignature(e.Kind(), e.Status())
	if err != nil {
		panic(err)
	}
	return sig
}

// Encode writes e in the current edition.
func Encode(w io.Writer, e Entry) error {
	return EncodeEdition(w, e, format.EditionCurrent)
}

// EncodeEdition writes e in the layout of ed. The record is assembled in
// memory first so a LayoutError never leaves a partial record behind.
func EncodeEdition(w io.Writer, e Entry, ed format.Edition) error {
	if !ed.Supported() {
		return &format.UnsupportedEditionError{Edition: ed, Max: format.EditionCurrent}
	}
	sig, err := format.MakeSignature(e.Kind(), e.Status())
	if err != nil {
		return errors.Wrapf(err, "entry %q", e.Base().Name)
	}
	b := new(bytes.Buffer)
	b.WriteByte(sig)
	if err := e.Base().encode(b, ed); err != nil {
		return err
	}
	if err := e.encodeFields(b, ed); err != nil {
		return err
	}
	if _, err := w.Write(b.Bytes()); err != nil {
		return errors.Wrapf(err, "failed to write entry %q", e.Base().Name)
	}
	return nil
}

// WriteTerminator ends an entry sequence.
func WriteTerminator(w io.Writer) error {
	return errors.Wrap(ioutil.WriteByte(w, Terminator), "failed to write terminator")
}

// DecodeContext carries what an entry's layout depends on besides its own
// bytes.
type DecodeContext struct {
	Edition format.Edition
	// Compression is the archive-wide algorithm, assumed for file payloads in
	// editions that did not record one per file.
	Compression format.CompressionAlgo
	// Escape, when set, is the source of the records: each one is preceded
	// by an entry mark and a damaged record is skipped up to the next mark.
	Escape *escape.Reader
}

// Decode reads one entry.
//
// Without an escape context r is read directly and every malformed byte is
// a *format.FormatError. With one, r is ignored; a record that fails to
// decode is skipped up to the next entry or trailer mark and the failure is
// returned as a *format.RecoverableCorruption, after which Decode may be
// called again. ErrEnd marks the end of the catalogue in both cases.
func Decode(r io.Reader, ctx DecodeContext) (Entry, error) {
	if ctx.Edition == (format.Edition{}) {
		ctx.Edition = format.EditionCurrent
	}
	if !ctx.Edition.Supported() {
		return nil, &format.UnsupportedEditionError{Edition: ctx.Edition, Max: format.EditionCurrent}
	}
	if ctx.Escape == nil {
		return decodeRecord(r, &ctx)
	}

	esc := ctx.Escape
	start := esc.Position()
	typ, err := esc.NextMark()
	switch {
	case err == nil && typ == escape.Trailer:
		return nil, ErrEnd
	case err == nil && typ == escape.Entry:
		var e Entry
		if e, err = decodeRecord(esc, &ctx); err == nil {
			return e, nil
		}
		if err == ErrEnd {
			err = formatErr(esc, "terminator after an entry mark", format.ErrUnknownSignature)
		}
	case err == nil:
		err = formatErr(esc, fmt.Sprintf("unexpected mark %q", typ), nil)
	case err == escape.ErrNotAtMark:
		err = formatErr(esc, "expected an entry mark", err)
	default:
		return nil, formatErr(esc, "reading entry mark", truncated(err))
	}

	if _, _, serr := esc.SkipTo(escape.Entry, escape.Trailer); serr != nil {
		// nothing left to resynchronize on
		return nil, formatErr(esc, "resynchronizing after "+err.Error(), truncated(serr))
	}
	// the pending mark has already been consumed from the raw stream
	return nil, &format.RecoverableCorruption{
		Offset:  start,
		Skipped: esc.Position() - escape.MarkLen - start,
		Err:     err,
	}
}

func decodeRecord(r io.Reader, ctx *DecodeContext) (Entry, error) {
	sig, err := ioutil.ReadByte(r)
	if err != nil {
		return nil, formatErr(r, "reading signature", truncated(err))
	}
	if sig == Terminator {
		return nil, ErrEnd
	}
	kind, status, err := format.ParseSignature(sig)
	if err != nil {
		return nil, formatErr(r, "", err)
	}
	ctor, ok := registry[kind]
	if !ok {
		return nil, formatErr(r, "", errors.Wrapf(format.ErrUnknownSignature, "0x%02x", sig))
	}

	e := ctor(status)
	if err := e.Base().decode(r, ctx.Edition); err != nil {
		return nil, formatErr(r, "reading entry metadata", truncated(err))
	}
	if err := e.decodeFields(r, ctx); err != nil {
		return nil, formatErr(r, fmt.Sprintf("reading %q entry", kind), truncated(err))
	}
	return e, nil
}

func formatErr(r io.Reader, reason string, err error) error {
	fe := &format.FormatError{Reason: reason, Err: err}
	fe.Offset, fe.HasOffset = ioutil.Position(r)
	return fe
}

// A mark where record bytes were expected means the record was cut short.
func truncated(err error) error {
	switch err {
	case io.EOF, io.ErrUnexpectedEOF, escape.ErrMark:
		return format.ErrTruncated
	}
	return err
}
