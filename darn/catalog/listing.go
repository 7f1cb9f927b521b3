package catalog

import (
	"io"
	"math/big"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/indrora/darn/darn/bignum"
	"github.com/indrora/darn/darn/format"
)

// Item is the self-describing form of an entry used in listings. Fields a
// kind does not have are left out of the encoding.
type Item struct {
	Kind     string    `cbor:"0,keyasint"`
	Status   string    `cbor:"1,keyasint"`
	Name     string    `cbor:"2,keyasint"`
	UID      *big.Int  `cbor:"3,keyasint"`
	GID      *big.Int  `cbor:"4,keyasint"`
	Perm     uint16    `cbor:"5,keyasint"`
	Atime    time.Time `cbor:"6,keyasint"`
	Mtime    time.Time `cbor:"7,keyasint"`
	Ctime    time.Time `cbor:"8,keyasint"`
	Size     *big.Int  `cbor:"9,keyasint,omitempty"`
	Packed   *big.Int  `cbor:"10,keyasint,omitempty"`
	Codec    *string   `cbor:"11,keyasint,omitempty"`
	Checksum []byte    `cbor:"12,keyasint,omitempty"`
	Major    *uint16   `cbor:"13,keyasint,omitempty"`
	Minor    *uint16   `cbor:"14,keyasint,omitempty"`
	FSDevice *big.Int  `cbor:"15,keyasint,omitempty"`
	LinkID   *big.Int  `cbor:"16,keyasint,omitempty"`
	Target   *string   `cbor:"17,keyasint,omitempty"`
}

// Listing is an isolated copy of a catalogue: the entries without their
// payloads, plus enough of the header to make sense of them.
type Listing struct {
	Edition     string `cbor:"edition"`
	Compression string `cbor:"compression"`
	Comment     string `cbor:"comment,omitempty"`
	Items       []Item `cbor:"items"`
}

var listingMode = func() cbor.EncMode {
	mode, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

func ptr[T any](x T) *T {
	return &x
}

func NewListing(h *format.Header) *Listing {
	return &Listing{
		Edition:     h.Edition.String(),
		Compression: h.Compression.String(),
		Comment:     h.Comment,
	}
}

// Add appends e to the listing.
func (l *Listing) Add(e Entry) {
	l.Items = append(l.Items, NewItem(e))
}

// Entries rebuilds the listed entries.
func (l *Listing) Entries() ([]Entry, error) {
	entries := make([]Entry, 0, len(l.Items))
	for i, it := range l.Items {
		e, err := it.Entry()
		if err != nil {
			return nil, errors.Wrapf(err, "item %d", i)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Export writes the listing as CBOR.
func (l *Listing) Export(w io.Writer) error {
	return errors.Wrap(listingMode.NewEncoder(w).Encode(l), "failed to encode listing")
}

// ImportListing reads a listing written by Export.
func ImportListing(r io.Reader) (*Listing, error) {
	l := new(Listing)
	if err := cbor.NewDecoder(r).Decode(l); err != nil {
		return nil, errors.Wrap(err, "failed to decode listing")
	}
	return l, nil
}

func NewItem(e Entry) Item {
	b := e.Base()
	it := Item{
		Kind:   string(e.Kind()),
		Status: e.Status().String(),
		Name:   b.Name,
		UID:    b.UID.Big(),
		GID:    b.GID.Big(),
		Perm:   b.Perm,
		Atime:  b.Atime.Time(),
		Mtime:  b.Mtime.Time(),
		Ctime:  b.Ctime.Time(),
	}
	switch v := e.(type) {
	case *File:
		it.Size = v.Size.Big()
		if v.Compression != 0 {
			it.Codec = ptr(v.Compression.String())
		}
		if v.Status().HasData() {
			it.Packed = v.StorageSize.Big()
			it.Checksum = append([]byte{}, v.Checksum[:]...)
		}
	case *CharDevice:
		setDevice(&it, &v.Device)
	case *BlockDevice:
		setDevice(&it, &v.Device)
	case *Symlink:
		it.Target = ptr(v.Target)
	case *HardLink:
		it.LinkID = v.LinkID.Big()
		it.Target = ptr(v.Target)
	}
	return it
}

func setDevice(it *Item, d *Device) {
	it.Major = ptr(d.Major)
	it.Minor = ptr(d.Minor)
	it.FSDevice = d.FSDevice.Big()
}

func parseStatus(s string) (format.SaveStatus, bool) {
	for _, st := range format.Statuses {
		if st.String() == s {
			return st, true
		}
	}
	return 0, false
}

// Entry rebuilds the entry it was made from.
func (it Item) Entry() (Entry, error) {
	if len(it.Kind) != 1 {
		return nil, errors.Errorf("invalid kind %q", it.Kind)
	}
	status, ok := parseStatus(it.Status)
	if !ok {
		return nil, errors.Errorf("invalid status %q", it.Status)
	}
	e, err := New(it.Kind[0], status)
	if err != nil {
		return nil, err
	}

	b := e.Base()
	b.Name = it.Name
	b.UID = bignum.FromBig(it.UID)
	b.GID = bignum.FromBig(it.GID)
	b.Perm = it.Perm
	b.Atime = FromTime(it.Atime)
	b.Mtime = FromTime(it.Mtime)
	b.Ctime = FromTime(it.Ctime)

	switch v := e.(type) {
	case *File:
		v.Size = bignum.FromBig(it.Size)
		v.StorageSize = bignum.FromBig(it.Packed)
		if it.Codec != nil {
			if v.Compression, ok = format.ParseCompression(*it.Codec); !ok {
				return nil, errors.Errorf("invalid compression %q", *it.Codec)
			}
		}
		copy(v.Checksum[:], it.Checksum)
	case *CharDevice:
		getDevice(&v.Device, it)
	case *BlockDevice:
		getDevice(&v.Device, it)
	case *Symlink:
		v.Target = deref(it.Target)
	case *HardLink:
		v.LinkID = bignum.FromBig(it.LinkID)
		v.Target = deref(it.Target)
	}
	return e, nil
}

func getDevice(d *Device, it Item) {
	d.Major = deref(it.Major)
	d.Minor = deref(it.Minor)
	d.FSDevice = bignum.FromBig(it.FSDevice)
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
