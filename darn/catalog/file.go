package catalog

import (
	"io"

	"github.com/indrora/darn/darn/bignum"
	"github.com/indrora/darn/darn/format"
	"github.com/indrora/darn/darn/ioutil"
)

// ChecksumSize is the length of a payload checksum (BLAKE2b-256).
const ChecksumSize = 32

// File is a regular file. When its status carries data, the record is
// followed in the archive by StorageSize bytes of payload compressed with
// Compression.
type File struct {
	Inode
	Size        bignum.Uint
	Compression format.CompressionAlgo
	StorageSize bignum.Uint
	// Checksum covers the uncompressed content.
	Checksum [ChecksumSize]byte
}

func init() {
	register('f', func(s format.SaveStatus) Entry { return &File{Inode: Inode{status: s}} })
}

// NewFile returns a file entry with the given status. Compression is left
// unset for the archive writer to fill in.
func NewFile(base Inode, status format.SaveStatus, size bignum.Uint) *File {
	base.status = status
	return &File{Inode: base, Size: size}
}

func (*File) Kind() byte { return 'f' }

func (f *File) Clone() Entry {
	c := *f
	return &c
}

func (f *File) HasChangedSince(ref Entry, hourshift int) bool {
	o, ok := ref.(*File)
	return !ok || f.metaChangedSince(&o.Inode, hourshift) || !f.Size.Equal(o.Size)
}

func (f *File) encodeFields(w io.Writer, ed format.Edition) error {
	if err := f.Size.Write(w); err != nil {
		return err
	}
	if ed.AtLeast(format.EditionSymAlgo) {
		if err := ioutil.WriteByte(w, byte(f.Compression)); err != nil {
			return err
		}
	}
	if !f.status.HasData() {
		return nil
	}
	if err := f.StorageSize.Write(w); err != nil {
		return err
	}
	_, err := w.Write(f.Checksum[:])
	return err
}

func (f *File) decodeFields(r io.Reader, ctx *DecodeContext) (err error) {
	if f.Size, err = ioutil.ReadBignum(r); err != nil {
		return err
	}
	if ctx.Edition.AtLeast(format.EditionSymAlgo) {
		algo, err := ioutil.ReadByte(r)
		if err != nil {
			return err
		}
		f.Compression = format.CompressionAlgo(algo)
	} else {
		f.Compression = ctx.Compression
	}
	if !f.status.HasData() {
		return nil
	}
	if f.StorageSize, err = ioutil.ReadBignum(r); err != nil {
		return err
	}
	_, err = io.ReadFull(r, f.Checksum[:])
	return err
}
