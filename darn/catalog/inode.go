package catalog

import (
	"io"

	"github.com/indrora/darn/darn/bignum"
	"github.com/indrora/darn/darn/format"
	"github.com/indrora/darn/darn/ioutil"
)

// Inode holds the metadata every entry kind shares. It is embedded in each
// kind, the way the record kinds share a base.
type Inode struct {
	UID   bignum.Uint
	GID   bignum.Uint
	Perm  uint16
	Atime Datetime
	Mtime Datetime
	Ctime Datetime
	// Name is the last path component. Its bytes are kept as found on disk.
	Name string

	status format.SaveStatus
}

// Status returns the save status fixed when the entry was built.
func (i *Inode) Status() format.SaveStatus {
	return i.status
}

// Base returns the shared metadata.
func (i *Inode) Base() *Inode {
	return i
}

// IsMoreRecentThan reports whether this entry was modified after other,
// ignoring a whole-hour difference of up to hourshift hours.
func (i *Inode) IsMoreRecentThan(other Entry, hourshift int) bool {
	o := other.Base()
	return o.Mtime.Before(i.Mtime) && !i.Mtime.EqualWithHourshift(o.Mtime, hourshift)
}

// metaChangedSince compares the shared metadata only.
func (i *Inode) metaChangedSince(ref *Inode, hourshift int) bool {
	return !i.Mtime.EqualWithHourshift(ref.Mtime, hourshift) ||
		!i.UID.Equal(ref.UID) ||
		!i.GID.Equal(ref.GID) ||
		i.Perm != ref.Perm
}

func (i *Inode) encode(w io.Writer, ed format.Edition) error {
	if err := writeID(w, i.UID, ed); err != nil {
		return err
	}
	if err := writeID(w, i.GID, ed); err != nil {
		return err
	}
	if err := ioutil.WriteUint16(w, i.Perm); err != nil {
		return err
	}
	if err := i.Atime.write(w, ed); err != nil {
		return err
	}
	if err := i.Mtime.write(w, ed); err != nil {
		return err
	}
	if ed.AtLeast(format.EditionSymAlgo) {
		if err := i.Ctime.write(w, ed); err != nil {
			return err
		}
	}
	return ioutil.WriteString(w, i.Name)
}

func (i *Inode) decode(r io.Reader, ed format.Edition) (err error) {
	if i.UID, err = readID(r, ed); err != nil {
		return err
	}
	if i.GID, err = readID(r, ed); err != nil {
		return err
	}
	if i.Perm, err = ioutil.ReadUint16(r); err != nil {
		return err
	}
	if i.Atime, err = readDatetime(r, ed); err != nil {
		return err
	}
	if i.Mtime, err = readDatetime(r, ed); err != nil {
		return err
	}
	if ed.AtLeast(format.EditionSymAlgo) {
		if i.Ctime, err = readDatetime(r, ed); err != nil {
			return err
		}
	} else {
		i.Ctime = i.Mtime
	}
	i.Name, err = ioutil.ReadString(r)
	return err
}

// Owner ids were 16 bits wide before the initial-offset edition.
func writeID(w io.Writer, id bignum.Uint, ed format.Edition) error {
	if ed.AtLeast(format.EditionInitialOffset) {
		return id.Write(w)
	}
	v, ok := id.Uint64()
	if !ok || v > 0xffff {
		return &LayoutError{Edition: ed, Field: "owner id " + id.String()}
	}
	return ioutil.WriteUint16(w, uint16(v))
}

func readID(r io.Reader, ed format.Edition) (bignum.Uint, error) {
	if ed.AtLeast(format.EditionInitialOffset) {
		return ioutil.ReadBignum(r)
	}
	v, err := ioutil.ReadUint16(r)
	return bignum.FromUint64(uint64(v)), err
}
