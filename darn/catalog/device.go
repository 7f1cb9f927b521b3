package catalog

import (
	"io"

	"github.com/indrora/darn/darn/bignum"
	"github.com/indrora/darn/darn/format"
	"github.com/indrora/darn/darn/ioutil"
)

// Device is the part shared by character and block devices.
type Device struct {
	Inode
	Major uint16
	Minor uint16
	// FSDevice identifies the filesystem holding the node, for hard link
	// detection.
	FSDevice bignum.Uint
}

func (d *Device) deviceChangedSince(o *Device, hourshift int) bool {
	return d.metaChangedSince(&o.Inode, hourshift) || d.Major != o.Major || d.Minor != o.Minor
}

func (d *Device) encodeFields(w io.Writer, ed format.Edition) error {
	if err := ioutil.WriteUint16(w, d.Major); err != nil {
		return err
	}
	if err := ioutil.WriteUint16(w, d.Minor); err != nil {
		return err
	}
	if !ed.AtLeast(format.EditionCryptedKey) {
		if !d.FSDevice.IsZero() {
			return &LayoutError{Edition: ed, Field: "filesystem device id"}
		}
		return nil
	}
	return d.FSDevice.Write(w)
}

func (d *Device) decodeFields(r io.Reader, ctx *DecodeContext) (err error) {
	if d.Major, err = ioutil.ReadUint16(r); err != nil {
		return err
	}
	if d.Minor, err = ioutil.ReadUint16(r); err != nil {
		return err
	}
	if ctx.Edition.AtLeast(format.EditionCryptedKey) {
		d.FSDevice, err = ioutil.ReadBignum(r)
	}
	return err
}

type CharDevice struct{ Device }

type BlockDevice struct{ Device }

func init() {
	register('c', func(s format.SaveStatus) Entry { return &CharDevice{Device{Inode: Inode{status: s}}} })
	register('b', func(s format.SaveStatus) Entry { return &BlockDevice{Device{Inode: Inode{status: s}}} })
}

func NewCharDevice(base Inode, status format.SaveStatus, major, minor uint16, fsDevice bignum.Uint) *CharDevice {
	base.status = status
	return &CharDevice{Device{Inode: base, Major: major, Minor: minor, FSDevice: fsDevice}}
}

func NewBlockDevice(base Inode, status format.SaveStatus, major, minor uint16, fsDevice bignum.Uint) *BlockDevice {
	base.status = status
	return &BlockDevice{Device{Inode: base, Major: major, Minor: minor, FSDevice: fsDevice}}
}

func (*CharDevice) Kind() byte  { return 'c' }
func (*BlockDevice) Kind() byte { return 'b' }

func (d *CharDevice) Clone() Entry {
	c := *d
	return &c
}

func (d *BlockDevice) Clone() Entry {
	c := *d
	return &c
}

func (d *CharDevice) HasChangedSince(ref Entry, hourshift int) bool {
	o, ok := ref.(*CharDevice)
	return !ok || d.deviceChangedSince(&o.Device, hourshift)
}

func (d *BlockDevice) HasChangedSince(ref Entry, hourshift int) bool {
	o, ok := ref.(*BlockDevice)
	return !ok || d.deviceChangedSince(&o.Device, hourshift)
}
