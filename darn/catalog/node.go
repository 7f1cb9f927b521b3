package catalog

import (
	"io"

	"github.com/indrora/darn/darn/bignum"
	"github.com/indrora/darn/darn/format"
	"github.com/indrora/darn/darn/ioutil"
)

// noFields is embedded by kinds that carry nothing past the Inode.
type noFields struct{}

func (noFields) encodeFields(io.Writer, format.Edition) error { return nil }
func (noFields) decodeFields(io.Reader, *DecodeContext) error { return nil }

type Directory struct {
	Inode
	noFields
}

type Fifo struct {
	Inode
	noFields
}

type Socket struct {
	Inode
	noFields
}

// Symlink records the link target verbatim.
type Symlink struct {
	Inode
	Target string
}

// HardLink is a further name for an object already recorded in the same
// run. LinkID is shared by every name of the object and Target is the path
// under which it was first recorded.
type HardLink struct {
	Inode
	LinkID bignum.Uint
	Target string
}

func init() {
	register('d', func(s format.SaveStatus) Entry { return &Directory{Inode: Inode{status: s}} })
	register('p', func(s format.SaveStatus) Entry { return &Fifo{Inode: Inode{status: s}} })
	register('s', func(s format.SaveStatus) Entry { return &Socket{Inode: Inode{status: s}} })
	register('l', func(s format.SaveStatus) Entry { return &Symlink{Inode: Inode{status: s}} })
	register('m', func(s format.SaveStatus) Entry { return &HardLink{Inode: Inode{status: s}} })
}

func NewDirectory(base Inode, status format.SaveStatus) *Directory {
	base.status = status
	return &Directory{Inode: base}
}

func NewFifo(base Inode, status format.SaveStatus) *Fifo {
	base.status = status
	return &Fifo{Inode: base}
}

func NewSocket(base Inode, status format.SaveStatus) *Socket {
	base.status = status
	return &Socket{Inode: base}
}

func NewSymlink(base Inode, status format.SaveStatus, target string) *Symlink {
	base.status = status
	return &Symlink{Inode: base, Target: target}
}

func NewHardLink(base Inode, status format.SaveStatus, linkID bignum.Uint, target string) *HardLink {
	base.status = status
	return &HardLink{Inode: base, LinkID: linkID, Target: target}
}

func (*Directory) Kind() byte { return 'd' }
func (*Fifo) Kind() byte      { return 'p' }
func (*Socket) Kind() byte    { return 's' }
func (*Symlink) Kind() byte   { return 'l' }
func (*HardLink) Kind() byte  { return 'm' }

func (d *Directory) Clone() Entry {
	c := *d
	return &c
}

func (f *Fifo) Clone() Entry {
	c := *f
	return &c
}

func (s *Socket) Clone() Entry {
	c := *s
	return &c
}

func (l *Symlink) Clone() Entry {
	c := *l
	return &c
}

func (h *HardLink) Clone() Entry {
	c := *h
	return &c
}

func (d *Directory) HasChangedSince(ref Entry, hourshift int) bool {
	o, ok := ref.(*Directory)
	return !ok || d.metaChangedSince(&o.Inode, hourshift)
}

func (f *Fifo) HasChangedSince(ref Entry, hourshift int) bool {
	o, ok := ref.(*Fifo)
	return !ok || f.metaChangedSince(&o.Inode, hourshift)
}

func (s *Socket) HasChangedSince(ref Entry, hourshift int) bool {
	o, ok := ref.(*Socket)
	return !ok || s.metaChangedSince(&o.Inode, hourshift)
}

func (l *Symlink) HasChangedSince(ref Entry, hourshift int) bool {
	o, ok := ref.(*Symlink)
	return !ok || l.metaChangedSince(&o.Inode, hourshift) || l.Target != o.Target
}

func (h *HardLink) HasChangedSince(ref Entry, hourshift int) bool {
	o, ok := ref.(*HardLink)
	return !ok || h.metaChangedSince(&o.Inode, hourshift) ||
		!h.LinkID.Equal(o.LinkID) || h.Target != o.Target
}

func (l *Symlink) encodeFields(w io.Writer, _ format.Edition) error {
	return ioutil.WriteString(w, l.Target)
}

func (l *Symlink) decodeFields(r io.Reader, _ *DecodeContext) (err error) {
	l.Target, err = ioutil.ReadString(r)
	return err
}

func (h *HardLink) encodeFields(w io.Writer, _ format.Edition) error {
	if err := h.LinkID.Write(w); err != nil {
		return err
	}
	return ioutil.WriteString(w, h.Target)
}

func (h *HardLink) decodeFields(r io.Reader, _ *DecodeContext) (err error) {
	if h.LinkID, err = ioutil.ReadBignum(r); err != nil {
		return err
	}
	h.Target, err = ioutil.ReadString(r)
	return err
}
