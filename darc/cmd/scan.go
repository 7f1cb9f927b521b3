/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package cmd

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/pkg/xattr"

	"github.com/indrora/darn/darn/bignum"
	"github.com/indrora/darn/darn/catalog"
	"github.com/indrora/darn/darn/format"
	"github.com/indrora/darn/darn/ui"
)

// sysInfo is what the platform stat adds to fs.FileInfo.
type sysInfo struct {
	uid, gid     uint64
	atime, ctime catalog.Datetime
	dev, ino     uint64
	nlink        uint64
	major, minor uint16
}

// fallbackInfo is used where the platform stat is not available: owners
// are unknown and every timestamp is the modification time.
func fallbackInfo(fi fs.FileInfo) sysInfo {
	mtime := catalog.FromTime(fi.ModTime())
	return sysInfo{atime: mtime, ctime: mtime, nlink: 1}
}

type linkKey struct{ dev, ino uint64 }

type firstLink struct {
	id   uint64
	name string
}

// scanner turns filesystem objects into entries. Against a reference
// catalogue, unchanged objects are recorded as not saved.
type scanner struct {
	refs      map[string]catalog.Entry
	hourshift int
	links     map[linkKey]firstLink
	dialog    ui.Dialog
}

func newScanner(refs []catalog.Entry, hourshift int, dialog ui.Dialog) *scanner {
	s := &scanner{
		refs:      make(map[string]catalog.Entry, len(refs)),
		hourshift: hourshift,
		links:     make(map[linkKey]firstLink),
		dialog:    dialog,
	}
	for _, e := range refs {
		s.refs[e.Base().Name] = e
	}
	return s
}

// entry builds the entry for path. Entries are named by their slash
// separated path as given.
func (s *scanner) entry(path string, fi fs.FileInfo) (catalog.Entry, error) {
	name := filepath.ToSlash(path)
	si := statInfo(fi)
	base := catalog.Inode{
		UID:   bignum.FromUint64(si.uid),
		GID:   bignum.FromUint64(si.gid),
		Perm:  unixPerm(fi.Mode()),
		Atime: si.atime,
		Mtime: catalog.FromTime(fi.ModTime()),
		Ctime: si.ctime,
		Name:  name,
	}
	fsDev := bignum.FromUint64(si.dev)

	mode := fi.Mode()
	if !mode.IsDir() && si.nlink > 1 {
		key := linkKey{si.dev, si.ino}
		if first, seen := s.links[key]; seen {
			return catalog.NewHardLink(base, format.StatusSaved, bignum.FromUint64(first.id), first.name), nil
		}
		s.links[key] = firstLink{id: uint64(len(s.links) + 1), name: name}
	}

	var build func(format.SaveStatus) catalog.Entry
	switch {
	case mode.IsRegular():
		build = func(st format.SaveStatus) catalog.Entry {
			return catalog.NewFile(base, st, bignum.FromUint64(uint64(fi.Size())))
		}
	case mode.IsDir():
		build = func(st format.SaveStatus) catalog.Entry { return catalog.NewDirectory(base, st) }
	case mode&fs.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read link %s", path)
		}
		build = func(st format.SaveStatus) catalog.Entry { return catalog.NewSymlink(base, st, target) }
	case mode&fs.ModeDevice != 0 && mode&fs.ModeCharDevice != 0:
		build = func(st format.SaveStatus) catalog.Entry {
			return catalog.NewCharDevice(base, st, si.major, si.minor, fsDev)
		}
	case mode&fs.ModeDevice != 0:
		build = func(st format.SaveStatus) catalog.Entry {
			return catalog.NewBlockDevice(base, st, si.major, si.minor, fsDev)
		}
	case mode&fs.ModeNamedPipe != 0:
		build = func(st format.SaveStatus) catalog.Entry { return catalog.NewFifo(base, st) }
	case mode&fs.ModeSocket != 0:
		build = func(st format.SaveStatus) catalog.Entry { return catalog.NewSocket(base, st) }
	default:
		return nil, errors.Errorf("%s: unsupported file type %s", path, mode.Type())
	}

	e := build(format.StatusSaved)
	if ref, ok := s.refs[name]; ok && !e.HasChangedSince(ref, s.hourshift) {
		e = build(format.StatusNotSaved)
	}
	s.checkXattrs(path, mode)
	return e, nil
}

func unixPerm(m fs.FileMode) uint16 {
	p := uint16(m.Perm())
	if m&fs.ModeSetuid != 0 {
		p |= 0o4000
	}
	if m&fs.ModeSetgid != 0 {
		p |= 0o2000
	}
	if m&fs.ModeSticky != 0 {
		p |= 0o1000
	}
	return p
}

// checkXattrs warns about extended attributes, which entries do not carry.
func (s *scanner) checkXattrs(path string, mode fs.FileMode) {
	if mode&fs.ModeSymlink != 0 {
		return
	}
	names, err := xattr.LList(path)
	if err != nil || len(names) == 0 {
		return
	}
	s.dialog.Warning("extended attributes are not archived", map[string]any{
		"path":       path,
		"attributes": names,
	})
}
