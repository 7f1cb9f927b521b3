//go:build linux

/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package cmd

import (
	"io/fs"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/indrora/darn/darn/catalog"
)

func timespec(ts syscall.Timespec) catalog.Datetime {
	if ts.Sec < 0 {
		return catalog.Datetime{}
	}
	return catalog.Datetime{Sec: uint64(ts.Sec), Nsec: uint32(ts.Nsec)}
}

func statInfo(fi fs.FileInfo) sysInfo {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return fallbackInfo(fi)
	}
	rdev := uint64(st.Rdev)
	return sysInfo{
		uid:   uint64(st.Uid),
		gid:   uint64(st.Gid),
		atime: timespec(st.Atim),
		ctime: timespec(st.Ctim),
		dev:   uint64(st.Dev),
		ino:   uint64(st.Ino),
		nlink: uint64(st.Nlink),
		major: uint16(unix.Major(rdev)),
		minor: uint16(unix.Minor(rdev)),
	}
}
