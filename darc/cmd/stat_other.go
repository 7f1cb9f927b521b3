//go:build !linux

/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package cmd

import (
	"io/fs"
)

func statInfo(fi fs.FileInfo) sysInfo {
	return fallbackInfo(fi)
}
