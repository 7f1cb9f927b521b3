/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package cmd

import (
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/indrora/darn/darn/catalog"
	"github.com/indrora/darn/darn/reader"
	"github.com/indrora/darn/darn/ui"
)

// errOutside is returned for an entry that would be written through a
// symlink, and so possibly outside the destination.
var errOutside = errors.New("path leaves the destination through a symlink")

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract archive [dir]",
	Short: "Unwrap a darn archive",
	Long: `Unwrap a given archive to the given path (default ".").

Entries not saved in this archive are left alone. Devices, fifos and
sockets are reported but not recreated. Entries whose path runs through a
symlink are refused.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest := "."
		if len(args) == 2 {
			dest = args[1]
		}
		if prefix, _ := cmd.Flags().GetString("force-prefix"); prefix != "" {
			dest = filepath.Join(dest, prefix)
		}
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return err
		}

		archive, fileh, err := openArchive(cmd, args[0])
		if err != nil {
			return err
		}
		defer fileh.Close()

		if err := extractAll(archive, dest, dialog); err != nil {
			return err
		}
		reportStats(cmd, archive.Stats())
		return nil
	},
}

// extractAll restores every saved entry of archive below dest.
func extractAll(archive *reader.Reader, dest string, dialog ui.Dialog) error {
	var dirs []catalog.Entry
	for {
		e, err := archive.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if !e.Status().HasData() {
			continue
		}
		target := destPath(dest, e.Base().Name)
		log.WithField("path", target).Debug("extracting")
		err = restore(archive, e, dest, dialog)
		if errors.Is(err, errOutside) {
			dialog.Warning("refusing to extract", map[string]any{"path": e.Base().Name, "error": err})
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "failed to extract %s", e.Base().Name)
		}
		if e.Kind() == 'd' {
			dirs = append(dirs, e)
			continue
		}
		if e.Kind() != 'l' {
			applyMeta(target, e.Base())
		}
	}
	// directory times last, after their contents stop changing them
	for i := len(dirs) - 1; i >= 0; i-- {
		applyMeta(destPath(dest, dirs[i].Base().Name), dirs[i].Base())
	}
	return nil
}

// entryPath is the name of an entry relative to the destination, with
// any leading or .. components dropped. The destination itself is "".
func entryPath(name string) string {
	return filepath.FromSlash(strings.TrimPrefix(path.Clean("/"+name), "/"))
}

// destPath maps an entry name under dest, never above it.
func destPath(dest, name string) string {
	return filepath.Join(dest, entryPath(name))
}

// walkUnder checks each directory of rel below root, creating the missing
// ones when create is set. A symlink on the way is errOutside.
func walkUnder(root, rel string, create bool) error {
	cur := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == "" || part == "." {
			continue
		}
		cur = filepath.Join(cur, part)
		fi, err := os.Lstat(cur)
		switch {
		case os.IsNotExist(err) && create:
			if err := os.Mkdir(cur, 0o755); err != nil {
				return err
			}
		case err != nil:
			return err
		case fi.Mode()&fs.ModeSymlink != 0:
			return errors.Wrap(errOutside, cur)
		case !fi.IsDir():
			return errors.Errorf("%s is not a directory", cur)
		}
	}
	return nil
}

// clearTarget removes whatever non-directory sits at target.
func clearTarget(target string) error {
	fi, err := os.Lstat(target)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return errors.Errorf("%s is a directory", target)
	}
	return os.Remove(target)
}

func restore(archive *reader.Reader, e catalog.Entry, dest string, dialog ui.Dialog) error {
	rel := entryPath(e.Base().Name)
	if err := walkUnder(dest, filepath.Dir(rel), true); err != nil {
		return err
	}
	target := filepath.Join(dest, rel)

	switch v := e.(type) {
	case *catalog.Directory:
		if fi, err := os.Lstat(target); err == nil && fi.IsDir() {
			return nil
		}
		if err := clearTarget(target); err != nil {
			return err
		}
		return os.Mkdir(target, 0o755)
	case *catalog.File:
		body, err := archive.Body()
		if err != nil {
			return err
		}
		defer body.Close()
		if err := clearTarget(target); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, body); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	case *catalog.Symlink:
		if err := clearTarget(target); err != nil {
			return err
		}
		return os.Symlink(v.Target, target)
	case *catalog.HardLink:
		srcRel := entryPath(v.Target)
		if err := walkUnder(dest, filepath.Dir(srcRel), false); err != nil {
			return err
		}
		src := filepath.Join(dest, srcRel)
		fi, err := os.Lstat(src)
		if err != nil {
			return err
		}
		if fi.Mode()&fs.ModeSymlink != 0 {
			return errors.Wrap(errOutside, src)
		}
		if err := clearTarget(target); err != nil {
			return err
		}
		return os.Link(src, target)
	default:
		dialog.Warning("not recreated", map[string]any{"path": e.Base().Name, "kind": string(e.Kind())})
		return nil
	}
}

func applyMeta(target string, b *catalog.Inode) {
	if fi, err := os.Lstat(target); err != nil || fi.Mode()&fs.ModeSymlink != 0 {
		return
	}
	if err := os.Chmod(target, os.FileMode(b.Perm&0o777)); err != nil {
		log.WithError(err).WithField("path", target).Warn("failed to set permissions")
	}
	if err := os.Chtimes(target, b.Atime.Time(), b.Mtime.Time()); err != nil {
		log.WithError(err).WithField("path", target).Warn("failed to set times")
	}
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().String("passphrase", "", "Passphrase (default $DARC_PASSPHRASE)")
	extractCmd.Flags().String("force-prefix", "", "Force the specified prefix")
}
