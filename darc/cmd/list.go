/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package cmd

import (
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/indrora/darn/darn/catalog"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list archive",
	Short: "List the catalogue of a darn archive",
	Long: `List every entry of the archive, one per line. With --cbor the
catalogue is also written as a CBOR listing that can be kept apart from
the archive and used as a reference.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, fileh, err := openArchive(cmd, args[0])
		if err != nil {
			return err
		}
		defer fileh.Close()

		listing := catalog.NewListing(archive.Header())
		out := cmd.OutOrStdout()
		for {
			e, err := archive.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, describe(e))
			listing.Add(e)
		}

		if dest, _ := cmd.Flags().GetString("cbor"); dest != "" {
			fh, err := os.Create(dest)
			if err != nil {
				return err
			}
			defer fh.Close()
			if err := listing.Export(fh); err != nil {
				return errors.Wrap(err, "failed to write listing")
			}
			log.WithFields(log.Fields{"listing": dest, "entries": len(listing.Items)}).Info("listing written")
		}
		reportStats(cmd, archive.Stats())
		return nil
	},
}

// describe renders an entry the way ls -l would, with the save status
// in front.
func describe(e catalog.Entry) string {
	b := e.Base()
	line := fmt.Sprintf("%-9s %c%s %s %s %s %s",
		e.Status(), e.Kind(), fs.FileMode(b.Perm&0o777).String()[1:], b.UID, b.GID, b.Mtime, b.Name)
	switch v := e.(type) {
	case *catalog.File:
		line += fmt.Sprintf(" (%s bytes", v.Size)
		if v.Status().HasData() {
			line += fmt.Sprintf(", %s stored", v.StorageSize)
		}
		line += ")"
	case *catalog.Symlink:
		line += " -> " + v.Target
	case *catalog.HardLink:
		line += fmt.Sprintf(" link %s to %s", v.LinkID, v.Target)
	case *catalog.CharDevice:
		line += fmt.Sprintf(" [%d, %d]", v.Major, v.Minor)
	case *catalog.BlockDevice:
		line += fmt.Sprintf(" [%d, %d]", v.Major, v.Minor)
	}
	return line
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().String("passphrase", "", "Passphrase (default $DARC_PASSPHRASE)")
	listCmd.Flags().String("cbor", "", "Write the catalogue as a CBOR listing to this file")
}
