/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package cmd

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/indrora/darn/darn/catalog"
	"github.com/indrora/darn/darn/writer"
)

// createCmd represents the create command
var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a darn archive",
	Long: `Create an archive from a specified set of paths.

With --ref, objects unchanged since the reference are recorded without
their content. The reference is an archive or a listing written by
list --cbor.

example:

darc create myarchive.darn a/* b/*`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		archiveFname := args[0]
		archivePaths := args[1:]

		opts := writer.Options{
			Compression:   cfg.CompressionAlgo(),
			Crypto:        cfg.CryptoAlgo(),
			Comment:       cfg.Comment,
			SequenceMarks: cfg.SequenceMarks,
			Passphrase:    passphrase(cmd),
			Dialog:        dialog,
		}
		if cfg.KeyFile != "" {
			kp, err := loadKeyFile(cfg.KeyFile)
			if err != nil {
				return err
			}
			opts.Recipient = kp.Public
		}

		var refs []catalog.Entry
		if ref, _ := cmd.Flags().GetString("ref"); ref != "" {
			var err error
			if refs, err = loadReference(cmd, ref); err != nil {
				return errors.Wrap(err, "failed to read reference archive")
			}
			log.WithFields(log.Fields{"ref": ref, "entries": len(refs)}).Debug("reference loaded")
		}

		fileh, err := os.Create(archiveFname)
		if err != nil {
			return err
		}
		defer fileh.Close()
		self, _ := filepath.Abs(archiveFname)

		buffered := bufio.NewWriter(fileh)
		archive, err := writer.NewWriter(buffered, opts)
		if err != nil {
			return err
		}

		scan := newScanner(refs, cfg.Hourshift, dialog)
		var saved, unchanged int
		for _, pathn := range archivePaths {
			err := filepath.WalkDir(pathn, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if abs, _ := filepath.Abs(path); abs == self {
					return nil
				}
				fi, err := os.Lstat(path)
				if err != nil {
					return err
				}
				e, err := scan.entry(path, fi)
				if err != nil {
					dialog.Warning("skipping", map[string]any{"path": path, "error": err})
					return nil
				}
				log.WithFields(log.Fields{"path": path, "status": e.Status()}).Debug("adding")

				if f, ok := e.(*catalog.File); ok && f.Status().HasData() {
					saved++
					return appendContent(archive, f, path)
				}
				if !e.Status().HasData() {
					unchanged++
				}
				return archive.Append(e)
			})
			if err != nil {
				return err
			}
		}

		if err := archive.Close(); err != nil {
			return err
		}
		if err := buffered.Flush(); err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"archive":   archiveFname,
			"saved":     saved,
			"unchanged": unchanged,
		}).Info("archive written")
		return nil
	},
	Example: "darc create myarchive.darn a/*",
}

func appendContent(archive *writer.ArchiveWriter, f *catalog.File, path string) error {
	content, err := os.Open(path)
	if err != nil {
		return err
	}
	defer content.Close()
	return archive.AppendFile(f, content)
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().String("comment", "", "Add comment to archive")
	createCmd.Flags().String("compression", "zstd", "Compression: none, gzip, zstd, s2, brotli")
	createCmd.Flags().String("crypto", "none", "Cipher: none, aes256, twofish256, blowfish, scrambling")
	createCmd.Flags().String("passphrase", "", "Passphrase (default $DARC_PASSPHRASE)")
	createCmd.Flags().Bool("sequence-marks", true, "Interleave escape marks so damaged archives stay readable")
	createCmd.Flags().String("ref", "", "Reference archive or CBOR listing for a differential backup")
	createCmd.Flags().Int("hourshift", 0, "Ignore whole-hour mtime shifts up to this many hours against --ref")

	bind(createCmd, "comment", "comment")
	bind(createCmd, "compression", "compression")
	bind(createCmd, "crypto", "crypto")
	bind(createCmd, "sequence_marks", "sequence-marks")
	bind(createCmd, "hourshift", "hourshift")
}
