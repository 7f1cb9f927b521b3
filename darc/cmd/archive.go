/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package cmd

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/indrora/darn/darn/catalog"
	"github.com/indrora/darn/darn/format"
	"github.com/indrora/darn/darn/reader"
)

// openArchive opens an archive for reading with the passphrase and key
// file given to cmd. The caller closes the returned file.
func openArchive(cmd *cobra.Command, path string) (*reader.Reader, *os.File, error) {
	fileh, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	opts := reader.Options{
		Passphrase: passphrase(cmd),
		Dialog:     dialog,
	}
	if cfg.KeyFile != "" {
		if opts.KeyPair, err = loadKeyFile(cfg.KeyFile); err != nil {
			fileh.Close()
			return nil, nil, err
		}
	}
	archive, err := reader.Open(bufio.NewReader(fileh), opts)
	if err != nil {
		fileh.Close()
		return nil, nil, errors.Wrapf(err, "failed to open %s", path)
	}
	return archive, fileh, nil
}

// readEntries returns every entry of the archive at path.
func readEntries(cmd *cobra.Command, path string) ([]catalog.Entry, error) {
	archive, fileh, err := openArchive(cmd, path)
	if err != nil {
		return nil, err
	}
	defer fileh.Close()

	var entries []catalog.Entry
	for {
		e, err := archive.Next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		entries = append(entries, e)
	}
}

// loadReference returns the entries of a reference for a differential
// backup: either an archive or a listing written by list --cbor.
func loadReference(cmd *cobra.Command, path string) ([]catalog.Entry, error) {
	fileh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fileh.Close()

	head := make([]byte, len(format.MagicBytes))
	n, err := io.ReadFull(fileh, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	if bytes.Equal(head[:n], format.MagicBytes) {
		return readEntries(cmd, path)
	}
	if _, err := fileh.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return readListing(bufio.NewReader(fileh))
}

func readListing(r io.Reader) ([]catalog.Entry, error) {
	listing, err := catalog.ImportListing(r)
	if err != nil {
		return nil, errors.Wrap(err, "not an archive or a listing")
	}
	return listing.Entries()
}

func reportStats(cmd *cobra.Command, st reader.Stats) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d entries\n", st.Entries)
	if st.SkippedBytes == 0 && st.SkippedRecords == 0 {
		return
	}
	fmt.Fprintf(out, "recovered from %d damaged regions, %d bytes and %d records skipped\n",
		len(st.Regions), st.SkippedBytes, st.SkippedRecords)
	for _, r := range st.Regions {
		fmt.Fprintf(out, "  at %d: %d bytes: %v\n", r.Offset, r.Length, r.Err)
	}
}
