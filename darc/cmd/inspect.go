/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package cmd

import (
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/indrora/darn/darn/catalog"
	"github.com/indrora/darn/darn/format"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect archive...",
	Short: "Investigate the structure of a darn archive",
	Long: `Investigate and show the structure of a darn archive: the header,
including edition, compression and encryption information, and with
--verbose every catalogue record in full.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, filename := range args {
			fmt.Fprintln(out, filename)
			archive, fileh, err := openArchive(cmd, filename)
			if err != nil {
				return err
			}
			explainHeader(out, archive.Header())

			for {
				e, err := archive.Next()
				if errors.Is(err, io.EOF) {
					fmt.Fprintln(out, "Reached end of catalogue.")
					break
				}
				if err != nil {
					fileh.Close()
					return errors.Wrap(err, "failed to read record")
				}
				if log.IsLevelEnabled(log.DebugLevel) {
					explainRecord(out, e)
				}
			}
			reportStats(cmd, archive.Stats())
			fileh.Close()
		}
		return nil
	},
}

func explainHeader(out io.Writer, h *format.Header) {
	fmt.Fprintf(out, "======Header ======\n")
	fmt.Fprintf(out, "Edition: %s\n", h.Edition)
	fmt.Fprintf(out, "Compression: %s\n", h.Compression)
	fmt.Fprintf(out, "Crypto: %s\n", h.Crypto)
	fmt.Fprintf(out, "Flags: %08b\n", h.Flags)
	fmt.Fprintf(out, "Sequence marks: %t\n", h.SequenceMarks())
	fmt.Fprintf(out, "Comment: %q\n", h.Comment)
	if h.IsEncrypted() {
		fmt.Fprintf(out, "Initial offset: %s\n", h.InitialOffset)
		fmt.Fprintf(out, "Sealed key: %t (%d bytes)\n", h.CryptedKey != nil, len(h.CryptedKey))
	}
	spew.Fdump(out, h)
}

func explainRecord(out io.Writer, e catalog.Entry) {
	fmt.Fprintf(out, "======Record ======\n")
	fmt.Fprintf(out, "Signature: %#02x\n", catalog.Signature(e))
	fmt.Fprintln(out, describe(e))
	spew.Fdump(out, e)
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().String("passphrase", "", "Passphrase (default $DARC_PASSPHRASE)")
}
