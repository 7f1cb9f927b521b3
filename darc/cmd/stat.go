/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/xattr"
	"github.com/spf13/cobra"

	"github.com/indrora/darn/darn/ui"
)

var statCmd = &cobra.Command{
	Use:   "stat path...",
	Short: "Show the catalogue entry a path would be archived as",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		scan := newScanner(nil, 0, ui.Discard)
		for _, path := range args {
			fi, err := os.Lstat(path)
			if err != nil {
				return err
			}
			e, err := scan.entry(path, fi)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, describe(e))
			spew.Fdump(out, e)
			listXattrs(out, path)
		}
		return nil
	},
}

func listXattrs(out io.Writer, path string) {
	attrs, err := xattr.LList(path)
	if err != nil {
		return
	}
	for _, name := range attrs {
		value, err := xattr.LGet(path, name)
		if err != nil {
			fmt.Fprintln(out, name, "= ? (couldn't read:", err, ")")
		} else {
			fmt.Fprintf(out, "%s = %q\n", name, value)
		}
	}
}

func init() {
	rootCmd.AddCommand(statCmd)
}
