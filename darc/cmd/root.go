/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/indrora/darn/darc/config"
	"github.com/indrora/darn/darn/ui"
)

var (
	settings = config.New()
	cfg      *config.Config
	dialog   ui.Dialog
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "darc",
	Short: "Darc is a reference darn archive tool",
	Long: `Darc is a reference implementation of the darn archive format.

Defaults are read from darc-config.yaml in the current directory,
$HOME/.darc or /etc/darc, and from DARC_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			log.SetLevel(log.DebugLevel)
		}
		var err error
		if cfg, err = config.Load(settings); err != nil {
			return err
		}
		dialog = ui.NewLogDialog(log.StandardLogger())
		log.WithField("config", settings.ConfigFileUsed()).Debug("configuration loaded")
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func GenDocs(dir string) error {
	if err := os.Mkdir(dir, 0775); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("failed to make dir: %w", err)
	}
	return doc.GenMarkdownTree(rootCmd, dir)
}

var docsCmd = &cobra.Command{
	Use:    "docs [dir]",
	Short:  "Generate markdown documentation for darc",
	Hidden: true,
	Args:   cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "./docs/darc"
		if len(args) == 1 {
			dir = args[0]
		}
		return GenDocs(dir)
	},
}

// bind ties a flag to a config key, so the flag wins when it is given.
func bind(cmd *cobra.Command, key, flag string) {
	if err := settings.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(err)
	}
}

// passphrase reads the passphrase from the flag or from DARC_PASSPHRASE.
func passphrase(cmd *cobra.Command) []byte {
	if p, _ := cmd.Flags().GetString("passphrase"); p != "" {
		return []byte(p)
	}
	return []byte(os.Getenv("DARC_PASSPHRASE"))
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Write detailed information to the terminal")
	rootCmd.PersistentFlags().String("key", "", "Key file (public key for create, private key for reading)")
	if err := settings.BindPFlag("key_file", rootCmd.PersistentFlags().Lookup("key")); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(docsCmd)
}
