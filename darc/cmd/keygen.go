/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/indrora/darn/darn/transform"
)

// keygenCmd represents the keygen command
var keygenCmd = &cobra.Command{
	Use:   "keygen name",
	Short: "Generate a key pair to protect archive keys",
	Long: `Generate a key pair. name.pub holds the public key, which create
uses to seal a random archive key into the header. name.key holds both
halves and is needed to read such archives.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := transform.GenerateKeyPair()
		if err != nil {
			return err
		}
		pub := transform.EncodeKey(kp.Public) + "\n"
		if err := os.WriteFile(args[0]+".pub", []byte(pub), 0o644); err != nil {
			return errors.Wrap(err, "failed to write public key")
		}
		priv := pub + transform.EncodeKey(kp.Private) + "\n"
		if err := os.WriteFile(args[0]+".key", []byte(priv), 0o600); err != nil {
			return errors.Wrap(err, "failed to write private key")
		}
		log.WithField("name", args[0]).Info("key pair written")
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(pub))
		return nil
	},
}

// loadKeyFile reads a file written by keygen. A .pub file yields a pair
// with only the public half.
func loadKeyFile(path string) (*transform.KeyPair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read key file")
	}
	lines := strings.Fields(string(raw))
	if len(lines) == 0 || len(lines) > 2 {
		return nil, errors.Errorf("%s: expected one or two keys, found %d", path, len(lines))
	}
	kp := &transform.KeyPair{}
	if kp.Public, err = transform.ParseKey(lines[0]); err != nil {
		return nil, errors.Wrapf(err, "%s: public key", path)
	}
	if len(lines) == 2 {
		if kp.Private, err = transform.ParseKey(lines[1]); err != nil {
			return nil, errors.Wrapf(err, "%s: private key", path)
		}
	}
	return kp, nil
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
