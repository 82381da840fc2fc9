package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"offerswap/cmd/internal/passphrase"
	"offerswap/crypto"
)

func newKeysCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Create and inspect keystore files",
	}
	var force bool
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a key and write it to the keystore file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(c.keystore); err == nil && !force {
				return fmt.Errorf("%s already exists; pass --force to overwrite", c.keystore)
			}
			if c.passSrc == nil {
				c.passSrc = passphrase.NewConfirmingSource(keystorePassEnv, "New keystore passphrase")
			}
			pass, err := c.passphrase()
			if err != nil {
				return err
			}
			key, err := crypto.GeneratePrivateKey()
			if err != nil {
				return err
			}
			if err := crypto.SaveToKeystore(c.keystore, key, pass); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key.PubKey().Address().String())
			return nil
		},
	}
	generate.Flags().BoolVar(&force, "force", false, "Overwrite an existing keystore")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the address of the keystore key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := c.loadKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key.PubKey().Address().String())
			return nil
		},
	}
	cmd.AddCommand(generate, show)
	return cmd
}

func (c *cli) loadKey() (*crypto.PrivateKey, error) {
	pass, err := c.passphrase()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(c.keystore, pass)
	if err != nil {
		return nil, fmt.Errorf("load keystore %s: %w", c.keystore, err)
	}
	return key, nil
}
