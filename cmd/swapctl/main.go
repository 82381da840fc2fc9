package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"offerswap/cmd/internal/passphrase"
)

const (
	rpcURLEnv         = "SWAP_RPC_URL"
	keystorePassEnv   = "SWAP_KEYSTORE_PASS"
	defaultRPCURL     = "http://127.0.0.1:8080"
	defaultRPCTimeout = 60 * time.Second
)

// cli carries the global flags shared by every command.
type cli struct {
	rpcURL   string
	keystore string
	book     string
	timeout  time.Duration
	passSrc  *passphrase.Source
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "swapctl",
		Short: "Operate offers on an offerswap ledger",
		Long: `swapctl manages keys, derives offer addresses and submits MakeOffer and
TakeOffer transactions to a swapd node over JSON-RPC.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.rpcURL, "rpc", envOr(rpcURLEnv, defaultRPCURL), "JSON-RPC endpoint of the node")
	root.PersistentFlags().StringVar(&c.keystore, "keystore", "./swap.keystore", "Keystore file holding the signing key")
	root.PersistentFlags().StringVar(&c.book, "book", "", "Local offer book (defaults to offers.db next to the keystore)")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", defaultRPCTimeout, "RPC request timeout")

	root.AddCommand(
		newKeysCmd(c),
		newDeriveCmd(),
		newOfferCmd(c),
		newBalanceCmd(c),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (c *cli) client() *rpcClient {
	return newRPCClient(c.rpcURL, c.timeout)
}

func (c *cli) openBook() (*offerBook, error) {
	path := c.book
	if path == "" {
		path = filepath.Join(filepath.Dir(c.keystore), "offers.db")
	}
	return openOfferBook(path)
}

func (c *cli) passphrase() (string, error) {
	if c.passSrc == nil {
		c.passSrc = passphrase.NewSource(keystorePassEnv, "Enter keystore passphrase")
	}
	return c.passSrc.Get()
}

// printJSON writes v indented. Raw RPC results are re-indented as is.
func printJSON(w io.Writer, v interface{}) error {
	if raw, ok := v.(json.RawMessage); ok {
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return err
		}
		_, err := fmt.Fprintln(w, buf.String())
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
