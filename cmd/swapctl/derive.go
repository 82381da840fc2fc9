package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"offerswap/crypto"
	"offerswap/native/bank"
	"offerswap/native/escrow"
)

// offerFlags names an offer by maker, id and its asset pair.
type offerFlags struct {
	maker  string
	id     uint64
	assetA string
	assetB string
}

func (f *offerFlags) register(cmd *cobra.Command, withMaker bool) {
	if withMaker {
		cmd.Flags().StringVar(&f.maker, "maker", "", "Maker address")
		_ = cmd.MarkFlagRequired("maker")
	}
	cmd.Flags().Uint64Var(&f.id, "id", 0, "Offer id chosen by the maker")
	cmd.Flags().StringVar(&f.assetA, "asset-a", "", "Offered asset (symbol or address)")
	cmd.Flags().StringVar(&f.assetB, "asset-b", "", "Wanted asset (symbol or address)")
	_ = cmd.MarkFlagRequired("asset-a")
	_ = cmd.MarkFlagRequired("asset-b")
}

func (f *offerFlags) assets() ([20]byte, [20]byte, error) {
	a, err := parseAsset(f.assetA)
	if err != nil {
		return [20]byte{}, [20]byte{}, fmt.Errorf("asset-a: %w", err)
	}
	b, err := parseAsset(f.assetB)
	if err != nil {
		return [20]byte{}, [20]byte{}, fmt.Errorf("asset-b: %w", err)
	}
	if a == b {
		return [20]byte{}, [20]byte{}, fmt.Errorf("asset-a and asset-b must differ")
	}
	return a, b, nil
}

// parseAsset accepts an asset address or a registered symbol.
func parseAsset(raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if addr, err := crypto.ParseAddress(trimmed); err == nil {
		return addr, nil
	}
	return bank.AssetAddress(trimmed)
}

type derivedAddresses struct {
	Offer         string   `json:"offer"`
	OfferBump     uint8    `json:"offerBump"`
	Vault         string   `json:"vault"`
	MakerHoldingA string   `json:"makerHoldingA"`
	MakeAccounts  []string `json:"makeAccounts"`
	TakeAccounts  []string `json:"takeAccounts,omitempty"`
}

func newDeriveCmd() *cobra.Command {
	var flags offerFlags
	var taker string
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Compute offer, vault and account addresses locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			maker, err := crypto.ParseAddress(flags.maker)
			if err != nil {
				return fmt.Errorf("maker: %w", err)
			}
			assetA, assetB, err := flags.assets()
			if err != nil {
				return err
			}
			makeAccts, err := escrow.DeriveMakeOfferAccounts(maker, flags.id, assetA, assetB)
			if err != nil {
				return err
			}
			_, bump, err := escrow.OfferAddress(maker, flags.id)
			if err != nil {
				return err
			}
			out := derivedAddresses{
				Offer:         crypto.FormatAccount(makeAccts.Offer),
				OfferBump:     bump,
				Vault:         crypto.FormatAccount(makeAccts.Vault),
				MakerHoldingA: crypto.FormatAccount(makeAccts.MakerHoldingA),
			}
			for _, addr := range makeAccts.List() {
				out.MakeAccounts = append(out.MakeAccounts, crypto.FormatAccount(addr))
			}
			if taker != "" {
				takerAddr, err := crypto.ParseAddress(taker)
				if err != nil {
					return fmt.Errorf("taker: %w", err)
				}
				takeAccts, err := escrow.DeriveTakeOfferAccounts(takerAddr, maker, flags.id, assetA, assetB)
				if err != nil {
					return err
				}
				for _, addr := range takeAccts.List() {
					out.TakeAccounts = append(out.TakeAccounts, crypto.FormatAccount(addr))
				}
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	flags.register(cmd, true)
	cmd.Flags().StringVar(&taker, "taker", "", "Also derive the TakeOffer accounts for this taker")
	return cmd
}
