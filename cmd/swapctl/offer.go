package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"offerswap/core/types"
	"offerswap/crypto"
	"offerswap/native/escrow"
)

func newOfferCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offer",
		Short: "Make, take and inspect offers",
	}
	cmd.AddCommand(newOfferMakeCmd(c), newOfferTakeCmd(c), newOfferGetCmd(c), newOfferListCmd(c), newOfferMineCmd(c))
	return cmd
}

// txFlags controls how a signed transaction is submitted.
type txFlags struct {
	async bool
	nonce uint64
}

func (f *txFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.async, "async", false, "Return the transaction hash without waiting for a block")
	cmd.Flags().Uint64Var(&f.nonce, "nonce", 0, "Transaction nonce (defaults to the current time)")
}

// sendSigned signs and submits a transaction and returns its hash. Unless
// async is set it waits for the receipt and fails when the transaction did.
func (c *cli) sendSigned(cmd *cobra.Command, key *crypto.PrivateKey, f txFlags, txType types.TxType, accounts []common.Address, data []byte) (common.Hash, error) {
	nonce := f.nonce
	if nonce == 0 {
		nonce = uint64(time.Now().UnixNano())
	}
	tx := &types.Transaction{Type: txType, Nonce: nonce, Accounts: accounts, Data: data}
	if err := tx.Sign(key.PrivateKey); err != nil {
		return common.Hash{}, err
	}
	hash, err := tx.TxHash()
	if err != nil {
		return common.Hash{}, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
	defer cancel()

	if f.async {
		result, err := c.client().call(ctx, "tx_submit", tx)
		if err != nil {
			return hash, err
		}
		return hash, printJSON(cmd.OutOrStdout(), result)
	}
	result, err := c.client().call(ctx, "tx_send", tx)
	if err != nil {
		return hash, err
	}
	var receipt types.Receipt
	if err := json.Unmarshal(result, &receipt); err != nil {
		return hash, fmt.Errorf("decode receipt: %w", err)
	}
	if err := printJSON(cmd.OutOrStdout(), result); err != nil {
		return hash, err
	}
	if !receipt.Succeeded() {
		return hash, fmt.Errorf("transaction failed: %s: %s", receipt.Code, receipt.Error)
	}
	return hash, nil
}

func newOfferMakeCmd(c *cli) *cobra.Command {
	var flags offerFlags
	var tx txFlags
	var amountA, wantedB uint64
	cmd := &cobra.Command{
		Use:   "make",
		Short: "Lock asset A in a vault and publish an offer for asset B",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			assetA, assetB, err := flags.assets()
			if err != nil {
				return err
			}
			key, err := c.loadKey()
			if err != nil {
				return err
			}
			maker := key.PubKey().Address().Array()
			book, err := c.openBook()
			if err != nil {
				return err
			}
			defer book.Close()
			id := flags.id
			if !cmd.Flags().Changed("id") {
				if id, err = book.NextID(maker); err != nil {
					return err
				}
			}
			accts, err := escrow.DeriveMakeOfferAccounts(maker, id, assetA, assetB)
			if err != nil {
				return err
			}
			data, err := escrow.MakeOfferData{ID: id, AmountA: amountA, WantedB: wantedB}.Encode()
			if err != nil {
				return err
			}
			hash, err := c.sendSigned(cmd, key, tx, types.TxTypeMakeOffer, accts.List(), data)
			if err != nil {
				return err
			}
			return book.Record(maker, bookEntry{
				Maker:    crypto.FormatAccount(maker),
				ID:       id,
				Offer:    crypto.FormatAccount(accts.Offer),
				AssetA:   crypto.FormatAsset(assetA),
				AssetB:   crypto.FormatAsset(assetB),
				Amount:   amountA,
				Wanted:   wantedB,
				TxHash:   hash.Hex(),
				Pending:  tx.async,
				Recorded: time.Now().UTC(),
			})
		},
	}
	flags.register(cmd, false)
	tx.register(cmd)
	cmd.Flags().Uint64Var(&amountA, "amount", 0, "Units of asset A to lock")
	cmd.Flags().Uint64Var(&wantedB, "wanted", 0, "Units of asset B requested in return")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("wanted")
	return cmd
}

func newOfferTakeCmd(c *cli) *cobra.Command {
	var flags offerFlags
	var tx txFlags
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Pay the wanted amount of asset B and receive the vault contents",
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
			key, err := c.loadKey()
			if err != nil {
				return err
			}
			taker := key.PubKey().Address().Array()
			accts, err := escrow.DeriveTakeOfferAccounts(taker, maker, flags.id, assetA, assetB)
			if err != nil {
				return err
			}
			_, err = c.sendSigned(cmd, key, tx, types.TxTypeTakeOffer, accts.List(), nil)
			return err
		},
	}
	flags.register(cmd, true)
	tx.register(cmd)
	return cmd
}

func newOfferGetCmd(c *cli) *cobra.Command {
	var maker string
	var id uint64
	cmd := &cobra.Command{
		Use:   "get [offer-address]",
		Short: "Show an open offer by address or by --maker and --id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params []interface{}
			switch {
			case len(args) == 1:
				params = []interface{}{args[0]}
			case maker != "":
				params = []interface{}{maker, id}
			default:
				return fmt.Errorf("pass an offer address or --maker")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
			defer cancel()
			result, err := c.client().call(ctx, "escrow_getOffer", params...)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&maker, "maker", "", "Maker address")
	cmd.Flags().Uint64Var(&id, "id", 0, "Offer id")
	return cmd
}

func newOfferListCmd(c *cli) *cobra.Command {
	var staleAfter uint64
	var stale bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
			defer cancel()
			method, params := "escrow_listOffers", []interface{}{}
			if stale || staleAfter > 0 {
				method = "escrow_listStaleOffers"
				if staleAfter > 0 {
					params = append(params, staleAfter)
				}
			}
			result, err := c.client().call(ctx, method, params...)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().BoolVar(&stale, "stale", false, "Only offers past the node's staleness threshold")
	cmd.Flags().Uint64Var(&staleAfter, "older-than", 0, "Only offers at least this many blocks old")
	return cmd
}

func newOfferMineCmd(c *cli) *cobra.Command {
	var maker string
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "List offers made from this machine, as recorded in the local offer book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var filter *[20]byte
			if maker != "" {
				addr, err := crypto.ParseAddress(maker)
				if err != nil {
					return fmt.Errorf("maker: %w", err)
				}
				filter = &addr
			}
			book, err := c.openBook()
			if err != nil {
				return err
			}
			defer book.Close()
			entries, err := book.Entries(filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().StringVar(&maker, "maker", "", "Only offers made by this address")
	return cmd
}
