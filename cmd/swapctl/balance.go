package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newBalanceCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <owner> <asset>",
		Short: "Show the units of an asset held by an owner",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), c.timeout)
			defer cancel()
			result, err := c.client().call(ctx, "ledger_getBalance", args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}
