package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func statusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status ORDER_ID",
		Short: "Show the payment status of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Client().GetPaymentStatus(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "order:   %s\n", args[0])
			fmt.Fprintf(out, "status:  %s\n", report.Status)
			if report.Total != nil {
				fmt.Fprintf(out, "total:   %s\n", report.Total.StringFixed(2))
			}
			if report.Collected != nil {
				fmt.Fprintf(out, "paid:    %s\n", report.Collected.StringFixed(2))
			}
			for _, p := range report.Payments {
				fmt.Fprintf(out, "  %s %s\n", p.Reference, p.Amount.StringFixed(2))
			}
			fmt.Fprintf(out, "settled: %t\n", report.Settled())
			return nil
		},
	}
}
