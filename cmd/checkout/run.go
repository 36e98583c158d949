package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"pickandplay/internal/checkout"

	"github.com/spf13/cobra"
)

func runCmd(g *globals) *cobra.Command {
	var customer string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Check out the current cart and wait for payment",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			confirmed := make(chan string, 1)
			a, err := g.open(ctx, checkout.NavigatorFunc(func(orderID string) {
				select {
				case confirmed <- orderID:
				default:
				}
			}))
			if err != nil {
				return err
			}
			defer a.Close()

			r := newRenderer(cmd.OutOrStdout())
			session := a.NewSession(r.Render)
			defer session.Close()

			if err := session.Checkout(ctx, customer); err != nil {
				var abortErr *checkout.AbortError
				if errors.As(err, &abortErr) {
					return errors.New(abortErr.Message)
				}
				return err
			}

			select {
			case orderID := <-confirmed:
				fmt.Fprintf(cmd.OutOrStdout(), "order %s confirmed, thank you\n", orderID)
				return nil
			case <-ctx.Done():
				cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.cfg.ShutdownGracePeriod)
				defer cancel()
				if session.Cancel(cancelCtx) {
					fmt.Fprintln(cmd.OutOrStdout(), "checkout cancelled, the order is kept for your next attempt")
				}
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&customer, "customer", "", "Customer name on the order")
	_ = cmd.MarkFlagRequired("customer")

	return cmd
}
