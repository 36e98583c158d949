package main

import (
	"fmt"

	"pickandplay/internal/cart"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func cartCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Manage the shopper's cart",
	}
	cmd.AddCommand(cartAddCmd(g), cartShowCmd(g), cartClearCmd(g))
	return cmd
}

func cartAddCmd(g *globals) *cobra.Command {
	var (
		item  cart.Item
		price string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an item to the cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			unit, err := decimal.NewFromString(price)
			if err != nil {
				return fmt.Errorf("invalid price %q: %w", price, err)
			}
			item.UnitPrice = unit

			ctx := cmd.Context()
			a, err := g.open(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.Store().LoadCart(ctx)
			if err != nil {
				return err
			}
			if err := c.Add(item); err != nil {
				return err
			}
			if err := a.Store().SaveCart(ctx, c); err != nil {
				return err
			}
			printCart(cmd, c)
			return nil
		},
	}

	cmd.Flags().StringVar(&item.ProductID, "product", "", "Product id")
	cmd.Flags().StringVar(&item.Name, "name", "", "Display name")
	cmd.Flags().IntVar(&item.Quantity, "qty", 1, "Quantity")
	cmd.Flags().StringVar(&price, "price", "", "Unit price")
	_ = cmd.MarkFlagRequired("product")
	_ = cmd.MarkFlagRequired("price")

	return cmd
}

func cartShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.Store().LoadCart(ctx)
			if err != nil {
				return err
			}
			printCart(cmd, c)
			return nil
		},
	}
}

func cartClearCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.open(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Store().ClearCart(ctx)
		},
	}
}

func printCart(cmd *cobra.Command, c cart.Cart) {
	out := cmd.OutOrStdout()
	if c.Empty() {
		fmt.Fprintln(out, "cart is empty")
		return
	}
	for _, it := range c.Items {
		name := it.Name
		if name == "" {
			name = it.ProductID
		}
		fmt.Fprintf(out, "  %-24s %3d x %s\n", name, it.Quantity, it.UnitPrice.StringFixed(2))
	}
	fmt.Fprintf(out, "  %-24s %s\n", "total", c.Total().StringFixed(2))
}
