package cli

import (
	"context"
	"strconv"

	"github.com/dmitrijs2005/idsync/internal/models"
	"github.com/spf13/cobra"
)

func (r *rootState) cartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Manage the current user's cart",
	}

	var (
		product  models.Product
		logEvent bool
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.run(cmd, func(ctx context.Context, a *App) error {
				u, err := a.currentUser(ctx)
				if err != nil {
					return err
				}
				if err := u.Cart().Add(ctx, []models.Product{product}, logEvent); err != nil {
					return err
				}
				r.printer.Success("added %s to the cart of %s", product.Sku, u.MPID())
				return nil
			})
		},
	}
	add.Flags().StringVar(&product.Sku, "sku", "", "product SKU")
	add.Flags().StringVar(&product.Name, "name", "", "product name")
	add.Flags().Float64Var(&product.Price, "price", 0, "unit price")
	add.Flags().Float64Var(&product.Quantity, "qty", 1, "quantity")
	add.Flags().StringVar(&product.Category, "category", "", "product category")
	add.Flags().BoolVar(&logEvent, "log-event", true, "emit an add-to-cart event")
	_ = add.MarkFlagRequired("sku")

	list := &cobra.Command{
		Use:   "list",
		Short: "List products in the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.run(cmd, func(ctx context.Context, a *App) error {
				u, err := a.currentUser(ctx)
				if err != nil {
					return err
				}
				products, err := u.Cart().GetCartProducts(ctx)
				if err != nil {
					return err
				}
				if len(products) == 0 {
					r.printer.Info("cart is empty")
					return nil
				}
				rows := make([][]string, 0, len(products))
				for _, p := range products {
					rows = append(rows, []string{
						p.Sku,
						p.Name,
						strconv.FormatFloat(p.Price, 'f', -1, 64),
						strconv.FormatFloat(p.Quantity, 'f', -1, 64),
					})
				}
				r.printer.Table([]string{"sku", "name", "price", "qty"}, rows)
				return nil
			})
		},
	}

	var (
		rmSku string
		rmLog bool
	)
	rm := &cobra.Command{
		Use:   "rm",
		Short: "Remove the first product with a SKU",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.run(cmd, func(ctx context.Context, a *App) error {
				u, err := a.currentUser(ctx)
				if err != nil {
					return err
				}
				if err := u.Cart().Remove(ctx, models.Product{Sku: rmSku}, rmLog); err != nil {
					return err
				}
				r.printer.Success("removed %s", rmSku)
				return nil
			})
		},
	}
	rm.Flags().StringVar(&rmSku, "sku", "", "product SKU")
	rm.Flags().BoolVar(&rmLog, "log-event", true, "emit a remove-from-cart event")
	_ = rm.MarkFlagRequired("sku")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.run(cmd, func(ctx context.Context, a *App) error {
				u, err := a.currentUser(ctx)
				if err != nil {
					return err
				}
				if err := u.Cart().Clear(ctx); err != nil {
					return err
				}
				r.printer.Success("cart cleared")
				return nil
			})
		},
	}

	cmd.AddCommand(add, list, rm, clearCmd)
	return cmd
}
