package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

func (r *rootState) attrCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attr",
		Short: "Manage attributes of the current user",
	}

	var asList bool
	set := &cobra.Command{
		Use:   "set <key> <value>...",
		Short: "Set an attribute, or a list attribute with --list",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, values := args[0], args[1:]
			if !asList && len(values) > 1 {
				return errors.New("attr set takes one value, use --list for several")
			}
			return r.run(cmd, func(ctx context.Context, a *App) error {
				u, err := a.currentUser(ctx)
				if err != nil {
					return err
				}
				if asList {
					list := make([]any, len(values))
					for i, v := range values {
						list[i] = v
					}
					err = u.SetUserAttributeList(ctx, key, list)
				} else {
					err = u.SetUserAttribute(ctx, key, parseValue(values[0]))
				}
				if err != nil {
					return err
				}
				r.printer.Success("attribute %s set on %s", key, u.MPID())
				return nil
			})
		},
	}
	set.Flags().BoolVar(&asList, "list", false, "store the values as a list")

	list := &cobra.Command{
		Use:   "list",
		Short: "List attributes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.run(cmd, func(ctx context.Context, a *App) error {
				u, err := a.currentUser(ctx)
				if err != nil {
					return err
				}
				attrs, err := u.GetAllUserAttributes(ctx)
				if err != nil {
					return err
				}
				if len(attrs) == 0 {
					r.printer.Info("no attributes")
					return nil
				}
				r.printer.Table([]string{"key", "value"}, attributeRows(attrs))
				return nil
			})
		},
	}

	rm := &cobra.Command{
		Use:   "rm <key>",
		Short: "Remove an attribute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context, a *App) error {
				u, err := a.currentUser(ctx)
				if err != nil {
					return err
				}
				if err := u.RemoveUserAttribute(ctx, args[0]); err != nil {
					return err
				}
				r.printer.Success("attribute %s removed", args[0])
				return nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every attribute",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.run(cmd, func(ctx context.Context, a *App) error {
				u, err := a.currentUser(ctx)
				if err != nil {
					return err
				}
				if err := u.RemoveAllUserAttributes(ctx); err != nil {
					return err
				}
				r.printer.Success("attributes cleared")
				return nil
			})
		},
	}

	cmd.AddCommand(set, list, rm, clearCmd)
	return cmd
}

func (r *rootState) tagCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Manage tags (valueless attributes) of the current user",
	}

	add := &cobra.Command{
		Use:   "add <tag>",
		Short: "Add a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context, a *App) error {
				u, err := a.currentUser(ctx)
				if err != nil {
					return err
				}
				if err := u.SetUserTag(ctx, args[0]); err != nil {
					return err
				}
				r.printer.Success("tag %s added", args[0])
				return nil
			})
		},
	}

	rm := &cobra.Command{
		Use:   "rm <tag>",
		Short: "Remove a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context, a *App) error {
				u, err := a.currentUser(ctx)
				if err != nil {
					return err
				}
				if err := u.RemoveUserTag(ctx, args[0]); err != nil {
					return err
				}
				r.printer.Success("tag %s removed", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(add, rm)
	return cmd
}
