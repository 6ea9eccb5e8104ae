package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/idsync/internal/filex"
	"github.com/dmitrijs2005/idsync/internal/identity"
	"github.com/dmitrijs2005/idsync/internal/models"
	"github.com/spf13/cobra"
)

func (r *rootState) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Import data from a legacy client",
	}

	imp := &cobra.Command{
		Use:   "import <file>",
		Short: "Apply a legacy identity snapshot on the first identify",
		Long: `Reads a JSON snapshot of the form

  {"userIdentities": {"7": "a@b.com"}, "userAttributes": {"plan": "gold"}, "cookieSyncDates": {"42": 1700000000000}}

and applies it to the user resolved by an identify call. The snapshot is
ignored when local state already exists.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			var m models.MigrationData
			if err := json.Unmarshal(data, &m); err != nil {
				return fmt.Errorf("parse snapshot: %w", err)
			}
			if m.IsEmpty() {
				return errors.New("snapshot is empty")
			}

			return r.run(cmd, func(ctx context.Context, a *App) error {
				gs, err := a.store.GetState(ctx)
				if err != nil {
					return err
				}
				if gs != nil {
					r.printer.Warning("local state exists, snapshot skipped")
					return nil
				}

				a.resolver.SetMigrationData(&m)
				p, err := a.resolver.Start(ctx, identity.Request{})
				if err != nil {
					return err
				}
				if _, err := a.await(ctx, p); err != nil {
					return err
				}
				r.printer.Success("snapshot applied to %s", a.resolver.CurrentMPID())
				return nil
			})
		},
	}

	exp := &cobra.Command{
		Use:   "export <file>",
		Short: "Write the current user as a snapshot import accepts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd, func(ctx context.Context, a *App) error {
				if err := a.load(ctx); err != nil {
					return err
				}
				mpid := a.resolver.CurrentMPID()
				if mpid.IsZero() {
					return errNoUser
				}
				rec, err := a.store.GetRecord(ctx, mpid)
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("no stored record for %s", mpid)
				}

				data, err := json.MarshalIndent(models.MigrationData{
					UserIdentities:  rec.UserIdentities,
					UserAttributes:  rec.UserAttributes,
					CookieSyncDates: rec.CookieSyncDates,
				}, "", "  ")
				if err != nil {
					return err
				}
				if err := filex.WriteFileAtomic(args[0], data, 0o600); err != nil {
					return fmt.Errorf("write snapshot: %w", err)
				}
				r.printer.Success("snapshot of %s written to %s", mpid, args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(imp, exp)
	return cmd
}
