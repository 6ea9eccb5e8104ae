package cli

import (
	"context"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/idsync/internal/identity"
	"github.com/spf13/cobra"
)

func (r *rootState) identityOpCmd(use, short string, call func(ctx context.Context, a *App, req identity.Request) (*identity.Pending, error)) *cobra.Command {
	var pairs []string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ids, err := parseIdentities(pairs)
			if err != nil {
				return err
			}
			return r.run(cmd, func(ctx context.Context, a *App) error {
				p, err := call(ctx, a, identity.Request{UserIdentities: ids})
				if err != nil {
					return err
				}
				res, err := a.await(ctx, p)
				if err != nil {
					return err
				}
				r.printResult(use, a, res)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&pairs, "id", nil, "identity as type=value, repeatable")
	return cmd
}

func (r *rootState) identifyCmd() *cobra.Command {
	return r.identityOpCmd("identify", "Resolve the current identity", func(ctx context.Context, a *App, req identity.Request) (*identity.Pending, error) {
		return a.resolver.Start(ctx, req)
	})
}

func (r *rootState) loginCmd() *cobra.Command {
	return r.identityOpCmd("login", "Log in with known identities", func(ctx context.Context, a *App, req identity.Request) (*identity.Pending, error) {
		if err := a.load(ctx); err != nil {
			return nil, err
		}
		return a.resolver.Login(ctx, req), nil
	})
}

func (r *rootState) logoutCmd() *cobra.Command {
	return r.identityOpCmd("logout", "Log out the current user", func(ctx context.Context, a *App, req identity.Request) (*identity.Pending, error) {
		if err := a.load(ctx); err != nil {
			return nil, err
		}
		return a.resolver.Logout(ctx, req), nil
	})
}

func (r *rootState) modifyCmd() *cobra.Command {
	return r.identityOpCmd("modify", "Change identities of the current user", func(ctx context.Context, a *App, req identity.Request) (*identity.Pending, error) {
		if err := a.load(ctx); err != nil {
			return nil, err
		}
		if a.resolver.CurrentMPID().IsZero() {
			return nil, errNoUser
		}
		return a.resolver.Modify(ctx, req), nil
	})
}

func (r *rootState) printResult(op string, a *App, res identity.Result) {
	if res.Native {
		r.printer.Success("%s handed to the native bridge", op)
		return
	}
	rows := [][]string{
		{"mpid", a.resolver.CurrentMPID().String()},
		{"status", strconv.Itoa(res.HTTPCode)},
	}
	if res.Body != nil && op != "modify" {
		rows = append(rows,
			[]string{"logged_in", strconv.FormatBool(res.Body.IsLoggedIn)},
			[]string{"ephemeral", strconv.FormatBool(res.Body.IsEphemeral)},
		)
	}
	r.printer.Table([]string{"field", "value"}, rows)
	r.printer.Success("%s complete", op)
}

func (r *rootState) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.run(cmd, func(ctx context.Context, a *App) error {
				if err := a.load(ctx); err != nil {
					return err
				}
				gs := a.resolver.Snapshot()
				mpid := gs.CurrentMPID.String()
				if gs.CurrentMPID.IsZero() {
					mpid = "(none)"
				}
				history := make([]string, len(gs.CurrentSessionMPIDs))
				for i, m := range gs.CurrentSessionMPIDs {
					history[i] = m.String()
				}
				rows := [][]string{
					{"mpid", mpid},
					{"device", gs.DeviceID},
					{"session", gs.SessionID},
					{"session_mpids", strings.Join(history, ", ")},
				}
				if u := a.resolver.CurrentUser(); u != nil {
					ids, err := u.GetUserIdentities(ctx)
					if err != nil {
						return err
					}
					for _, row := range identityRows(ids) {
						rows = append(rows, []string{"identity." + row[0], row[1]})
					}
				}
				r.printer.Table([]string{"field", "value"}, rows)
				return nil
			})
		},
	}
}
