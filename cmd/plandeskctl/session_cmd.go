package main

import (
	"errors"
	"fmt"

	"github.com/plandesk/plandesk/internal/session"
	"github.com/plandesk/plandesk/internal/store"
	"github.com/spf13/cobra"
)

func newSessionCmd(flags *storeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and reset the stored credentials",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report whether a token and user id are stored",
		Args:  cobra.NoArgs,
		RunE: withStore(flags, func(cmd *cobra.Command, _ []string, s store.Store) error {
			sess := session.New(s)

			userID, hasUser, err := sess.UserID(cmd.Context())
			if err != nil {
				return err
			}
			if !hasUser {
				userID = "-"
			}

			fmt.Fprintf(cmd.OutOrStdout(), "authenticated: %t\nuser: %s\n", sess.Authenticated(cmd.Context()), userID)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete the stored token and user id",
		Long: `Delete the stored token and user id. The response cache is left in place;
use "cache clear" as well to drop data fetched for the previous user.`,
		Args: cobra.NoArgs,
		RunE: withStore(flags, func(cmd *cobra.Command, _ []string, s store.Store) error {
			sess := session.New(s)
			if err := errors.Join(sess.ClearToken(cmd.Context()), sess.ClearUserID(cmd.Context())); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "session cleared")
			return nil
		}),
	})

	return cmd
}

func newStoreCmd(flags *storeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Low-level access to the persisted store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "keys",
		Short: "List the keys held by the store",
		Args:  cobra.NoArgs,
		RunE: withStore(flags, func(cmd *cobra.Command, _ []string, s store.Store) error {
			lister, ok := s.(store.Lister)
			if !ok {
				return errors.New("store does not support listing keys")
			}

			keys, err := lister.Keys(cmd.Context())
			if err != nil {
				return err
			}
			for _, key := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		}),
	})

	return cmd
}
