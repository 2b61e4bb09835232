package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/plandesk/plandesk/internal/cache"
	"github.com/plandesk/plandesk/internal/store"
	"github.com/spf13/cobra"
)

func newCacheCmd(flags *storeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and modify the response cache",
		Long: `Inspect and modify the response cache: the cached API responses keyed by
endpoint URL.`,
		Example: `  plandeskctl cache keys
  plandeskctl cache show https://api.example.com/api/projects
  plandeskctl cache forget 42
  plandeskctl cache clear`,
	}

	cmd.AddCommand(newCacheKeysCmd(flags))
	cmd.AddCommand(newCacheShowCmd(flags))
	cmd.AddCommand(newCacheForgetCmd(flags))
	cmd.AddCommand(newCacheClearCmd(flags))

	return cmd
}

func newCacheKeysCmd(flags *storeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the cached endpoint keys",
		Args:  cobra.NoArgs,
		RunE: withStore(flags, func(cmd *cobra.Command, _ []string, s store.Store) error {
			snapshot, err := cache.New(s).Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			for _, key := range slices.Sorted(maps.Keys(snapshot)) {
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		}),
	}
}

func newCacheShowCmd(flags *storeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <endpoint-key>",
		Short: "Print the cached value of an endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(flags, func(cmd *cobra.Command, args []string, s store.Store) error {
			value, found, err := cache.New(s).Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no cached value for %s", args[0])
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(value)
		}),
	}
}

func newCacheForgetCmd(flags *storeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <entity-id>",
		Short: "Remove an entity from every cached response",
		Long: `Remove an entity from every cached response, as if its deletion had been
confirmed by the API. Lists lose the matching elements and single-entity
slots holding it are removed.`,
		Args: cobra.ExactArgs(1),
		RunE: withStore(flags, func(cmd *cobra.Command, args []string, s store.Store) error {
			changed, err := cache.New(s).DeleteEntity(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if len(changed) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not referenced by any cached response\n", args[0])
				return nil
			}
			for _, key := range changed {
				fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", key)
			}
			return nil
		}),
	}
}

func newCacheClearCmd(flags *storeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the whole response cache",
		Args:  cobra.NoArgs,
		RunE: withStore(flags, func(cmd *cobra.Command, _ []string, s store.Store) error {
			if err := cache.New(s).Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "response cache cleared")
			return nil
		}),
	}
}
