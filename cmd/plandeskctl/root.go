package main

import (
	"fmt"

	"github.com/plandesk/plandesk/internal/config"
	"github.com/plandesk/plandesk/internal/store"
	"github.com/spf13/cobra"
)

// storeFlags override the STORE_* environment.
type storeFlags struct {
	storeType string
	path      string
}

func newRootCmd() *cobra.Command {
	flags := &storeFlags{}

	cmd := &cobra.Command{
		Use:   "plandeskctl",
		Short: "Inspect and repair the plandesk persisted store",
		Long: `plandeskctl works directly on the store used by the plandesk control
process: the response cache and the session credentials.

The store is selected with the same STORE_* environment variables as the
control process. Stop the control process before changing a file store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.storeType, "store-type", "", "store type (file, memory, valkey); overrides STORE_TYPE")
	cmd.PersistentFlags().StringVar(&flags.path, "store-path", "", "file store path; overrides STORE_PATH")

	cmd.AddCommand(newCacheCmd(flags))
	cmd.AddCommand(newSessionCmd(flags))
	cmd.AddCommand(newStoreCmd(flags))

	return cmd
}

// openStore builds the store from the environment and flags. The caller
// closes it.
func openStore(cmd *cobra.Command, flags *storeFlags) (store.Store, error) {
	cfg, err := config.LoadStore(cmd.Context())
	if err != nil && flags.storeType == "" {
		return nil, fmt.Errorf("load store configuration: %w", err)
	}

	if flags.storeType != "" {
		cfg.Type = flags.storeType
	}
	if flags.path != "" {
		cfg.Path = flags.path
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return store.NewFromConfig(cfg)
}

// withStore opens the store for the duration of fn.
func withStore(flags *storeFlags, fn func(cmd *cobra.Command, args []string, s store.Store) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		s, err := openStore(cmd, flags)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := s.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close store: %w", closeErr)
			}
		}()

		return fn(cmd, args, s)
	}
}
