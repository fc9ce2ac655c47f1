package main

import (
	"errors"
	"fmt"

	"github.com/grez-lucas/sosh-invoices/internal/credentials"
	"github.com/spf13/cobra"
)

func newCredentialsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the stored Orange/Sosh credentials",
	}
	cmd.AddCommand(newCredentialsSetCmd(a), newCredentialsShowCmd(a))
	return cmd
}

func newCredentialsSetCmd(a *app) *cobra.Command {
	var rec credentials.Record

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the credentials used by the crawl endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := rec.Validate(); err != nil {
				return err
			}
			store, closeStore, err := a.openStore(ctx, a.cfg, a.logger)
			if err != nil {
				return fmt.Errorf("open credential store: %w", err)
			}
			defer closeStore()

			if err := store.Upsert(ctx, rec); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]bool{"ok": true})
		},
	}
	f := cmd.Flags()
	f.StringVar(&rec.Login, "login", "", "Orange account login")
	f.StringVar(&rec.Password, "password", "", "Orange account password")
	f.StringVar(&rec.ContractID, "contract-id", "", "Contract number of the invoice history")
	return cmd
}

func newCredentialsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored login and contract id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, closeStore, err := a.openStore(ctx, a.cfg, a.logger)
			if err != nil {
				return fmt.Errorf("open credential store: %w", err)
			}
			defer closeStore()

			rec, err := store.Fetch(ctx)
			if errors.Is(err, credentials.ErrNotFound) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"credentials": nil})
			}
			if err != nil {
				return err
			}
			// Record's password field is excluded from JSON.
			return writeJSON(cmd.OutOrStdout(), map[string]any{"credentials": rec})
		},
	}
}
