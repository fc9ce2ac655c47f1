package main

import (
	"fmt"

	"github.com/grez-lucas/sosh-invoices/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the credentials and crawl API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			store, closeStore, err := a.openStore(ctx, a.cfg, a.logger)
			if err != nil {
				return fmt.Errorf("open credential store: %w", err)
			}
			defer closeStore()

			scraper, err := a.newScraper(a.cfg, a.logger)
			if err != nil {
				return err
			}
			return server.New(store, scraper, a.logger).ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}
