package main

import (
	"errors"
	"fmt"

	"github.com/grez-lucas/sosh-invoices/internal/scraper/portal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type crawlSummary struct {
	Saved         int      `json:"saved"`
	InvoicesFound int      `json:"invoicesFound"`
	Files         []string `json:"files"`
}

func newCrawlCmd(a *app) *cobra.Command {
	var (
		login, password, contractID string
		outDir                      string
		headless, fromStore         bool
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one login, discovery and download pass",
		Long: `Run one login, discovery and download pass.

Credentials come from --login/--password/--contract-id, the SOSH_CREDENTIALS_*
(or ORANGE_*) environment variables, or the credential store with --from-store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			creds := portal.Credentials{
				Identifier: firstNonEmpty(login, a.cfg.Credentials.Login),
				Secret:     firstNonEmpty(password, a.cfg.Credentials.Password),
				AccountID:  firstNonEmpty(contractID, a.cfg.Credentials.ContractID),
			}
			if fromStore {
				store, closeStore, err := a.openStore(ctx, a.cfg, a.logger)
				if err != nil {
					return fmt.Errorf("open credential store: %w", err)
				}
				defer closeStore()
				rec, err := store.Fetch(ctx)
				if err != nil {
					return err
				}
				creds = rec.Credentials()
			}
			if creds.Identifier == "" || creds.Secret == "" || creds.AccountID == "" {
				return errors.New("login, password and contract id are required")
			}

			params := portal.RunParams{Credentials: creds, OutputDir: outDir}
			if cmd.Flags().Changed("headless") {
				params.Headless = &headless
			}

			scraper, err := a.newScraper(a.cfg, a.logger)
			if err != nil {
				return err
			}
			result, err := scraper.Run(ctx, params)
			if err != nil {
				a.logger.Error("crawl_failed",
					zap.String("kind", portal.KindOf(err)),
					zap.Bool("retryable", portal.IsRetryable(err)),
				)
				return err
			}

			return writeJSON(cmd.OutOrStdout(), crawlSummary{
				Saved:         len(result.Downloaded),
				InvoicesFound: result.DiscoveredCount,
				Files:         result.Files(),
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&login, "login", "", "Orange account login")
	f.StringVar(&password, "password", "", "Orange account password")
	f.StringVar(&contractID, "contract-id", "", "Contract number of the invoice history")
	f.StringVar(&outDir, "out", "", "Invoice directory (default from config)")
	f.BoolVar(&headless, "headless", true, "Run the browser without a window")
	f.BoolVar(&fromStore, "from-store", false, "Read credentials from the database")
	cmd.MarkFlagsMutuallyExclusive("from-store", "login")
	cmd.MarkFlagsMutuallyExclusive("from-store", "password")
	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
