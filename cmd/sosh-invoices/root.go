package main

import (
	"context"
	"fmt"
	"io"

	"github.com/grez-lucas/sosh-invoices/internal/config"
	"github.com/grez-lucas/sosh-invoices/internal/credentials"
	"github.com/grez-lucas/sosh-invoices/internal/logging"
	"github.com/grez-lucas/sosh-invoices/internal/scraper/portal"
	"github.com/grez-lucas/sosh-invoices/internal/scraper/portal/sosh"
	"github.com/grez-lucas/sosh-invoices/internal/server"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var outJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// deps are the collaborators commands build from the loaded configuration.
// Tests replace them.
type deps struct {
	newLogger  func(cfg logging.Config) *zap.Logger
	newScraper func(cfg *config.Config, logger *zap.Logger) (portal.InvoiceScraper, error)
	openStore  func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (server.CredentialStore, func(), error)
}

func defaultDeps() deps {
	return deps{
		newLogger: logging.NewStdout,
		newScraper: func(cfg *config.Config, logger *zap.Logger) (portal.InvoiceScraper, error) {
			return sosh.NewCrawler(cfg, sosh.WithLogger(logger))
		},
		openStore: openPostgresStore,
	}
}

func openPostgresStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (server.CredentialStore, func(), error) {
	pool, err := credentials.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	store, err := credentials.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}

// app holds what PersistentPreRunE resolved for the running command.
type app struct {
	deps
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
}

func newRootCmd(d deps) *cobra.Command {
	a := &app{deps: d}

	root := &cobra.Command{
		Use:           "sosh-invoices",
		Short:         "Download Orange/Sosh invoices from the customer area",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = a.newLogger(cfg.Logger)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "YAML config file (defaults and environment otherwise)")

	root.AddCommand(newCrawlCmd(a), newServeCmd(a), newCredentialsCmd(a))
	return root
}

func writeJSON(w io.Writer, v any) error {
	b, err := outJSON.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
