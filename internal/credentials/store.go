// Package credentials persists the single set of Orange/Sosh credentials
// the crawl endpoint runs with.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/grez-lucas/sosh-invoices/internal/logging"
	"github.com/grez-lucas/sosh-invoices/internal/scraper/portal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("no credentials stored")
	ErrMissingField = errors.New("login, password and contractId are required")
)

// DBPool abstracts pgxpool.Pool so the store can run against pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	sqlCreateTable = `
        CREATE TABLE IF NOT EXISTS sosh_credentials (
            id integer PRIMARY KEY,
            login text NOT NULL,
            password text NOT NULL,
            contract_id text NOT NULL,
            created_at timestamptz DEFAULT now(),
            updated_at timestamptz DEFAULT now()
        );
    `
	sqlUpsert = `
        INSERT INTO sosh_credentials (id, login, password, contract_id)
        VALUES (1, $1, $2, $3)
        ON CONFLICT (id) DO UPDATE SET
            login = EXCLUDED.login,
            password = EXCLUDED.password,
            contract_id = EXCLUDED.contract_id,
            updated_at = now();
    `
	sqlFetch = `SELECT login, password, contract_id FROM sosh_credentials WHERE id = 1`
)

// Record is the stored row. Password leaves the package only through
// Credentials.
type Record struct {
	Login      string `json:"login"`
	Password   string `json:"-"`
	ContractID string `json:"contractId"`
}

// Validate reports ErrMissingField when any field is blank.
func (r Record) Validate() error {
	var missing []string
	for name, v := range map[string]string{"login": r.Login, "password": r.Password, "contractId": r.ContractID} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w (missing %d)", ErrMissingField, len(missing))
	}
	return nil
}

func (r Record) Credentials() portal.Credentials {
	return portal.Credentials{Identifier: r.Login, Secret: r.Password, AccountID: r.ContractID}
}

type Store struct {
	pool DBPool
	log  *zap.Logger
}

// Connect opens a pgx pool on url.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, errors.New("database url is not set")
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database pool: %w", err)
	}
	return pool, nil
}

// New verifies the connection and creates the table if needed.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := &Store{pool: pool, log: logger.Named("credentials")}
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateTable); err != nil {
		return fmt.Errorf("failed to create sosh_credentials: %w", err)
	}
	return nil
}

// Upsert replaces the stored credentials.
func (s *Store) Upsert(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, sqlUpsert, rec.Login, rec.Password, rec.ContractID); err != nil {
		return fmt.Errorf("failed to upsert credentials: %w", err)
	}
	s.log.Info("credentials_saved", zap.String("login", logging.Mask(rec.Login)))
	return nil
}

// Fetch returns the stored credentials or ErrNotFound.
func (s *Store) Fetch(ctx context.Context) (*Record, error) {
	var rec Record
	err := s.pool.QueryRow(ctx, sqlFetch).Scan(&rec.Login, &rec.Password, &rec.ContractID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch credentials: %w", err)
	}
	return &rec, nil
}
