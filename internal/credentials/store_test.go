package credentials

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// flexibleSQLMatcher makes a statement match regardless of whitespace.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateTable)).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	s, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return s, mockPool
}

func TestNew(t *testing.T) {
	t.Run("ping failure is propagated", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("creates the table", func(t *testing.T) {
		_, mockPool := newMockStore(t)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()

	t.Run("writes the single row and masks the login", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		core, logs := observer.New(zap.InfoLevel)
		s.log = zap.New(core)

		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsert)).
			WithArgs("user@example.com", "s3cr3t", "9001234567").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := s.Upsert(ctx, Record{Login: "user@example.com", Password: "s3cr3t", ContractID: "9001234567"})

		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
		saved := logs.FilterMessage("credentials_saved").All()
		require.Len(t, saved, 1)
		assert.Equal(t, "us****om", saved[0].ContextMap()["login"])
	})

	t.Run("missing field never reaches the database", func(t *testing.T) {
		s, mockPool := newMockStore(t)

		err := s.Upsert(ctx, Record{Login: "user@example.com", Password: " ", ContractID: "9001234567"})

		assert.ErrorIs(t, err, ErrMissingField)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("database error is wrapped", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		dbErr := errors.New("connection reset")
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsert)).
			WithArgs("u", "p", "c").
			WillReturnError(dbErr)

		err := s.Upsert(ctx, Record{Login: "u", Password: "p", ContractID: "c"})

		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the stored row", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlFetch)).
			WillReturnRows(pgxmock.NewRows([]string{"login", "password", "contract_id"}).
				AddRow("user@example.com", "s3cr3t", "9001234567"))

		rec, err := s.Fetch(ctx)

		require.NoError(t, err)
		assert.Equal(t, &Record{Login: "user@example.com", Password: "s3cr3t", ContractID: "9001234567"}, rec)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("empty table is ErrNotFound", func(t *testing.T) {
		s, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlFetch)).
			WillReturnRows(pgxmock.NewRows([]string{"login", "password", "contract_id"}))

		rec, err := s.Fetch(ctx)

		assert.Nil(t, rec)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRecord(t *testing.T) {
	rec := Record{Login: "user@example.com", Password: "s3cr3t", ContractID: "9001234567"}
	require.NoError(t, rec.Validate())

	creds := rec.Credentials()
	assert.Equal(t, "user@example.com", creds.Identifier)
	assert.Equal(t, "s3cr3t", creds.Secret)
	assert.Equal(t, "9001234567", creds.AccountID)

	assert.ErrorIs(t, Record{}.Validate(), ErrMissingField)
}
