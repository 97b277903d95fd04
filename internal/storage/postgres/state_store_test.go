package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/vin-monitor/internal/seen"
)

func newMockStore(t *testing.T) (*StateStore, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewStateStoreWithPool(mock, "")
	require.NoError(t, err)
	store.now = func() time.Time { return time.Unix(1700000000, 0) }
	return store, mock
}

func TestNewStateStoreWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewStateStoreWithPool(nil, "seen_urls")
	assert.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewStateStoreWithPool(mock, "seen; DROP TABLE x")
	assert.Error(t, err)

	store, err := NewStateStoreWithPool(mock, "")
	require.NoError(t, err)
	assert.Equal(t, "postgres://"+DefaultTable, store.Describe())
}

func TestOpenRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{})
	assert.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS seen_urls").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadGroupsRowsByIdentifier(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rows := pgxmock.NewRows([]string{"identifier", "url"}).
		AddRow("VIN-A", "https://a.example/1").
		AddRow("VIN-A", "https://a.example/2").
		AddRow("VIN-B", "https://b.example/1")
	mock.ExpectQuery("SELECT identifier, url FROM seen_urls").WillReturnRows(rows)

	st, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"VIN-A", "VIN-B"}, st.Identifiers())
	assert.Len(t, st.Seen("VIN-A"), 2)
	assert.True(t, st.Seen("VIN-B").Has("https://b.example/1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadQueryErrorReturnsEmptyState(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT identifier, url FROM seen_urls").WillReturnError(errors.New("connection refused"))

	st, err := store.Load(context.Background())
	require.Error(t, err)
	require.NotNil(t, st)
	assert.Zero(t, st.Len())
}

func TestSaveInsertsEachIdentifierInOneTransaction(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	st := seen.New()
	st.Commit("VIN-A", seen.NewSet("https://a.example/2", "https://a.example/1"))
	st.Commit("VIN-B", seen.NewSet("https://b.example/1"))
	st.Commit("VIN-EMPTY", seen.NewSet())

	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO seen_urls").
		WithArgs("VIN-A", []string{"https://a.example/1", "https://a.example/2"}, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec("INSERT INTO seen_urls").
		WithArgs("VIN-B", []string{"https://b.example/1"}, at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.Save(context.Background(), st))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	st := seen.New()
	st.Commit("VIN-A", seen.NewSet("https://a.example/1"))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO seen_urls").
		WithArgs("VIN-A", []string{"https://a.example/1"}, pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.Save(context.Background(), st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VIN-A")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveBeginFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin().WillReturnError(errors.New("no connection"))

	assert.Error(t, store.Save(context.Background(), seen.New()))
	require.NoError(t, mock.ExpectationsWereMet())
}
