package history

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medreport-analyzer/internal/domain"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	return store, mock
}

var recordColumns = []string{
	"id", "source", "path", "provider", "fallback_reason",
	"input_chars", "critical_count", "attention_count", "result", "created_at",
}

func TestNewPostgresStore_NilDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_Save(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	rec := NewRecord("labs.pdf", "Glucose: 250", sampleAnalysis())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO analyses")).
		WithArgs(rec.ID, "labs.pdf", "heuristic", rec.Provider, rec.FallbackReason,
			rec.InputChars, 1, 1, sqlmock.AnyArg(), rec.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Save(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveError(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO analyses")).WillReturnError(errors.New("connection reset"))

	err := store.Save(context.Background(), NewRecord("", "x", sampleAnalysis()))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert")
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(recordColumns).AddRow(
		"abc", "labs.pdf", "external", "openai:gpt-4o-mini", "",
		120, 0, 1, []byte(`{"summary":"ok","findings":[{"label":"LDL","value":"130","status":"attention"}],"recommendations":[]}`), created,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM analyses WHERE id = $1")).WithArgs("abc").WillReturnRows(rows)

	rec, err := store.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, domain.PathExternal, rec.Path)
	assert.Equal(t, "ok", rec.Result.Summary)
	require.Len(t, rec.Result.Findings, 1)
	assert.Equal(t, domain.StatusAttention, rec.Result.Findings[0].Status)
	assert.Equal(t, created, rec.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM analyses WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(recordColumns))

	_, err := store.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrRecordNotFound))
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(recordColumns).
		AddRow("2", "", "heuristic", "", "", 10, 0, 0, []byte(`{"summary":"b"}`), now).
		AddRow("1", "", "heuristic", "", "", 10, 0, 0, []byte(`{"summary":"a"}`), now.Add(-time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).WithArgs(50, 0).WillReturnRows(rows)

	recs, err := store.List(context.Background(), 0, -1)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2", recs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountAndDelete(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM analyses")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM analyses WHERE id = $1")).
		WithArgs("abc").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Delete(ctx, "abc"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM analyses WHERE id = $1")).
		WithArgs("gone").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.True(t, errors.Is(store.Delete(ctx, "gone"), domain.ErrRecordNotFound))

	assert.NoError(t, mock.ExpectationsWereMet())
}
