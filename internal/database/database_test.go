package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/Capitan-Parrot/threatsnap/internal/models"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionColumns = []string{"id", "source", "kind", "state", "notify_address", "created_at", "updated_at"}

func newMockDB(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Database{DB: db}, mock
}

func testRecord() models.LogRecord {
	return models.LogRecord{
		Timestamp: "20261018_093000_000",
		Image:     "20261018_093000_000.jpg",
		Analysis: models.Analysis{
			Status:         models.StatusSuccess,
			Danger:         "high",
			ActionRequired: true,
		},
	}
}

func TestInsertRecordCommitsWithSessionTimestamp(t *testing.T) {
	d, mock := newMockDB(t)
	record := testRecord()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO records")).
		WithArgs(record.Timestamp, "s-1", record.Image, models.StatusSuccess, "high", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET updated_at = $1 WHERE id = $2")).
		WithArgs(sqlmock.AnyArg(), "s-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, d.InsertRecord(context.Background(), "s-1", record))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRecordRollsBackWhenTimestampFails(t *testing.T) {
	d, mock := newMockDB(t)
	record := testRecord()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO records")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET updated_at")).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	err := d.InsertRecord(context.Background(), "s-1", record)
	assert.ErrorContains(t, err, "deadlock detected")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRecordRollsBackWhenInsertFails(t *testing.T) {
	d, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO records")).
		WillReturnError(errors.New("foreign key violation"))
	mock.ExpectRollback()

	err := d.InsertRecord(context.Background(), "s-1", testRecord())
	assert.ErrorContains(t, err, "failed to insert record")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxNestedCallsShareTransaction(t *testing.T) {
	d, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET updated_at")).
		WithArgs(sqlmock.AnyArg(), "s-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := d.InTx(context.Background(), func(ctx context.Context) error {
		outer := txFromCtx(ctx)
		require.NotNil(t, outer)

		return d.InTx(ctx, func(ctx context.Context) error {
			assert.Same(t, outer, txFromCtx(ctx))
			return d.UpdateSessionTimestamp(ctx, "s-1")
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxReturnsCallbackError(t *testing.T) {
	d, mock := newMockDB(t)
	errBoom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := d.InTx(context.Background(), func(context.Context) error { return errBoom })
	assert.ErrorIs(t, err, errBoom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxBeginFailure(t *testing.T) {
	d, mock := newMockDB(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	called := false
	err := d.InTx(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorContains(t, err, "failed to begin transaction")
	assert.False(t, called)
}

func TestCreateSessionUpserts(t *testing.T) {
	d, mock := newMockDB(t)
	info := &models.SessionInfo{
		ID:            "s-1",
		Source:        models.SourceSpec{Kind: models.SourceFile, Location: "lobby.mp4"},
		State:         models.StateRunning,
		NotifyAddress: "guard@example.com",
	}

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state")).
		WithArgs("s-1", "lobby.mp4", string(models.SourceFile), string(models.StateRunning), "guard@example.com", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, d.CreateSession(context.Background(), info))
	assert.False(t, info.CreatedAt.IsZero())
	assert.Equal(t, info.CreatedAt, info.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSession(t *testing.T) {
	d, mock := newMockDB(t)
	created := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions")).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows(sessionColumns).
			AddRow("s-1", "rtsp://cam/1", "live", "stopped", "", created, created.Add(time.Minute)))
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	s, err := d.GetSession(context.Background(), "s-1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, models.SourceSpec{Kind: models.SourceLive, Location: "rtsp://cam/1"}, s.Source)
	assert.Equal(t, models.StateStopped, s.State)
	assert.Equal(t, created.Add(time.Minute), s.UpdatedAt)

	s, err = d.GetSession(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, s)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSessionsDefaultLimit(t *testing.T) {
	d, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY updated_at DESC")).
		WithArgs(int64(defaultSessionsLimit)).
		WillReturnRows(sqlmock.NewRows(sessionColumns).
			AddRow("b", "garage.mp4", "file", "running", "", now, now).
			AddRow("a", "lobby.mp4", "file", "stopped", "", now, now))

	sessions, err := d.GetSessions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "b", sessions[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRecordsDecodesDocuments(t *testing.T) {
	d, mock := newMockDB(t)
	record := testRecord()
	data, err := json.Marshal(record)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("FROM records")).
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(data))

	records, err := d.GetRecords(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.Image, records[0].Image)
	assert.True(t, records[0].Analysis.ActionRequired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStopStaleSessions(t *testing.T) {
	d, mock := newMockDB(t)
	before := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE state = $2 AND updated_at < $3")).
		WithArgs(string(models.StateStopped), string(models.StateRunning), before).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))

	ids, err := d.StopStaleSessions(context.Background(), before)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStopStaleSessionsQueryError(t *testing.T) {
	d, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE sessions")).
		WillReturnError(errors.New("connection reset"))

	_, err := d.StopStaleSessions(context.Background(), time.Now())
	assert.Error(t, err)
}
