package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketCore/internal/domain/models"
)

func sampleState() models.SessionState {
	st := models.NewSessionState("2024-01-08")
	st.Asia.Extend(105, 95)
	st.London.Extend(110, 99)
	st.London.SweptHigh = true
	st.PDH = models.Float(120)
	st.PDL = models.Float(80)
	st.LastBar = time.Date(2024, time.January, 8, 9, 45, 0, 0, time.UTC)
	return st
}

func TestMemorySessionStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessionStore()

	_, err := s.Load(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, models.ErrStateNotFound)

	st := sampleState()
	require.NoError(t, s.Save(ctx, "btcusdt", st))
	*st.PDH = 1

	got, err := s.Load(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 120.0, *got.PDH)
}

func TestFileSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileSessionStore(dir)
	require.NoError(t, err)

	_, err = s.Load(ctx, "ETHUSDT")
	assert.ErrorIs(t, err, models.ErrStateNotFound)

	require.NoError(t, s.Save(ctx, "ethusdt", sampleState()))
	assert.FileExists(t, filepath.Join(dir, "session_state_ETHUSDT.json"))

	got, err := s.Load(ctx, "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, sampleState(), got)

	raw, err := os.ReadFile(s.Path("ETHUSDT"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"trading_day\": \"2024-01-08\"")
	assert.Contains(t, string(raw), `"last_bar_time": "2024-01-08T09:45:00Z"`)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileSessionStoreCorruptState(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileSessionStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(s.Path("BTCUSDT"), []byte(`{"trading_day": "2024-01`), 0o644))
	_, err = s.Load(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, models.ErrCorruptState)

	require.NoError(t, os.WriteFile(s.Path("BTCUSDT"), []byte(`{"trading_day": "yesterday"}`), 0o644))
	_, err = s.Load(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, models.ErrCorruptState)
}

func TestRedisSessionStore(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	s := NewRedisSessionStore(db, "mc", time.Hour)
	key := "mc:session:BTCUSDT"
	assert.Equal(t, key, s.Key("btcusdt"))

	data, err := encodeState(sampleState())
	require.NoError(t, err)

	mock.ExpectGet(key).RedisNil()
	_, err = s.Load(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, models.ErrStateNotFound)

	mock.ExpectSet(key, data, time.Hour).SetVal("OK")
	require.NoError(t, s.Save(ctx, "BTCUSDT", sampleState()))

	mock.ExpectGet(key).SetVal(string(data))
	got, err := s.Load(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, sampleState(), got)

	mock.ExpectGet(key).SetVal("not json")
	_, err = s.Load(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, models.ErrCorruptState)

	mock.ExpectSet(key, data, time.Hour).SetErr(errors.New("READONLY"))
	err = s.Save(ctx, "BTCUSDT", sampleState())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrCorruptState)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionStore(t *testing.T) {
	ctx := context.Background()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()

	s := NewPostgresSessionStore(sqlx.NewDb(raw, "postgres"), time.Second)
	fixed := time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	data, err := encodeState(sampleState())
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(SessionStateSchema)).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, s.Migrate(ctx))

	mock.ExpectQuery(regexp.QuoteMeta(selectSessionState)).
		WithArgs("BTCUSDT").
		WillReturnRows(sqlmock.NewRows([]string{"state"}))
	_, err = s.Load(ctx, "btcusdt")
	assert.ErrorIs(t, err, models.ErrStateNotFound)

	mock.ExpectExec(regexp.QuoteMeta(upsertSessionState)).
		WithArgs("BTCUSDT", "2024-01-08", data, fixed).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.Save(ctx, "BTCUSDT", sampleState()))

	mock.ExpectQuery(regexp.QuoteMeta(selectSessionState)).
		WithArgs("BTCUSDT").
		WillReturnRows(sqlmock.NewRows([]string{"state"}).AddRow(data))
	got, err := s.Load(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, sampleState(), got)

	mock.ExpectQuery(regexp.QuoteMeta(selectSessionState)).
		WithArgs("BTCUSDT").
		WillReturnError(errors.New("connection reset"))
	_, err = s.Load(ctx, "BTCUSDT")
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
