package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domrepo "MarketCore/internal/domain/repository"
)

func barRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"b", "open", "high", "low", "close", "vol"})
}

func TestCHBarStoreGetBars(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewCHBarStoreDB(db, "t_bars")

	t0 := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	from, to := t0, t0.Add(time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("INTERVAL 900 SECOND")).
		WithArgs("BTCUSDT", from, to).
		WillReturnRows(barRows().
			AddRow(t0, 1.0, 2.0, 0.5, 1.5, 10.0).
			AddRow(t0.Add(15*time.Minute), 1.5, 2.5, 1.0, 2.0, 12.0))

	bars, err := s.GetBars(context.Background(), "BTCUSDT", from, to, domrepo.TF15m)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 2.5, bars[1].High)
	assert.Equal(t, t0, bars[0].Time)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHBarStoreLatestIsAscending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewCHBarStoreDB(db, "")

	t0 := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM "+DefaultBarTable)).
		WithArgs("ETHUSDT", 2).
		WillReturnRows(barRows().
			AddRow(t0.Add(time.Hour), 3.0, 3.0, 3.0, 3.0, 1.0).
			AddRow(t0, 2.0, 2.0, 2.0, 2.0, 1.0))

	bars, err := s.GetLatestNBars(context.Background(), "ETHUSDT", 2, domrepo.TF1h)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Time.Before(bars[1].Time))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHBarStoreErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewCHBarStoreDB(db, "t_bars")

	_, err = s.GetLatestNBars(context.Background(), "BTCUSDT", 10, domrepo.Interval("7m"))
	assert.Error(t, err)

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("timeout"))
	_, err = s.GetLatestNBars(context.Background(), "BTCUSDT", 10, domrepo.TF1m)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
