package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/country-leaders-scraper/internal/scraper"
)

func TestSaveLeadersInsertsRowPerLeader(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLeaderStoreWithPool(mock, "leaders")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	washington := &scraper.Leader{
		ID:             "Q23",
		FirstName:      "George",
		LastName:       "Washington",
		BirthDate:      "1732-02-22",
		DeathDate:      "1799-12-14",
		PlaceOfBirth:   "Westmoreland County",
		WikipediaURL:   "https://en.wikipedia.org/wiki/George_Washington",
		StartMandate:   "1789-04-30",
		EndMandate:     "1797-03-04",
		FirstParagraph: "George Washington was an American Founding Father.",
	}
	macron := &scraper.Leader{ID: "Q3052772", FirstName: "Emmanuel", LastName: "Macron", StartMandate: "2017-05-14"}
	data := scraper.NewLeadersByCountry()
	data.Set("us", []*scraper.Leader{washington})
	data.Set("be", nil)
	data.Set("fr", []*scraper.Leader{macron})

	mock.ExpectExec("INSERT INTO leaders").
		WithArgs("run-1", "us", 0, "Q23", "George", "Washington", "1732-02-22", "1799-12-14",
			"Westmoreland County", washington.WikipediaURL, "1789-04-30", "1797-03-04",
			washington.FirstParagraph, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO leaders").
		WithArgs("run-1", "fr", 0, "Q3052772", "Emmanuel", "Macron", "", "", "", "", "2017-05-14", "", "", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rows, err := store.SaveLeaders(context.Background(), "run-1", now, data)
	require.NoError(t, err)
	require.Equal(t, 2, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveLeadersStopsOnError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLeaderStoreWithPool(mock, "")
	require.NoError(t, err)

	data := scraper.NewLeadersByCountry()
	data.Set("us", []*scraper.Leader{{ID: "Q1"}, {ID: "Q2"}})

	mock.ExpectExec("INSERT INTO leaders").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	rows, err := store.SaveLeaders(context.Background(), "run-2", time.Now(), data)
	require.Error(t, err)
	require.Contains(t, err.Error(), "insert leader Q1 (us)")
	require.Zero(t, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveLeadersValidatesInput(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLeaderStoreWithPool(mock, "leaders")
	require.NoError(t, err)

	_, err = store.SaveLeaders(context.Background(), "", time.Now(), scraper.NewLeadersByCountry())
	require.Error(t, err)

	rows, err := store.SaveLeaders(context.Background(), "run-3", time.Now(), nil)
	require.NoError(t, err)
	require.Zero(t, rows)

	var nilStore *LeaderStore
	_, err = nilStore.SaveLeaders(context.Background(), "run-3", time.Now(), nil)
	require.Error(t, err)
	nilStore.Close()
}

func TestEnsureTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewLeaderStoreWithPool(mock, "leaders_archive")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS leaders_archive").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureTable(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewLeaderStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewLeaderStoreWithPool(nil, "leaders")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewLeaderStoreWithPool(mock, "leaders; DROP TABLE x")
	require.Error(t, err)

	_, err = NewLeaderStore(context.Background(), LeaderStoreConfig{})
	require.Error(t, err)
	_, err = NewLeaderStore(context.Background(), LeaderStoreConfig{DSN: "postgres://localhost/db", Table: "bad-name"})
	require.Error(t, err)
}
