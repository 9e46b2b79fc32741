package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

func TestSaveRecordsUpsertsInTransaction(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "records")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rec := crawler.Record{
		ID:          "1019",
		DisplayName: "María Pérez",
		Affiliation: "Partido Socialista",
		Committees:  []string{"Hacienda"},
		Period:      "2022-2026",
		SourceURL:   "https://www.camara.cl/diputados/diputado.aspx?prmId=1019",
		FetchedAt:   now,
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO records").
		WithArgs(
			"run-1",
			rec.ID,
			rec.DisplayName,
			rec.Affiliation,
			rec.Region,
			rec.District,
			[]byte(`["Hacienda"]`),
			rec.Biography,
			rec.Email,
			rec.Phone,
			rec.PhotoURL,
			rec.Period,
			rec.SourceURL,
			rec.FetchedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveRecords(context.Background(), "run-1", []crawler.Record{rec}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRecordsRollsBackOnError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO records").
		WithArgs(anyArgs(14)...).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = store.SaveRecords(context.Background(), "run-1", []crawler.Record{{ID: "1"}})
	require.ErrorContains(t, err, "insert record 1")
	require.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadRecordsDecodesCommittees(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "records")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rows := mock.NewRows([]string{
		"id", "display_name", "affiliation", "region", "district", "committees",
		"biography", "email", "phone", "photo_url", "period", "source_url", "fetched_at",
	}).AddRow("7", "Ana Rojas", "", "Región de Ñuble", "District N° 19", []byte(`["Salud","Educación"]`),
		"", "", "", "", "2022-2026", "https://example.com/7", now)
	mock.ExpectQuery("SELECT id, display_name").WithArgs("run-1").WillReturnRows(rows)

	records, err := store.LoadRecords(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, []string{"Salud", "Educación"}, records[0].Committees)
	require.Equal(t, "Región de Ñuble", records[0].Region)
	require.Equal(t, now, records[0].FetchedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "roster")
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS roster").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "records; DROP TABLE x")
	require.Error(t, err)
	_, err = NewWithPool(nil, "records")
	require.Error(t, err)
}

// anyArgs returns n pgxmock.AnyArg matchers.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}
