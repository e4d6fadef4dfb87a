package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func sqlErrDiskFull() error { return errors.New("disk full") }

// A handful of error-path tests use sqlmock instead of a real sqlite
// file: simulating a write failure (disk full, lock contention) against
// an embedded engine is awkward, where sqlmock can return the error
// directly.

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{db: sqlx.NewDb(db, "sqlite3")}, mock
}

func TestPutStationWrapsExecError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO station`)).
		WillReturnError(sqlErrDiskFull())

	_, err := s.PutStation(Station{Tiploc: "PADTON", StationName: "Paddington"})
	if err == nil {
		t.Fatalf("expected an error when the underlying exec fails")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected a non-empty wrapped error message")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestPingPropagatesDriverError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectPing().WillReturnError(sqlErrDiskFull())

	if err := s.Ping(context.Background()); err == nil {
		t.Fatalf("expected Ping to propagate the driver error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}
