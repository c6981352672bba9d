// Package store persists relayed train events in PostgreSQL and pages through
// them for the read API.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Table names.
const (
	TableActiveTrains    = "active_trains"
	TableCancelledTrains = "cancelled_trains"
)

// ActiveTrain is one row of active_trains.
type ActiveTrain struct {
	ID        int64     `json:"id"`
	TrainID   string    `json:"train_id"`
	Stanox    string    `json:"stanox"`
	Timestamp time.Time `json:"timestamp"`
}

// CancelledTrain is one row of cancelled_trains.
type CancelledTrain struct {
	ID         int64     `json:"id"`
	TrainID    string    `json:"train_id"`
	Stanox     string    `json:"stanox"`
	ReasonCode string    `json:"reason_code"`
	Timestamp  time.Time `json:"timestamp"`
}

// Page selects a window of rows ordered by id.
type Page struct {
	Limit  int
	Offset int
}

const (
	insertActiveSQL    = "INSERT INTO active_trains (train_id, stanox, timestamp) VALUES ($1, $2, $3)"
	insertCancelledSQL = "INSERT INTO cancelled_trains (train_id, stanox, reason_code, timestamp) VALUES ($1, $2, $3, $4)"
	listActiveSQL      = "SELECT id, train_id, stanox, timestamp FROM active_trains ORDER BY id LIMIT $1 OFFSET $2"
	listCancelledSQL   = "SELECT id, train_id, stanox, reason_code, timestamp FROM cancelled_trains ORDER BY id LIMIT $1 OFFSET $2"
)

// Store is the PostgreSQL implementation used by the sink and the read API.
type Store struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db), nil
}

func (s *Store) InsertActiveTrain(ctx context.Context, trainID, stanox string, ts time.Time) error {
	if _, err := s.db.ExecContext(ctx, insertActiveSQL, trainID, stanox, ts.UTC()); err != nil {
		return fmt.Errorf("insert %s: %w", TableActiveTrains, err)
	}
	return nil
}

func (s *Store) InsertCancelledTrain(ctx context.Context, trainID, stanox, reasonCode string, ts time.Time) error {
	if _, err := s.db.ExecContext(ctx, insertCancelledSQL, trainID, stanox, reasonCode, ts.UTC()); err != nil {
		return fmt.Errorf("insert %s: %w", TableCancelledTrains, err)
	}
	return nil
}

// ListActiveTrains returns one page of active_trains. An empty page is an
// empty, non-nil slice.
func (s *Store) ListActiveTrains(ctx context.Context, page Page) ([]ActiveTrain, error) {
	rows, err := s.db.QueryContext(ctx, listActiveSQL, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", TableActiveTrains, err)
	}
	defer rows.Close()

	out := make([]ActiveTrain, 0, page.Limit)
	for rows.Next() {
		var row ActiveTrain
		if err := rows.Scan(&row.ID, &row.TrainID, &row.Stanox, &row.Timestamp); err != nil {
			return nil, fmt.Errorf("scan %s: %w", TableActiveTrains, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", TableActiveTrains, err)
	}
	return out, nil
}

// ListCancelledTrains returns one page of cancelled_trains.
func (s *Store) ListCancelledTrains(ctx context.Context, page Page) ([]CancelledTrain, error) {
	rows, err := s.db.QueryContext(ctx, listCancelledSQL, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", TableCancelledTrains, err)
	}
	defer rows.Close()

	out := make([]CancelledTrain, 0, page.Limit)
	for rows.Next() {
		var row CancelledTrain
		if err := rows.Scan(&row.ID, &row.TrainID, &row.Stanox, &row.ReasonCode, &row.Timestamp); err != nil {
			return nil, fmt.Errorf("scan %s: %w", TableCancelledTrains, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", TableCancelledTrains, err)
	}
	return out, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
