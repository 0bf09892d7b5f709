package export

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sdrtools/heatwave/internal/spectrum"
)

// Store writes an export archive to a Sqlite database.
type Store struct {
	dbPath string

	db     *sql.DB
	dbOnce sync.Once
	dbErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewStore creates a store writing to dbPath. The database is opened
// and the schema initialized on first use.
func NewStore(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

func (s *Store) getDB() (*sql.DB, error) {
	s.dbOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.dbErr = fmt.Errorf("opening connection: %w", err)
			return
		}

		if _, err = db.Exec(schemaSQL); err != nil {
			_ = db.Close()
			s.dbErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.db = db
	})

	return s.db, s.dbErr
}

// CreateSession inserts the session metadata row and returns its ID.
func (s *Store) CreateSession(ctx context.Context, snap *Snapshot) (sessionID int64, err error) {
	db, err := s.getDB()
	if err != nil {
		err = fmt.Errorf("getting connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(
		ctx,
		snap.CreatedAt.UTC(),
		snap.CenterFreq,
		snap.SampleRate,
		snap.FFTSize,
		snap.Window,
		snap.Gain,
		snap.ColorScheme,
		snap.Bounds.Min,
		snap.Bounds.Max,
	)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

// StoreRows batch inserts waterfall rows, oldest first.
func (s *Store) StoreRows(ctx context.Context, sessionID int64, rows []*spectrum.Row) (err error) {
	if len(rows) == 0 {
		return
	}

	db, err := s.getDB()
	if err != nil {
		return fmt.Errorf("getting connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	values := make([]interface{}, 0, len(rows)*6)
	valuesPlaceholder := "(?, ?, ?, ?, ?, ?)"

	var sb strings.Builder
	sb.WriteString(insertRowSQL)

	for i, row := range rows {
		values = append(values,
			sessionID,
			i,
			row.Timestamp.UTC(),
			row.FrequencyStart(),
			row.BinWidth(),
			encodePower(row.Power),
		)

		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(valuesPlaceholder)
	}

	if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
		return fmt.Errorf("batch inserting rows: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// StoreAnnotations inserts the session's annotations.
func (s *Store) StoreAnnotations(ctx context.Context, sessionID int64, annotations []spectrum.Annotation) (err error) {
	if len(annotations) == 0 {
		return
	}

	db, err := s.getDB()
	if err != nil {
		return fmt.Errorf("getting connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertAnnotationSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, a := range annotations {
		if _, err = stmt.ExecContext(ctx, sessionID, a.Timestamp.UTC(), a.Frequency, a.Row, a.Power, a.Note); err != nil {
			return fmt.Errorf("inserting annotation: %w", err)
		}
	}
	return nil
}

// StoreMarkers inserts the occupied marker slots.
func (s *Store) StoreMarkers(ctx context.Context, sessionID int64, markers [5]*spectrum.Marker) (err error) {
	db, err := s.getDB()
	if err != nil {
		return fmt.Errorf("getting connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertMarkerSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for slot, m := range markers {
		if m == nil {
			continue
		}
		if _, err = stmt.ExecContext(ctx, sessionID, slot+1, m.Frequency); err != nil {
			return fmt.Errorf("inserting marker: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.db != nil {
			s.closeErr = s.db.Close()
			s.db = nil
		}
	})
	return s.closeErr
}
