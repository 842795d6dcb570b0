package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migration/*.sql
var migrationFiles embed.FS

var ErrNoReadings = errors.New("no recorded readings")

// Record is one persisted sensor sample.
type Record struct {
	ID            int64
	JobID         string
	Lux           float64
	FullSpectrum  uint16
	Infrared      uint16
	Visible       uint16
	Gain          string
	IntegrationMs int
	CreatedAt     time.Time
}

// Summary aggregates one job (or the whole log when JobID is empty).
// FullSunRatio is the share of samples at or above the threshold handed to
// the query; FullSunHours spreads that share over the recorded span.
type Summary struct {
	JobID        string
	Samples      int
	First        time.Time
	Last         time.Time
	AverageLux   float64
	PeakLux      float64
	FullSunRatio float64
	FullSunHours float64
}

// Store is the sqlite reading log shared by the record command and the
// meter HTTP API.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: could not create %s: %w", dir, err)
		}
	}
	db, err := connectWithBackoff("sqlite3", path, 3)
	if err != nil {
		return nil, fmt.Errorf("store: connect failed: %w", err)
	}
	err = runMigrations(db)
	if err != nil {
		return nil, fmt.Errorf("store: migrations failed: %w", err)
	}
	return &Store{db: db}, nil
}

func connectWithBackoff(driver string, connStr string, maxRetries int) (*sql.DB, error) {
	var db *sql.DB
	var err error
	for i := 0; i < maxRetries; i++ {
		db, err = sql.Open(driver, connStr)
		if err == nil {
			err = db.Ping()
		}
		if err == nil {
			return db, nil
		}
		slog.Warn("database connection attempt failed", "driver", driver, "error", err)
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	return nil, err
}

func runMigrations(db *sql.DB) error {
	dirEntries, err := fs.ReadDir(migrationFiles, "migration")
	if err != nil {
		return err
	}
	for _, entry := range dirEntries {
		fileData, err := fs.ReadFile(migrationFiles, filepath.Join("migration", entry.Name()))
		if err != nil {
			return err
		}
		if _, err := db.Exec(string(fileData)); err != nil {
			return fmt.Errorf("migration %s failed: %w", entry.Name(), err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Insert(ctx context.Context, record Record) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (job_id, lux, full_spectrum, infrared, visible, gain, integration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.JobID, record.Lux, record.FullSpectrum, record.Infrared, record.Visible,
		record.Gain, record.IntegrationMs, record.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("store: insert failed: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: no insert id: %w", err)
	}
	return id, nil
}

const recordColumns = `id, job_id, lux, full_spectrum, infrared, visible, gain, integration_ms, created_at`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var record Record
	err := row.Scan(&record.ID, &record.JobID, &record.Lux, &record.FullSpectrum,
		&record.Infrared, &record.Visible, &record.Gain, &record.IntegrationMs, &record.CreatedAt)
	return record, err
}

// Latest returns the most recent reading, restricted to one job when jobID
// is not empty.
func (s *Store) Latest(ctx context.Context, jobID string) (Record, error) {
	query := `SELECT ` + recordColumns + ` FROM readings`
	var args []any
	if jobID != "" {
		query += ` WHERE job_id = ?`
		args = append(args, jobID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT 1`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return record, ErrNoReadings
	}
	if err != nil {
		return record, fmt.Errorf("store: latest read failed: %w", err)
	}
	return record, nil
}

// LastJob returns the identifier of the most recently written job.
func (s *Store) LastJob(ctx context.Context) (string, error) {
	var jobID string
	err := s.db.QueryRowContext(ctx,
		`SELECT job_id FROM readings ORDER BY created_at DESC, id DESC LIMIT 1`).Scan(&jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoReadings
	}
	if err != nil {
		return "", fmt.Errorf("store: job lookup failed: %w", err)
	}
	return jobID, nil
}

// Range returns readings between from and to inclusive, oldest first,
// restricted to one job when jobID is not empty.
func (s *Store) Range(ctx context.Context, jobID string, from, to time.Time) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM readings WHERE created_at BETWEEN ? AND ?`
	args := []any{from.UTC(), to.UTC()}
	if jobID != "" {
		query += ` AND job_id = ?`
		args = append(args, jobID)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: range read failed: %w", err)
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: range scan failed: %w", err)
		}
		records = append(records, record)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: range read failed: %w", err)
	}
	return records, nil
}

// Summary aggregates the log for one job (all jobs when jobID is empty).
// fullSunLux is the illuminance counted as full sunlight.
func (s *Store) Summary(ctx context.Context, jobID string, fullSunLux float64) (Summary, error) {
	summary := Summary{JobID: jobID}
	query := `SELECT COUNT(*), COALESCE(AVG(lux), 0), COALESCE(MAX(lux), 0),
	                 COALESCE(SUM(CASE WHEN lux >= ? THEN 1 ELSE 0 END), 0)
	          FROM readings`
	args := []any{fullSunLux}
	if jobID != "" {
		query += ` WHERE job_id = ?`
		args = append(args, jobID)
	}
	var above int
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&summary.Samples, &summary.AverageLux, &summary.PeakLux, &above)
	if err != nil {
		return summary, fmt.Errorf("store: summary failed: %w", err)
	}
	if summary.Samples == 0 {
		return summary, ErrNoReadings
	}
	summary.First, err = s.boundary(ctx, jobID, "ASC")
	if err != nil {
		return summary, err
	}
	summary.Last, err = s.boundary(ctx, jobID, "DESC")
	if err != nil {
		return summary, err
	}
	summary.FullSunRatio = float64(above) / float64(summary.Samples)
	summary.FullSunHours = summary.Last.Sub(summary.First).Hours() * summary.FullSunRatio
	return summary, nil
}

// boundary fetches the oldest or newest sample time. Aggregate MIN/MAX lose
// the column type, so the driver would hand back a string instead of a time.
func (s *Store) boundary(ctx context.Context, jobID, direction string) (time.Time, error) {
	query := `SELECT created_at FROM readings`
	var args []any
	if jobID != "" {
		query += ` WHERE job_id = ?`
		args = append(args, jobID)
	}
	query += ` ORDER BY created_at ` + direction + `, id ` + direction + ` LIMIT 1`
	var at time.Time
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&at)
	if err != nil {
		return at, fmt.Errorf("store: boundary read failed: %w", err)
	}
	return at, nil
}

// Purge drops every recorded reading and reports how many were removed.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM readings`)
	if err != nil {
		return 0, fmt.Errorf("store: purge failed: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: purge count failed: %w", err)
	}
	return removed, nil
}
