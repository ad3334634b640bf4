package report

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Archive keeps every pushed window report in a local sqlite table so
// occupancy history survives restarts and can be inspected offline.
type Archive struct {
	db *sql.DB
}

// ArchivedReport is one domain's windowed maximum as stored on disk.
type ArchivedReport struct {
	ReportedAt time.Time `json:"reported_at"`
	Domain     string    `json:"domain"`
	MaxCount   int       `json:"max_count"`
}

// OpenArchive opens (creating if needed) the archive database.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("report: open archive %s: %w", path, err)
	}

	// Single writer; WAL keeps readers unblocked.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("report: enable WAL: %w", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		reported_at TIMESTAMP NOT NULL,
		domain      TEXT NOT NULL,
		max_count   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reports_reported_at ON reports(reported_at);
	CREATE INDEX IF NOT EXISTS idx_reports_domain ON reports(domain);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("report: create schema: %w", err)
	}

	return &Archive{db: db}, nil
}

// Record stores one window report, one row per domain, atomically.
func (a *Archive) Record(at time.Time, maxes map[string]int) error {
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("report: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO reports (reported_at, domain, max_count) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("report: prepare insert: %w", err)
	}
	defer stmt.Close()

	for domain, count := range maxes {
		if _, err := stmt.Exec(at, domain, count); err != nil {
			return fmt.Errorf("report: insert %q: %w", domain, err)
		}
	}
	return tx.Commit()
}

// Recent returns the newest rows, most recent first.
func (a *Archive) Recent(limit int) ([]ArchivedReport, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.Query(
		"SELECT reported_at, domain, max_count FROM reports ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("report: query recent: %w", err)
	}
	defer rows.Close()

	var out []ArchivedReport
	for rows.Next() {
		var rep ArchivedReport
		if err := rows.Scan(&rep.ReportedAt, &rep.Domain, &rep.MaxCount); err != nil {
			return nil, fmt.Errorf("report: scan row: %w", err)
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
