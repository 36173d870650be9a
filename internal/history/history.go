// Package history archives jobs that reached a terminal outcome. Entries
// outlive the active set and stay queryable after restarts.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/ksuid"
	_ "modernc.org/sqlite"

	"github.com/haul-dl/haul/internal/domain"
)

type Archive struct {
	db *sql.DB
}

func Open(dbPath string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	a := &Archive{db: db}

	if err := a.runMigrations(); err != nil {
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}

	return a, nil
}

// EntryResource is one archived resource of a job.
type EntryResource struct {
	ClientID string `json:"client_id"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Entry is one archived terminal outcome.
type Entry struct {
	ID         string
	JobID      string
	ClientID   string
	Name       string
	Outcome    domain.State
	Detail     string
	Resources  []EntryResource
	FinishedAt time.Time
}

// Record archives job with the given outcome. cause, when present, is kept
// as the entry's detail text.
func (a *Archive) Record(job *domain.Job, outcome domain.State, cause error) error {
	resources := make([]EntryResource, 0, len(job.Resources))
	for _, r := range job.Resources {
		resources = append(resources, EntryResource{
			ClientID: r.ClientID,
			URL:      r.URL.String(),
			Filename: r.Filename,
		})
	}

	resourcesJSON, err := json.Marshal(resources)
	if err != nil {
		return fmt.Errorf("failed to encode resources: %w", err)
	}

	detail := ""
	if cause != nil {
		detail = cause.Error()
	}

	query := `INSERT INTO history (id, job_id, client_id, name, outcome, detail, resources, finished_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = a.db.Exec(query,
		ksuid.New().String(),
		job.ID,
		job.ClientID,
		job.Name,
		string(outcome),
		detail,
		string(resourcesJSON),
		time.Now().UnixNano(),
	)
	return err
}

// List returns the newest entries first, at most limit of them. A limit of
// 0 or less means no limit.
func (a *Archive) List(limit int) ([]Entry, error) {
	query := `
		SELECT id, job_id, client_id, name, outcome, detail, resources, finished_at
		FROM history
		ORDER BY finished_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ByClient returns every entry recorded for clientID, newest first.
func (a *Archive) ByClient(clientID string) ([]Entry, error) {
	query := `
		SELECT id, job_id, client_id, name, outcome, detail, resources, finished_at
		FROM history
		WHERE client_id = ?
		ORDER BY finished_at DESC, id DESC`

	rows, err := a.db.Query(query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", clientID, err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e             Entry
			outcome       string
			resourcesJSON string
			finishedAt    int64
		)
		if err := rows.Scan(&e.ID, &e.JobID, &e.ClientID, &e.Name, &outcome, &e.Detail, &resourcesJSON, &finishedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(resourcesJSON), &e.Resources); err != nil {
			return nil, fmt.Errorf("failed to decode resources for %s: %w", e.ID, err)
		}
		e.Outcome = domain.State(outcome)
		e.FinishedAt = time.Unix(0, finishedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (a *Archive) Close() error {
	return a.db.Close()
}
