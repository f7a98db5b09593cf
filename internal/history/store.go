package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"capstan/internal/config"
)

// Store manages the outcome archive backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		return coder.Code() == sqliteBusyCode
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy retries op with doubling backoff while SQLite reports lock
// contention. Any other error returns immediately.
func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil || !isSQLiteBusy(err) || attempt == busyRetryAttempts {
			return err
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, busyRetryMaxBackoff)
	}
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// Open initializes or connects to the outcome archive database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "history.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := applyPragmas(db,
		"journal_mode=WAL",
		"foreign_keys = ON",
		"busy_timeout = 5000",
	); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func applyPragmas(db *sql.DB, pragmas ...string) error {
	for _, p := range pragmas {
		if _, err := db.Exec("PRAGMA " + p); err != nil {
			return fmt.Errorf("apply pragma %s: %w", p, err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the archive database location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

const entryColumns = "id, record_id, source, display_name, owner, outcome, total_bytes, destination, error_message, created_at, finished_at"

// Record appends one terminal outcome. A zero FinishedAt is stamped with
// the current time.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if _, ok := knownOutcomes[entry.Outcome]; !ok {
		return fmt.Errorf("history: unknown outcome %q", entry.Outcome)
	}
	finished := entry.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}
	return s.execWithRetry(ctx,
		`INSERT INTO download_history (record_id, source, display_name, owner, outcome, total_bytes, destination, error_message, created_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RecordID,
		entry.Source,
		entry.DisplayName,
		nullableString(entry.Owner),
		string(entry.Outcome),
		entry.TotalBytes,
		nullableString(entry.Destination),
		nullableString(entry.ErrorMessage),
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		finished.UTC().Format(time.RFC3339Nano),
	)
}

// List returns archived outcomes, newest first, optionally filtered by
// outcome. A non-positive limit returns everything.
func (s *Store) List(ctx context.Context, limit int, outcomes ...Outcome) ([]Entry, error) {
	ctx = ensureContext(ctx)
	query := "SELECT " + entryColumns + " FROM download_history"
	args := make([]any, 0, len(outcomes)+1)
	if len(outcomes) > 0 {
		query += " WHERE outcome IN (" + makePlaceholders(len(outcomes)) + ")"
		for _, outcome := range outcomes {
			args = append(args, string(outcome))
		}
	}
	query += " ORDER BY finished_at DESC, id DESC LIMIT ?"
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Stats returns a count of archived entries grouped by outcome.
func (s *Store) Stats(ctx context.Context) (map[Outcome]int, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(1) FROM download_history GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("history stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Outcome]int)
	for rows.Next() {
		var outcome Outcome
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, err
		}
		stats[outcome] = count
	}
	return stats, rows.Err()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		id           int64
		recordID     int64
		source       sql.NullString
		displayName  sql.NullString
		owner        sql.NullString
		outcomeStr   string
		totalBytes   sql.NullInt64
		destination  sql.NullString
		errorMessage sql.NullString
		createdRaw   sql.NullString
		finishedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&recordID,
		&source,
		&displayName,
		&owner,
		&outcomeStr,
		&totalBytes,
		&destination,
		&errorMessage,
		&createdRaw,
		&finishedRaw,
	); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:           id,
		RecordID:     recordID,
		Source:       source.String,
		DisplayName:  displayName.String,
		Owner:        owner.String,
		Outcome:      Outcome(outcomeStr),
		TotalBytes:   totalBytes.Int64,
		Destination:  destination.String,
		ErrorMessage: errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		entry.CreatedAt = created
	}
	if finished, err := parseTimeString(finishedRaw.String); err == nil {
		entry.FinishedAt = finished
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05"}

func parseTimeString(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if value == "" {
			break
		}
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

// CheckHealth returns diagnostic information about the archive database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("history database path is unknown")
	}

	switch info, err := os.Stat(s.path); {
	case errors.Is(err, os.ErrNotExist):
		return health, nil
	case err != nil:
		return health, fmt.Errorf("stat history database: %w", err)
	case info.IsDir():
		return health, fmt.Errorf("history database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("history database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.inspectArchive(connCtx, &health); err != nil {
		health.Error = err.Error()
		return health, err
	}
	return health, nil
}

// inspectArchive fills the readable/table/column/integrity fields of health.
func (s *Store) inspectArchive(ctx context.Context, health *DatabaseHealth) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping history database: %w", err)
	}
	health.DatabaseReadable = true

	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'download_history'").Scan(&name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// table missing, still run the integrity check below
	case err != nil:
		return fmt.Errorf("query table info: %w", err)
	default:
		health.TableExists = true
		columns, err := s.tableColumns(ctx, "download_history")
		if err != nil {
			return err
		}
		health.ColumnsPresent = columns
		for _, want := range strings.Split(entryColumns, ", ") {
			if !slices.Contains(columns, want) {
				health.MissingColumns = append(health.MissingColumns, want)
			}
		}
		row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM download_history")
		if err := row.Scan(&health.TotalEntries); err != nil {
			return fmt.Errorf("count history entries: %w", err)
		}
	}

	var verdict string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&verdict); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(verdict, "ok")
	return nil
}

func (s *Store) tableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, colType    string
			dflt             any
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info: %w", err)
	}
	return columns, nil
}
