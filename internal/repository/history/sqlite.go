package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, no cgo on Windows build hosts.
)

// Kind tells what a journal record is about.
type Kind string

const (
	// KindPlatform marks a platform distribution.
	KindPlatform Kind = "platform"
	// KindConfiguration marks one step of a configuration update chain.
	KindConfiguration Kind = "configuration"
)

// Record is one saved archive.
type Record struct {
	ID           int64
	Kind         Kind
	Product      string
	Version      string
	Path         string
	Size         int64
	DownloadedAt time.Time
}

// Journal records and lists downloaded archives.
type Journal interface {
	Record(ctx context.Context, record *Record) error
	List(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

var errRecordIsNotSet = errors.New("record is not set")

const schema = `
CREATE TABLE IF NOT EXISTS downloads (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	kind          TEXT    NOT NULL,
	product       TEXT    NOT NULL,
	version       TEXT    NOT NULL,
	path          TEXT    NOT NULL,
	size          INTEGER NOT NULL,
	downloaded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS downloads_downloaded_at ON downloads (downloaded_at);
`

// SQLiteJournal stores records in a single-file SQLite database.
type SQLiteJournal struct {
	db *sql.DB
	// now is replaced in tests.
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the journal at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteJournal, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}

	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	return &SQLiteJournal{db: db, now: time.Now}, nil
}

// buildDSN creates a read-write DSN for the given path.
// Relative paths are resolved against the working directory, since a
// relative file URI would be read as a host name.
func buildDSN(path string) (string, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve history path: %w", err)
	}

	uriPath := filepath.ToSlash(absolute)
	if !strings.HasPrefix(uriPath, "/") {
		// Windows drive letters: file:///C:/...
		uriPath = "/" + uriPath
	}

	u := url.URL{
		Scheme: "file",
		Path:   uriPath,
	}

	q := url.Values{}
	q.Add("_pragma", "busy_timeout(3000)")
	q.Add("_pragma", "journal_mode(WAL)")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Record appends a record. A zero DownloadedAt is set to the current time.
func (j *SQLiteJournal) Record(ctx context.Context, record *Record) error {
	if record == nil {
		return errRecordIsNotSet
	}

	if record.DownloadedAt.IsZero() {
		record.DownloadedAt = j.now()
	}

	result, err := j.db.ExecContext(ctx, `
		INSERT INTO downloads (kind, product, version, path, size, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(record.Kind), record.Product, record.Version, record.Path, record.Size,
		record.DownloadedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("insert download: %w", err)
	}

	if record.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("download id: %w", err)
	}

	return nil
}

// List returns up to limit records, newest first. A non-positive limit returns all records.
func (j *SQLiteJournal) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, kind, product, version, path, size, downloaded_at
		FROM downloads
		ORDER BY downloaded_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query downloads: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var records []Record

	for rows.Next() {
		var (
			record Record
			kind   string
			stamp  int64
		)

		if err = rows.Scan(&record.ID, &kind, &record.Product, &record.Version,
			&record.Path, &record.Size, &stamp); err != nil {
			return nil, fmt.Errorf("scan download: %w", err)
		}

		record.Kind = Kind(kind)
		record.DownloadedAt = time.Unix(0, stamp).UTC()
		records = append(records, record)
	}

	return records, rows.Err()
}

// Close releases the database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
