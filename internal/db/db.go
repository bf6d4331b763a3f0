package db

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"issuedeck/internal/models"
)

// repoCacheKey names the single cache_metadata row that stamps the
// repository cache. Credentials and the cache live in separate tables
// so they can be invalidated independently.
const repoCacheKey = "repositories"

// DB represents the local state database
type DB struct {
	*sql.DB
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Initialize creates the database schema if it doesn't exist
func (db *DB) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		org TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		login TEXT NOT NULL,
		scopes TEXT,
		repo_count INTEGER NOT NULL DEFAULT 0,
		added_at TIMESTAMP NOT NULL,
		last_validated TIMESTAMP NOT NULL,
		last_error TEXT,
		last_error_time TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS cached_repositories (
		id INTEGER PRIMARY KEY,
		full_name TEXT NOT NULL,
		owner TEXT NOT NULL,
		owner_type TEXT NOT NULL,
		private BOOLEAN NOT NULL DEFAULT 0,
		html_url TEXT,
		updated_at TIMESTAMP NOT NULL,
		org TEXT
	);

	CREATE TABLE IF NOT EXISTS cache_metadata (
		key TEXT PRIMARY KEY,
		fetched_at TIMESTAMP NOT NULL
	);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// SaveCredentials replaces the whole stored credential set. The set is
// small and rewritten wholesale on every store mutation, which keeps
// the on-disk state an exact mirror of the in-memory store.
func (db *DB) SaveCredentials(creds []*models.Credential) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM credentials`); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	query := `
	INSERT INTO credentials (org, token, login, scopes, repo_count, added_at, last_validated, last_error, last_error_time)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, c := range creds {
		_, err := tx.Exec(
			query,
			c.Org,
			c.Token,
			c.Login,
			c.Scopes,
			c.RepoCount,
			c.AddedAt,
			c.LastValidated,
			c.LastError,
			c.LastErrorTime,
		)
		if err != nil {
			return fmt.Errorf("failed to save credential for %q: %w", c.Org, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit credentials: %w", err)
	}

	return nil
}

// LoadCredentials reads the stored credential set. Rows that fail to
// scan are skipped rather than failing the load: corrupt stored state
// means "logged out", never a startup crash.
func (db *DB) LoadCredentials() ([]*models.Credential, error) {
	rows, err := db.Query(`
	SELECT org, token, login, scopes, repo_count, added_at, last_validated, last_error, last_error_time
	FROM credentials`)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		var c models.Credential
		var scopes, lastError sql.NullString
		var lastErrorTime sql.NullTime
		err := rows.Scan(
			&c.Org,
			&c.Token,
			&c.Login,
			&scopes,
			&c.RepoCount,
			&c.AddedAt,
			&c.LastValidated,
			&lastError,
			&lastErrorTime,
		)
		if err != nil {
			log.Printf("Skipping unreadable credential row: %v", err)
			continue
		}
		c.Scopes = scopes.String
		c.LastError = lastError.String
		c.LastErrorTime = lastErrorTime.Time
		creds = append(creds, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	return creds, nil
}

// SaveRepositoryCache replaces the cached repository list and stamps it
// with fetchedAt.
func (db *DB) SaveRepositoryCache(repos []*models.Repository, fetchedAt time.Time) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM cached_repositories`); err != nil {
		return fmt.Errorf("failed to clear repository cache: %w", err)
	}

	query := `
	INSERT INTO cached_repositories (id, full_name, owner, owner_type, private, html_url, updated_at, org)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, r := range repos {
		_, err := tx.Exec(query, r.ID, r.FullName, r.Owner, r.OwnerType, r.Private, r.HTMLURL, r.UpdatedAt, r.Org)
		if err != nil {
			return fmt.Errorf("failed to cache repository %s: %w", r.FullName, err)
		}
	}

	stamp := `
	INSERT INTO cache_metadata (key, fetched_at)
	VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET
		fetched_at = excluded.fetched_at
	`
	if _, err := tx.Exec(stamp, repoCacheKey, fetchedAt); err != nil {
		return fmt.Errorf("failed to stamp repository cache: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit repository cache: %w", err)
	}

	return nil
}

// LoadRepositoryCache returns the cached repository list in stored
// order plus its capture timestamp. A missing stamp means no cache;
// callers decide whether the stamp is fresh enough to use.
func (db *DB) LoadRepositoryCache() ([]*models.Repository, time.Time, error) {
	var fetchedAt time.Time
	err := db.QueryRow(`SELECT fetched_at FROM cache_metadata WHERE key = ?`, repoCacheKey).Scan(&fetchedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, fmt.Errorf("failed to read cache stamp: %w", err)
	}

	rows, err := db.Query(`
	SELECT id, full_name, owner, owner_type, private, html_url, updated_at, org
	FROM cached_repositories
	ORDER BY updated_at DESC`)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to load repository cache: %w", err)
	}
	defer rows.Close()

	var repos []*models.Repository
	for rows.Next() {
		var r models.Repository
		var htmlURL, org sql.NullString
		err := rows.Scan(&r.ID, &r.FullName, &r.Owner, &r.OwnerType, &r.Private, &htmlURL, &r.UpdatedAt, &org)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to scan cached repository: %w", err)
		}
		r.HTMLURL = htmlURL.String
		r.Org = org.String
		repos = append(repos, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read repository cache: %w", err)
	}

	return repos, fetchedAt, nil
}

// InvalidateRepositoryCache deletes the cached repository list and its
// stamp. Called whenever the credential set changes.
func (db *DB) InvalidateRepositoryCache() error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM cached_repositories`); err != nil {
		return fmt.Errorf("failed to clear repository cache: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM cache_metadata WHERE key = ?`, repoCacheKey); err != nil {
		return fmt.Errorf("failed to clear cache stamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache invalidation: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
