// Package store is the SQLite storage behind the forum API.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"questionforum/pkg/models"
)

var (
	ErrDuplicate          = errors.New("store: already exists")
	ErrInvalidCredentials = errors.New("store: invalid email or password")
	ErrUnknownCategory    = errors.New("store: unknown category")
	ErrInvalidRating      = errors.New("store: invalid rating")
)

// DefaultCategories are created with the schema.
var DefaultCategories = []string{"General", "Programming", "Technology", "Science", "Mathematics", "Career"}

const schemaVersion = 1

type DB struct {
	*sql.DB
	log  *zap.Logger
	cost int
	now  func() time.Time
}

type Option func(*DB)

// WithBcryptCost sets the password hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option { return func(db *DB) { db.cost = cost } }

func WithLogger(log *zap.Logger) Option { return func(db *DB) { db.log = log } }

// WithClock replaces time.Now for created_at stamps.
func WithClock(now func() time.Time) Option { return func(db *DB) { db.now = now } }

// Open connects to the database at path and brings its schema up to date.
func Open(ctx context.Context, path string, opts ...Option) (*DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite serializes writers anyway.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{DB: sqlDB, log: zap.NewNop(), cost: bcrypt.DefaultCost, now: time.Now}
	for _, opt := range opts {
		opt(db)
	}
	if err := db.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		firstname TEXT NOT NULL DEFAULT '',
		lastname TEXT NOT NULL DEFAULT '',
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		author_id INTEGER NOT NULL REFERENCES users(id),
		category_id INTEGER NOT NULL REFERENCES categories(id),
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS question_tags (
		question_id INTEGER NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
		tag_id INTEGER NOT NULL REFERENCES tags(id),
		position INTEGER NOT NULL,
		PRIMARY KEY (question_id, tag_id)
	)`,
	`CREATE TABLE IF NOT EXISTS answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_id INTEGER NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
		author_id INTEGER NOT NULL REFERENCES users(id),
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ratings (
		answer_id INTEGER NOT NULL REFERENCES answers(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id),
		rating REAL NOT NULL,
		PRIMARY KEY (answer_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS answers_question ON answers(question_id, created_at)`,
}

// Migrate creates the schema and seeds the categories when the database is
// older than this build.
func (db *DB) Migrate(ctx context.Context) error {
	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return err
	}
	if version >= schemaVersion {
		return nil
	}
	db.log.Info("migrating database", zap.Int("from", version), zap.Int("to", schemaVersion))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, query := range schema {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	for _, name := range DefaultCategories {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO categories (name) VALUES (?)`, name); err != nil {
			return err
		}
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	db.log.Info("migration completed")
	return nil
}

func (db *DB) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), db.cost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}

func normalizeQuery(q models.ListQuery) models.ListQuery {
	if q.PerPage <= 0 {
		q.PerPage = 10
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	q.Search = strings.TrimSpace(q.Search)
	q.Category = strings.TrimSpace(q.Category)
	return q
}

func totalPages(count, perPage int) int {
	if count <= 0 {
		return 1
	}
	return (count + perPage - 1) / perPage
}
