package library

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage keeps the catalog in a SQLite database. Row positions
// preserve insertion order, and duplicate keys are stored as they are.
type SQLiteStorage struct {
	db *sql.DB

	insertBookStmt     *sql.Stmt
	insertUserStmt     *sql.Stmt
	insertUserBookStmt *sql.Stmt
}

// NewSQLiteStorage opens (or creates) the SQLite database at dbPath, applies
// schema migrations, and prepares common statements.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create db dir: %v", ErrStorageUnavailable, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", ErrStorageUnavailable, err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStorage{db: db}
	if err := s.prepareStatements(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases prepared statements and closes the DB.
func (s *SQLiteStorage) Close() error {
	for _, stmt := range []*sql.Stmt{s.insertBookStmt, s.insertUserStmt, s.insertUserBookStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
            position INTEGER PRIMARY KEY,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            isbn TEXT NOT NULL,
            available BOOLEAN NOT NULL DEFAULT 1
        );`,
		`CREATE INDEX IF NOT EXISTS idx_books_isbn ON books(isbn);`,
		`CREATE TABLE IF NOT EXISTS users (
            position INTEGER PRIMARY KEY,
            user_id TEXT NOT NULL,
            name TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS user_books (
            user_position INTEGER NOT NULL REFERENCES users(position) ON DELETE CASCADE,
            seq INTEGER NOT NULL,
            isbn TEXT NOT NULL,
            PRIMARY KEY (user_position, seq)
        );`,
		`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`,
	}

	for _, stmt := range stmts {
		var args []any
		if strings.Contains(stmt, "?") {
			args = append(args, schemaVersion)
		}
		if _, err := tx.Exec(stmt, args...); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (s *SQLiteStorage) prepareStatements() error {
	var err error
	if s.insertBookStmt, err = s.db.Prepare(`INSERT INTO books(position,title,author,isbn,available) VALUES(?,?,?,?,?)`); err != nil {
		return err
	}
	if s.insertUserStmt, err = s.db.Prepare(`INSERT INTO users(position,user_id,name) VALUES(?,?,?)`); err != nil {
		return err
	}
	if s.insertUserBookStmt, err = s.db.Prepare(`INSERT INTO user_books(user_position,seq,isbn) VALUES(?,?,?)`); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads every book and user in position order. A fresh database
// yields empty collections.
func (s *SQLiteStorage) Load(ctx context.Context) (LoadResult, error) {
	books, err := s.loadBooks(ctx)
	if err != nil {
		return LoadResult{}, fmt.Errorf("load books: %w", err)
	}
	users, err := s.loadUsers(ctx)
	if err != nil {
		return LoadResult{}, fmt.Errorf("load users: %w", err)
	}
	return LoadResult{Snapshot: Snapshot{Books: books, Users: users}}, nil
}

func (s *SQLiteStorage) loadBooks(ctx context.Context) ([]Book, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT title,author,isbn,available FROM books ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.Title, &b.Author, &b.ISBN, &b.Available); err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (s *SQLiteStorage) loadUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT u.position, u.user_id, u.name, ub.isbn
        FROM users u
        LEFT JOIN user_books ub ON ub.user_position = u.position
        ORDER BY u.position, ub.seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		users []User
		last  int64 = -1
	)
	for rows.Next() {
		var (
			pos      int64
			id, name string
			isbn     sql.NullString
		)
		if err := rows.Scan(&pos, &id, &name, &isbn); err != nil {
			return nil, err
		}
		if pos != last {
			users = append(users, User{ID: id, Name: name})
			last = pos
		}
		if isbn.Valid {
			users[len(users)-1].take(isbn.String)
		}
	}
	return users, rows.Err()
}

// Save replaces the stored catalog with the snapshot in one transaction.
func (s *SQLiteStorage) Save(ctx context.Context, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM user_books`, `DELETE FROM users`, `DELETE FROM books`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: clear: %v", ErrStorageUnavailable, err)
		}
	}

	insertBook := tx.StmtContext(ctx, s.insertBookStmt)
	for i, b := range snap.Books {
		if _, err := insertBook.ExecContext(ctx, i, b.Title, b.Author, b.ISBN, b.Available); err != nil {
			return fmt.Errorf("%w: insert book %s: %v", ErrStorageUnavailable, b.ISBN, err)
		}
	}

	insertUser := tx.StmtContext(ctx, s.insertUserStmt)
	insertUserBook := tx.StmtContext(ctx, s.insertUserBookStmt)
	for i, u := range snap.Users {
		if _, err := insertUser.ExecContext(ctx, i, u.ID, u.Name); err != nil {
			return fmt.Errorf("%w: insert user %s: %v", ErrStorageUnavailable, u.ID, err)
		}
		for seq, isbn := range u.BorrowedISBNs {
			if _, err := insertUserBook.ExecContext(ctx, i, seq, isbn); err != nil {
				return fmt.Errorf("%w: insert loan %s/%s: %v", ErrStorageUnavailable, u.ID, isbn, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStorageUnavailable, err)
	}
	return nil
}
