package library

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrStorageUnavailable is wrapped by every failure to open or write the
// durable representation.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Storage loads and saves a whole catalog at once.
type Storage interface {
	Load(ctx context.Context) (LoadResult, error)
	Save(ctx context.Context, s Snapshot) error
	Close() error
}

// LoadResult carries the loaded state plus any records skipped while
// decoding.
type LoadResult struct {
	Snapshot Snapshot
	Skipped  []*ParseError
	// Unreadable holds sources that could not be opened and were treated
	// as empty.
	Unreadable []error
}

// TextStorage keeps books and users in two line-oriented text files.
type TextStorage struct {
	booksPath string
	usersPath string
	opts      DecodeOptions
}

// NewTextStorage returns a TextStorage over the two given files.
func NewTextStorage(booksPath, usersPath string, opts DecodeOptions) *TextStorage {
	return &TextStorage{booksPath: booksPath, usersPath: usersPath, opts: opts}
}

// Load reads both files. A missing or empty file yields an empty
// collection.
func (s *TextStorage) Load(ctx context.Context) (LoadResult, error) {
	var res LoadResult

	if err := readFile(ctx, &res, s.booksPath, func(r io.Reader) error {
		books, skipped, err := DecodeBooks(r, s.opts)
		res.Snapshot.Books = books
		res.Skipped = append(res.Skipped, skipped...)
		return err
	}); err != nil {
		return LoadResult{}, fmt.Errorf("load books: %w", err)
	}

	if err := readFile(ctx, &res, s.usersPath, func(r io.Reader) error {
		users, skipped, err := DecodeUsers(r, s.opts)
		res.Snapshot.Users = users
		res.Skipped = append(res.Skipped, skipped...)
		return err
	}); err != nil {
		return LoadResult{}, fmt.Errorf("load users: %w", err)
	}

	return res, nil
}

// Save rewrites both files. Encoding is done before either file is
// touched, so a value that cannot be stored leaves both files as they were.
func (s *TextStorage) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	books, users, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := writeFile(s.booksPath, books); err != nil {
		return err
	}
	return writeFile(s.usersPath, users)
}

// Close is a no-op; files are opened per call.
func (s *TextStorage) Close() error { return nil }

func encodeSnapshot(snap Snapshot) ([]byte, []byte, error) {
	var books, users bytes.Buffer
	if err := EncodeBooks(&books, snap.Books); err != nil {
		return nil, nil, err
	}
	if err := EncodeUsers(&users, snap.Users); err != nil {
		return nil, nil, err
	}
	return books.Bytes(), users.Bytes(), nil
}

func readFile(ctx context.Context, res *LoadResult, path string, decode func(io.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		// Unreadable on startup is treated the same as absent.
		res.Unreadable = append(res.Unreadable, fmt.Errorf("%w: %v", ErrStorageUnavailable, err))
		return nil
	}
	defer f.Close()
	return decode(f)
}

func writeFile(path string, data []byte) error {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create dir for %s: %v", ErrStorageUnavailable, path, err)
		}
	}
	if err := os.WriteFile(filepath.Clean(path), data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStorageUnavailable, path, err)
	}
	return nil
}
