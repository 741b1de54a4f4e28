package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"catalog-keeper/internal/config"
	"catalog-keeper/internal/logger"
)

// LibraryManager is a thin façade over the Catalog and its Storage, keeping
// CLI code simple. It is the only place that touches storage.
type LibraryManager struct {
	catalog *Catalog
	store   Storage
	logger  *logger.Logger

	dirty bool
}

// NewStorage builds the backend selected by configuration.
func NewStorage(cfg config.Catalog) (Storage, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return NewSQLiteStorage(cfg.DBPath)
	case config.BackendText, "":
		return NewTextStorage(cfg.BooksFile, cfg.UsersFile, DecodeOptions{Strict: cfg.StrictParse}), nil
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", cfg.Backend)
	}
}

// CatalogOptions maps configuration onto catalog policies.
func CatalogOptions(cfg config.Catalog) Options {
	opts := Options{Duplicates: AllowDuplicates, Removal: LeaveDangling}
	if cfg.RejectDuplicates {
		opts.Duplicates = RejectDuplicates
	}
	if cfg.CascadeRemovals {
		opts.Removal = Cascade
	}
	return opts
}

// NewLibraryManager opens the configured storage and loads the catalog.
func NewLibraryManager(ctx context.Context, cfg config.Catalog, lg *logger.Logger) (*LibraryManager, error) {
	store, err := NewStorage(cfg)
	if err != nil {
		return nil, err
	}
	lm, err := Open(ctx, store, CatalogOptions(cfg), lg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return lm, nil
}

// Open loads both collections from store. Missing sources start empty.
func Open(ctx context.Context, store Storage, opts Options, lg *logger.Logger) (*LibraryManager, error) {
	res, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	for _, e := range res.Unreadable {
		lg.Warn("catalog source unreadable, starting empty", "error", e)
	}
	for _, p := range res.Skipped {
		lg.Warn("skipped malformed record", "kind", p.Kind, "line", p.Line, "reason", p.Reason)
	}

	c := NewCatalog(opts)
	c.Load(res.Snapshot)
	lg.Debug("catalog loaded", "books", len(res.Snapshot.Books), "users", len(res.Snapshot.Users))

	return &LibraryManager{catalog: c, store: store, logger: lg}, nil
}

// Flush writes both collections back to storage.
func (lm *LibraryManager) Flush(ctx context.Context) error {
	snap := lm.catalog.Snapshot()
	if err := lm.store.Save(ctx, snap); err != nil {
		lm.logger.Error("failed to save catalog", "error", err)
		return fmt.Errorf("flush catalog: %w", err)
	}
	lm.dirty = false
	lm.logger.Debug("catalog saved", "books", len(snap.Books), "users", len(snap.Users))
	return nil
}

// Close flushes unsaved changes and releases the storage.
func (lm *LibraryManager) Close(ctx context.Context) error {
	var flushErr error
	if lm.dirty {
		flushErr = lm.Flush(ctx)
	}
	return errors.Join(flushErr, lm.store.Close())
}

// Catalog exposes the underlying store.
func (lm *LibraryManager) Catalog() *Catalog { return lm.catalog }

func (lm *LibraryManager) track(op string, r Result, args ...any) Result {
	if r.OK() {
		lm.dirty = true
	}
	lm.logger.Debug(op, append(args, "status", r.Status.String())...)
	return r
}

// ------------------ Book helpers ------------------

func (lm *LibraryManager) AddBook(title, author, isbn string) Result {
	return lm.track("add book", lm.catalog.AddBook(title, author, isbn), "isbn", isbn)
}

func (lm *LibraryManager) RemoveBook(isbn string) Result {
	return lm.track("remove book", lm.catalog.RemoveBook(isbn), "isbn", isbn)
}

func (lm *LibraryManager) ListBooks() []Book { return lm.catalog.Books() }

// ------------------ User helpers ------------------

func (lm *LibraryManager) RegisterUser(id, name string) Result {
	return lm.track("register user", lm.catalog.RegisterUser(id, name), "user_id", id)
}

func (lm *LibraryManager) RemoveUser(id string) Result {
	return lm.track("remove user", lm.catalog.RemoveUser(id), "user_id", id)
}

func (lm *LibraryManager) ListUsers() []User { return lm.catalog.Users() }

// ------------------ Circulation ------------------

func (lm *LibraryManager) BorrowBook(userID, isbn string) Result {
	return lm.track("borrow book", lm.catalog.BorrowBook(userID, isbn), "user_id", userID, "isbn", isbn)
}

func (lm *LibraryManager) ReturnBook(userID, isbn string) Result {
	return lm.track("return book", lm.catalog.ReturnBook(userID, isbn), "user_id", userID, "isbn", isbn)
}

// ------------------ Import ------------------

// ImportSummary counts the outcome of ImportBooks.
type ImportSummary struct {
	Added     int
	Rejected  int
	Malformed int
}

// ImportBooks reads a books file and adds every record as a new available
// book, subject to the duplicate policy.
func (lm *LibraryManager) ImportBooks(r io.Reader, opts DecodeOptions) (ImportSummary, error) {
	books, skipped, err := DecodeBooks(r, opts)
	if err != nil {
		return ImportSummary{}, fmt.Errorf("import books: %w", err)
	}

	sum := ImportSummary{Malformed: len(skipped)}
	for _, p := range skipped {
		lm.logger.Warn("skipped malformed record", "kind", p.Kind, "line", p.Line, "reason", p.Reason)
	}
	for _, b := range books {
		if res := lm.AddBook(b.Title, b.Author, b.ISBN); res.OK() {
			sum.Added++
		} else {
			sum.Rejected++
		}
	}
	return sum, nil
}

// ------------------ Utilities ------------------

// ValidField reports whether s is a non-empty value the text format can
// store unchanged.
func ValidField(s string) bool { return s != "" && storable(s, "") }

// ValidISBN is ValidField plus no commas, since ISBNs appear in the
// comma-separated borrow lists.
func ValidISBN(s string) bool { return s != "" && storable(s, listSep) }

// PrettyBook formats a book for lists.
func PrettyBook(b Book) string {
	return fmt.Sprintf("%-30s %-25s %-15s %-10s", b.Title, b.Author, b.ISBN, b.Status())
}

// PrettyUser formats a user and the books it holds.
func PrettyUser(u User) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "User ID: %s, Name: %s\nBorrowed Books:\n", u.ID, u.Name)
	for _, isbn := range u.BorrowedISBNs {
		fmt.Fprintf(&sb, " - %s\n", isbn)
	}
	return sb.String()
}
