package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"catalog-keeper/internal/config"
	"catalog-keeper/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textConfig(t *testing.T) config.Catalog {
	t.Helper()
	dir := t.TempDir()
	return config.Catalog{
		Backend:   config.BackendText,
		BooksFile: filepath.Join(dir, "BooksFile.txt"),
		UsersFile: filepath.Join(dir, "UsersFile.txt"),
		DBPath:    filepath.Join(dir, "library.db"),
	}
}

func newManager(t *testing.T, cfg config.Catalog) *LibraryManager {
	t.Helper()
	mgr, err := NewLibraryManager(context.Background(), cfg, testutil.MakeNoopLogger())
	require.NoError(t, err)
	return mgr
}

func TestManagerSessionPersists(t *testing.T) {
	for _, backend := range []string{config.BackendText, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			cfg := textConfig(t)
			cfg.Backend = backend

			mgr := newManager(t, cfg)
			assert.Empty(t, mgr.ListBooks())
			assert.True(t, mgr.AddBook("Dune", "Frank Herbert", "111").OK())
			assert.True(t, mgr.RegisterUser("U1", "Alice").OK())
			assert.True(t, mgr.BorrowBook("U1", "111").OK())
			require.NoError(t, mgr.Close(ctx))

			mgr = newManager(t, cfg)
			defer mgr.Close(ctx)
			books := mgr.ListBooks()
			require.Len(t, books, 1)
			assert.False(t, books[0].Available)
			users := mgr.ListUsers()
			require.Len(t, users, 1)
			assert.Equal(t, []string{"111"}, users[0].BorrowedISBNs)
			assert.Equal(t, StatusConflict, mgr.BorrowBook("U1", "111").Status)
		})
	}
}

func TestManagerCloseWithoutChangesDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	cfg := textConfig(t)

	mgr := newManager(t, cfg)
	mgr.ListBooks()
	assert.Equal(t, StatusNotFound, mgr.BorrowBook("U1", "111").Status)
	require.NoError(t, mgr.Close(ctx))

	_, err := os.Stat(cfg.BooksFile)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestManagerFlushWritesImmediately(t *testing.T) {
	ctx := context.Background()
	cfg := textConfig(t)

	mgr := newManager(t, cfg)
	defer mgr.Close(ctx)
	mgr.AddBook("Dune", "Frank Herbert", "111")
	require.NoError(t, mgr.Flush(ctx))

	raw, err := os.ReadFile(cfg.BooksFile)
	require.NoError(t, err)
	assert.Equal(t, "Dune | Frank Herbert | 111 | 1\n", string(raw))
}

func TestManagerFlushFailureSurfaces(t *testing.T) {
	ctx := context.Background()
	cfg := textConfig(t)

	mgr := newManager(t, cfg)
	mgr.AddBook("Dune", "Frank Herbert", "111")
	require.NoError(t, os.Mkdir(cfg.BooksFile, 0o755))

	err := mgr.Flush(ctx)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, mgr.Close(ctx), ErrStorageUnavailable)
}

func TestManagerOpenStrictFails(t *testing.T) {
	cfg := textConfig(t)
	cfg.StrictParse = true
	require.NoError(t, os.WriteFile(cfg.BooksFile, []byte("not a record\n"), 0o644))

	_, err := NewLibraryManager(context.Background(), cfg, testutil.MakeNoopLogger())
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestManagerPolicies(t *testing.T) {
	cfg := textConfig(t)
	cfg.RejectDuplicates = true
	cfg.CascadeRemovals = true

	mgr := newManager(t, cfg)
	defer mgr.Close(context.Background())

	mgr.AddBook("Dune", "Frank Herbert", "111")
	assert.Equal(t, StatusDuplicate, mgr.AddBook("Dune", "Frank Herbert", "111").Status)
	mgr.RegisterUser("U1", "Alice")
	mgr.BorrowBook("U1", "111")
	mgr.RemoveBook("111")

	u, ok := mgr.Catalog().FindUser("U1")
	require.True(t, ok)
	assert.Empty(t, u.BorrowedISBNs)
}

func TestImportBooks(t *testing.T) {
	cfg := textConfig(t)
	cfg.RejectDuplicates = true
	mgr := newManager(t, cfg)
	defer mgr.Close(context.Background())
	mgr.AddBook("Dune", "Frank Herbert", "111")

	input := strings.Join([]string{
		"Dune | Frank Herbert | 111 | 1",
		"Emma | Jane Austen | 222 | 0",
		"garbage",
		"Hamlet | William Shakespeare | 333 | 1",
	}, "\n")

	sum, err := mgr.ImportBooks(strings.NewReader(input), DecodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, ImportSummary{Added: 2, Rejected: 1, Malformed: 1}, sum)

	b, ok := mgr.Catalog().FindBook("222")
	require.True(t, ok)
	assert.True(t, b.Available, "imported books start available")

	_, err = mgr.ImportBooks(strings.NewReader(input), DecodeOptions{Strict: true})
	assert.Error(t, err)
}

func TestManagerFlushRefusesUnvalidatedKeys(t *testing.T) {
	ctx := context.Background()
	cfg := textConfig(t)
	mgr := newManager(t, cfg)

	require.False(t, ValidISBN(""))
	assert.True(t, mgr.AddBook("Dune", "Frank Herbert", "").OK(), "the catalog does not validate keys")

	err := mgr.Flush(ctx)
	var ferr *FieldError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "isbn", ferr.Field)

	_, statErr := os.Stat(cfg.BooksFile)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestValidInput(t *testing.T) {
	assert.True(t, ValidField("Frank Herbert"))
	assert.True(t, ValidField("a,b"))
	assert.False(t, ValidField(""))
	assert.False(t, ValidField("a|b"))
	assert.False(t, ValidField(" padded"))
	assert.True(t, ValidISBN("978-0441013593"))
	assert.False(t, ValidISBN("1,2"))
}

func TestPrettyUser(t *testing.T) {
	got := PrettyUser(User{ID: "U1", Name: "Alice", BorrowedISBNs: []string{"111", "222"}})
	assert.Equal(t, "User ID: U1, Name: Alice\nBorrowed Books:\n - 111\n - 222\n", got)
	assert.Contains(t, PrettyBook(Book{Title: "Dune", ISBN: "111"}), "Borrowed")
}
