package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"catalog-keeper/library"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CATALOG_BOOKS_FILE", filepath.Join(dir, "BooksFile.txt"))
	t.Setenv("CATALOG_USERS_FILE", filepath.Join(dir, "UsersFile.txt"))
	t.Setenv("LOG_LEVEL", "8")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := (&app{}).rootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCommandsPersistBetweenRuns(t *testing.T) {
	dir := setupEnv(t)

	out, err := execute(t, "add-book", "--title", "Dune", "--author", "Frank Herbert", "--isbn", "111")
	require.NoError(t, err)
	assert.Equal(t, "Book added successfully.\n", out)

	out, err = execute(t, "register", "--id", "U1", "--name", "Alice")
	require.NoError(t, err)
	assert.Contains(t, out, "User registered successfully.")

	_, err = execute(t, "borrow", "U1", "111")
	require.NoError(t, err)

	out, err = execute(t, "borrow", "U1", "111")
	var oe outcomeError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, library.StatusConflict, oe.res.Status)
	assert.Equal(t, "Book is already borrowed.\n", out)

	raw, err := os.ReadFile(filepath.Join(dir, "BooksFile.txt"))
	require.NoError(t, err)
	assert.Equal(t, "Dune | Frank Herbert | 111 | 0\n", string(raw))
	raw, err = os.ReadFile(filepath.Join(dir, "UsersFile.txt"))
	require.NoError(t, err)
	assert.Equal(t, "U1 | Alice | 111,\n", string(raw))

	_, err = execute(t, "return", "U1", "111")
	require.NoError(t, err)
	out, err = execute(t, "list-books")
	require.NoError(t, err)
	assert.Contains(t, out, "Title: Dune, Author: Frank Herbert, ISBN: 111, Status: Available")
}

func TestRegisterGeneratesID(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "register", "--name", "Bob")
	require.NoError(t, err)

	out, err := execute(t, "list-users", "--json")
	require.NoError(t, err)
	var users []library.User
	require.NoError(t, json.Unmarshal([]byte(out), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "Bob", users[0].Name)
	assert.Len(t, users[0].ID, 36)
}

func TestListBooksJSON(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "add-book", "--title", "Dune", "--author", "Frank Herbert", "--isbn", "111")
	require.NoError(t, err)

	out, err := execute(t, "list-books", "--json")
	require.NoError(t, err)
	var books []library.Book
	require.NoError(t, json.Unmarshal([]byte(out), &books))
	assert.Equal(t, []library.Book{{Title: "Dune", Author: "Frank Herbert", ISBN: "111", Available: true}}, books)
}

func TestAddBookRejectsInvalidInput(t *testing.T) {
	dir := setupEnv(t)

	_, err := execute(t, "add-book", "--title", "Du|ne", "--author", "Frank Herbert", "--isbn", "111")
	assert.ErrorContains(t, err, "invalid title")

	_, statErr := os.Stat(filepath.Join(dir, "BooksFile.txt"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestCheckCommand(t *testing.T) {
	setupEnv(t)
	out, err := execute(t, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Catalog is consistent.")

	_, err = execute(t, "add-book", "--title", "Dune", "--author", "Frank Herbert", "--isbn", "111")
	require.NoError(t, err)
	_, err = execute(t, "register", "--id", "U1", "--name", "Alice")
	require.NoError(t, err)
	_, err = execute(t, "borrow", "U1", "111")
	require.NoError(t, err)
	_, err = execute(t, "remove-user", "U1")
	require.NoError(t, err)

	out, err = execute(t, "check")
	assert.ErrorContains(t, err, "1 integrity violations")
	assert.Contains(t, out, "orphaned-loan 111")
}

func TestNotFoundOutcome(t *testing.T) {
	setupEnv(t)
	out, err := execute(t, "return", "U1", "111")
	var oe outcomeError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, library.StatusNotFound, oe.res.Status)
	assert.Equal(t, "User or Book not found.\n", out)
}
