package library

import (
	"fmt"
	"sync"
)

// Status is the outcome code of a catalog operation.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusConflict
	StatusDuplicate
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not found"
	case StatusConflict:
		return "conflict"
	case StatusDuplicate:
		return "duplicate"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is returned by every mutating catalog operation. Not-found and
// conflict outcomes are expected results, not errors.
type Result struct {
	Status  Status
	Message string
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool { return r.Status == StatusOK }

// DuplicatePolicy decides what happens when a book or user is added
// under an identity key that is already present.
type DuplicatePolicy int

const (
	// AllowDuplicates appends the record anyway. Only the first record with
	// a given key is reachable by key afterwards.
	AllowDuplicates DuplicatePolicy = iota
	// RejectDuplicates refuses the add with StatusDuplicate.
	RejectDuplicates
)

// RemovalPolicy decides how removals reconcile the other side of a loan.
type RemovalPolicy int

const (
	// LeaveDangling removes the record only. Users keep ISBNs of removed
	// books, and books held by a removed user stay borrowed.
	LeaveDangling RemovalPolicy = iota
	// Cascade strips a removed book's ISBN from every user, and releases
	// books held by a removed user when no other user lists them.
	Cascade
)

// Options configures a Catalog.
type Options struct {
	Duplicates DuplicatePolicy
	Removal    RemovalPolicy
}

const (
	msgBookAdded     = "Book added successfully."
	msgBookRemoved   = "Book removed (if it existed)."
	msgUserAdded     = "User registered successfully."
	msgUserRemoved   = "User removed (if existed)."
	msgNotFound      = "User or Book not found."
	msgAlreadyLent   = "Book is already borrowed."
	msgBorrowed      = "Book borrowed successfully."
	msgReturned      = "Book returned successfully."
	msgDuplicateBook = "A book with ISBN %q already exists."
	msgDuplicateUser = "A user with ID %q already exists."
)

// Catalog owns the book and user collections. Records keep insertion
// order; lookups by key resolve to the first record with that key.
//
// Field values are not validated here. Callers that persist the catalog
// check input with ValidField and ValidISBN; anything else is refused by
// the encoder at flush time.
type Catalog struct {
	mu sync.Mutex

	books []Book
	users []User

	// key -> position of the first record with that key
	bookIdx map[string]int
	userIdx map[string]int

	opts Options
}

// NewCatalog returns an empty catalog.
func NewCatalog(opts Options) *Catalog {
	return &Catalog{
		bookIdx: map[string]int{},
		userIdx: map[string]int{},
		opts:    opts,
	}
}

// Load replaces the catalog contents with the snapshot. Duplicate keys in
// the snapshot are kept regardless of policy; CheckIntegrity reports them.
func (c *Catalog) Load(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.books = make([]Book, 0, len(s.Books))
	c.books = append(c.books, s.Books...)
	c.users = make([]User, 0, len(s.Users))
	for _, u := range s.Users {
		c.users = append(c.users, u.clone())
	}
	c.reindex()
}

// Snapshot returns a deep copy of the current state.
func (c *Catalog) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Books: c.booksLocked(), Users: c.usersLocked()}
}

func (c *Catalog) reindex() {
	c.bookIdx = make(map[string]int, len(c.books))
	for i, b := range c.books {
		if _, ok := c.bookIdx[b.ISBN]; !ok {
			c.bookIdx[b.ISBN] = i
		}
	}
	c.userIdx = make(map[string]int, len(c.users))
	for i, u := range c.users {
		if _, ok := c.userIdx[u.ID]; !ok {
			c.userIdx[u.ID] = i
		}
	}
}

func (c *Catalog) book(isbn string) *Book {
	if i, ok := c.bookIdx[isbn]; ok {
		return &c.books[i]
	}
	return nil
}

func (c *Catalog) user(id string) *User {
	if i, ok := c.userIdx[id]; ok {
		return &c.users[i]
	}
	return nil
}

// ------------------ Books ------------------

// AddBook appends an available book.
func (c *Catalog) AddBook(title, author, isbn string) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.bookIdx[isbn]; exists && c.opts.Duplicates == RejectDuplicates {
		return Result{Status: StatusDuplicate, Message: fmt.Sprintf(msgDuplicateBook, isbn)}
	}

	c.books = append(c.books, Book{Title: title, Author: author, ISBN: isbn, Available: true})
	if _, exists := c.bookIdx[isbn]; !exists {
		c.bookIdx[isbn] = len(c.books) - 1
	}
	return Result{Status: StatusOK, Message: msgBookAdded}
}

// RemoveBook removes every book with the given ISBN. Removing nothing is
// not an error.
func (c *Catalog) RemoveBook(isbn string) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.books[:0]
	for _, b := range c.books {
		if b.ISBN != isbn {
			kept = append(kept, b)
		}
	}
	removed := len(c.books) - len(kept)
	c.books = kept

	if removed > 0 && c.opts.Removal == Cascade {
		for i := range c.users {
			c.users[i].give(isbn)
		}
	}
	c.reindex()
	return Result{Status: StatusOK, Message: msgBookRemoved}
}

// FindBook returns the first book with the given ISBN.
func (c *Catalog) FindBook(isbn string) (Book, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b := c.book(isbn); b != nil {
		return *b, true
	}
	return Book{}, false
}

// Books returns a copy of all books in insertion order.
func (c *Catalog) Books() []Book {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.booksLocked()
}

func (c *Catalog) booksLocked() []Book {
	return append(make([]Book, 0, len(c.books)), c.books...)
}

// ------------------ Users ------------------

// RegisterUser appends a user with an empty borrow list.
func (c *Catalog) RegisterUser(id, name string) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.userIdx[id]; exists && c.opts.Duplicates == RejectDuplicates {
		return Result{Status: StatusDuplicate, Message: fmt.Sprintf(msgDuplicateUser, id)}
	}

	c.users = append(c.users, User{ID: id, Name: name})
	if _, exists := c.userIdx[id]; !exists {
		c.userIdx[id] = len(c.users) - 1
	}
	return Result{Status: StatusOK, Message: msgUserAdded}
}

// RemoveUser removes every user with the given ID.
func (c *Catalog) RemoveUser(id string) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	var released []string
	kept := c.users[:0]
	for _, u := range c.users {
		if u.ID == id {
			released = append(released, u.BorrowedISBNs...)
			continue
		}
		kept = append(kept, u)
	}
	c.users = kept
	c.reindex()

	if c.opts.Removal == Cascade {
		for _, isbn := range released {
			if c.holdersLocked(isbn) > 0 {
				continue
			}
			if b := c.book(isbn); b != nil {
				b.Available = true
			}
		}
	}
	return Result{Status: StatusOK, Message: msgUserRemoved}
}

// FindUser returns a copy of the first user with the given ID.
func (c *Catalog) FindUser(id string) (User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if u := c.user(id); u != nil {
		return u.clone(), true
	}
	return User{}, false
}

// Users returns a copy of all users in insertion order.
func (c *Catalog) Users() []User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usersLocked()
}

func (c *Catalog) usersLocked() []User {
	out := make([]User, 0, len(c.users))
	for _, u := range c.users {
		out = append(out, u.clone())
	}
	return out
}

// BorrowedBy returns weak references to the books the user lists.
func (c *Catalog) BorrowedBy(id string) ([]BookRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := c.user(id)
	if u == nil {
		return nil, false
	}
	refs := make([]BookRef, 0, len(u.BorrowedISBNs))
	for _, isbn := range u.BorrowedISBNs {
		refs = append(refs, BookRef{ISBN: isbn, catalog: c})
	}
	return refs, true
}

func (c *Catalog) holdersLocked(isbn string) int {
	n := 0
	for i := range c.users {
		if c.users[i].holds(isbn) {
			n++
		}
	}
	return n
}

// ------------------ Circulation ------------------

// BorrowBook lends the book to the user. The availability check and the
// state change happen under one lock.
func (c *Catalog) BorrowBook(userID, isbn string) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, b := c.user(userID), c.book(isbn)
	if u == nil || b == nil {
		return Result{Status: StatusNotFound, Message: msgNotFound}
	}
	if !b.Available {
		return Result{Status: StatusConflict, Message: msgAlreadyLent}
	}

	u.take(isbn)
	b.Available = false
	return Result{Status: StatusOK, Message: msgBorrowed}
}

// ReturnBook takes the book back from the user. The book becomes available
// even when the user never held it.
func (c *Catalog) ReturnBook(userID, isbn string) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, b := c.user(userID), c.book(isbn)
	if u == nil || b == nil {
		return Result{Status: StatusNotFound, Message: msgNotFound}
	}

	u.give(isbn)
	b.Available = true
	return Result{Status: StatusOK, Message: msgReturned}
}
