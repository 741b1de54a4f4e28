package library

// Book represents a catalog entry and its current availability.
// ISBN is the identity key used by every lookup.
type Book struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	ISBN      string `json:"isbn"`
	Available bool   `json:"available"`
}

// Status returns the display label for the book's availability.
func (b Book) Status() string {
	if b.Available {
		return "Available"
	}
	return "Borrowed"
}

// User represents a registered library user.
type User struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	BorrowedISBNs []string `json:"borrowed_isbns"`
}

// holds reports whether isbn is on the user's borrow list.
func (u *User) holds(isbn string) bool {
	for _, b := range u.BorrowedISBNs {
		if b == isbn {
			return true
		}
	}
	return false
}

// take appends isbn unless it is already listed.
func (u *User) take(isbn string) {
	if u.holds(isbn) {
		return
	}
	u.BorrowedISBNs = append(u.BorrowedISBNs, isbn)
}

// give drops every occurrence of isbn from the borrow list.
func (u *User) give(isbn string) {
	kept := u.BorrowedISBNs[:0]
	for _, b := range u.BorrowedISBNs {
		if b != isbn {
			kept = append(kept, b)
		}
	}
	u.BorrowedISBNs = kept
}

func (u User) clone() User {
	u.BorrowedISBNs = append([]string(nil), u.BorrowedISBNs...)
	return u
}

// BookRef is a weak reference from a user's borrow list to a book.
// The referenced book may have been removed; Resolve reports that.
type BookRef struct {
	ISBN    string
	catalog *Catalog
}

// Resolve looks the referenced book up in the catalog it came from.
func (r BookRef) Resolve() (Book, bool) {
	if r.catalog == nil {
		return Book{}, false
	}
	return r.catalog.FindBook(r.ISBN)
}

// Snapshot is the full persisted state of a catalog.
type Snapshot struct {
	Books []Book `json:"books"`
	Users []User `json:"users"`
}
