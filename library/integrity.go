package library

import "fmt"

// ViolationKind classifies a cross-entity inconsistency.
type ViolationKind string

const (
	DuplicateISBN     ViolationKind = "duplicate-isbn"
	DuplicateUserID   ViolationKind = "duplicate-user-id"
	DanglingReference ViolationKind = "dangling-reference"
	OrphanedLoan      ViolationKind = "orphaned-loan"
	SharedLoan        ViolationKind = "shared-loan"
	StaleLoan         ViolationKind = "stale-loan"
)

// Violation describes one broken invariant.
type Violation struct {
	Kind   ViolationKind
	Key    string
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s: %s", v.Kind, v.Key, v.Detail)
}

// CheckIntegrity reports every place where a borrowed book is not held by
// exactly one user, where an available book is still listed, where a user
// lists a missing book, and where identity keys repeat. Only the first book
// for each ISBN takes part in the loan checks.
func (c *Catalog) CheckIntegrity() []Violation {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Violation

	seen := map[string]bool{}
	for i, b := range c.books {
		if seen[b.ISBN] {
			out = append(out, Violation{Kind: DuplicateISBN, Key: b.ISBN,
				Detail: fmt.Sprintf("book at position %d is shadowed", i)})
			continue
		}
		seen[b.ISBN] = true

		holders := c.holdersLocked(b.ISBN)
		switch {
		case !b.Available && holders == 0:
			out = append(out, Violation{Kind: OrphanedLoan, Key: b.ISBN,
				Detail: "borrowed but no user lists it"})
		case !b.Available && holders > 1:
			out = append(out, Violation{Kind: SharedLoan, Key: b.ISBN,
				Detail: fmt.Sprintf("borrowed and listed by %d users", holders)})
		case b.Available && holders > 0:
			out = append(out, Violation{Kind: StaleLoan, Key: b.ISBN,
				Detail: fmt.Sprintf("available but listed by %d users", holders)})
		}
	}

	seenUsers := map[string]bool{}
	for i, u := range c.users {
		if seenUsers[u.ID] {
			out = append(out, Violation{Kind: DuplicateUserID, Key: u.ID,
				Detail: fmt.Sprintf("user at position %d is shadowed", i)})
		}
		seenUsers[u.ID] = true

		for _, isbn := range u.BorrowedISBNs {
			if _, ok := c.bookIdx[isbn]; !ok {
				out = append(out, Violation{Kind: DanglingReference, Key: u.ID,
					Detail: fmt.Sprintf("lists missing book %s", isbn)})
			}
		}
	}
	return out
}
