package library

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Line format of the text files:
//
//	books: title | author | isbn | 1
//	users: id | name | isbn1,isbn2,
//
// The availability flag is 1 for available and 0 for borrowed. The user
// borrow list carries a trailing comma and is empty when nothing is held.
const (
	fieldSep = " | "
	listSep  = ","
	flagIn   = "1"
	flagOut  = "0"

	maxLineSize = 1 << 20
)

// ParseError describes a record that does not match the line grammar.
type ParseError struct {
	Kind   string // "book" or "user"
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s record at line %d: %s", e.Kind, e.Line, e.Reason)
}

// FieldError is returned by the encoders when a value cannot be written
// without breaking the line grammar.
type FieldError struct {
	Kind  string
	Key   string
	Field string
	Value string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("encode %s %q: field %s cannot be stored: %q", e.Kind, e.Key, e.Field, e.Value)
}

// DecodeOptions controls how malformed records are handled.
type DecodeOptions struct {
	// Strict aborts decoding at the first malformed record. Otherwise the
	// record is skipped and reported back to the caller.
	Strict bool
}

// storable reports whether s survives a write/read cycle unchanged.
func storable(s string, extra string) bool {
	if strings.ContainsAny(s, "|\r\n"+extra) {
		return false
	}
	return strings.TrimSpace(s) == s
}

// ------------------ Books ------------------

// EncodeBooks writes one line per book.
func EncodeBooks(w io.Writer, books []Book) error {
	bw := bufio.NewWriter(w)
	for _, b := range books {
		for _, f := range []struct{ name, value, extra string }{
			{"title", b.Title, ""},
			{"author", b.Author, ""},
			{"isbn", b.ISBN, listSep},
		} {
			if !storable(f.value, f.extra) || (f.name == "isbn" && f.value == "") {
				return &FieldError{Kind: "book", Key: b.ISBN, Field: f.name, Value: f.value}
			}
		}

		flag := flagOut
		if b.Available {
			flag = flagIn
		}
		if _, err := fmt.Fprintf(bw, "%s%s%s%s%s%s%s\n",
			b.Title, fieldSep, b.Author, fieldSep, b.ISBN, fieldSep, flag); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// DecodeBooks reads books written by EncodeBooks. Blank lines are ignored.
// In lenient mode malformed records are skipped and returned as the second
// value; in strict mode the first one is returned as the error.
func DecodeBooks(r io.Reader, opts DecodeOptions) ([]Book, []*ParseError, error) {
	return decodeLines(r, "book", opts, parseBook)
}

func parseBook(n int, line string) (Book, *ParseError) {
	fields := strings.Split(line, "|")
	if len(fields) != 4 {
		return Book{}, &ParseError{Kind: "book", Line: n, Text: line,
			Reason: fmt.Sprintf("want 4 fields, got %d", len(fields))}
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	for i, name := range []string{"title", "author", "isbn"} {
		extra := ""
		if name == "isbn" {
			extra = listSep
		}
		if !storable(fields[i], extra) {
			return Book{}, &ParseError{Kind: "book", Line: n, Text: line,
				Reason: fmt.Sprintf("%s %q cannot be stored", name, fields[i])}
		}
	}
	if fields[2] == "" {
		return Book{}, &ParseError{Kind: "book", Line: n, Text: line, Reason: "empty isbn"}
	}

	var avail bool
	switch fields[3] {
	case flagIn:
		avail = true
	case flagOut:
		avail = false
	default:
		return Book{}, &ParseError{Kind: "book", Line: n, Text: line,
			Reason: fmt.Sprintf("availability flag %q is not %s or %s", fields[3], flagIn, flagOut)}
	}
	return Book{Title: fields[0], Author: fields[1], ISBN: fields[2], Available: avail}, nil
}

// ------------------ Users ------------------

// EncodeUsers writes one line per user.
func EncodeUsers(w io.Writer, users []User) error {
	bw := bufio.NewWriter(w)
	for _, u := range users {
		if !storable(u.ID, "") {
			return &FieldError{Kind: "user", Key: u.ID, Field: "id", Value: u.ID}
		}
		if !storable(u.Name, "") {
			return &FieldError{Kind: "user", Key: u.ID, Field: "name", Value: u.Name}
		}

		var list strings.Builder
		for _, isbn := range u.BorrowedISBNs {
			if isbn == "" || !storable(isbn, listSep) {
				return &FieldError{Kind: "user", Key: u.ID, Field: "borrowed", Value: isbn}
			}
			list.WriteString(isbn)
			list.WriteString(listSep)
		}

		if _, err := fmt.Fprintf(bw, "%s%s%s%s%s\n", u.ID, fieldSep, u.Name, fieldSep, list.String()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// DecodeUsers reads users written by EncodeUsers. Empty list tokens are
// dropped and repeated ISBNs are kept once. A borrow list holding another
// '|' is malformed.
func DecodeUsers(r io.Reader, opts DecodeOptions) ([]User, []*ParseError, error) {
	return decodeLines(r, "user", opts, parseUser)
}

func parseUser(n int, line string) (User, *ParseError) {
	parts := strings.SplitN(line, "|", 3)
	if len(parts) != 3 {
		return User{}, &ParseError{Kind: "user", Line: n, Text: line,
			Reason: "want id, name and borrow list separated by '|'"}
	}

	u := User{
		ID:   strings.TrimSpace(parts[0]),
		Name: strings.TrimSpace(parts[1]),
	}
	if !storable(u.ID, "") || !storable(u.Name, "") {
		return User{}, &ParseError{Kind: "user", Line: n, Text: line,
			Reason: "id or name cannot be stored"}
	}
	for _, tok := range strings.Split(parts[2], listSep) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if !storable(tok, listSep) {
			return User{}, &ParseError{Kind: "user", Line: n, Text: line,
				Reason: fmt.Sprintf("borrowed isbn %q cannot be stored", tok)}
		}
		u.take(tok)
	}
	return u, nil
}

// decodeLines runs parse over every non-blank line, numbering lines from 1.
// A line longer than maxLineSize is consumed and treated as malformed.
func decodeLines[T any](r io.Reader, kind string, opts DecodeOptions, parse func(n int, line string) (T, *ParseError)) ([]T, []*ParseError, error) {
	var (
		out     []T
		skipped []*ParseError
	)
	br := bufio.NewReaderSize(r, 64*1024)
	for n := 1; ; n++ {
		line, tooLong, err := readLine(br)
		if errors.Is(err, io.EOF) {
			return out, skipped, nil
		}
		if err != nil {
			return nil, skipped, err
		}

		var (
			v    T
			perr *ParseError
		)
		switch line = strings.TrimRight(line, "\r"); {
		case tooLong:
			perr = &ParseError{Kind: kind, Line: n,
				Reason: fmt.Sprintf("line exceeds %d bytes", maxLineSize)}
		case strings.TrimSpace(line) == "":
			continue
		default:
			v, perr = parse(n, line)
		}

		if perr != nil {
			if opts.Strict {
				return nil, skipped, perr
			}
			skipped = append(skipped, perr)
			continue
		}
		out = append(out, v)
	}
}

// readLine returns the next line without its terminator. io.EOF is only
// returned once no bytes remain.
func readLine(br *bufio.Reader) (string, bool, error) {
	var (
		buf     []byte
		tooLong bool
	)
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			return "", tooLong, err
		}
		if !tooLong {
			if len(buf)+len(chunk) > maxLineSize {
				tooLong, buf = true, nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			return string(buf), tooLong, nil
		}
	}
}
