package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"catalog-keeper/library"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

// shell is the interactive role menu. It only reads input, calls the
// manager and prints the result.
type shell struct {
	sc           *bufio.Scanner
	out          io.Writer
	mgr          *library.LibraryManager
	passwordHash string

	// readSecret reads the librarian password. It masks input on a
	// terminal and falls back to a plain line otherwise.
	readSecret func(prompt string) (string, error)
}

func newShell(in io.Reader, out io.Writer, mgr *library.LibraryManager, passwordHash string) *shell {
	sh := &shell{
		sc:           bufio.NewScanner(in),
		out:          out,
		mgr:          mgr,
		passwordHash: passwordHash,
	}
	sh.readSecret = sh.defaultReadSecret
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		sh.readSecret = func(prompt string) (string, error) {
			fmt.Fprint(out, prompt)
			b, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(out)
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(string(b)), nil
		}
	}
	return sh
}

func (sh *shell) defaultReadSecret(prompt string) (string, error) {
	v, ok := sh.prompt(prompt)
	if !ok {
		return "", io.EOF
	}
	return v, nil
}

// prompt prints p and reads one trimmed line. ok is false at end of input.
func (sh *shell) prompt(p string) (string, bool) {
	fmt.Fprint(sh.out, p)
	if !sh.sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(sh.sc.Text()), true
}

func (sh *shell) run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(sh.out, "\n====== Library System Main Menu ======\n"+
			"[A] Librarian\n"+
			"[B] User\n"+
			"[C] Exit Program\n")
		role, ok := sh.prompt("Enter your choice (A/B/C): ")
		if !ok {
			return sh.sc.Err()
		}

		switch strings.ToUpper(role) {
		case "A":
			if err := sh.authenticate(); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				fmt.Fprintf(sh.out, "Authentication failed: %v\n", err)
				continue
			}
			if !sh.librarianMenu() {
				return sh.sc.Err()
			}
		case "B":
			if !sh.userMenu() {
				return sh.sc.Err()
			}
		case "C":
			fmt.Fprintln(sh.out, "\nThank you for using the system. Goodbye!")
			return nil
		}
	}
}

func (sh *shell) authenticate() error {
	if sh.passwordHash == "" {
		return nil
	}
	password, err := sh.readSecret("Enter librarian password: ")
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(sh.passwordHash), []byte(password)); err != nil {
		return fmt.Errorf("invalid password")
	}
	return nil
}

// librarianMenu returns false when input ends.
func (sh *shell) librarianMenu() bool {
	for {
		fmt.Fprint(sh.out, "\n\t============Library Management System (Librarian)============\t\n"+
			"[1] Register User\n"+
			"[2] Add Book\n"+
			"[3] Delete Book\n"+
			"[4] Remove User\n"+
			"[5] Borrow Book\n"+
			"[6] Return Book\n"+
			"[7] Display Books\n"+
			"[8] Display Users\n"+
			"[9] Exit\n")
		choice, ok := sh.prompt("Enter choice: ")
		if !ok {
			return false
		}

		switch choice {
		case "1":
			id, ok1 := sh.field("Enter User ID: ", false)
			name, ok2 := sh.field("Enter Name: ", false)
			if ok1 && ok2 {
				sh.report(sh.mgr.RegisterUser(id, name))
			}
		case "2":
			title, ok1 := sh.field("Enter Title: ", false)
			author, ok2 := sh.field("Enter Author: ", false)
			isbn, ok3 := sh.field("Enter ISBN: ", true)
			if ok1 && ok2 && ok3 {
				sh.report(sh.mgr.AddBook(title, author, isbn))
			}
		case "3":
			printBooks(sh.out, sh.mgr.ListBooks())
			if isbn, ok := sh.prompt("Enter ISBN to remove: "); ok {
				sh.report(sh.mgr.RemoveBook(isbn))
			}
		case "4":
			printUsers(sh.out, sh.mgr.ListUsers())
			if id, ok := sh.prompt("Enter User ID to remove: "); ok {
				sh.report(sh.mgr.RemoveUser(id))
			}
		case "5":
			printBooks(sh.out, sh.mgr.ListBooks())
			sh.borrow()
		case "6":
			sh.giveBack()
		case "7":
			printBooks(sh.out, sh.mgr.ListBooks())
		case "8":
			printUsers(sh.out, sh.mgr.ListUsers())
		case "9":
			fmt.Fprintln(sh.out, "Logging out librarian... Returning to main menu.")
			return true
		default:
			fmt.Fprintln(sh.out, "Invalid choice.")
		}
	}
}

// userMenu returns false when input ends.
func (sh *shell) userMenu() bool {
	for {
		fmt.Fprint(sh.out, "\n\t============Library Management System (User)============\t\n"+
			"[1] Borrow Book\n"+
			"[2] Return Book\n"+
			"[3] Display Books\n"+
			"[4] Exit\n")
		choice, ok := sh.prompt("Enter choice: ")
		if !ok {
			return false
		}

		switch choice {
		case "1":
			printBooks(sh.out, sh.mgr.ListBooks())
			sh.borrow()
		case "2":
			sh.giveBack()
		case "3":
			printBooks(sh.out, sh.mgr.ListBooks())
		case "4":
			fmt.Fprintln(sh.out, "Logging out user... Returning to main menu.")
			return true
		default:
			fmt.Fprintln(sh.out, "Invalid choice.")
		}
	}
}

func (sh *shell) borrow() {
	userID, ok1 := sh.prompt("Enter User ID: ")
	isbn, ok2 := sh.prompt("Enter ISBN: ")
	if ok1 && ok2 {
		sh.report(sh.mgr.BorrowBook(userID, isbn))
	}
}

func (sh *shell) giveBack() {
	userID, ok1 := sh.prompt("Enter User ID: ")
	isbn, ok2 := sh.prompt("Enter ISBN: ")
	if ok1 && ok2 {
		sh.report(sh.mgr.ReturnBook(userID, isbn))
	}
}

// field reads a value that will be stored and rejects ones the text
// format cannot hold.
func (sh *shell) field(p string, isbn bool) (string, bool) {
	v, ok := sh.prompt(p)
	if !ok {
		return "", false
	}
	if err := requireValid(strings.TrimSuffix(strings.TrimPrefix(p, "Enter "), ": "), v, isbn); err != nil {
		fmt.Fprintln(sh.out, err)
		return "", false
	}
	return v, true
}

func (sh *shell) report(res library.Result) {
	fmt.Fprintln(sh.out, res.Message)
}
