package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"catalog-keeper/internal/config"
	"catalog-keeper/internal/logger"
	"catalog-keeper/library"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// outcomeError carries a non-OK catalog result out of a command so the
// process exits non-zero without printing the message twice.
type outcomeError struct {
	res library.Result
}

func (e outcomeError) Error() string { return e.res.Message }

type app struct {
	cfg    *config.Config
	logger *logger.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{}
	root := a.rootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		var oe outcomeError
		if errors.As(err, &oe) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "catalog",
		Short:         "Keep a catalog of books and users with borrow/return tracking",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger.New(cfg.LogLevel)
			return nil
		},
	}

	root.AddCommand(
		a.addBookCommand(),
		a.removeBookCommand(),
		a.registerCommand(),
		a.removeUserCommand(),
		a.borrowCommand(),
		a.returnCommand(),
		a.listBooksCommand(),
		a.listUsersCommand(),
		a.checkCommand(),
		a.shellCommand(),
	)
	return root
}

// withManager opens the catalog, runs fn and writes back any changes.
func (a *app) withManager(cmd *cobra.Command, fn func(*library.LibraryManager) error) (err error) {
	mgr, err := library.NewLibraryManager(cmd.Context(), a.cfg.Catalog, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		// Flush even if the context was canceled mid-command.
		if cerr := mgr.Close(context.WithoutCancel(cmd.Context())); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(mgr)
}

func report(out io.Writer, res library.Result) error {
	fmt.Fprintln(out, res.Message)
	if !res.OK() {
		return outcomeError{res: res}
	}
	return nil
}

func requireValid(field, value string, isbn bool) error {
	ok := library.ValidField(value)
	if isbn {
		ok = library.ValidISBN(value)
	}
	if !ok {
		return fmt.Errorf("invalid %s %q: must be non-empty, without '|', line breaks or surrounding spaces", field, value)
	}
	return nil
}

func (a *app) addBookCommand() *cobra.Command {
	var title, author, isbn string
	cmd := &cobra.Command{
		Use:   "add-book",
		Short: "Add a book to the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := errors.Join(
				requireValid("title", title, false),
				requireValid("author", author, false),
				requireValid("isbn", isbn, true),
			); err != nil {
				return err
			}
			return a.withManager(cmd, func(mgr *library.LibraryManager) error {
				return report(cmd.OutOrStdout(), mgr.AddBook(title, author, isbn))
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "book title")
	cmd.Flags().StringVar(&author, "author", "", "book author")
	cmd.Flags().StringVar(&isbn, "isbn", "", "book ISBN")
	for _, f := range []string{"title", "author", "isbn"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func (a *app) removeBookCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-book ISBN",
		Short: "Remove every book with the given ISBN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withManager(cmd, func(mgr *library.LibraryManager) error {
				return report(cmd.OutOrStdout(), mgr.RemoveBook(args[0]))
			})
		},
	}
}

func (a *app) registerCommand() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				id = uuid.NewString()
			}
			if err := errors.Join(
				requireValid("user id", id, false),
				requireValid("name", name, false),
			); err != nil {
				return err
			}
			return a.withManager(cmd, func(mgr *library.LibraryManager) error {
				res := mgr.RegisterUser(id, name)
				if res.OK() {
					fmt.Fprintf(cmd.OutOrStdout(), "User ID: %s\n", id)
				}
				return report(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user ID (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "user name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (a *app) removeUserCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-user ID",
		Short: "Remove every user with the given ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withManager(cmd, func(mgr *library.LibraryManager) error {
				return report(cmd.OutOrStdout(), mgr.RemoveUser(args[0]))
			})
		},
	}
}

func (a *app) borrowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "borrow USER_ID ISBN",
		Short: "Lend a book to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withManager(cmd, func(mgr *library.LibraryManager) error {
				return report(cmd.OutOrStdout(), mgr.BorrowBook(args[0], args[1]))
			})
		},
	}
}

func (a *app) returnCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "return USER_ID ISBN",
		Short: "Take a book back from a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withManager(cmd, func(mgr *library.LibraryManager) error {
				return report(cmd.OutOrStdout(), mgr.ReturnBook(args[0], args[1]))
			})
		},
	}
}

func writeJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func (a *app) listBooksCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list-books",
		Short: "List all books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withManager(cmd, func(mgr *library.LibraryManager) error {
				books := mgr.ListBooks()
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), books)
				}
				printBooks(cmd.OutOrStdout(), books)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func (a *app) listUsersCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list-users",
		Short: "List all users and the books they hold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withManager(cmd, func(mgr *library.LibraryManager) error {
				users := mgr.ListUsers()
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), users)
				}
				printUsers(cmd.OutOrStdout(), users)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func (a *app) checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report inconsistencies between books and borrow lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withManager(cmd, func(mgr *library.LibraryManager) error {
				violations := mgr.Catalog().CheckIntegrity()
				for _, v := range violations {
					fmt.Fprintln(cmd.OutOrStdout(), v)
				}
				if len(violations) > 0 {
					return fmt.Errorf("%d integrity violations", len(violations))
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Catalog is consistent.")
				return nil
			})
		},
	}
}

func (a *app) shellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive librarian/user menu",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withManager(cmd, func(mgr *library.LibraryManager) error {
				sh := newShell(cmd.InOrStdin(), cmd.OutOrStdout(), mgr, a.cfg.Librarian.PasswordHash)
				return sh.run(cmd.Context())
			})
		},
	}
}

func printBooks(out io.Writer, books []library.Book) {
	fmt.Fprintln(out, "\n--- All Books ---")
	if len(books) == 0 {
		fmt.Fprintln(out, "No books in library.")
	}
	for _, b := range books {
		fmt.Fprintf(out, "Title: %s, Author: %s, ISBN: %s, Status: %s\n", b.Title, b.Author, b.ISBN, b.Status())
	}
	fmt.Fprintln(out, "-----------------")
}

func printUsers(out io.Writer, users []library.User) {
	fmt.Fprintln(out, "\n--- All Users ---")
	if len(users) == 0 {
		fmt.Fprintln(out, "No users registered.")
	}
	for _, u := range users {
		fmt.Fprintln(out, library.PrettyUser(u))
	}
	fmt.Fprintln(out, "-----------------")
}
