package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"catalog-keeper/internal/config"
	"catalog-keeper/internal/logger"
	"catalog-keeper/library"
)

// Merges one or more books files (title | author | isbn | flag) into the
// configured catalog. Every imported book starts available.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s BOOKS_FILE...\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	lg := logger.New(cfg.LogLevel)

	errorCount, err := run(context.Background(), cfg.Catalog, lg, os.Args[1:], os.Stdout)
	if err != nil {
		lg.Fatal("import failed", "error", err)
	}
	if errorCount > 0 {
		os.Exit(1)
	}
}

// run imports every path and prints a summary to out. It returns the number
// of files that could not be imported.
func run(ctx context.Context, cfg config.Catalog, lg *logger.Logger, paths []string, out io.Writer) (int, error) {
	manager, err := library.NewLibraryManager(ctx, cfg, lg)
	if err != nil {
		return 0, fmt.Errorf("open catalog: %w", err)
	}

	var total library.ImportSummary
	errorCount := 0

	for _, path := range paths {
		fmt.Fprintf(out, "Importing %s... ", path)

		f, err := os.Open(filepath.Clean(path))
		if err != nil {
			fmt.Fprintf(out, "ERROR - %v\n", err)
			errorCount++
			continue
		}
		sum, err := manager.ImportBooks(f, library.DecodeOptions{Strict: cfg.StrictParse})
		f.Close()
		if err != nil {
			fmt.Fprintf(out, "ERROR - %v\n", err)
			errorCount++
			continue
		}

		fmt.Fprintf(out, "added %d, rejected %d, malformed %d\n", sum.Added, sum.Rejected, sum.Malformed)
		total.Added += sum.Added
		total.Rejected += sum.Rejected
		total.Malformed += sum.Malformed
	}

	if err := manager.Close(ctx); err != nil {
		return errorCount, fmt.Errorf("save catalog: %w", err)
	}

	fmt.Fprintf(out, "\nImport complete!\n")
	fmt.Fprintf(out, "Successfully imported: %d books\n", total.Added)
	fmt.Fprintf(out, "Rejected duplicates: %d\n", total.Rejected)
	fmt.Fprintf(out, "Malformed records: %d\n", total.Malformed)
	fmt.Fprintf(out, "Errors: %d\n", errorCount)

	if total.Added > 0 {
		fmt.Fprintln(out, "\nCatalog:")
		fmt.Fprintf(out, "%-30s %-25s %-15s %-10s\n", "Title", "Author", "ISBN", "Status")
		fmt.Fprintln(out, strings.Repeat("-", 83))
		for _, b := range manager.ListBooks() {
			b.Title = truncateString(b.Title, 30)
			b.Author = truncateString(b.Author, 25)
			fmt.Fprintln(out, library.PrettyBook(b))
		}
	}

	return errorCount, nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
