package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Storage backends.
const (
	BackendText   = "text"
	BackendSQLite = "sqlite"
)

// Config contains catalog configuration parameters.
type Config struct {
	// LogLevel is a slog level; the default keeps only warnings and errors.
	LogLevel  int       `env:"LOG_LEVEL" envDefault:"4"`
	Catalog   Catalog   `envPrefix:"CATALOG_"`
	Librarian Librarian `envPrefix:"LIBRARIAN_"`
}

// Catalog contains storage and policy parameters.
type Catalog struct {
	Backend          string `env:"BACKEND" envDefault:"text"`
	BooksFile        string `env:"BOOKS_FILE" envDefault:"BooksFile.txt"`
	UsersFile        string `env:"USERS_FILE" envDefault:"UsersFile.txt"`
	DBPath           string `env:"DB_PATH" envDefault:"library.db"`
	StrictParse      bool   `env:"STRICT_PARSE" envDefault:"false"`
	RejectDuplicates bool   `env:"REJECT_DUPLICATES" envDefault:"false"`
	CascadeRemovals  bool   `env:"CASCADE_REMOVALS" envDefault:"false"`
}

// Librarian contains parameters of the interactive librarian mode.
type Librarian struct {
	// PasswordHash is a bcrypt hash. Empty leaves librarian mode open.
	PasswordHash string `env:"PASSWORD_HASH"`
}

// NewConfig loads configuration from environment variables.
func NewConfig() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	switch cfg.Catalog.Backend {
	case BackendText, BackendSQLite:
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", cfg.Catalog.Backend)
	}

	return &cfg, nil
}
