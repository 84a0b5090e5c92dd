// Package migrations embeds the goose SQL migrations for each SQL ledger.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
)

//go:embed mysql/*.sql postgres/*.sql
var files embed.FS

// Up applies every pending embedded migration for dialect ("mysql" or "postgres").
func Up(ctx context.Context, db *sql.DB, dialect string) error {
	dir, err := fs.Sub(files, dialect)
	if err != nil {
		return fmt.Errorf("migrations for %s: %w", dialect, err)
	}
	return run(ctx, db, dialect, dir)
}

// UpDir applies the migrations found in root/<dialect> on disk instead of the
// embedded set. An empty root falls back to Up.
func UpDir(ctx context.Context, db *sql.DB, dialect, root string) error {
	if root == "" {
		return Up(ctx, db, dialect)
	}
	return run(ctx, db, dialect, os.DirFS(filepath.Join(root, dialect)))
}

func run(ctx context.Context, db *sql.DB, dialect string, dir fs.FS) error {
	provider, err := goose.NewProvider(goose.Dialect(dialect), db, dir)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up (%s): %w", dialect, err)
	}
	return nil
}
