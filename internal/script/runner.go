// Package script applies SQL seeding scripts to tenant data sources.
package script

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantdb/internal/datasource"
)

// ErrScriptNotFound indicates a configured script location that does not exist.
var ErrScriptNotFound = errors.New("script not found")

const ensureRunsTable = `
	CREATE TABLE IF NOT EXISTS tenant_script_runs (
		tag        TEXT NOT NULL,
		name       TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (tag, name)
	)
`

// Runner applies scripts read from fsys. Each file runs once per tag and data
// source; applied files are recorded in tenant_script_runs.
type Runner struct {
	fsys fs.FS
}

// NewRunner creates a runner reading scripts from fsys.
func NewRunner(fsys fs.FS) *Runner {
	return &Runner{fsys: fsys}
}

// Run applies the scripts named by scriptPath, a comma-separated list of .sql
// files or directories of them (applied in lexical order). An empty path is a no-op.
func (r *Runner) Run(ctx context.Context, tenantID string, db datasource.Querier, scriptPath, tag string) error {
	files, err := r.Files(scriptPath)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}

	if _, err := db.Exec(ctx, ensureRunsTable); err != nil {
		return fmt.Errorf("failed to prepare script tracking: %w", err)
	}

	for _, file := range files {
		if err := r.apply(ctx, tenantID, db, file, tag); err != nil {
			return fmt.Errorf("script %s failed: %w", file, err)
		}
	}

	return nil
}

// Files expands scriptPath into the ordered list of script files.
func (r *Runner) Files(scriptPath string) ([]string, error) {
	var files []string
	for _, location := range strings.Split(scriptPath, ",") {
		location = strings.TrimSpace(location)
		if location == "" {
			continue
		}
		name := path.Clean(strings.TrimPrefix(location, "/"))

		info, err := fs.Stat(r.fsys, name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrScriptNotFound, location)
		}

		if !info.IsDir() {
			files = append(files, name)
			continue
		}

		entries, err := fs.ReadDir(r.fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read script directory %s: %w", location, err)
		}
		var dirFiles []string
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
				dirFiles = append(dirFiles, path.Join(name, entry.Name()))
			}
		}
		sort.Strings(dirFiles)
		files = append(files, dirFiles...)
	}
	return files, nil
}

func (r *Runner) apply(ctx context.Context, tenantID string, db datasource.Querier, file, tag string) error {
	var applied bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM tenant_script_runs WHERE tag = $1 AND name = $2)`,
		tag, file,
	).Scan(&applied)
	if err != nil {
		return fmt.Errorf("failed to check script status: %w", err)
	}

	if applied {
		log.Debug().Str("org_id", tenantID).Str("script", file).Str("tag", tag).Msg("Script already applied, skipping")
		return nil
	}

	content, err := fs.ReadFile(r.fsys, file)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	if _, err := tx.Exec(ctx, string(content)); err != nil {
		return fmt.Errorf("failed to execute script: %w", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO tenant_script_runs (tag, name) VALUES ($1, $2)`, tag, file); err != nil {
		return fmt.Errorf("failed to record script run: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit script: %w", err)
	}

	log.Info().Str("org_id", tenantID).Str("script", file).Str("tag", tag).Msg("Applied script")

	return nil
}
