package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where `-cmd=create` writes new files. Runs use the embedded
// copy unless a directory override is passed.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Source returns the migration files to run. An empty dir selects the set
// compiled into the binary.
func Source(dir string) (fs.FS, error) {
	if dir == "" {
		return fs.Sub(embedded, "migrations")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat migrations dir %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("migrations path %q is not a directory", dir)
	}
	return os.DirFS(dir), nil
}

// Runner applies the order lifecycle schema through a goose provider.
type Runner struct {
	provider *goose.Provider
}

func NewRunner(db *sql.DB, migrations fs.FS) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if migrations == nil {
		return nil, errors.New("migrations source is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider}, nil
}

// Result summarises a single applied or rolled back migration.
type Result struct {
	Version   int64
	Path      string
	Direction string
	Empty     bool
}

func fromGoose(results ...*goose.MigrationResult) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		out = append(out, Result{
			Version:   r.Source.Version,
			Path:      r.Source.Path,
			Direction: r.Direction,
			Empty:     r.Empty,
		})
	}
	return out
}

// Run executes one of up, down, redo or status.
func (r *Runner) Run(ctx context.Context, command string) ([]Result, error) {
	switch command {
	case "up":
		res, err := r.provider.Up(ctx)
		return fromGoose(res...), wrap(command, err)
	case "down":
		res, err := r.provider.Down(ctx)
		return fromGoose(res), wrap(command, err)
	case "redo":
		down, err := r.provider.Down(ctx)
		if err != nil {
			return fromGoose(down), wrap(command, err)
		}
		up, err := r.provider.UpByOne(ctx)
		return fromGoose(down, up), wrap(command, err)
	case "status":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported goose command %q", command)
	}
}

// Status is a pending or applied migration as goose sees it.
type Status struct {
	Version int64
	Path    string
	Applied bool
}

func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return nil, wrap("status", err)
	}
	out := make([]Status, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, Status{
			Version: s.Source.Version,
			Path:    s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}

// MigrateTo moves the schema up or down until the database sits at target.
func (r *Runner) MigrateTo(ctx context.Context, targetVersion string) ([]Result, error) {
	if targetVersion == "" {
		return nil, errors.New("target version is required")
	}
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, wrap("version", err)
	}

	switch {
	case current == target:
		return nil, nil
	case current < target:
		res, err := r.provider.UpTo(ctx, target)
		return fromGoose(res...), wrap("up-to", err)
	default:
		res, err := r.provider.DownTo(ctx, target)
		return fromGoose(res...), wrap("down-to", err)
	}
}

func wrap(command string, err error) error {
	if err == nil || errors.Is(err, goose.ErrNoNextVersion) {
		return nil
	}
	return fmt.Errorf("goose %s: %w", command, err)
}
