package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"campusnav/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// MigrateDir applies every *.sql file in dir in lexical order. Migrations
// are written to be idempotent.
func (p *Postgres) MigrateDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(b)) == "" {
			continue
		}
		if _, err := p.db.Exec(string(b)); err != nil {
			return fmt.Errorf("migrate %s: %w", filepath.Base(f), err)
		}
	}
	return nil
}

const locColumns = `id, name, english_name, lat, lng, description, created_at, is_active`

type rowScanner interface{ Scan(dest ...any) error }

func scanLocation(r rowScanner) (model.CustomLocation, error) {
	var loc model.CustomLocation
	var createdAt time.Time
	err := r.Scan(&loc.ID, &loc.Name, &loc.EnglishName, &loc.Lat, &loc.Lng, &loc.Description, &createdAt, &loc.IsActive)
	loc.CreatedAt = createdAt.UTC()
	return loc, err
}

func (p *Postgres) CreateCustomLocation(ctx context.Context, in model.CustomLocationInput) (model.CustomLocation, error) {
	loc := newLocation(in, time.Now())
	_, err := p.db.ExecContext(ctx, `INSERT INTO custom_locations (`+locColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		loc.ID, loc.Name, loc.EnglishName, loc.Lat, loc.Lng, loc.Description, loc.CreatedAt, loc.IsActive)
	if err != nil {
		return model.CustomLocation{}, err
	}
	return loc, nil
}

func (p *Postgres) ListCustomLocations(ctx context.Context, activeOnly bool) ([]model.CustomLocation, error) {
	q := `SELECT ` + locColumns + ` FROM custom_locations`
	if activeOnly {
		q += ` WHERE is_active`
	}
	q += ` ORDER BY created_at, id`
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.CustomLocation{}
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

func (p *Postgres) GetCustomLocation(ctx context.Context, id string) (model.CustomLocation, error) {
	loc, err := scanLocation(p.db.QueryRowContext(ctx, `SELECT `+locColumns+` FROM custom_locations WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.CustomLocation{}, ErrNotFound
	}
	return loc, err
}

func (p *Postgres) UpdateCustomLocation(ctx context.Context, id string, patch model.CustomLocationPatch) (model.CustomLocation, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.CustomLocation{}, err
	}
	defer func() { _ = tx.Rollback() }()

	loc, err := scanLocation(tx.QueryRowContext(ctx, `SELECT `+locColumns+` FROM custom_locations WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.CustomLocation{}, ErrNotFound
	}
	if err != nil {
		return model.CustomLocation{}, err
	}
	applyPatch(&loc, patch)
	_, err = tx.ExecContext(ctx, `UPDATE custom_locations SET name=$2, english_name=$3, lat=$4, lng=$5, description=$6, is_active=$7 WHERE id=$1`,
		loc.ID, loc.Name, loc.EnglishName, loc.Lat, loc.Lng, loc.Description, loc.IsActive)
	if err != nil {
		return model.CustomLocation{}, err
	}
	return loc, tx.Commit()
}

func (p *Postgres) DeleteCustomLocation(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM custom_locations WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ClearCustomLocations(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM custom_locations`)
	return err
}
