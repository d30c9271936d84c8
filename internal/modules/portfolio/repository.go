// Package portfolio manages portfolio definitions: named sets of symbol
// allocations stored in the config database.
package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/quantlens/quantlens/internal/database"
	"github.com/quantlens/quantlens/internal/domain"
)

// ErrNotFound indicates the requested portfolio does not exist.
var ErrNotFound = errors.New("portfolio not found")

// Repository provides access to portfolio definitions.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates the portfolio tables if they do not exist.
func NewRepository(db *database.DB, log zerolog.Logger) (*Repository, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS portfolios (
		id   TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS allocations (
		portfolio_id TEXT NOT NULL REFERENCES portfolios(id) ON DELETE CASCADE,
		symbol       TEXT NOT NULL,
		weight       REAL NOT NULL,
		PRIMARY KEY (portfolio_id, symbol)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create portfolio tables: %w", err)
	}
	return &Repository{
		db:  db,
		log: log.With().Str("component", "portfolio").Logger(),
	}, nil
}

// Get returns a portfolio with its allocations.
func (r *Repository) Get(ctx context.Context, id string) (domain.Portfolio, error) {
	p := domain.Portfolio{ID: id}
	row := r.db.QueryRowContext(ctx, "SELECT name FROM portfolios WHERE id = ?", id)
	if err := row.Scan(&p.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Portfolio{}, ErrNotFound
		}
		return domain.Portfolio{}, fmt.Errorf("failed to load portfolio %s: %w", id, err)
	}

	allocations, err := r.ListAllocations(ctx, id)
	if err != nil {
		return domain.Portfolio{}, err
	}
	p.Allocations = allocations
	return p, nil
}

// List returns all portfolios without allocations.
func (r *Repository) List(ctx context.Context) ([]domain.Portfolio, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name FROM portfolios ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []domain.Portfolio
	for rows.Next() {
		var p domain.Portfolio
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}
	return portfolios, rows.Err()
}

// ListAllocations returns a portfolio's allocations in symbol order. An
// unknown portfolio id yields ErrNotFound.
func (r *Repository) ListAllocations(ctx context.Context, portfolioID string) ([]domain.Allocation, error) {
	var exists int
	row := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM portfolios WHERE id = ?", portfolioID)
	if err := row.Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check portfolio %s: %w", portfolioID, err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT symbol, weight FROM allocations WHERE portfolio_id = ? ORDER BY symbol",
		portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocations for %s: %w", portfolioID, err)
	}
	defer rows.Close()

	var allocations []domain.Allocation
	for rows.Next() {
		var a domain.Allocation
		if err := rows.Scan(&a.Symbol, &a.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

// Create stores a new portfolio and its allocations. Weights must be
// positive; they are normalized to sum to 1 on read paths, not here.
func (r *Repository) Create(ctx context.Context, name string, allocations []domain.Allocation) (domain.Portfolio, error) {
	if name == "" {
		return domain.Portfolio{}, fmt.Errorf("portfolio name is required")
	}
	if len(allocations) == 0 {
		return domain.Portfolio{}, fmt.Errorf("portfolio needs at least one allocation")
	}
	for _, a := range allocations {
		if a.Symbol == "" || a.Weight <= 0 {
			return domain.Portfolio{}, fmt.Errorf("invalid allocation %q with weight %f", a.Symbol, a.Weight)
		}
	}

	id := uuid.New().String()

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("failed to begin portfolio create: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO portfolios (id, name) VALUES (?, ?)", id, name); err != nil {
		return domain.Portfolio{}, fmt.Errorf("failed to insert portfolio: %w", err)
	}
	for _, a := range allocations {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO allocations (portfolio_id, symbol, weight) VALUES (?, ?, ?)",
			id, a.Symbol, a.Weight); err != nil {
			return domain.Portfolio{}, fmt.Errorf("failed to insert allocation %s: %w", a.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Portfolio{}, fmt.Errorf("failed to commit portfolio create: %w", err)
	}

	r.log.Info().Str("id", id).Str("name", name).Int("allocations", len(allocations)).
		Msg("Portfolio created")
	return domain.Portfolio{ID: id, Name: name, Allocations: allocations}, nil
}

// seedFile is the YAML shape for first-boot portfolio seeding.
type seedFile struct {
	Portfolios []struct {
		Name        string `yaml:"name"`
		Allocations []struct {
			Symbol string  `yaml:"symbol"`
			Weight float64 `yaml:"weight"`
		} `yaml:"allocations"`
	} `yaml:"portfolios"`
}

// SeedFromYAML loads portfolio definitions from a YAML file on first boot.
// Seeding only runs when no portfolios exist, so user-created portfolios
// are never clobbered by a restart.
func (r *Repository) SeedFromYAML(ctx context.Context, path string) error {
	existing, err := r.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		r.log.Debug().Int("existing", len(existing)).Msg("Skipping portfolio seed, portfolios already exist")
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	for _, p := range seed.Portfolios {
		allocations := make([]domain.Allocation, 0, len(p.Allocations))
		for _, a := range p.Allocations {
			allocations = append(allocations, domain.Allocation{Symbol: a.Symbol, Weight: a.Weight})
		}
		if _, err := r.Create(ctx, p.Name, allocations); err != nil {
			return fmt.Errorf("failed to seed portfolio %q: %w", p.Name, err)
		}
	}

	r.log.Info().Int("portfolios", len(seed.Portfolios)).Str("file", path).
		Msg("Portfolios seeded")
	return nil
}
