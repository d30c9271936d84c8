package portfolio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlens/quantlens/internal/database"
	"github.com/quantlens/quantlens/internal/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:portfolio_test_%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileStandard,
		Name:    "config-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := NewRepository(db, zerolog.Nop())
	require.NoError(t, err)
	return repo
}

// TestCreateAndGet tests the create/read round trip.
func TestCreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, "Growth", []domain.Allocation{
		{Symbol: "AAAA", Weight: 0.6},
		{Symbol: "BBBB", Weight: 0.4},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Growth", got.Name)
	require.Len(t, got.Allocations, 2)
	assert.Equal(t, "AAAA", got.Allocations[0].Symbol)
	assert.Equal(t, 0.6, got.Allocations[0].Weight)
	assert.Equal(t, []string{"AAAA", "BBBB"}, got.Symbols())
}

// TestGetUnknown tests the not-found path.
func TestGetUnknown(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.ListAllocations(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestCreateValidation tests input validation.
func TestCreateValidation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, "", []domain.Allocation{{Symbol: "AAAA", Weight: 1}})
	assert.Error(t, err)

	_, err = repo.Create(ctx, "Empty", nil)
	assert.Error(t, err)

	_, err = repo.Create(ctx, "Bad", []domain.Allocation{{Symbol: "AAAA", Weight: -0.5}})
	assert.Error(t, err)
}

// TestList tests name-ordered listing.
func TestList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, "Zeta", []domain.Allocation{{Symbol: "AAAA", Weight: 1}})
	require.NoError(t, err)
	_, err = repo.Create(ctx, "Alpha", []domain.Allocation{{Symbol: "BBBB", Weight: 1}})
	require.NoError(t, err)

	portfolios, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, portfolios, 2)
	assert.Equal(t, "Alpha", portfolios[0].Name)
	assert.Equal(t, "Zeta", portfolios[1].Name)
}

// TestSeedFromYAML tests first-boot seeding and its idempotence.
func TestSeedFromYAML(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	seedPath := filepath.Join(t.TempDir(), "portfolios.yaml")
	seed := `
portfolios:
  - name: Balanced
    allocations:
      - symbol: AAAA
        weight: 0.5
      - symbol: BBBB
        weight: 0.3
      - symbol: CCCC
        weight: 0.2
`
	require.NoError(t, os.WriteFile(seedPath, []byte(seed), 0644))

	require.NoError(t, repo.SeedFromYAML(ctx, seedPath))

	portfolios, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, portfolios, 1)

	got, err := repo.Get(ctx, portfolios[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Balanced", got.Name)
	assert.Len(t, got.Allocations, 3)

	// Seeding again is a no-op once portfolios exist.
	require.NoError(t, repo.SeedFromYAML(ctx, seedPath))
	portfolios, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, portfolios, 1)
}

// TestSeedFromYAMLMissingFile tests the error path.
func TestSeedFromYAMLMissingFile(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.SeedFromYAML(context.Background(), "/nonexistent/portfolios.yaml")
	assert.Error(t, err)
}
