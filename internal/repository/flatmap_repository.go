package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rdcourtney/flatmap/api/internal/database"
	"github.com/rdcourtney/flatmap/api/internal/models"
)

// FlatmapRepository defines the interface for flatmap registry access.
type FlatmapRepository interface {
	// FindAll lists the published flatmaps, newest first. When taxon is
	// non-empty only maps describing that taxon are returned.
	// Returns an empty slice if no maps are published (not an error).
	// Returns error only for actual database failures.
	FindAll(ctx context.Context, taxon string) ([]models.Flatmap, error)

	// FindByIdentifier finds one flatmap by registry id, uuid, or name.
	// Returns nil, nil if no map matches (not an error).
	// Returns error only for actual database failures.
	FindByIdentifier(ctx context.Context, identifier string) (*models.Flatmap, error)
}

// flatmapRepository is the concrete implementation of FlatmapRepository.
type flatmapRepository struct {
	db *database.Database
}

// NewFlatmapRepository creates a new instance of FlatmapRepository.
func NewFlatmapRepository(db *database.Database) FlatmapRepository {
	return &flatmapRepository{
		db: db,
	}
}

const flatmapColumns = `
	id,
	uuid,
	name,
	describes,
	taxon,
	biological_sex,
	style,
	version,
	bundle_path,
	created_at,
	updated_at
`

// FindAll queries the registry for published flatmaps. The taxon filter is
// matched against the normalized taxon column, so callers can pass the
// identifier forms used by the annotation indices.
func (r *flatmapRepository) FindAll(ctx context.Context, taxon string) ([]models.Flatmap, error) {
	query := `
		SELECT ` + flatmapColumns + `
		FROM flatmaps
		WHERE published AND ($1 = '' OR taxon = $1)
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, taxon)
	if err != nil {
		return nil, fmt.Errorf("failed to query flatmaps (taxon=%q): %w", taxon, err)
	}
	defer rows.Close()

	flatmaps := make([]models.Flatmap, 0)
	for rows.Next() {
		fm, err := scanFlatmap(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flatmap row: %w", err)
		}
		flatmaps = append(flatmaps, fm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate flatmap rows: %w", err)
	}

	return flatmaps, nil
}

// FindByIdentifier looks a map up by any of the identifiers embedding
// viewers use: the numeric registry id, the publication uuid, or the map
// name.
func (r *flatmapRepository) FindByIdentifier(ctx context.Context, identifier string) (*models.Flatmap, error) {
	query := `
		SELECT ` + flatmapColumns + `
		FROM flatmaps
		WHERE published
		  AND (id::text = $1 OR uuid::text = $1 OR name = $1)
		LIMIT 1
	`

	row := r.db.Pool.QueryRow(ctx, query, identifier)
	fm, err := scanFlatmap(row)

	// Handle no rows found - this is not an error at the repository level
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query flatmap %q: %w", identifier, err)
	}

	return &fm, nil
}

func scanFlatmap(row pgx.Row) (models.Flatmap, error) {
	var fm models.Flatmap
	err := row.Scan(
		&fm.ID,
		&fm.UUID,
		&fm.Name,
		&fm.Describes,
		&fm.Taxon,
		&fm.BiologicalSex,
		&fm.Style,
		&fm.Version,
		&fm.BundlePath,
		&fm.CreatedAt,
		&fm.UpdatedAt,
	)
	return fm, err
}
