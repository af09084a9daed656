package prefs

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/waggytails/pawsched/libs/db"
)

// Repository looks up owner scheduling preferences.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// ExtendedTravelTime reports whether the owner opted into the longer travel
// buffer. Unknown owners get the default.
func (r *Repository) ExtendedTravelTime(ctx context.Context, ownerID string) (bool, error) {
	var extended bool
	err := r.pool.QueryRow(ctx, `
		SELECT extended_travel_time
		FROM owners
		WHERE id = $1
	`, ownerID).Scan(&extended)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return extended, nil
}

// Static always answers with a fixed flag; used when no database is wired
// (tests, local runs).
type Static struct {
	extended bool
}

func NewStatic(extended bool) *Static {
	return &Static{extended: extended}
}

func (s *Static) ExtendedTravelTime(_ context.Context, _ string) (bool, error) {
	return s.extended, nil
}
