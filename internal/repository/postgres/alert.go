package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/disruptionhub/internal/models"
	"github.com/lalith-99/disruptionhub/internal/repository"
)

type AlertStore struct {
	pool *pgxpool.Pool
}

func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

var _ repository.AlertRepository = (*AlertStore)(nil)

func (s *AlertStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	query := `
		SELECT id, title, description, city, country, number_of_follows,
		       followed_by, flagged_by, created_at
		FROM alerts
		WHERE id = $1`

	var a models.Alert
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&a.ID,
		&a.Title,
		&a.Description,
		&a.City,
		&a.Country,
		&a.NumberOfFollows,
		&a.FollowedBy,
		&a.FlaggedBy,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return &a, nil
}

// UpdateFollowFlagAggregates overwrites the derived fields with a fresh
// recount. It never increments, so a lost update heals on the next toggle.
func (s *AlertStore) UpdateFollowFlagAggregates(ctx context.Context, alertID uuid.UUID, agg repository.AlertAggregates) error {
	query := `
		UPDATE alerts
		SET number_of_follows = $2, followed_by = $3, flagged_by = $4
		WHERE id = $1`

	followedBy := agg.FollowedBy
	if followedBy == nil {
		followedBy = make([]uuid.UUID, 0)
	}
	flaggedBy := agg.FlaggedBy
	if flaggedBy == nil {
		flaggedBy = make([]uuid.UUID, 0)
	}

	tag, err := s.pool.Exec(ctx, query, alertID, agg.NumberOfFollows, followedBy, flaggedBy)
	if err != nil {
		return fmt.Errorf("update alert aggregates: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
