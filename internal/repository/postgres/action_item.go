package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/disruptionhub/internal/models"
	"github.com/lalith-99/disruptionhub/internal/repository"
)

// ActionItemStore keeps guests, notes and logs as JSONB columns on the item
// row, so one row lock covers every list the item owns.
type ActionItemStore struct {
	pool *pgxpool.Pool
}

func NewActionItemStore(pool *pgxpool.Pool) *ActionItemStore {
	return &ActionItemStore{pool: pool}
}

var _ repository.ActionItemRepository = (*ActionItemStore)(nil)

const actionItemColumns = `
	id, user_id, alert_id, status, is_following, flagged, current_active_tab,
	guests, notes, action_logs, handled_by, handled_at, created_at, updated_at`

func scanActionItem(row pgx.Row) (*models.ActionItem, error) {
	var (
		it                  models.ActionItem
		guests, notes, logs []byte
		status, tab         string
	)
	err := row.Scan(
		&it.ID,
		&it.UserID,
		&it.AlertID,
		&status,
		&it.IsFollowing,
		&it.Flagged,
		&tab,
		&guests,
		&notes,
		&logs,
		&it.HandledBy,
		&it.HandledAt,
		&it.CreatedAt,
		&it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	it.Status = models.ActionStatus(status)
	it.CurrentActiveTab = models.ActiveTab(tab)

	it.Guests = make([]models.Guest, 0)
	it.Notes = make([]models.Note, 0)
	it.ActionLogs = make([]models.ActionLog, 0)
	if err := unmarshalList(guests, &it.Guests); err != nil {
		return nil, fmt.Errorf("decode guests: %w", err)
	}
	if err := unmarshalList(notes, &it.Notes); err != nil {
		return nil, fmt.Errorf("decode notes: %w", err)
	}
	if err := unmarshalList(logs, &it.ActionLogs); err != nil {
		return nil, fmt.Errorf("decode action logs: %w", err)
	}
	return &it, nil
}

func unmarshalList(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func (s *ActionItemStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ActionItem, error) {
	query := `SELECT ` + actionItemColumns + ` FROM action_items WHERE id = $1`

	it, err := scanActionItem(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get action item: %w", err)
	}
	return it, nil
}

func (s *ActionItemStore) GetByUserAlert(ctx context.Context, userID, alertID uuid.UUID) (*models.ActionItem, error) {
	query := `SELECT ` + actionItemColumns + ` FROM action_items WHERE user_id = $1 AND alert_id = $2`

	it, err := scanActionItem(s.pool.QueryRow(ctx, query, userID, alertID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get action item by user/alert: %w", err)
	}
	return it, nil
}

func (s *ActionItemStore) ListByUser(ctx context.Context, userID uuid.UUID, status *models.ActionStatus) ([]models.ActionItem, error) {
	query := `SELECT ` + actionItemColumns + `
		FROM action_items
		WHERE user_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC`

	var statusArg *string
	if status != nil {
		v := string(*status)
		statusArg = &v
	}

	rows, err := s.pool.Query(ctx, query, userID, statusArg)
	if err != nil {
		return nil, fmt.Errorf("list action items: %w", err)
	}
	defer rows.Close()

	items := make([]models.ActionItem, 0)
	for rows.Next() {
		it, err := scanActionItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action item: %w", err)
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action items: %w", err)
	}
	return items, nil
}

// Mutate runs fn against the row held with SELECT ... FOR UPDATE. A second
// writer on the same item blocks until this transaction ends and then sees
// the committed lists, so concurrent appends never overwrite each other.
func (s *ActionItemStore) Mutate(ctx context.Context, id uuid.UUID, fn repository.MutateFunc) (*models.ActionItem, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + actionItemColumns + ` FROM action_items WHERE id = $1 FOR UPDATE`
	it, err := scanActionItem(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("lock action item: %w", err)
	}

	changed, err := fn(it)
	if err != nil {
		return nil, err
	}
	if !changed {
		return it, nil
	}

	if err := updateActionItem(ctx, tx, it); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit action item: %w", err)
	}
	return it, nil
}

// Upsert takes a transaction-scoped advisory lock on the (user, alert) pair
// before looking for the row. That covers the window where no row exists yet
// to lock, and keeps the unfollow-then-delete decision atomic.
func (s *ActionItemStore) Upsert(ctx context.Context, userID, alertID uuid.UUID, fn repository.UpsertFunc) (*models.ActionItem, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	lockKey := userID.String() + ":" + alertID.String()
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return nil, fmt.Errorf("lock action item pair: %w", err)
	}

	query := `SELECT ` + actionItemColumns + `
		FROM action_items
		WHERE user_id = $1 AND alert_id = $2
		FOR UPDATE`
	it, err := scanActionItem(tx.QueryRow(ctx, query, userID, alertID))
	exists := true
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lock action item: %w", err)
		}
		exists = false
		it = models.NewActionItem(userID, alertID, time.Now())
	}

	outcome, err := fn(it, exists)
	if err != nil {
		return nil, err
	}

	var result *models.ActionItem
	switch outcome {
	case repository.UpsertKeep:
		if exists {
			err = updateActionItem(ctx, tx, it)
		} else {
			err = insertActionItem(ctx, tx, it)
		}
		if err != nil {
			return nil, err
		}
		result = it
	case repository.UpsertDelete:
		if exists {
			if _, err := tx.Exec(ctx, `DELETE FROM action_items WHERE id = $1`, it.ID); err != nil {
				return nil, fmt.Errorf("delete action item: %w", err)
			}
		}
	default:
		if exists {
			result = it
		}
		return result, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit action item: %w", err)
	}
	return result, nil
}

func (s *ActionItemStore) EngagedUsers(ctx context.Context, alertID uuid.UUID) ([]uuid.UUID, []uuid.UUID, error) {
	query := `
		SELECT user_id, bool_or(is_following), bool_or(flagged)
		FROM action_items
		WHERE alert_id = $1 AND (is_following OR flagged)
		GROUP BY user_id
		ORDER BY user_id`

	rows, err := s.pool.Query(ctx, query, alertID)
	if err != nil {
		return nil, nil, fmt.Errorf("count engagement: %w", err)
	}
	defer rows.Close()

	followers := make([]uuid.UUID, 0)
	flaggers := make([]uuid.UUID, 0)
	for rows.Next() {
		var (
			userID             uuid.UUID
			following, flagged bool
		)
		if err := rows.Scan(&userID, &following, &flagged); err != nil {
			return nil, nil, fmt.Errorf("scan engagement: %w", err)
		}
		if following {
			followers = append(followers, userID)
		}
		if flagged {
			flaggers = append(flaggers, userID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate engagement: %w", err)
	}
	return followers, flaggers, nil
}

func encodeLists(it *models.ActionItem) (guests, notes, logs []byte, err error) {
	if guests, err = json.Marshal(it.Guests); err != nil {
		return nil, nil, nil, fmt.Errorf("encode guests: %w", err)
	}
	if notes, err = json.Marshal(it.Notes); err != nil {
		return nil, nil, nil, fmt.Errorf("encode notes: %w", err)
	}
	if logs, err = json.Marshal(it.ActionLogs); err != nil {
		return nil, nil, nil, fmt.Errorf("encode action logs: %w", err)
	}
	return guests, notes, logs, nil
}

func insertActionItem(ctx context.Context, tx pgx.Tx, it *models.ActionItem) error {
	guests, notes, logs, err := encodeLists(it)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO action_items (` + actionItemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = tx.Exec(ctx, query,
		it.ID, it.UserID, it.AlertID, string(it.Status), it.IsFollowing, it.Flagged,
		string(it.CurrentActiveTab), guests, notes, logs, it.HandledBy, it.HandledAt,
		it.CreatedAt, it.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert action item: %w", err)
	}
	return nil
}

func updateActionItem(ctx context.Context, tx pgx.Tx, it *models.ActionItem) error {
	guests, notes, logs, err := encodeLists(it)
	if err != nil {
		return err
	}
	query := `
		UPDATE action_items SET
			status = $2, is_following = $3, flagged = $4, current_active_tab = $5,
			guests = $6, notes = $7, action_logs = $8, handled_by = $9, handled_at = $10,
			updated_at = $11
		WHERE id = $1`

	_, err = tx.Exec(ctx, query,
		it.ID, string(it.Status), it.IsFollowing, it.Flagged, string(it.CurrentActiveTab),
		guests, notes, logs, it.HandledBy, it.HandledAt, it.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update action item: %w", err)
	}
	return nil
}
