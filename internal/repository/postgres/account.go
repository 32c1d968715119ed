package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/disruptionhub/internal/models"
	"github.com/lalith-99/disruptionhub/internal/repository"
)

type AccountStore struct {
	pool *pgxpool.Pool
}

func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

var _ repository.AccountRepository = (*AccountStore)(nil)

// collaboratorRow is the JSONB shape of an embedded collaborator. The model
// hides the credential hash from API output, so storage needs its own tags.
type collaboratorRow struct {
	Email          string `json:"email"`
	Name           string `json:"name"`
	Role           string `json:"role"`
	Status         string `json:"status"`
	CredentialHash string `json:"credential_hash"`
}

const accountColumns = `
	id, email, display_name, role, premium, status, password_hash,
	followed_alerts, collaborators, created_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var (
		a            models.Account
		role, status string
		collabs      []byte
	)
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.DisplayName,
		&role,
		&a.Premium,
		&status,
		&a.PasswordHash,
		&a.FollowedAlerts,
		&collabs,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Role = models.Role(role)
	a.Status = models.AccountStatus(status)

	var rows []collaboratorRow
	if len(collabs) > 0 {
		if err := json.Unmarshal(collabs, &rows); err != nil {
			return nil, fmt.Errorf("decode collaborators: %w", err)
		}
	}
	a.Collaborators = make([]models.Collaborator, 0, len(rows))
	for _, r := range rows {
		a.Collaborators = append(a.Collaborators, models.Collaborator{
			Email:          r.Email,
			Name:           r.Name,
			Role:           models.Role(r.Role),
			Status:         models.CollaboratorStatus(r.Status),
			CredentialHash: r.CredentialHash,
		})
	}
	if a.FollowedAlerts == nil {
		a.FollowedAlerts = make([]uuid.UUID, 0)
	}
	return &a, nil
}

func (s *AccountStore) findOne(ctx context.Context, where string, arg any) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + where + ` LIMIT 1`

	a, err := scanAccount(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (s *AccountStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	a, err := s.findOne(ctx, `id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	a, err := s.findOne(ctx, `lower(email) = lower($1)`, email)
	if err != nil {
		return nil, fmt.Errorf("get account by email: %w", err)
	}
	return a, nil
}

// FindByCollaboratorEmail searches the embedded collaborator array. The GIN
// index on collaborators keeps the containment check cheap; emails are
// stored lowercased so the match is exact.
func (s *AccountStore) FindByCollaboratorEmail(ctx context.Context, email string) (*models.Account, error) {
	match, err := json.Marshal([]map[string]string{{"email": normalizeEmail(email)}})
	if err != nil {
		return nil, fmt.Errorf("encode collaborator match: %w", err)
	}
	a, err := s.findOne(ctx, `collaborators @> $1::jsonb`, match)
	if err != nil {
		return nil, fmt.Errorf("get account by collaborator email: %w", err)
	}
	return a, nil
}

func (s *AccountStore) Save(ctx context.Context, a *models.Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	rows := make([]collaboratorRow, 0, len(a.Collaborators))
	for _, c := range a.Collaborators {
		rows = append(rows, collaboratorRow{
			Email:          normalizeEmail(c.Email),
			Name:           c.Name,
			Role:           string(c.Role),
			Status:         string(c.Status),
			CredentialHash: c.CredentialHash,
		})
	}
	collabs, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode collaborators: %w", err)
	}
	followed := a.FollowedAlerts
	if followed == nil {
		followed = make([]uuid.UUID, 0)
	}

	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			role = EXCLUDED.role,
			premium = EXCLUDED.premium,
			status = EXCLUDED.status,
			password_hash = EXCLUDED.password_hash,
			followed_alerts = EXCLUDED.followed_alerts,
			collaborators = EXCLUDED.collaborators`

	_, err = s.pool.Exec(ctx, query,
		a.ID, a.Email, a.DisplayName, string(a.Role), a.Premium, string(a.Status),
		a.PasswordHash, followed, collabs,
	)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

// AddFollowedAlert appends only when absent so repeated follows are no-ops.
func (s *AccountStore) AddFollowedAlert(ctx context.Context, accountID, alertID uuid.UUID) error {
	query := `
		UPDATE accounts
		SET followed_alerts = array_append(followed_alerts, $2)
		WHERE id = $1 AND NOT ($2 = ANY(followed_alerts))`

	if _, err := s.pool.Exec(ctx, query, accountID, alertID); err != nil {
		return fmt.Errorf("add followed alert: %w", err)
	}
	return nil
}

func (s *AccountStore) RemoveFollowedAlert(ctx context.Context, accountID, alertID uuid.UUID) error {
	query := `
		UPDATE accounts
		SET followed_alerts = array_remove(followed_alerts, $2)
		WHERE id = $1`

	if _, err := s.pool.Exec(ctx, query, accountID, alertID); err != nil {
		return fmt.Errorf("remove followed alert: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
