package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/acadium/acadium-api/internal/models"
)

type InvitationRepository interface {
	// CreateInvitation persists a pending invitation. The duplicate-pending
	// check, the capacity check and the insert run in a single transaction
	// holding a row lock on the inviter's subscriber row, so concurrent
	// requests cannot over-commit seats.
	CreateInvitation(ctx context.Context, invitation models.Invitation) (models.Invitation, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (models.Invitation, error)
	// MarkAccepted transitions a pending invitation to accepted and stamps
	// the acceptance time. Returns models.ErrNotFound if the row is no
	// longer pending, which makes the transition single-shot.
	MarkAccepted(ctx context.Context, invitationID string) (models.Invitation, error)
	MarkExpired(ctx context.Context, invitationID string) error
	// ReinstatePending reverts an accepted invitation to pending. Used
	// when the seat commit after acceptance fails, so the record never
	// sits accepted without a seat behind it.
	ReinstatePending(ctx context.Context, invitationID string) error
	ExpireStale(ctx context.Context, olderThan time.Time) (int, error)
	CountPending(ctx context.Context, inviterID string) (int, error)
	ListByTenant(ctx context.Context, inviterID string) ([]models.Invitation, error)
	ListPendingByTenant(ctx context.Context, inviterID string) ([]models.Invitation, error)
	// ListPendingTenants returns the distinct inviter ids that currently
	// have pending invitations, for the reconciler's periodic sweep.
	ListPendingTenants(ctx context.Context) ([]string, error)
	// Delete removes an invitation outright. Used only for the dispatch
	// failure rollback, so the ledger reservation matches what the invitee
	// can actually act on.
	Delete(ctx context.Context, invitationID string) error
	CancelPending(ctx context.Context, invitationID, inviterID string) error
}

type invitationRepository struct {
	db *sql.DB
}

func NewInvitationRepository(db *sql.DB) InvitationRepository {
	return &invitationRepository{db: db}
}

const invitationColumns = `id, inviter_id, inviter_email, invitee_email, role, magic_link_token, status, group_id, created_at, accepted_at`

func (r *invitationRepository) CreateInvitation(ctx context.Context, invitation models.Invitation) (models.Invitation, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return models.Invitation{}, errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	// Lock the inviter's ledger row for the duration of the checks.
	var purchased, used int
	err = tx.QueryRowContext(ctx, `
		SELECT licenses_purchased, licenses_used
		FROM app.subscribers
		WHERE user_id = $1
		FOR UPDATE
	`, invitation.InviterID).Scan(&purchased, &used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Invitation{}, models.ErrNotFound
		}
		return models.Invitation{}, errors.Wrap(err, "lock subscriber row")
	}

	var duplicate bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM app.invitations
			WHERE inviter_id = $1 AND invitee_email = $2 AND status = 'pending'
		)
	`, invitation.InviterID, invitation.InviteeEmail).Scan(&duplicate)
	if err != nil {
		return models.Invitation{}, errors.Wrap(err, "check duplicate pending invitation")
	}
	if duplicate {
		return models.Invitation{}, models.ErrDuplicatePending
	}

	var pending int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM app.invitations
		WHERE inviter_id = $1 AND status = 'pending'
	`, invitation.InviterID).Scan(&pending)
	if err != nil {
		return models.Invitation{}, errors.Wrap(err, "count pending invitations")
	}

	// Pending invitations are reserved against capacity even though the
	// seats are not yet consumed.
	if purchased-used-pending <= 0 {
		return models.Invitation{}, models.ErrCapacityExceeded
	}

	query := `
		INSERT INTO app.invitations (inviter_id, inviter_email, invitee_email, role, magic_link_token, status, group_id)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)
		RETURNING ` + invitationColumns
	var groupID interface{}
	if invitation.GroupID != "" {
		groupID = invitation.GroupID
	}
	row := tx.QueryRowContext(ctx, query,
		invitation.InviterID,
		invitation.InviterEmail,
		invitation.InviteeEmail,
		invitation.Role,
		invitation.TokenHash,
		groupID,
	)
	created, err := scanInvitation(row)
	if err != nil {
		return models.Invitation{}, errors.Wrap(err, "insert invitation")
	}

	if err := tx.Commit(); err != nil {
		return models.Invitation{}, errors.Wrap(err, "commit transaction")
	}
	return created, nil
}

func (r *invitationRepository) GetByTokenHash(ctx context.Context, tokenHash string) (models.Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM app.invitations
		WHERE magic_link_token = $1`
	invitation, err := scanInvitation(r.db.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Invitation{}, models.ErrNotFound
		}
		return models.Invitation{}, err
	}
	return invitation, nil
}

func (r *invitationRepository) MarkAccepted(ctx context.Context, invitationID string) (models.Invitation, error) {
	query := `
		UPDATE app.invitations
		SET status = 'accepted', accepted_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + invitationColumns
	invitation, err := scanInvitation(r.db.QueryRowContext(ctx, query, invitationID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Invitation{}, models.ErrNotFound
		}
		return models.Invitation{}, err
	}
	return invitation, nil
}

func (r *invitationRepository) MarkExpired(ctx context.Context, invitationID string) error {
	const query = `
		UPDATE app.invitations
		SET status = 'expired'
		WHERE id = $1 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, invitationID)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *invitationRepository) ReinstatePending(ctx context.Context, invitationID string) error {
	const query = `
		UPDATE app.invitations
		SET status = 'pending', accepted_at = NULL
		WHERE id = $1 AND status = 'accepted'`
	result, err := r.db.ExecContext(ctx, query, invitationID)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *invitationRepository) ExpireStale(ctx context.Context, olderThan time.Time) (int, error) {
	const query = `
		UPDATE app.invitations
		SET status = 'expired'
		WHERE status = 'pending' AND created_at < $1`
	result, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, errors.Wrap(err, "expire stale invitations")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rowsAffected), nil
}

func (r *invitationRepository) CountPending(ctx context.Context, inviterID string) (int, error) {
	const query = `
		SELECT COUNT(*) FROM app.invitations
		WHERE inviter_id = $1 AND status = 'pending'`
	var count int
	if err := r.db.QueryRowContext(ctx, query, inviterID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *invitationRepository) ListByTenant(ctx context.Context, inviterID string) ([]models.Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM app.invitations
		WHERE inviter_id = $1
		ORDER BY created_at DESC`
	return r.queryInvitations(ctx, query, inviterID)
}

func (r *invitationRepository) ListPendingByTenant(ctx context.Context, inviterID string) ([]models.Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM app.invitations
		WHERE inviter_id = $1 AND status = 'pending'
		ORDER BY created_at ASC`
	return r.queryInvitations(ctx, query, inviterID)
}

func (r *invitationRepository) ListPendingTenants(ctx context.Context) ([]string, error) {
	const query = `
		SELECT DISTINCT inviter_id FROM app.invitations
		WHERE status = 'pending'`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

func (r *invitationRepository) Delete(ctx context.Context, invitationID string) error {
	const query = `DELETE FROM app.invitations WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, invitationID)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *invitationRepository) CancelPending(ctx context.Context, invitationID, inviterID string) error {
	const query = `
		DELETE FROM app.invitations
		WHERE id = $1 AND inviter_id = $2 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, invitationID, inviterID)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *invitationRepository) queryInvitations(ctx context.Context, query string, args ...interface{}) ([]models.Invitation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invitations []models.Invitation
	for rows.Next() {
		invitation, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, invitation)
	}
	return invitations, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvitation(row rowScanner) (models.Invitation, error) {
	var (
		invitation models.Invitation
		groupID    sql.NullString
		acceptedAt sql.NullTime
	)
	err := row.Scan(
		&invitation.ID,
		&invitation.InviterID,
		&invitation.InviterEmail,
		&invitation.InviteeEmail,
		&invitation.Role,
		&invitation.TokenHash,
		&invitation.Status,
		&groupID,
		&invitation.CreatedAt,
		&acceptedAt,
	)
	if err != nil {
		return models.Invitation{}, err
	}
	if groupID.Valid {
		invitation.GroupID = groupID.String
	}
	if acceptedAt.Valid {
		invitation.AcceptedAt = &acceptedAt.Time
	}
	return invitation, nil
}
