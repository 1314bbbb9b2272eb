package tenants

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultInvitationTTL is how long an invitation stays acceptable.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// CreateInvitation creates (or refreshes) an invitation for an email
// address. A repeated invite to the same tenant and email reissues the
// token and pushes the expiry out.
func (s *PostgresStore) CreateInvitation(ctx context.Context, inv *Invitation) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	inv.Token = uuid.NewString()
	if inv.InvitedAt.IsZero() {
		inv.InvitedAt = time.Now().UTC()
	}
	if inv.ExpiresAt.IsZero() {
		inv.ExpiresAt = inv.InvitedAt.Add(DefaultInvitationTTL)
	}

	query := `
		INSERT INTO tenant_invitations (id, tenant_id, email, role, token, invited_by, invited_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, email) DO UPDATE
		SET token = EXCLUDED.token, invited_at = EXCLUDED.invited_at, expires_at = EXCLUDED.expires_at
	`
	if _, err := s.db.ExecContext(ctx, query,
		inv.ID, inv.TenantID, inv.Email, inv.Role, inv.Token, inv.InvitedBy, inv.InvitedAt, inv.ExpiresAt,
	); err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

// GetInvitation retrieves an invitation by token.
func (s *PostgresStore) GetInvitation(ctx context.Context, token string) (*Invitation, error) {
	query := `
		SELECT id, tenant_id, email, role, token, invited_by, invited_at, expires_at, accepted_at, accepted_by
		FROM tenant_invitations
		WHERE token = $1
	`

	var inv Invitation
	var invitedBy, acceptedBy sql.NullString
	var acceptedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&inv.ID, &inv.TenantID, &inv.Email, &inv.Role, &inv.Token,
		&invitedBy, &inv.InvitedAt, &inv.ExpiresAt, &acceptedAt, &acceptedBy,
	)
	if err == sql.ErrNoRows {
		return nil, ErrInvitationInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	inv.InvitedBy = invitedBy.String
	inv.AcceptedBy = acceptedBy.String
	if acceptedAt.Valid {
		t := acceptedAt.Time
		inv.AcceptedAt = &t
	}
	return &inv, nil
}

// AcceptInvitation redeems a token for userID: inside one transaction
// it validates the invitation, creates an active membership and marks
// the invitation accepted. The caller's cached resolutions are
// invalidated afterwards.
func (s *PostgresStore) AcceptInvitation(ctx context.Context, token, userID string) (*Membership, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var inv Invitation
	var acceptedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, role, expires_at, accepted_at
		FROM tenant_invitations
		WHERE token = $1
	`, token).Scan(&inv.ID, &inv.TenantID, &inv.Email, &inv.Role, &inv.ExpiresAt, &acceptedAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvitationInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	if acceptedAt.Valid {
		return nil, fmt.Errorf("%w: already accepted", ErrInvitationInvalid)
	}
	if time.Now().After(inv.ExpiresAt) {
		return nil, fmt.Errorf("%w: expired", ErrInvitationInvalid)
	}

	membership := &Membership{
		ID:       uuid.NewString(),
		UserID:   userID,
		TenantID: inv.TenantID,
		Role:     inv.Role,
		Status:   StatusActive,
		JoinedAt: time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tenant_memberships (id, user_id, tenant_id, role, status, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, membership.ID, membership.UserID, membership.TenantID, membership.Role, membership.Status, membership.JoinedAt); err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tenant_invitations SET accepted_at = $1, accepted_by = $2 WHERE id = $3
	`, time.Now().UTC(), userID, inv.ID); err != nil {
		return nil, fmt.Errorf("failed to update invitation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	s.notify(ctx, userID)
	return membership, nil
}

// RevokeInvitation deletes an unaccepted invitation.
func (s *PostgresStore) RevokeInvitation(ctx context.Context, id string) error {
	query := `DELETE FROM tenant_invitations WHERE id = $1 AND accepted_at IS NULL`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return ErrInvitationInvalid
	}
	return nil
}

// CleanupExpiredInvitations removes expired, unaccepted invitations.
// Wired to the cron janitor in cmd/authcore.
func (s *PostgresStore) CleanupExpiredInvitations(ctx context.Context) (int64, error) {
	query := `DELETE FROM tenant_invitations WHERE expires_at < $1 AND accepted_at IS NULL`
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired invitations: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
