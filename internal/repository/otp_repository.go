package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/orvio-ai/be-order-verification/internal/database"
	"github.com/orvio-ai/be-order-verification/internal/domain"
	"github.com/orvio-ai/be-order-verification/internal/errors"
)

// OTPRepository stores one-time passcode credentials. The (subject, role)
// pair is the primary key, so at most one live code exists per identity/role.
// Verification runs inside WithTx with a row lock, making the
// read-compare-delete sequence atomic against concurrent verifies.
type OTPRepository struct {
	db *database.DB
}

// NewOTPRepository creates a new OTP repository.
func NewOTPRepository(db *database.DB) *OTPRepository {
	return &OTPRepository{db: db}
}

// WithTx runs fn inside a database transaction.
func (r *OTPRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.InTransaction(ctx, fn)
}

// Upsert stores a credential, overwriting any previous live code for the
// same (subject, role). Issuing resets the failure counter and lock.
func (r *OTPRepository) Upsert(ctx context.Context, cred *domain.OTPCredential) error {
	query := `
		INSERT INTO otp_credentials (subject, role, code_hash, failure_count,
		                             locked_until, expires_at, created_at)
		VALUES ($1, $2, $3, 0, NULL, $4, $5)
		ON CONFLICT (subject, role) DO UPDATE
		SET code_hash     = EXCLUDED.code_hash,
		    failure_count = 0,
		    locked_until  = NULL,
		    expires_at    = EXCLUDED.expires_at,
		    created_at    = EXCLUDED.created_at
	`

	_, err := r.db.Exec(ctx, query,
		cred.Subject, cred.Role, cred.CodeHash, cred.ExpiresAt, cred.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to store otp credential")
	}
	return nil
}

// GetForUpdate loads a credential with a row lock. Returns nil when no live
// code exists.
func (r *OTPRepository) GetForUpdate(ctx context.Context, subject, role string) (*domain.OTPCredential, error) {
	query := `
		SELECT subject, role, code_hash, failure_count, locked_until,
		       expires_at, created_at
		FROM otp_credentials
		WHERE subject = $1 AND role = $2
		FOR UPDATE
	`

	cred := &domain.OTPCredential{}
	err := r.db.QueryRow(ctx, query, subject, role).Scan(
		&cred.Subject,
		&cred.Role,
		&cred.CodeHash,
		&cred.FailureCount,
		&cred.LockedUntil,
		&cred.ExpiresAt,
		&cred.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to load otp credential")
	}
	return cred, nil
}

// Delete removes a credential. Deletion is the single-use mechanism: a
// verified or expired code ceases to exist rather than being flagged.
func (r *OTPRepository) Delete(ctx context.Context, subject, role string) error {
	query := `DELETE FROM otp_credentials WHERE subject = $1 AND role = $2`

	if _, err := r.db.Exec(ctx, query, subject, role); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete otp credential")
	}
	return nil
}

// RecordFailure persists an incremented failure counter and optional lock.
func (r *OTPRepository) RecordFailure(ctx context.Context, cred *domain.OTPCredential) error {
	query := `
		UPDATE otp_credentials
		SET failure_count = $3,
		    locked_until  = $4
		WHERE subject = $1 AND role = $2
	`

	_, err := r.db.Exec(ctx, query,
		cred.Subject, cred.Role, cred.FailureCount, cred.LockedUntil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to record otp failure")
	}
	return nil
}
