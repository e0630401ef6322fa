package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"math/big"

	"github.com/orvio-ai/be-order-verification/internal/clock"
	"github.com/orvio-ai/be-order-verification/internal/config"
	"github.com/orvio-ai/be-order-verification/internal/domain"
	"github.com/orvio-ai/be-order-verification/internal/errors"
	"github.com/orvio-ai/be-order-verification/internal/logger"
)

// codeAlphabet excludes visually ambiguous characters (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// OTPService issues and verifies single-use passcodes. Only the SHA-256 of a
// code is stored; a successful verification deletes the record inside the
// same transaction, so a replayed code finds nothing to match.
type OTPService struct {
	store OTPStore
	clock clock.Clock
	cfg   config.OTPConfig
	log   *logger.Logger
}

// NewOTPService creates a new OTP service.
func NewOTPService(store OTPStore, clk clock.Clock, cfg config.OTPConfig, log *logger.Logger) *OTPService {
	return &OTPService{
		store: store,
		clock: clk,
		cfg:   cfg,
		log:   log,
	}
}

// Issue generates a fresh code for (subject, role), overwriting any previous
// live code so at most one is outstanding. The plaintext is returned exactly
// once for out-of-band delivery and never stored or logged.
func (s *OTPService) Issue(ctx context.Context, subject, role string) (string, error) {
	if subject == "" || role == "" {
		return "", errors.InvalidInput("subject", "subject and role are required")
	}

	code, err := generateCode(s.cfg.CodeLength)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to generate code")
	}

	now := s.clock.Now()
	hash := hashCode(code)
	cred := &domain.OTPCredential{
		Subject:   subject,
		Role:      role,
		CodeHash:  hash,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}

	if err := s.store.Upsert(ctx, cred); err != nil {
		return "", err
	}

	s.log.Info().
		Str("subject", subject).
		Str("role", role).
		Time("expires_at", cred.ExpiresAt).
		Msg("One-time code issued")

	return code, nil
}

// Verify checks a submitted code. On success the credential is deleted before
// returning — single use by deletion, not by flag. On mismatch the failure
// counter grows and past the threshold the subject is locked regardless of
// the code's remaining TTL. Every failure surfaces as the same credential
// error so responses never reveal the sub-reason.
func (s *OTPService) Verify(ctx context.Context, subject, role, submitted string) error {
	if subject == "" || role == "" || submitted == "" {
		return errors.Credential()
	}

	return s.store.WithTx(ctx, func(ctx context.Context) error {
		cred, err := s.store.GetForUpdate(ctx, subject, role)
		if err != nil {
			return err
		}
		if cred == nil {
			s.logRejection(subject, "no live code")
			return errors.Credential()
		}

		now := s.clock.Now()
		if cred.Locked(now) {
			s.logRejection(subject, "subject locked")
			return errors.Credential()
		}
		if cred.Expired(now) {
			if err := s.store.Delete(ctx, subject, role); err != nil {
				return err
			}
			s.logRejection(subject, "code expired")
			return errors.Credential()
		}

		if subtle.ConstantTimeCompare(hashCode(submitted), cred.CodeHash) == 1 {
			if err := s.store.Delete(ctx, subject, role); err != nil {
				return err
			}
			s.log.Info().Str("subject", subject).Str("role", role).Msg("One-time code verified and destroyed")
			return nil
		}

		cred.FailureCount++
		if cred.FailureCount >= s.cfg.MaxFailures {
			lockUntil := now.Add(s.cfg.LockDuration)
			cred.LockedUntil = &lockUntil
			s.log.Warn().
				Str("subject", subject).
				Time("locked_until", lockUntil).
				Msg("OTP subject locked after repeated failures")
		}
		if err := s.store.RecordFailure(ctx, cred); err != nil {
			return err
		}
		s.logRejection(subject, "code mismatch")
		return errors.Credential()
	})
}

func (s *OTPService) logRejection(subject, reason string) {
	s.log.Debug().Str("subject", subject).Str("reason", reason).Msg("One-time code rejected")
}

func hashCode(code string) []byte {
	sum := sha256.Sum256([]byte(code))
	return sum[:]
}

func generateCode(length int) (string, error) {
	buf := make([]byte, length)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
