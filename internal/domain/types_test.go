package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOTPCredentialLocked(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	until := now.Add(15 * time.Minute)

	cred := &OTPCredential{LockedUntil: &until, ExpiresAt: now.Add(5 * time.Minute)}
	assert.True(t, cred.Locked(now))
	assert.False(t, cred.Locked(until), "lock lifts exactly at the boundary")

	assert.False(t, (&OTPCredential{ExpiresAt: until}).Locked(now))
}

func TestOTPCredentialExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	cred := &OTPCredential{ExpiresAt: now.Add(5 * time.Minute)}

	assert.False(t, cred.Expired(now))
	assert.True(t, cred.Expired(now.Add(5*time.Minute)), "expiry boundary is inclusive")
	assert.True(t, cred.Expired(now.Add(time.Hour)))
}
