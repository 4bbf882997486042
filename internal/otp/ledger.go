// Package otp issues and redeems the one-time email verification codes
// used as a lightweight digital signature on device deliveries.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// Window is how long an issued code stays redeemable.
const Window = 30 * time.Minute

// CodeLength is the fixed width of issued codes.
const CodeLength = 6

// Challenge is one issued verification code.
type Challenge struct {
	ID       int64
	Email    string
	Code     string // 6 ASCII digits, leading zeros preserved
	IssuedAt time.Time
	Consumed bool
}

// ChallengeStore persists challenges. Consume must find the most recently
// issued unconsumed challenge matching email and code with IssuedAt >=
// notBefore, mark it consumed, and report whether one was found — all as
// one atomic operation, so concurrent redeemers of the same pair cannot
// both succeed.
type ChallengeStore interface {
	Insert(ctx context.Context, c Challenge) (int64, error)
	Consume(ctx context.Context, email, code string, notBefore time.Time) (bool, error)
}

// Ledger issues and redeems challenges against a ChallengeStore.
//
// There is deliberately no throttling on issuance or redemption; the
// original system has none and adding it silently would break parity.
type Ledger struct {
	store  ChallengeStore
	window time.Duration
	now    func() time.Time
}

// NewLedger builds a Ledger with the standard 30 minute window.
func NewLedger(store ChallengeStore) *Ledger {
	return &Ledger{store: store, window: Window, now: time.Now}
}

// NewLedgerWithClock is like NewLedger with an injected window and clock
// for tests.
func NewLedgerWithClock(store ChallengeStore, window time.Duration, now func() time.Time) *Ledger {
	return &Ledger{store: store, window: window, now: now}
}

// Issue generates a uniformly random 6-digit code, persists an unconsumed
// challenge for email and returns the code. The only failure mode is
// store unavailability, which is propagated.
func (l *Ledger) Issue(ctx context.Context, email string) (string, error) {
	code, err := randomCode()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	_, err = l.store.Insert(ctx, Challenge{
		Email:    email,
		Code:     code,
		IssuedAt: l.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("persist challenge: %w", err)
	}
	return code, nil
}

// Redeem consumes the most recent matching unexpired challenge. It
// returns false for unknown, expired or already-consumed codes and never
// mutates state on failure. The error is non-nil only for store faults.
func (l *Ledger) Redeem(ctx context.Context, email, code string) (bool, error) {
	if email == "" || code == "" {
		return false, nil
	}
	notBefore := l.now().UTC().Add(-l.window)
	ok, err := l.store.Consume(ctx, email, code, notBefore)
	if err != nil {
		return false, fmt.Errorf("consume challenge: %w", err)
	}
	return ok, nil
}

// randomCode returns a fixed-width numeric code, leading zeros allowed.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}
