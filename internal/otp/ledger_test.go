package otp

import (
	"context"
	"sync"
	"testing"
	"time"
)

type memChallengeStore struct {
	mu         sync.Mutex
	challenges []Challenge
	nextID     int64
}

func newMemChallengeStore() *memChallengeStore { return &memChallengeStore{nextID: 1} }

func (m *memChallengeStore) Insert(_ context.Context, c Challenge) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.nextID
	m.nextID++
	m.challenges = append(m.challenges, c)
	return c.ID, nil
}

func (m *memChallengeStore) Consume(_ context.Context, email, code string, notBefore time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.challenges) - 1; i >= 0; i-- {
		c := &m.challenges[i]
		if c.Email == email && c.Code == code && !c.Consumed && !c.IssuedAt.Before(notBefore) {
			c.Consumed = true
			return true, nil
		}
	}
	return false, nil
}

func TestIssueThenRedeem(t *testing.T) {
	ctx := context.Background()
	store := newMemChallengeStore()
	l := NewLedger(store)

	code, err := l.Issue(ctx, "a@mitie.es")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(code) != CodeLength {
		t.Fatalf("code %q is not %d digits", code, CodeLength)
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			t.Fatalf("code %q contains non-digit", code)
		}
	}

	ok, err := l.Redeem(ctx, "a@mitie.es", code)
	if err != nil || !ok {
		t.Fatalf("first Redeem = (%v, %v), want success", ok, err)
	}

	ok, err = l.Redeem(ctx, "a@mitie.es", code)
	if err != nil {
		t.Fatalf("second Redeem errored: %v", err)
	}
	if ok {
		t.Error("code redeemed twice")
	}
}

func TestRedeem_WrongEmailOrCode(t *testing.T) {
	ctx := context.Background()
	store := newMemChallengeStore()
	l := NewLedger(store)

	code, err := l.Issue(ctx, "a@mitie.es")
	if err != nil {
		t.Fatal(err)
	}

	if ok, _ := l.Redeem(ctx, "b@mitie.es", code); ok {
		t.Error("redeemed with wrong email")
	}
	if ok, _ := l.Redeem(ctx, "a@mitie.es", "000000"); ok && code != "000000" {
		t.Error("redeemed with wrong code")
	}
	if ok, _ := l.Redeem(ctx, "", ""); ok {
		t.Error("redeemed with empty email and code")
	}
}

func TestRedeem_Expired(t *testing.T) {
	ctx := context.Background()
	store := newMemChallengeStore()

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewLedgerWithClock(store, Window, func() time.Time { return current })

	code, err := l.Issue(ctx, "a@mitie.es")
	if err != nil {
		t.Fatal(err)
	}

	// Just inside the window.
	current = current.Add(Window - time.Second)
	if ok, _ := l.Redeem(ctx, "a@mitie.es", code); !ok {
		t.Error("code inside the window was rejected")
	}

	// A fresh code aged past the window.
	code, err = l.Issue(ctx, "a@mitie.es")
	if err != nil {
		t.Fatal(err)
	}
	current = current.Add(Window + time.Minute)
	if ok, _ := l.Redeem(ctx, "a@mitie.es", code); ok {
		t.Error("expired code was accepted")
	}
}

func TestRedeem_MostRecentWins(t *testing.T) {
	// Two live challenges with the same code: redeeming consumes one,
	// and the same (email, code) pair still has the older one available.
	ctx := context.Background()
	store := newMemChallengeStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, issued := range []time.Time{base, base.Add(time.Minute)} {
		if _, err := store.Insert(ctx, Challenge{
			ID:       int64(i + 1),
			Email:    "a@mitie.es",
			Code:     "424242",
			IssuedAt: issued,
		}); err != nil {
			t.Fatal(err)
		}
	}

	l := NewLedgerWithClock(store, Window, func() time.Time { return base.Add(2 * time.Minute) })

	ok, err := l.Redeem(ctx, "a@mitie.es", "424242")
	if err != nil || !ok {
		t.Fatalf("Redeem = (%v, %v), want success", ok, err)
	}
	if !store.challenges[1].Consumed {
		t.Error("most recent challenge was not the one consumed")
	}
	if store.challenges[0].Consumed {
		t.Error("older challenge consumed instead of the most recent")
	}
}

func TestRedeem_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := newMemChallengeStore()
	l := NewLedger(store)

	code, err := l.Issue(ctx, "a@mitie.es")
	if err != nil {
		t.Fatal(err)
	}

	const workers = 16
	var wg sync.WaitGroup
	results := make([]bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = l.Redeem(ctx, "a@mitie.es", code)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, ok := range results {
		if ok {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("%d concurrent redemptions succeeded, want exactly 1", winners)
	}
}

func TestRandomCode_Width(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := randomCode()
		if err != nil {
			t.Fatal(err)
		}
		if len(code) != CodeLength {
			t.Fatalf("randomCode() = %q, want %d characters", code, CodeLength)
		}
	}
}
