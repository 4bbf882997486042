package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mitie-ops/custodia/internal/otp"
)

// Challenges persists OTP email challenges. It implements
// otp.ChallengeStore.
type Challenges struct {
	db DBTX
}

// NewChallenges builds the challenge store over a connection pool.
func NewChallenges(pool *pgxpool.Pool) *Challenges {
	return &Challenges{db: pool}
}

// Insert persists a fresh unconsumed challenge.
func (s *Challenges) Insert(ctx context.Context, c otp.Challenge) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO email_challenges (email, codigo, issued_at, consumed)
		VALUES ($1, $2, $3, FALSE)
		RETURNING id`,
		c.Email, c.Code, c.IssuedAt,
	).Scan(&id)
	return id, wrap("insert challenge", err)
}

// Consume marks the most recently issued live challenge matching email
// and code as consumed. The subselect locks the winning row, so under
// concurrent redemption of the same pair exactly one caller gets true.
func (s *Challenges) Consume(ctx context.Context, email, code string, notBefore time.Time) (bool, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		UPDATE email_challenges
		SET consumed = TRUE
		WHERE id = (
			SELECT id FROM email_challenges
			WHERE email = $1 AND codigo = $2 AND NOT consumed AND issued_at >= $3
			ORDER BY issued_at DESC, id DESC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id`,
		email, code, notBefore,
	).Scan(&id)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, wrap("consume challenge", err)
	}
	return true, nil
}
