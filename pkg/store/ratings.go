package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/CTAG07/Vitrine/pkg/ratelimit"
)

const (
	MinRating = 1
	MaxRating = 5
)

var (
	// ErrInvalidRating is returned for ratings outside MinRating..MaxRating.
	ErrInvalidRating = errors.New("invalid rating")
	// ErrSameRating is returned when a client repeats its current rating.
	ErrSameRating = errors.New("rating already given")
)

// CooldownError is returned when a client re-rates a template before its
// cooldown has passed.
type CooldownError struct {
	Wait time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("rating cooldown active, %d seconds left", e.WaitSeconds())
}

// WaitSeconds returns the remaining cooldown in whole seconds.
func (e *CooldownError) WaitSeconds() int {
	return int(e.Wait / time.Second)
}

// RatingResult is the template's rating aggregate after a successful rating.
type RatingResult struct {
	Rating      float64 `json:"rating"`
	RatingCount int64   `json:"rating_count"`
	UserRating  int     `json:"userRating"`
}

// Rate records rating from ip for the template.
//
// A first rating adds to the template's rating sum and count. A changed
// rating replaces the previous one in the sum and leaves the count alone,
// but only once cooldown has passed since the previous rating.
func (s *Store) Rate(ctx context.Context, name, ip string, rating int, cooldown ratelimit.Cooldown) (*RatingResult, error) {
	if rating < MinRating || rating > MaxRating {
		return nil, ErrInvalidRating
	}
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var previous int
	var lastUnix int64
	err = tx.QueryRowContext(ctx,
		`SELECT rating, date FROM user_ratings WHERE template_id = ? AND ip = ?`, name, ip,
	).Scan(&previous, &lastUnix)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
            INSERT INTO stats (id, rating_sum, rating_count) VALUES (?, ?, 1)
            ON CONFLICT(id) DO UPDATE SET rating_sum = rating_sum + ?, rating_count = rating_count + 1
        `, name, rating, rating)
		if err != nil {
			return nil, fmt.Errorf("failed to add rating for %q: %w", name, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_ratings (template_id, ip, rating, date) VALUES (?, ?, ?, ?)`,
			name, ip, rating, now.Unix())
		if err != nil {
			return nil, fmt.Errorf("failed to store user rating for %q: %w", name, err)
		}

	case err != nil:
		return nil, fmt.Errorf("failed to look up previous rating for %q: %w", name, err)

	default:
		if previous == rating {
			return nil, ErrSameRating
		}
		if wait := cooldown.Remaining(time.Unix(lastUnix, 0), now); wait > 0 {
			return nil, &CooldownError{Wait: wait}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE stats SET rating_sum = rating_sum - ? + ? WHERE id = ?`, previous, rating, name)
		if err != nil {
			return nil, fmt.Errorf("failed to replace rating for %q: %w", name, err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE user_ratings SET rating = ?, date = ? WHERE template_id = ? AND ip = ?`,
			rating, now.Unix(), name, ip)
		if err != nil {
			return nil, fmt.Errorf("failed to update user rating for %q: %w", name, err)
		}
	}

	var sum, count int64
	err = tx.QueryRowContext(ctx,
		`SELECT rating_sum, rating_count FROM stats WHERE id = ?`, name,
	).Scan(&sum, &count)
	if err != nil {
		return nil, fmt.Errorf("failed to read rating aggregate for %q: %w", name, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rating transaction: %w", err)
	}

	s.logger.DebugContext(ctx, "Rating recorded",
		"template", name, "ip", ip, "rating", rating, "previous", previous)

	return &RatingResult{
		Rating:      averageRating(sum, count),
		RatingCount: count,
		UserRating:  rating,
	}, nil
}

// UserRating returns the rating ip gave the template and when, or ok=false
// if it has not rated it.
func (s *Store) UserRating(ctx context.Context, name, ip string) (rating int, at time.Time, ok bool, err error) {
	var unix int64
	err = s.db.QueryRowContext(ctx,
		`SELECT rating, date FROM user_ratings WHERE template_id = ? AND ip = ?`, name, ip,
	).Scan(&rating, &unix)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, false, nil
	}
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("failed to read user rating for %q: %w", name, err)
	}
	return rating, time.Unix(unix, 0), true, nil
}
