package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
)

// Stats is the aggregate counter row for one template.
type Stats struct {
	ID          string `json:"id,omitempty"`
	Views       int64  `json:"views"`
	Downloads   int64  `json:"downloads"`
	Favorites   int64  `json:"favorites"`
	RatingSum   int64  `json:"rating_sum"`
	RatingCount int64  `json:"rating_count"`
}

// Average returns the mean rating rounded to one decimal, or 0 if the
// template has never been rated.
func (s Stats) Average() float64 {
	return averageRating(s.RatingSum, s.RatingCount)
}

func averageRating(sum, count int64) float64 {
	if count <= 0 {
		return 0
	}
	return math.Round(float64(sum)/float64(count)*10) / 10
}

// Summary is a marketplace-wide overview of the counters.
type Summary struct {
	Templates         int64 `json:"templates"`
	Views             int64 `json:"views"`
	Downloads         int64 `json:"downloads"`
	Favorites         int64 `json:"favorites"`
	Ratings           int64 `json:"ratings"`
	UniqueDownloaders int64 `json:"unique_downloaders"`
}

// IncrementViews adds one view to the template, creating its row if needed.
func (s *Store) IncrementViews(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO stats (id, views) VALUES (?, 1)
        ON CONFLICT(id) DO UPDATE SET views = views + 1
    `, name)
	if err != nil {
		return fmt.Errorf("failed to increment views for %q: %w", name, err)
	}
	return nil
}

// IncrementDownloads adds one served download to the template's counter.
// The download log entry is taken separately with ReserveDownload.
func (s *Store) IncrementDownloads(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO stats (id, downloads) VALUES (?, 1)
        ON CONFLICT(id) DO UPDATE SET downloads = downloads + 1
    `, name)
	if err != nil {
		return fmt.Errorf("failed to increment downloads for %q: %w", name, err)
	}
	return nil
}

// AdjustFavorites adds a favorite when add is true and removes one otherwise.
// The counter never drops below zero.
func (s *Store) AdjustFavorites(ctx context.Context, name string, add bool) error {
	query := `
        INSERT INTO stats (id, favorites) VALUES (?, 1)
        ON CONFLICT(id) DO UPDATE SET favorites = favorites + 1
    `
	if !add {
		query = `
        INSERT INTO stats (id) VALUES (?)
        ON CONFLICT(id) DO UPDATE SET favorites = MAX(0, favorites - 1)
    `
	}
	if _, err := s.db.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("failed to adjust favorites for %q: %w", name, err)
	}
	return nil
}

// Stats returns the counters for one template. A template without a row
// yields zeroed counters and no error.
func (s *Store) Stats(ctx context.Context, name string) (Stats, error) {
	st := Stats{ID: name}
	err := s.db.QueryRowContext(ctx,
		`SELECT views, downloads, favorites, rating_sum, rating_count FROM stats WHERE id = ?`, name,
	).Scan(&st.Views, &st.Downloads, &st.Favorites, &st.RatingSum, &st.RatingCount)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Stats{}, fmt.Errorf("failed to read stats for %q: %w", name, err)
	}
	return st, nil
}

// AllStats returns every counter row keyed by template name.
func (s *Store) AllStats(ctx context.Context) (map[string]Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, views, downloads, favorites, rating_sum, rating_count FROM stats`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	all := make(map[string]Stats)
	for rows.Next() {
		var st Stats
		if err = rows.Scan(&st.ID, &st.Views, &st.Downloads, &st.Favorites, &st.RatingSum, &st.RatingCount); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		all[st.ID] = st
	}
	return all, rows.Err()
}

// TopTemplates returns up to limit counter rows ordered by downloads, then views.
func (s *Store) TopTemplates(ctx context.Context, limit int) ([]Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, views, downloads, favorites, rating_sum, rating_count FROM stats
        ORDER BY downloads DESC, views DESC, id LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top templates: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var result []Stats
	for rows.Next() {
		var st Stats
		if err = rows.Scan(&st.ID, &st.Views, &st.Downloads, &st.Favorites, &st.RatingSum, &st.RatingCount); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

// Summary totals every counter.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*), COALESCE(SUM(views), 0), COALESCE(SUM(downloads), 0),
               COALESCE(SUM(favorites), 0), COALESCE(SUM(rating_count), 0)
        FROM stats
    `).Scan(&sum.Templates, &sum.Views, &sum.Downloads, &sum.Favorites, &sum.Ratings)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to summarize stats: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT ip) FROM downloads_log`).Scan(&sum.UniqueDownloaders)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to count downloaders: %w", err)
	}
	return sum, nil
}
