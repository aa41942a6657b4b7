package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DownloadEntry is one row of the download log.
type DownloadEntry struct {
	Template string    `json:"template"`
	IP       string    `json:"ip"`
	Date     time.Time `json:"date"`
}

// Downloader aggregates the download log per IP address.
type Downloader struct {
	IP        string    `json:"ip"`
	Downloads int64     `json:"downloads"`
	LastSeen  time.Time `json:"last_seen"`
}

// ReserveDownload appends a download of name by ip to the download log,
// unless ip already has limit or more downloads logged strictly after since.
// A non-positive limit always logs. The check and the insert are a single
// statement, so concurrent requests from one address cannot both take the
// last slot.
//
// It returns the ID of the new log entry, zero when the limit was reached,
// and the number of downloads ip had inside the window before this one.
// The template's download counter is not touched; call IncrementDownloads
// once the download was served, or ReleaseDownload if it failed.
func (s *Store) ReserveDownload(ctx context.Context, name, ip string, since time.Time, limit int) (int64, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	res, err := tx.ExecContext(ctx, `
        INSERT INTO downloads_log (template_name, ip, date)
        SELECT ?, ?, ?
        WHERE ? <= 0 OR (SELECT COUNT(*) FROM downloads_log WHERE ip = ? AND date > ?) < ?
    `, name, ip, s.now().Unix(), limit, ip, since.Unix(), limit)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to log download of %q: %w", name, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read download log result: %w", err)
	}

	var id int64
	if inserted > 0 {
		if id, err = res.LastInsertId(); err != nil {
			return 0, 0, fmt.Errorf("failed to read download log id: %w", err)
		}
	}

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM downloads_log WHERE ip = ? AND date > ? AND id != ?`, ip, since.Unix(), id,
	).Scan(&count)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count downloads for %s: %w", ip, err)
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit download transaction: %w", err)
	}
	if id != 0 {
		s.logger.Debug("Reserved download", "template", name, "ip", ip, "id", id, "count", count)
	}
	return id, count, nil
}

// ReleaseDownload deletes a reserved download log entry, giving the slot
// back to its address.
func (s *Store) ReleaseDownload(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM downloads_log WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to release download %d: %w", id, err)
	}
	return nil
}

// DownloadSlots adapts the download log of one template to the
// ratelimit.Reserver interface.
func (s *Store) DownloadSlots(name string) DownloadSlots {
	return DownloadSlots{s: s, name: name}
}

// DownloadSlots reserves download log entries for one template, keyed by IP
// address.
type DownloadSlots struct {
	s    *Store
	name string
}

// Reserve implements ratelimit.Reserver.
func (d DownloadSlots) Reserve(ctx context.Context, key string, since time.Time, limit int) (int64, int, error) {
	return d.s.ReserveDownload(ctx, d.name, key, since, limit)
}

// RecentDownloads returns the newest limit entries of the download log.
func (s *Store) RecentDownloads(ctx context.Context, limit int) ([]DownloadEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT template_name, ip, date FROM downloads_log ORDER BY date DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query download log: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var entries []DownloadEntry
	for rows.Next() {
		var e DownloadEntry
		var unix int64
		if err = rows.Scan(&e.Template, &e.IP, &unix); err != nil {
			return nil, fmt.Errorf("failed to scan download log row: %w", err)
		}
		e.Date = time.Unix(unix, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// TopDownloaders returns the IP addresses with the most logged downloads.
func (s *Store) TopDownloaders(ctx context.Context, limit int) ([]Downloader, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT ip, COUNT(*) AS downloads, MAX(date) FROM downloads_log
        GROUP BY ip ORDER BY downloads DESC, ip LIMIT ?
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top downloaders: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var result []Downloader
	for rows.Next() {
		var d Downloader
		var unix int64
		if err = rows.Scan(&d.IP, &d.Downloads, &unix); err != nil {
			return nil, fmt.Errorf("failed to scan downloader row: %w", err)
		}
		d.LastSeen = time.Unix(unix, 0).UTC()
		result = append(result, d)
	}
	return result, rows.Err()
}

// PruneDownloads deletes download log entries older than before and returns
// how many were removed. Entries older than the longest rate limit window no
// longer influence any decision.
func (s *Store) PruneDownloads(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM downloads_log WHERE date < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune download log: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
