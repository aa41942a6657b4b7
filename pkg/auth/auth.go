// Package auth keeps the admin API keys. Only SHA-256 hashes of the keys are
// stored, each with a space separated list of scopes.
//
// While no key exists the admin API is open: every caller is treated as a
// master key holder, so that the first key can be created. That first key is
// always a master key.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Master is the scope that grants every other scope.
const Master = "*"

// PrimaryKeyID is the first key ever created, which cannot be deleted.
const PrimaryKeyID = 1

var (
	// ErrUnknownKey is returned for a key that is not on the keyring.
	ErrUnknownKey = errors.New("unknown api key")
	// ErrNotFound is returned when deleting a key ID that does not exist.
	ErrNotFound = errors.New("api key not found")
	// ErrProtected is returned when deleting the primary key.
	ErrProtected = errors.New("the primary master key cannot be deleted")
)

const schema = `
CREATE TABLE IF NOT EXISTS api_keys (
    id            INTEGER   PRIMARY KEY,
    key_hash      TEXT      NOT NULL UNIQUE,
    scopes        TEXT      NOT NULL,
    description   TEXT      NOT NULL
);
`

// SetupSchema creates the api_keys table if it does not exist yet.
func SetupSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create auth schema: %w", err)
	}
	return nil
}

// Scopes is a set of granted scopes.
type Scopes map[string]struct{}

// ParseScopes reads a space separated scope list.
func ParseScopes(s string) Scopes {
	fields := strings.Fields(s)
	set := make(Scopes, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Has reports whether the set grants scope, directly or through Master.
func (s Scopes) Has(scope string) bool {
	if _, ok := s[Master]; ok {
		return true
	}
	_, ok := s[scope]
	return ok
}

// List returns the scopes sorted.
func (s Scopes) List() []string {
	list := make([]string, 0, len(s))
	for scope := range s {
		list = append(list, scope)
	}
	sort.Strings(list)
	return list
}

func (s Scopes) String() string {
	return strings.Join(s.List(), " ")
}

type contextKey struct{}

// WithScopes attaches the caller's scopes to ctx.
func WithScopes(ctx context.Context, s Scopes) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the scopes attached by WithScopes. A context without
// scopes grants nothing.
func FromContext(ctx context.Context) (Scopes, bool) {
	s, ok := ctx.Value(contextKey{}).(Scopes)
	return s, ok
}

// Key describes a stored key. The raw key itself is never stored.
type Key struct {
	ID          int64    `json:"id"`
	Scopes      []string `json:"scopes"`
	Description string   `json:"description"`
}

// Keyring manages the keys in the api_keys table.
type Keyring struct {
	db     *sql.DB
	prefix string
}

// New returns a keyring over db. Generated keys start with prefix.
func New(db *sql.DB, prefix string) *Keyring {
	return &Keyring{db: db, prefix: prefix}
}

// Resolve returns the scopes granted to raw. While the keyring is empty every
// caller gets Master.
func (k *Keyring) Resolve(ctx context.Context, raw string) (Scopes, error) {
	var count int
	if err := k.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_keys`).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to count api keys: %w", err)
	}
	if count == 0 {
		return Scopes{Master: {}}, nil
	}
	if raw == "" {
		return nil, ErrUnknownKey
	}

	var scopes string
	err := k.db.QueryRowContext(ctx, `SELECT scopes FROM api_keys WHERE key_hash = ?`, hashKey(raw)).Scan(&scopes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnknownKey
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	return ParseScopes(scopes), nil
}

// List returns every key ordered by ID.
func (k *Keyring) List(ctx context.Context) ([]Key, error) {
	rows, err := k.db.QueryContext(ctx, `SELECT id, description, scopes FROM api_keys ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query api keys: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	keys := []Key{}
	for rows.Next() {
		var key Key
		var scopes string
		if err = rows.Scan(&key.ID, &key.Description, &scopes); err != nil {
			return nil, fmt.Errorf("failed to scan api key row: %w", err)
		}
		key.Scopes = ParseScopes(scopes).List()
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Create generates and stores a new key, returning its description and the
// raw key, which is not recoverable afterward. The first key on the keyring
// always gets Master, whatever was requested, so the admin API cannot be
// locked out.
func (k *Keyring) Create(ctx context.Context, scopes []string, description string) (Key, string, error) {
	raw, err := k.generate()
	if err != nil {
		return Key{}, "", err
	}

	tx, err := k.db.BeginTx(ctx, nil)
	if err != nil {
		return Key{}, "", fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var count int
	if err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_keys`).Scan(&count); err != nil {
		return Key{}, "", fmt.Errorf("failed to count api keys: %w", err)
	}
	granted := ParseScopes(strings.Join(scopes, " "))
	if count == 0 {
		granted = Scopes{Master: {}}
	}

	key := Key{Scopes: granted.List(), Description: description}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO api_keys (key_hash, description, scopes) VALUES (?, ?, ?) RETURNING id`,
		hashKey(raw), description, granted.String()).Scan(&key.ID)
	if err != nil {
		return Key{}, "", fmt.Errorf("failed to save api key: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return Key{}, "", fmt.Errorf("failed to commit api key: %w", err)
	}
	return key, raw, nil
}

// Delete removes a key. The primary key cannot be removed.
func (k *Keyring) Delete(ctx context.Context, id int64) error {
	if id == PrimaryKeyID {
		return ErrProtected
	}
	res, err := k.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete api key %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (k *Keyring) generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return k.prefix + hex.EncodeToString(buf), nil
}

func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
