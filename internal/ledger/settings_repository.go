package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrSettingNotFound = errors.New("setting not found")

type SettingsRepository struct {
	db *pgxpool.Pool
}

func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db.pool}
}

func (r *SettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrSettingNotFound
		}
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.Exec(ctx, `INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

const cookieSecretKey = "cookie_secret"
const cookieSecretBytes = 64

// GetOrCreateCookieSecret returns the server's session-cookie signing
// secret, generating a fresh 64-byte secret on first use. Regenerates any
// stored value that is shorter than expected (e.g. left over from a prior
// weaker scheme).
func (r *SettingsRepository) GetOrCreateCookieSecret(ctx context.Context) (string, error) {
	existing, err := r.Get(ctx, cookieSecretKey)
	if err == nil && len(existing) >= cookieSecretBytes*2 {
		return existing, nil
	}
	if err != nil && !errors.Is(err, ErrSettingNotFound) {
		return "", err
	}

	buf := make([]byte, cookieSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate cookie secret: %w", err)
	}
	secret := hex.EncodeToString(buf)

	if err := r.Set(ctx, cookieSecretKey, secret); err != nil {
		return "", err
	}
	return secret, nil
}
