package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// RevokeToken adds a token's JTI to the revocation list, recording when the
// token would have expired on its own.
func RevokeToken(ctx context.Context, db *sql.DB, jti string, expiresAt time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO revoked_tokens (jti, expires_at) VALUES (?, ?)`,
		jti, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}

	purgeExpiredRevocations(ctx, db)
	return nil
}

// IsTokenRevoked reports whether a JTI is on the revocation list. Entries
// past their expiry do not count; the token itself is already invalid by
// then.
func IsTokenRevoked(ctx context.Context, db *sql.DB, jti string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM revoked_tokens WHERE jti = ? AND expires_at > ?`,
		jti, time.Now(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking token revocation: %w", err)
	}
	return count > 0, nil
}

// purgeExpiredRevocations drops list entries whose tokens have expired
// anyway. Best effort, runs on each revocation.
func purgeExpiredRevocations(ctx context.Context, db *sql.DB) {
	_, err := db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at < ?`, time.Now(),
	)
	if err != nil {
		slog.Warn("purging expired revocations failed", "error", err)
	}
}
