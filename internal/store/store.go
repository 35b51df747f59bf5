// Package store provides focused, single-concern data access stores
// for killthenoise.
//
// Each store owns one domain (integrations, issues, sync events, groups)
// and embeds shared helpers (Pool, crypto, logger) via the Base struct.
// Every query filters by tenant_id; stores never import each other.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/killthenoise/killthenoise/internal/crypto"
	"github.com/killthenoise/killthenoise/internal/dbpool"
)

const defaultQueryTimeout = 30 * time.Second

// Base contains shared dependencies for all stores.
// Embed this in each store struct.
type Base struct {
	Pool   *dbpool.Pool
	Log    *logrus.Logger
	Crypto *crypto.Service
}

// withTimeout creates a context with the default query timeout.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// beginTx starts a read-write transaction.
func (b *Base) beginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := b.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	return tx, nil
}

// encryptToken encrypts a credential for storage. Empty values pass through
// so absent refresh tokens stay absent.
func (b *Base) encryptToken(ctx context.Context, tenantID, token string) (string, error) {
	if token == "" {
		return "", nil
	}

	ciphertext, err := b.Crypto.Encrypt(ctx, tenantID, []byte(token))
	if err != nil {
		return "", fmt.Errorf("encrypting token: %w", err)
	}

	return ciphertext, nil
}

// decryptToken reverses encryptToken.
func (b *Base) decryptToken(ctx context.Context, tenantID, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	plaintext, err := b.Crypto.Decrypt(ctx, tenantID, ciphertext)
	if err != nil {
		return "", fmt.Errorf("decrypting token: %w", err)
	}

	return string(plaintext), nil
}
