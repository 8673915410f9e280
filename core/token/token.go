// Package token issues single use activation tokens. Pending tokens live in
// the key/value store and expire on their own.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irsalhamdi/e-learning/apperr"
	"github.com/irsalhamdi/e-learning/kvstore"
	"github.com/irsalhamdi/e-learning/random"
)

const (
	activationPrefix = "activation:"
	tokenLength      = 32
)

// KV is the part of the key/value store tokens need.
type KV interface {
	Put(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Take(ctx context.Context, key string) ([]byte, error)
}

type Tokens struct {
	kv  KV
	ttl time.Duration
}

func New(kv KV, ttl time.Duration) *Tokens {
	return &Tokens{kv: kv, ttl: ttl}
}

// Issue stores a new activation token for userID.
func (t *Tokens) Issue(ctx context.Context, userID string) (string, error) {
	tok, err := random.String(tokenLength)
	if err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}

	if err := t.kv.Put(ctx, activationPrefix+tok, []byte(userID), t.ttl); err != nil {
		return "", fmt.Errorf("storing token: %w", err)
	}
	return tok, nil
}

// Redeem consumes tok and returns the user it was issued for. A token can
// be redeemed once.
func (t *Tokens) Redeem(ctx context.Context, tok string) (string, error) {
	b, err := t.kv.Take(ctx, activationPrefix+tok)
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", apperr.Validation("token is invalid or expired")
	}
	if err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}
	return string(b), nil
}
