package kvstore

import (
	"context"
	"errors"
	"time"
)

const sessionPrefix = "session:"

// SessionStore adapts Store to the scs session store interfaces.
type SessionStore struct {
	s *Store
}

func (s *Store) Sessions() *SessionStore {
	return &SessionStore{s: s}
}

func (ss *SessionStore) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	b, err := ss.s.Get(ctx, sessionPrefix+token)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (ss *SessionStore) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	ttl := time.Until(expiry)
	if ttl <= 0 {
		return ss.DeleteCtx(ctx, token)
	}
	return ss.s.Put(ctx, sessionPrefix+token, b, ttl)
}

func (ss *SessionStore) DeleteCtx(ctx context.Context, token string) error {
	return ss.s.Delete(ctx, sessionPrefix+token)
}

func (ss *SessionStore) Find(token string) ([]byte, bool, error) {
	return ss.FindCtx(context.Background(), token)
}

func (ss *SessionStore) Commit(token string, b []byte, expiry time.Time) error {
	return ss.CommitCtx(context.Background(), token, b, expiry)
}

func (ss *SessionStore) Delete(token string) error {
	return ss.DeleteCtx(context.Background(), token)
}
