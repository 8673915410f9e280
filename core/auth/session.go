// Package auth keeps the login session and guards routes with it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/e-learning/api/web"
	"github.com/irsalhamdi/e-learning/api/weberr"
	"github.com/irsalhamdi/e-learning/core/claims"
	"github.com/irsalhamdi/e-learning/core/user"
)

const (
	userIDKey = "userID"
	roleKey   = "role"
	stateKey  = "oauthState"
	nonceKey  = "oauthNonce"
)

// NewSessionManager builds the session manager backed by store.
func NewSessionManager(store scs.Store, lifetime time.Duration) *scs.SessionManager {
	s := scs.New()
	s.Store = store
	s.Lifetime = lifetime
	s.Cookie.Name = "elearning_session"
	s.Cookie.HttpOnly = true
	s.Cookie.SameSite = http.SameSiteLaxMode
	return s
}

// LoadAndSave loads the session of the request and saves it before the
// first byte of the response is written.
func LoadAndSave(session *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			var token string
			if c, err := r.Cookie(session.Cookie.Name); err == nil {
				token = c.Value
			}

			ctx, err := session.Load(ctx, token)
			if err != nil {
				return fmt.Errorf("loading session: %w", err)
			}
			r = r.WithContext(ctx)

			sw := &sessionWriter{ResponseWriter: w}
			sw.commit = func() {
				sw.err = save(ctx, session, w)
			}

			err = handler(ctx, sw, r)
			sw.once.Do(sw.commit)

			if err != nil {
				return err
			}
			return sw.err
		}
		return h
	}
	return m
}

func save(ctx context.Context, session *scs.SessionManager, w http.ResponseWriter) error {
	switch session.Status(ctx) {
	case scs.Modified:
		token, expiry, err := session.Commit(ctx)
		if err != nil {
			return fmt.Errorf("committing session: %w", err)
		}
		session.WriteSessionCookie(ctx, w, token, expiry)
	case scs.Destroyed:
		session.WriteSessionCookie(ctx, w, "", time.Time{})
	}
	return nil
}

type sessionWriter struct {
	http.ResponseWriter
	once   sync.Once
	commit func()
	err    error
}

func (sw *sessionWriter) WriteHeader(code int) {
	sw.once.Do(sw.commit)
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *sessionWriter) Write(b []byte) (int, error) {
	sw.once.Do(sw.commit)
	return sw.ResponseWriter.Write(b)
}

// Authenticate lets through requests that carry a logged in session and
// puts the user claims in the context.
func Authenticate(session *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			clm, ok := sessionClaims(ctx, session)
			if !ok {
				return weberr.NotAuthorized(errors.New("user not authenticated"))
			}

			return handler(claims.Set(ctx, clm), w, r)
		}
		return h
	}
	return m
}

// Admin is Authenticate restricted to administrators.
func Admin(session *scs.SessionManager) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			clm, ok := sessionClaims(ctx, session)
			if !ok {
				return weberr.NotAuthorized(errors.New("user not authenticated"))
			}
			if clm.Role != claims.RoleAdmin {
				return weberr.Forbidden(fmt.Errorf("user[%s] is not an admin", clm.UserID))
			}

			return handler(claims.Set(ctx, clm), w, r)
		}
		return h
	}
	return m
}

func sessionClaims(ctx context.Context, session *scs.SessionManager) (claims.Claims, bool) {
	id := session.GetString(ctx, userIDKey)
	if id == "" {
		return claims.Claims{}, false
	}
	return claims.Claims{UserID: id, Role: session.GetString(ctx, roleKey)}, true
}

// Login binds u to the session under a fresh token.
func Login(ctx context.Context, session *scs.SessionManager, u user.User) error {
	if err := session.RenewToken(ctx); err != nil {
		return fmt.Errorf("renewing session token: %w", err)
	}

	session.Put(ctx, userIDKey, u.ID)
	session.Put(ctx, roleKey, u.Role)
	return nil
}
