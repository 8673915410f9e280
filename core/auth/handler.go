package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/e-learning/api/web"
	"github.com/irsalhamdi/e-learning/api/weberr"
	"github.com/irsalhamdi/e-learning/apperr"
	"github.com/irsalhamdi/e-learning/core/claims"
	"github.com/irsalhamdi/e-learning/core/user"
	"github.com/irsalhamdi/e-learning/rate"
	"github.com/irsalhamdi/e-learning/validate"
	"golang.org/x/crypto/bcrypt"
)

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// HandleSignup registers a USER account. Without required activation the
// new account is logged in right away.
func HandleSignup(users *user.Store, session *scs.SessionManager, activationRequired bool) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var in user.UserSignup
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.Classify(err)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("generating password hash: %w", err)
		}

		now := time.Now().UTC()
		u := user.User{
			ID:           validate.GenerateID(),
			Name:         in.Name,
			Email:        strings.ToLower(in.Email),
			Role:         claims.RoleUser,
			PasswordHash: string(hash),
			Active:       !activationRequired,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := users.Create(ctx, u); err != nil {
			return weberr.Classify(fmt.Errorf("creating user: %w", err))
		}

		if u.Active {
			if err := Login(ctx, session, u); err != nil {
				return err
			}
		}

		return web.Respond(ctx, w, web.OK("user created", "user", u), http.StatusCreated)
	}
}

// HandleLogin checks the credentials. Attempts are limited per email.
func HandleLogin(users *user.Store, session *scs.SessionManager, lm *rate.Limiter) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var in credentials
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.Classify(err)
		}

		email := strings.ToLower(in.Email)
		if !lm.Check(email) {
			err := errors.New("too many login attempts")
			return weberr.NewError(err, err.Error(), http.StatusTooManyRequests)
		}

		u, err := users.FetchByEmail(ctx, email)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				return weberr.NotAuthorized(fmt.Errorf("login of unknown email %q", email))
			}
			return fmt.Errorf("fetching user by email: %w", err)
		}

		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
			return weberr.NotAuthorized(fmt.Errorf("wrong password for user[%s]", u.ID))
		}

		if !u.Active {
			return weberr.NewError(
				fmt.Errorf("user[%s] is not active", u.ID),
				"account not activated",
				http.StatusForbidden,
			)
		}

		if err := Login(ctx, session, u); err != nil {
			return err
		}

		return web.Respond(ctx, w, web.OK("logged in", "user", u), http.StatusOK)
	}
}

func HandleLogout(session *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if err := session.Destroy(ctx); err != nil {
			return fmt.Errorf("destroying session: %w", err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
