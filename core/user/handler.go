package user

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/irsalhamdi/e-learning/api/web"
	"github.com/irsalhamdi/e-learning/api/weberr"
	"github.com/irsalhamdi/e-learning/core/claims"
	"github.com/irsalhamdi/e-learning/validate"
	"golang.org/x/crypto/bcrypt"
)

func HandleShowCurrent(users *Store) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.Classify(err)
		}

		u, err := users.Fetch(ctx, clm.UserID)
		if err != nil {
			return weberr.Classify(fmt.Errorf("fetching current user: %w", err))
		}

		return web.Respond(ctx, w, web.OK("current user", "user", u), http.StatusOK)
	}
}

// HandleCreate lets an admin create an already active account of any role.
func HandleCreate(users *Store) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var in UserNew
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
		u := User{
			ID:           validate.GenerateID(),
			Name:         in.Name,
			Email:        in.Email,
			Role:         in.Role,
			PasswordHash: string(hash),
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := users.Create(ctx, u); err != nil {
			return weberr.Classify(fmt.Errorf("creating user: %w", err))
		}

		return web.Respond(ctx, w, web.OK("user created", "user", u), http.StatusCreated)
	}
}
