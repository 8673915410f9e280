package token

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/irsalhamdi/e-learning/api/background"
	"github.com/irsalhamdi/e-learning/api/web"
	"github.com/irsalhamdi/e-learning/api/weberr"
	"github.com/irsalhamdi/e-learning/apperr"
	"github.com/irsalhamdi/e-learning/core/auth"
	"github.com/irsalhamdi/e-learning/core/user"
	"github.com/irsalhamdi/e-learning/notify"
	"github.com/irsalhamdi/e-learning/validate"
	"github.com/sirupsen/logrus"
)

type Users interface {
	Fetch(ctx context.Context, id string) (user.User, error)
	FetchByEmail(ctx context.Context, email string) (user.User, error)
	Activate(ctx context.Context, id string) error
}

type MailConfig struct {
	Mailer        notify.Dispatcher
	ActivationURL string
	Timeout       time.Duration
}

// HandleToken mails an activation token to an inactive account. The reply
// is the same whether or not the email is known.
func HandleToken(log logrus.FieldLogger, users Users, tokens *Tokens, mail MailConfig, bg *background.Background) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var in struct {
			Email string `json:"email" validate:"required,email"`
		}
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.Classify(err)
		}

		reply := web.OK("if the account exists and is not active, an activation email was sent")

		u, err := users.FetchByEmail(ctx, strings.ToLower(in.Email))
		switch {
		case apperr.Is(err, apperr.KindNotFound):
			return web.Respond(ctx, w, reply, http.StatusAccepted)
		case err != nil:
			return fmt.Errorf("fetching user by email: %w", err)
		case u.Active:
			return web.Respond(ctx, w, reply, http.StatusAccepted)
		}

		tok, err := tokens.Issue(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("issuing activation token for user[%s]: %w", u.ID, err)
		}

		bg.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), mail.Timeout)
			defer cancel()

			msg := notify.Message{
				To:      u.Email,
				Name:    u.Name,
				Subject: "Activate your account",
				Body:    fmt.Sprintf("Hi %s,\n\nActivate your account: %s?token=%s\n", u.Name, mail.ActivationURL, tok),
			}
			if err := mail.Mailer.Send(ctx, msg); err != nil {
				log.WithError(err).WithField("user_id", u.ID).Error("sending activation mail")
			}
		})

		return web.Respond(ctx, w, reply, http.StatusAccepted)
	}
}

// HandleActivation redeems a token, activates its account and logs it in.
func HandleActivation(users Users, tokens *Tokens, session *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var in struct {
			Token string `json:"token" validate:"required"`
		}
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.Classify(err)
		}

		userID, err := tokens.Redeem(ctx, in.Token)
		if err != nil {
			return weberr.Classify(fmt.Errorf("redeeming activation token: %w", err))
		}

		if err := users.Activate(ctx, userID); err != nil {
			return weberr.Classify(fmt.Errorf("activating user[%s]: %w", userID, err))
		}

		u, err := users.Fetch(ctx, userID)
		if err != nil {
			return weberr.Classify(fmt.Errorf("fetching user[%s]: %w", userID, err))
		}

		if err := auth.Login(ctx, session, u); err != nil {
			return err
		}

		return web.Respond(ctx, w, web.OK("account activated", "user", u), http.StatusOK)
	}
}
