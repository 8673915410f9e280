package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/irsalhamdi/e-learning/api/web"
	"github.com/irsalhamdi/e-learning/api/weberr"
	"github.com/irsalhamdi/e-learning/apperr"
	"github.com/irsalhamdi/e-learning/core/claims"
	"github.com/irsalhamdi/e-learning/core/user"
	"github.com/irsalhamdi/e-learning/random"
	"github.com/irsalhamdi/e-learning/validate"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

type ProviderConfig struct {
	Name        string
	Client      string
	Secret      string
	URL         string
	RedirectURL string
}

// Provider is an OpenID Connect identity provider.
type Provider struct {
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// MakeProviders discovers every configured provider. Providers without a
// client id are skipped.
func MakeProviders(ctx context.Context, cfgs []ProviderConfig) (map[string]Provider, error) {
	provs := make(map[string]Provider, len(cfgs))

	for _, c := range cfgs {
		if c.Client == "" {
			continue
		}

		p, err := oidc.NewProvider(ctx, c.URL)
		if err != nil {
			return nil, fmt.Errorf("discovering provider %s: %w", c.Name, err)
		}

		provs[c.Name] = Provider{
			oauth: oauth2.Config{
				ClientID:     c.Client,
				ClientSecret: c.Secret,
				Endpoint:     p.Endpoint(),
				RedirectURL:  c.RedirectURL,
				Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
			},
			verifier: p.Verifier(&oidc.Config{ClientID: c.Client}),
		}
	}

	return provs, nil
}

func HandleOauthLogin(session *scs.SessionManager, provs map[string]Provider) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		name := web.Param(r, "provider")
		prov, ok := provs[name]
		if !ok {
			return weberr.NotFound(fmt.Errorf("oauth provider %q not configured", name))
		}

		state, err := random.String(32)
		if err != nil {
			return fmt.Errorf("generating state: %w", err)
		}
		nonce, err := random.String(32)
		if err != nil {
			return fmt.Errorf("generating nonce: %w", err)
		}

		session.Put(ctx, stateKey, state)
		session.Put(ctx, nonceKey, nonce)

		http.Redirect(w, r, prov.oauth.AuthCodeURL(state, oidc.Nonce(nonce)), http.StatusFound)
		return nil
	}
}

type idClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// HandleOauthCallback logs in the owner of a verified provider email,
// creating the account on first login.
func HandleOauthCallback(users *user.Store, session *scs.SessionManager, provs map[string]Provider, redirectURL string) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		name := web.Param(r, "provider")
		prov, ok := provs[name]
		if !ok {
			return weberr.NotFound(fmt.Errorf("oauth provider %q not configured", name))
		}

		state := session.PopString(ctx, stateKey)
		nonce := session.PopString(ctx, nonceKey)
		if state == "" || r.URL.Query().Get("state") != state {
			return weberr.NotAuthorized(errors.New("oauth state mismatch"))
		}

		tok, err := prov.oauth.Exchange(ctx, r.URL.Query().Get("code"))
		if err != nil {
			return weberr.NotAuthorized(fmt.Errorf("exchanging oauth code: %w", err))
		}

		raw, ok := tok.Extra("id_token").(string)
		if !ok {
			return weberr.NotAuthorized(errors.New("no id_token in token response"))
		}

		idt, err := prov.verifier.Verify(ctx, raw)
		if err != nil {
			return weberr.NotAuthorized(fmt.Errorf("verifying id token: %w", err))
		}
		if idt.Nonce != nonce {
			return weberr.NotAuthorized(errors.New("id token nonce mismatch"))
		}

		var ic idClaims
		if err := idt.Claims(&ic); err != nil {
			return fmt.Errorf("reading id token claims: %w", err)
		}
		if ic.Email == "" || !ic.EmailVerified {
			return weberr.NotAuthorized(fmt.Errorf("provider %s did not verify the email", name))
		}

		u, err := findOrCreate(ctx, users, ic)
		if err != nil {
			return err
		}

		if err := Login(ctx, session, u); err != nil {
			return err
		}

		http.Redirect(w, r, redirectURL, http.StatusFound)
		return nil
	}
}

func findOrCreate(ctx context.Context, users *user.Store, ic idClaims) (user.User, error) {
	email := strings.ToLower(ic.Email)

	u, err := users.FetchByEmail(ctx, email)
	if err == nil {
		if !u.Active {
			if err := users.Activate(ctx, u.ID); err != nil {
				return user.User{}, fmt.Errorf("activating user: %w", err)
			}
			u.Active = true
		}
		return u, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return user.User{}, fmt.Errorf("fetching user by email: %w", err)
	}

	// Provider accounts never log in with a password.
	pass, err := random.String(32)
	if err != nil {
		return user.User{}, fmt.Errorf("generating password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		return user.User{}, fmt.Errorf("generating password hash: %w", err)
	}

	now := time.Now().UTC()
	u = user.User{
		ID:           validate.GenerateID(),
		Name:         ic.Name,
		Email:        email,
		Role:         claims.RoleUser,
		PasswordHash: string(hash),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if u.Name == "" {
		u.Name = email
	}

	if err := users.Create(ctx, u); err != nil {
		return user.User{}, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}
