// Package config holds the settings parsed by ardanlabs/conf for the server.
package config

import (
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/irsalhamdi/e-learning/database"
	"github.com/irsalhamdi/e-learning/kvstore"
)

type Config struct {
	conf.Version
	Web       Web
	Cors      Cors
	DB        database.Config
	Redis     kvstore.Config
	Auth      Auth
	Oauth     Oauth
	Payment   Payment
	Razorpay  Razorpay
	Stripe    Stripe
	Paypal    Paypal
	Email     Email
	CodeExec  CodeExec
	Reconcile Reconcile
	Rate      Rate
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:8000"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:10s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
}

type Cors struct {
	Origin string `conf:"default:http://localhost:3000"`
}

type Auth struct {
	ActivationRequired bool          `conf:"default:false"`
	SessionLifetime    time.Duration `conf:"default:24h"`
	TokenTimeout       time.Duration `conf:"default:10m"`
}

type Oauth struct {
	DiscoveryTimeout time.Duration `conf:"default:10s"`
	LoginRedirectURL string        `conf:"default:http://localhost:3000/dashboard"`
	Google           Provider
}

type Provider struct {
	Client      string
	Secret      string `conf:"mask"`
	URL         string `conf:"default:https://accounts.google.com"`
	RedirectURL string `conf:"default:http://localhost:8000/auth/oauth-callback/google"`
}

// Payment selects the gateway used for order creation and bounds every
// outbound gateway call.
type Payment struct {
	Provider        string        `conf:"default:razorpay"`
	Currency        string        `conf:"default:INR"`
	Timeout         time.Duration `conf:"default:10s"`
	NotifiedTTL     time.Duration `conf:"default:24h"`
	SignatureSecret string        `conf:"mask"`
}

type Razorpay struct {
	KeyID         string
	KeySecret     string `conf:"mask"`
	WebhookSecret string `conf:"mask"`
	URL           string `conf:"default:https://api.razorpay.com/v1"`
}

type Stripe struct {
	APISecret     string `conf:"mask"`
	WebhookSecret string `conf:"mask"`
}

type Paypal struct {
	ClientID string
	Secret   string `conf:"mask"`
	URL      string `conf:"default:https://api-m.sandbox.paypal.com"`
}

type Email struct {
	SendgridKey   string `conf:"mask"`
	FromAddress   string `conf:"default:no-reply@elearning.local"`
	FromName      string `conf:"default:e-learning"`
	ActivationURL string        `conf:"default:http://localhost:3000/activate"`
	DashboardURL  string        `conf:"default:http://localhost:3000/dashboard"`
	Timeout       time.Duration `conf:"default:15s"`
}

type CodeExec struct {
	URL         string        `conf:"default:http://localhost:2000"`
	Timeout     time.Duration `conf:"default:15s"`
	Parallelism int           `conf:"default:4"`
}

type Reconcile struct {
	Schedule string        `conf:"default:@every 1h"`
	Enabled  bool          `conf:"default:true"`
	Timeout  time.Duration `conf:"default:10m"`
}

type Rate struct {
	Burst    int           `conf:"default:5"`
	Interval time.Duration `conf:"default:2s"`
	Expiry   time.Duration `conf:"default:10m"`
}
