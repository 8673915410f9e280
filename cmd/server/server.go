package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardanlabs/conf/v3"
	"github.com/irsalhamdi/e-learning/api"
	"github.com/irsalhamdi/e-learning/api/background"
	"github.com/irsalhamdi/e-learning/codeexec"
	"github.com/irsalhamdi/e-learning/config"
	"github.com/irsalhamdi/e-learning/core/auth"
	"github.com/irsalhamdi/e-learning/core/course"
	"github.com/irsalhamdi/e-learning/core/enrollment"
	"github.com/irsalhamdi/e-learning/core/payment"
	"github.com/irsalhamdi/e-learning/core/user"
	"github.com/irsalhamdi/e-learning/database"
	"github.com/irsalhamdi/e-learning/kvstore"
	"github.com/irsalhamdi/e-learning/metrics"
	"github.com/irsalhamdi/e-learning/notify"
	"github.com/irsalhamdi/e-learning/rate"
	"github.com/irsalhamdi/e-learning/reconcile"
	"github.com/joho/godotenv"
	"github.com/plutov/paypal/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	stripecl "github.com/stripe/stripe-go/v74/client"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if err := Run(log); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func Run(logger *logrus.Logger) error {
	logger.Infof("starting server")
	defer logger.Info("shutdown complete")

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	const prefix = "ELEARN"
	var cfg config.Config
	if _, err := conf.Parse(prefix, &cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	lw := logger.Writer()
	defer lw.Close()
	errLog := log.New(lw, "", 0)

	db, err := database.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open db connection: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate the database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.DialTimeout)
	defer cancel()
	kv, err := kvstore.Open(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to the key value store: %w", err)
	}
	defer kv.Close()

	sessionManager := auth.NewSessionManager(kv.Sessions(), cfg.Auth.SessionLifetime)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	var mailer notify.Dispatcher = notify.NewLog(logger)
	if cfg.Email.SendgridKey != "" {
		mailer = notify.NewSendGrid(notify.SendGridConfig{
			APIKey:      cfg.Email.SendgridKey,
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
		}, logger)
	} else {
		logger.Warn("no sendgrid key configured, emails are only logged")
	}

	bg := background.New(logger)

	var pp *payment.Paypal
	if cfg.Paypal.ClientID != "" {
		client, err := paypal.NewClient(cfg.Paypal.ClientID, cfg.Paypal.Secret, cfg.Paypal.URL)
		if err != nil {
			return fmt.Errorf("failed to build the paypal client: %w", err)
		}

		if _, err = client.GetAccessToken(context.TODO()); err != nil {
			return fmt.Errorf("failed to get the first paypal access token: %w", err)
		}
		pp = payment.NewPaypal(client)
	}

	var gateway payment.Gateway
	switch cfg.Payment.Provider {
	case payment.ProviderRazorpay:
		gateway = payment.NewRazorpay(payment.RazorpayConfig{
			KeyID:     cfg.Razorpay.KeyID,
			KeySecret: cfg.Razorpay.KeySecret,
			URL:       cfg.Razorpay.URL,
			Timeout:   cfg.Payment.Timeout,
		})
	case payment.ProviderStripe:
		strp := &stripecl.API{}
		strp.Init(cfg.Stripe.APISecret, nil)
		gateway = payment.NewStripe(strp)
	case payment.ProviderPaypal:
		if pp == nil {
			return errors.New("paypal selected as payment provider without credentials")
		}
		gateway = pp
	default:
		return fmt.Errorf("unknown payment provider %q", cfg.Payment.Provider)
	}

	secret := cfg.Payment.SignatureSecret
	if secret == "" {
		secret = cfg.Razorpay.KeySecret
	}

	runner := codeexec.New(codeexec.Config{
		URL:         cfg.CodeExec.URL,
		Timeout:     cfg.CodeExec.Timeout,
		Parallelism: cfg.CodeExec.Parallelism,
	})

	loginLimiter := rate.NewLimiter(cfg.Rate.Burst, cfg.Rate.Expiry, rate.Every(cfg.Rate.Interval))
	defer loginLimiter.Close()
	paymentLimiter := rate.NewLimiter(cfg.Rate.Burst, cfg.Rate.Expiry, rate.Every(cfg.Rate.Interval))
	defer paymentLimiter.Close()

	ctx, cancel = context.WithTimeout(context.Background(), cfg.Oauth.DiscoveryTimeout)
	defer cancel()
	google := cfg.Oauth.Google
	oauthProvs, err := auth.MakeProviders(ctx, []auth.ProviderConfig{
		{Name: "google", Client: google.Client, Secret: google.Secret, URL: google.URL, RedirectURL: google.RedirectURL},
	})
	if err != nil {
		return fmt.Errorf("failed to discover oauth providers: %w", err)
	}

	var sched *reconcile.Scheduler
	if cfg.Reconcile.Enabled {
		manager := enrollment.NewManager(logger, enrollment.NewStore(db), course.NewStore(db), user.NewStore(db), m)
		sched, err = reconcile.New(logger.WithField("component", "reconcile"), cfg.Reconcile.Schedule, cfg.Reconcile.Timeout, manager)
		if err != nil {
			return err
		}
		sched.Start()
	}

	mux := api.APIMux(api.APIConfig{
		CorsOrigin: cfg.Cors.Origin,
		Log:        logger,
		DB:         db,
		KV:         kv,
		Session:    sessionManager,
		Background: bg,
		Metrics:    m,
		Gatherer:   reg,

		Mailer:        mailer,
		MailTimeout:   cfg.Email.Timeout,
		ActivationURL: cfg.Email.ActivationURL,
		TokenTimeout:  cfg.Auth.TokenTimeout,

		Payment: payment.Config{
			Secret:       secret,
			Currency:     cfg.Payment.Currency,
			Timeout:      cfg.Payment.Timeout,
			NotifiedTTL:  cfg.Payment.NotifiedTTL,
			DashboardURL: cfg.Email.DashboardURL,
		},
		Gateway:               gateway,
		Paypal:                pp,
		StripeWebhookSecret:   cfg.Stripe.WebhookSecret,
		RazorpayWebhookSecret: cfg.Razorpay.WebhookSecret,

		Runner: runner,

		Providers:          oauthProvs,
		LoginRedirectURL:   cfg.Oauth.LoginRedirectURL,
		ActivationRequired: cfg.Auth.ActivationRequired,

		LoginLimiter:   loginLimiter,
		PaymentLimiter: paymentLimiter,
	})

	api := http.Server{
		Handler:      mux,
		Addr:         cfg.Web.Address,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     errLog,
	}

	serverErrors := make(chan error, 1)

	go func() {
		logger.Infof("starting api router at %s", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Infof("shutting down: signal %s", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}

		if sched != nil {
			if err := sched.Stop(ctx); err != nil {
				logger.WithError(err).Warn("reconciliation still running at shutdown")
			}
		}

		if err := bg.Shutdown(ctx); err != nil {
			return fmt.Errorf("could not complete all background tasks: %w", err)
		}
	}
	return nil
}
