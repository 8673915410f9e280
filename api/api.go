package api

import (
	"context"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"github.com/irsalhamdi/e-learning/api/background"
	"github.com/irsalhamdi/e-learning/api/middleware"
	"github.com/irsalhamdi/e-learning/api/web"
	"github.com/irsalhamdi/e-learning/codeexec"
	"github.com/irsalhamdi/e-learning/core/auth"
	"github.com/irsalhamdi/e-learning/core/course"
	"github.com/irsalhamdi/e-learning/core/enrollment"
	"github.com/irsalhamdi/e-learning/core/payment"
	"github.com/irsalhamdi/e-learning/core/progress"
	"github.com/irsalhamdi/e-learning/core/token"
	"github.com/irsalhamdi/e-learning/core/user"
	"github.com/irsalhamdi/e-learning/database"
	"github.com/irsalhamdi/e-learning/kvstore"
	"github.com/irsalhamdi/e-learning/metrics"
	"github.com/irsalhamdi/e-learning/notify"
	"github.com/irsalhamdi/e-learning/rate"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type APIConfig struct {
	CorsOrigin string
	Log        logrus.FieldLogger
	DB         *sqlx.DB
	KV         *kvstore.Store
	Session    *scs.SessionManager
	Background *background.Background
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer

	Mailer        notify.Dispatcher
	MailTimeout   time.Duration
	ActivationURL string
	TokenTimeout  time.Duration

	Payment               payment.Config
	Gateway               payment.Gateway
	Paypal                *payment.Paypal
	StripeWebhookSecret   string
	RazorpayWebhookSecret string

	Runner codeexec.Runner

	Providers          map[string]auth.Provider
	LoginRedirectURL   string
	ActivationRequired bool

	LoginLimiter   *rate.Limiter
	PaymentLimiter *rate.Limiter
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

func APIMux(cfg APIConfig) http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    cfg.Log,
	}

	a.mw = append(a.mw, auth.LoadAndSave(cfg.Session))
	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, middleware.Logger(cfg.Log, cfg.Metrics))
	a.mw = append(a.mw, middleware.Errors(cfg.Log))
	a.mw = append(a.mw, middleware.Panics())

	if cfg.CorsOrigin != "" {
		a.mw = append(a.mw, middleware.Cors(cfg.CorsOrigin))

		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}

		a.Handle(http.MethodOptions, "/{path:.*}", h)
	}

	users := user.NewStore(cfg.DB)
	courses := course.NewStore(cfg.DB)
	enrollments := enrollment.NewStore(cfg.DB)

	manager := enrollment.NewManager(cfg.Log, enrollments, courses, users, cfg.Metrics)
	tracker := progress.NewTracker(cfg.Log, progress.NewStore(cfg.DB), enrollments, courses, cfg.Runner, cfg.Metrics)
	verifier := payment.NewVerifier(cfg.Log, cfg.Payment, cfg.Gateway, payment.Deps{
		Users:       users,
		Courses:     courses,
		Enrollments: manager,
		Claims:      cfg.KV,
		Mailer:      cfg.Mailer,
		Background:  cfg.Background,
		Metrics:     cfg.Metrics,
	})
	tokens := token.New(cfg.KV, cfg.TokenTimeout)

	authen := auth.Authenticate(cfg.Session)
	admin := auth.Admin(cfg.Session)
	var limitPayments web.Middleware
	if cfg.PaymentLimiter != nil {
		limitPayments = middleware.RateLimit(cfg.PaymentLimiter)
	}

	a.Handle(http.MethodGet, "/health", handleHealth(cfg.DB))

	a.Handle(http.MethodPost, "/auth/signup", auth.HandleSignup(users, cfg.Session, cfg.ActivationRequired))
	a.Handle(http.MethodPost, "/auth/login", auth.HandleLogin(users, cfg.Session, cfg.LoginLimiter))
	a.Handle(http.MethodPost, "/auth/logout", auth.HandleLogout(cfg.Session))
	a.Handle(http.MethodGet, "/auth/oauth-login/{provider}", auth.HandleOauthLogin(cfg.Session, cfg.Providers))
	a.Handle(http.MethodGet, "/auth/oauth-callback/{provider}", auth.HandleOauthCallback(users, cfg.Session, cfg.Providers, cfg.LoginRedirectURL))

	mail := token.MailConfig{Mailer: cfg.Mailer, ActivationURL: cfg.ActivationURL, Timeout: cfg.MailTimeout}
	a.Handle(http.MethodPost, "/tokens", token.HandleToken(cfg.Log, users, tokens, mail, cfg.Background))
	a.Handle(http.MethodPost, "/tokens/activate", token.HandleActivation(users, tokens, cfg.Session))

	a.Handle(http.MethodGet, "/users/current", user.HandleShowCurrent(users), authen)
	a.Handle(http.MethodPost, "/users", user.HandleCreate(users), admin)

	a.Handle(http.MethodGet, "/courses/{id}", course.HandleShow(courses))
	a.Handle(http.MethodGet, "/courses", course.HandleList(courses))
	a.Handle(http.MethodPost, "/courses", course.HandleCreate(courses), admin)
	a.Handle(http.MethodPost, "/courses/{course_id}/enroll", enrollment.HandleEnroll(manager), authen)

	a.Handle(http.MethodGet, "/enrollments/mine", enrollment.HandleListMine(manager), authen)
	a.Handle(http.MethodDelete, "/enrollments/{id}", enrollment.HandleUnenroll(manager), authen)
	a.Handle(http.MethodPost, "/enrollments/{id}/drop", enrollment.HandleDrop(manager), authen)
	a.Handle(http.MethodPatch, "/enrollments/{id}/progress", enrollment.HandleSetCurrentLesson(manager), authen)
	a.Handle(http.MethodPost, "/enrollments/{id}/suspend", enrollment.HandleSuspend(manager), admin)
	a.Handle(http.MethodPost, "/enrollments/{id}/restore", enrollment.HandleRestore(manager), admin)

	a.Handle(http.MethodPost, "/admin/reconcile/users/{id}", enrollment.HandleReconcileUser(manager), admin)
	a.Handle(http.MethodPost, "/admin/reconcile/courses/{id}", enrollment.HandleReconcileCourse(manager), admin)
	a.Handle(http.MethodPost, "/admin/reconcile", enrollment.HandleReconcileAll(manager), admin)

	a.Handle(http.MethodPost, "/progress/lessons/{lesson_id}", progress.HandleRecord(tracker), authen)
	a.Handle(http.MethodGet, "/progress/courses/{course_id}", progress.HandleCourseProgress(tracker), authen)
	a.Handle(http.MethodGet, "/progress/dashboard", progress.HandleDashboard(tracker), authen)

	a.Handle(http.MethodPost, "/payments/orders", payment.HandleCreateOrder(verifier), authen)
	a.Handle(http.MethodPost, "/payments/verify", payment.HandleVerify(verifier), limitPayments, authen)
	if cfg.Paypal != nil {
		a.Handle(http.MethodPost, "/payments/paypal/{id}/capture", payment.HandlePaypalCapture(verifier, cfg.Paypal), authen)
	}
	if cfg.StripeWebhookSecret != "" {
		a.Handle(http.MethodPost, "/payments/stripe/webhook", payment.HandleStripeWebhook(verifier, cfg.StripeWebhookSecret))
	}
	if cfg.RazorpayWebhookSecret != "" {
		a.Handle(http.MethodPost, "/payments/razorpay/webhook", payment.HandleRazorpayWebhook(verifier, cfg.RazorpayWebhookSecret))
	}

	if cfg.Gatherer != nil {
		a.Router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return a.Router
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}

func handleHealth(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		ctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()

		if err := database.StatusCheck(ctx, db); err != nil {
			return web.Respond(ctx, w, web.Envelope{"success": false, "message": "database unavailable"}, http.StatusServiceUnavailable)
		}
		return web.Respond(ctx, w, web.OK("ok"), http.StatusOK)
	}
}
