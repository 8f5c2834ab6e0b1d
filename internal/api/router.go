package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/soaringjerry/Canvass/internal/events"
	"github.com/soaringjerry/Canvass/internal/middleware"
	"github.com/soaringjerry/Canvass/internal/services"
	"github.com/soaringjerry/Canvass/internal/telemetry"
)

// Options configures the HTTP surface. Zero values fall back to in-process defaults.
type Options struct {
	Store     Store
	Auth      *middleware.Auth
	Feed      events.Feed
	Publisher events.Publisher
	Logger    *zerolog.Logger

	ServiceName    string
	PublicBaseURL  string
	AllowedOrigins []string
	TokenTTL       time.Duration
	ActivityWindow time.Duration
	RateLimit      int
	RequestTimeout time.Duration
}

type Router struct {
	store    Store
	auth     *middleware.Auth
	feed     events.Feed
	validate *validator.Validate
	opts     Options

	accounts    *services.AuthService
	surveys     *services.SurveyService
	invitations *services.InvitationService
	responses   *services.ResponseService
	dashboard   *services.DashboardService
	analytics   *services.AnalyticsService
}

func NewRouter(opts Options) *Router {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Auth == nil {
		opts.Auth = middleware.NewAuth("dev-secret-change-me")
	}
	if opts.Feed == nil {
		opts.Feed = events.NewMemoryFeed()
	}
	if opts.Publisher == nil {
		opts.Publisher = opts.Feed
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "canvass"
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 300
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Router{
		store:       opts.Store,
		auth:        opts.Auth,
		feed:        opts.Feed,
		validate:    validator.New(),
		opts:        opts,
		accounts:    services.NewAuthService(opts.Store, opts.Auth.SignToken, opts.TokenTTL),
		surveys:     services.NewSurveyService(opts.Store, opts.Publisher),
		invitations: services.NewInvitationService(opts.Store, opts.Publisher, opts.PublicBaseURL),
		responses:   services.NewResponseService(opts.Store, opts.Publisher),
		dashboard:   services.NewDashboardService(opts.Store, opts.ActivityWindow),
		analytics:   services.NewAnalyticsService(opts.Store),
	}
}

// Mux builds the chi router. Callers may add further routes (health, static assets) to it.
func (rt *Router) Mux() *chi.Mux {
	logger := log.Logger
	if rt.opts.Logger != nil {
		logger = *rt.opts.Logger
	}
	allowed := rt.opts.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.AccessLog(logger))
	r.Use(chimw.Recoverer)
	r.Use(telemetry.Middleware(rt.opts.ServiceName))
	r.Use(middleware.SecureHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Accept-Language", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))
	r.Use(middleware.LocaleMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", rt.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(chimw.Timeout(rt.opts.RequestTimeout))
		r.Use(httprate.Limit(rt.opts.RateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, r, services.NewTooManyRequestsError("rate limit exceeded"))
			}),
		))
		r.Use(rt.auth.WithAuth)

		r.Post("/auth/register", rt.handleRegister)
		r.Post("/auth/login", rt.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)
			r.Get("/auth/me", rt.handleMe)

			r.Post("/surveys", rt.handleCreateSurvey)
			r.Post("/surveys/create", rt.handleCreateSurvey)
			r.Get("/surveys", rt.handleListSurveys)
			r.Get("/surveys/{surveyID}", rt.handleGetSurvey)
			r.Patch("/surveys/{surveyID}/status", rt.handleUpdateStatus)
			r.Post("/surveys/{surveyID}/invitations", rt.handleSendInvitations)
			r.Get("/surveys/{surveyID}/invitations", rt.handleListInvitations)
			r.Get("/surveys/{surveyID}/responses", rt.handleListResponses)
			r.Get("/surveys/{surveyID}/analytics", rt.handleSurveyAnalytics)
			r.Get("/surveys/{surveyID}/export", rt.handleExport)

			r.Get("/invitations/received", rt.handleReceivedInvitations)
			r.Get("/invitations/open/{token}", rt.handleOpenInvitation)

			r.Post("/responses", rt.handleSubmitResponse)
			r.Get("/responses/{responseID}", rt.handleGetResponse)

			r.Get("/dashboard/stats", rt.handleDashboardStats)
			r.Get("/dashboard/aggregation", rt.handleCrossSurvey)

			r.Get("/analytics/poll", rt.handlePoll)
			r.Get("/analytics/{surveyID}", rt.handleSurveyAnalytics)
			r.Get("/analytics/{surveyID}/time-series", rt.handleTimeseries)
		})
	})
	return r
}

func (rt *Router) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := rt.store.Ping(ctx); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("readiness check failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
