// Package httpserver exposes the session and admin account API over HTTP.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/console-auth/internal/audit"
	"github.com/and161185/console-auth/internal/limiter"
	"github.com/and161185/console-auth/internal/metrics"
	"github.com/and161185/console-auth/internal/model"
	"github.com/and161185/console-auth/internal/telemetry"
)

// DefaultRequestTimeout bounds a request end to end.
const DefaultRequestTimeout = 30 * time.Second

// Sessions is the authentication surface used by the handlers.
type Sessions interface {
	TokenVerifier
	Login(ctx context.Context, username, password string) (model.Tokens, *model.User, error)
	Refresh(ctx context.Context, refreshToken string) (model.Tokens, *model.User, error)
	Logout(ctx context.Context, actor uuid.UUID, refreshToken string) error
}

// Accounts is the admin user-management surface used by the handlers.
type Accounts interface {
	Create(ctx context.Context, actor model.Principal, in model.NewUser) (*model.User, error)
	Get(ctx context.Context, actor model.Principal, id uuid.UUID) (*model.User, error)
	List(ctx context.Context, actor model.Principal) ([]model.User, error)
	Update(ctx context.Context, actor model.Principal, id uuid.UUID, upd model.UserUpdate) (*model.User, error)
	Delete(ctx context.Context, actor model.Principal, id uuid.UUID) error
	RevokeSessions(ctx context.Context, actor model.Principal, id uuid.UUID) (int64, error)
}

// Options wires the server's collaborators.
type Options struct {
	Sessions Sessions
	Accounts Accounts
	Limiter  *limiter.Limiter
	Metrics  *metrics.Metrics
	Log      *zap.Logger
	Cookies  CookieConfig
	// Audit receives admin route refusals; nil records nothing.
	Audit    audit.Recorder

	// AllowedOrigins lists admin console origins; credentials are allowed.
	AllowedOrigins []string
	// Ready reports whether dependencies are reachable; nil means always ready.
	Ready          func(context.Context) error
	RequestTimeout time.Duration
}

// Server wires services into HTTP handlers.
type Server struct {
	sessions Sessions
	accounts Accounts
	limiter  *limiter.Limiter
	metrics  *metrics.Metrics
	guard    *Guard
	log      *zap.Logger
	cookies  CookieConfig
	origins  []string
	ready    func(context.Context) error
	timeout  time.Duration
}

// New constructs a Server with injected services.
func New(o Options) (*Server, error) {
	if o.Sessions == nil || o.Accounts == nil {
		return nil, errors.New("httpserver: sessions and accounts are required")
	}
	if o.Limiter == nil {
		return nil, errors.New("httpserver: limiter is required")
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New()
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.Ready == nil {
		o.Ready = func(context.Context) error { return nil }
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	return &Server{
		sessions: o.Sessions,
		accounts: o.Accounts,
		limiter:  o.Limiter,
		metrics:  o.Metrics,
		guard:    NewGuard(o.Sessions, o.Audit, o.Log),
		log:      o.Log,
		cookies:  o.Cookies,
		origins:  o.AllowedOrigins,
		ready:    o.Ready,
		timeout:  o.RequestTimeout,
	}, nil
}

// Guard returns the server's authorization guard.
func (s *Server) Guard() *Guard { return s.guard }

// Routes constructs the chi router containing all endpoints.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(telemetry.Middleware())
	r.Use(s.requestObserver)
	r.Use(s.recoverer)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
			AllowCredentials: true,
			MaxAge:           int((10 * time.Minute).Seconds()),
		}))
	}
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.With(s.RateLimit(limiter.CategoryLogin)).Post("/login", s.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(s.RateLimit(limiter.CategoryAPI))
			r.Get("/verify", s.handleVerify)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/logout", s.handleLogout)
		})
	})

	r.Route("/admin/users", func(r chi.Router) {
		r.Use(s.RateLimit(limiter.CategoryAdmin))
		r.Use(s.guard.Authenticate)
		r.Use(s.guard.RequireAdmin)
		r.Get("/", s.handleListUsers)
		r.Post("/", s.handleCreateUser)
		r.Get("/{id}", s.handleGetUser)
		r.Put("/{id}", s.handleUpdateUser)
		r.Delete("/{id}", s.handleDeleteUser)
		r.Post("/{id}/revoke-sessions", s.handleRevokeSessions)
	})

	return r
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.ready(r.Context()); err != nil {
		s.log.Warn("not ready", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
