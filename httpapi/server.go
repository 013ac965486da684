// Package httpapi exposes the [tokenauth.Engine] flows over HTTP with JSON
// bodies. It owns the single place where engine errors become responses.
package httpapi

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/middleware"
)

const maxBodyBytes = 1 << 20

// Options configures the HTTP boundary.
type Options struct {
	Logger *slog.Logger
	// Production hides diagnostic traces from error bodies.
	Production bool
	// TrustProxy takes the client IP from X-Forwarded-For. Enable only behind
	// a proxy that overwrites the header.
	TrustProxy bool
	// Gatherer backs GET /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
	// Checks run in GET /healthz in addition to the engine ping.
	Checks map[string]HealthCheck
}

// Server routes requests to the engine.
type Server struct {
	engine  *tokenauth.Engine
	opts    Options
	logger  *slog.Logger
	handler http.Handler
}

// New builds the HTTP handler tree.
func New(engine *tokenauth.Engine, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{engine: engine, opts: opts, logger: logger}

	guard := middleware.Guard(engine, s.writeError)
	admin := middleware.RequireRole(s.writeError, tokenauth.RoleAdmin)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /refresh", s.handleRefresh)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /verify-email", s.handleVerifyEmail)
	mux.HandleFunc("POST /forgot-password", s.handleForgotPassword)
	mux.HandleFunc("POST /reset-password", s.handleResetPassword)
	mux.HandleFunc("POST /resend-verification", s.handleResendVerification)

	mux.Handle("GET /profile", guard(http.HandlerFunc(s.handleProfile)))
	mux.Handle("PATCH /profile", guard(http.HandlerFunc(s.handleUpdateProfile)))
	mux.Handle("POST /profile", guard(http.HandlerFunc(s.handleUpdateProfile)))
	mux.Handle("POST /change-password", guard(http.HandlerFunc(s.handleChangePassword)))
	mux.Handle("GET /users", guard(admin(http.HandlerFunc(s.handleListUsers))))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	s.handler = otelhttp.NewHandler(s.withClientIP(mux), "tokenauthd",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
