package web

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	emailAdapter "drinkmailer/internal/adapters/email"
	"drinkmailer/internal/adapters/http/middleware"
	"drinkmailer/internal/adapters/http/perf"
	auditStore "drinkmailer/internal/adapters/storage/audit"
	"drinkmailer/internal/application/orchestrators"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Deps holds everything the handlers need.
type Deps struct {
	Fetcher    orchestrators.RecipientFetcher
	Dispatcher emailAdapter.Dispatcher
	AuditStore auditStore.Store
	Sessions   *middleware.SessionStore
	Perf       *perf.Collector

	// Location is the zone deadlines are entered and displayed in.
	Location *time.Location
	// EgressIP returns the server's public address, "unknown" until resolved.
	EgressIP func() string
	// Ping checks the database for /healthz. Optional.
	Ping func(ctx context.Context) error

	AccessHash     string // bcrypt; empty disables the organizer gate
	CSRFKey        []byte
	Secure         bool
	TrustedOrigins []string
	RateLimit      int // requests per second per client
	SlowRequestMs  int
}

// server carries the dependencies into handlers.
type server struct {
	Deps
	pages *pageSet
}

// NewMux wires HTTP handlers for the app.
// ctx bounds background work such as the rate limiter sweep.
func NewMux(ctx context.Context, deps Deps) http.Handler {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.EgressIP == nil {
		deps.EgressIP = func() string { return "unknown" }
	}
	if deps.Sessions == nil {
		deps.Sessions = middleware.NewSessionStore()
	}
	if deps.RateLimit <= 0 {
		deps.RateLimit = 10
	}
	s := &server{Deps: deps, pages: mustParsePages()}

	limiter := middleware.NewRateLimiter(ctx, deps.RateLimit, time.Second)
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}

	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.Recoverer,
		middleware.Timing(deps.Perf, deps.SlowRequestMs),
		middleware.SecurityHeaders,
		middleware.RateLimit(limiter),
	)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/api/get-ip", s.handleGetIP)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	r.Group(func(r chi.Router) {
		r.Use(
			middleware.Sessions(deps.Sessions),
			middleware.CSRF(deps.CSRFKey, deps.Secure, deps.TrustedOrigins),
		)

		r.Get("/login", s.handleLoginPage)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(
				middleware.RequireOrganizer(deps.AccessHash != ""),
				middleware.EnsureSession(deps.Sessions, deps.Secure),
			)

			r.Get("/", s.handleFormPage)
			r.Post("/recipients/filter", s.handleFilter)
			r.Post("/selection/all", s.handleSelectAll)
			r.Post("/selection/toggle", s.handleToggle)
			r.Post("/send", s.handleSend)

			r.Route("/api", func(r chi.Router) {
				r.Get("/state", s.handleAPIState)
				r.Get("/recipients", s.handleAPIRecipients)
				r.Post("/selection", s.handleAPIToggle)
				r.Post("/selection/all", s.handleAPISelectAll)
				r.Post("/send", s.handleAPISend)
				r.Get("/audit", s.handleAPIAudit)
			})
			r.Get("/debug/perf", s.handleDebugPerf)
		})
	})

	return r
}
