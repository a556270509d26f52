package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Chitrarthrai/NeoCompliance/internal/auth"
	"github.com/Chitrarthrai/NeoCompliance/internal/obs"
	"github.com/Chitrarthrai/NeoCompliance/internal/org"
	"github.com/Chitrarthrai/NeoCompliance/internal/quiz"
	"github.com/Chitrarthrai/NeoCompliance/internal/scoring"
)

const serviceName = "neocompliance-api"

// Pinger is any dependency whose reachability gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe pings every dependency with a short timeout.
type ReadyProbe struct {
	Deps []Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var errs []error
	for _, dep := range rp.Deps {
		if dep == nil {
			continue
		}
		if err := dep.Ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Deps are the components the HTTP layer serves.
type Deps struct {
	Auth    *auth.Service
	Stores  *org.Service
	Quiz    *quiz.Service
	Scores  *scoring.Service
	Ready   ReadyProbe
	Version string
}

// Options tune the HTTP surface.
type Options struct {
	PrivilegedRoles []auth.Role
	CookieSecure    bool
	MaxBodyBytes    int64
	RateLimitPerSec float64
	RateLimitBurst  int
	CORSOrigins     []string
}

type API struct {
	deps       Deps
	opts       Options
	limiter    *RateLimiter
	router     chi.Router
	privileged []auth.Role
}

func New(deps Deps, opts Options) *API {
	privileged := opts.PrivilegedRoles
	if len(privileged) == 0 {
		privileged = []auth.Role{auth.RoleInspector}
	}
	a := &API{
		deps:       deps,
		opts:       opts,
		limiter:    NewRateLimiter(opts.RateLimitPerSec, opts.RateLimitBurst),
		privileged: privileged,
	}
	a.router = a.routes()
	return a
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID, LoggingJSON, obs.Instrument, SecurityHeaders, CORS(a.opts.CORSOrigins), MaxBodyBytes(a.opts.MaxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", a.health)
	r.Get("/readyz", a.ready)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Use(a.limiter.Middleware)
		r.Post("/login", a.login)
		r.Get("/refresh", a.refresh)
		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)
			r.Get("/logout", a.logout)
			r.Get("/me", a.me)
		})
	})

	r.Route("/direct", func(r chi.Router) {
		r.Use(a.withAuth, requireRoles(a.privileged...))
		r.Post("/register", a.register)
		r.Post("/upload-question", a.uploadQuestions)
		r.Post("/score-details", a.scoreDetails)
		r.Post("/assign-stores", a.assignStores)
		r.Post("/unassign-store", a.unassignStore)
		r.Post("/create-store", a.createStore)
		r.Post("/create-inspector", a.createInspector)
	})

	r.Route("/manager", func(r chi.Router) {
		r.Use(a.withAuth, requireRoles(auth.RoleManager))
		a.memberRoutes(r)
		r.Post("/associate-scores", a.associateScores)
		r.Post("/create-associate", a.createAssociate)
	})

	r.Route("/associate", func(r chi.Router) {
		r.Use(a.withAuth, requireRoles(auth.RoleAssociate))
		a.memberRoutes(r)
	})

	r.Route("/inspector", func(r chi.Router) {
		r.Use(a.withAuth, requireRoles(auth.RoleInspector))
		r.Post("/upload-question", a.uploadQuestions)
		r.Post("/score-details", a.scoreDetails)
		r.Post("/create-inspector", a.createInspector)
		r.Get("/stores", a.listStores)
	})
	return r
}

// memberRoutes are shared by managers and associates.
func (a *API) memberRoutes(r chi.Router) {
	r.Post("/questions", a.questions)
	r.Post("/sections-by-user", a.sectionsByUser)
	r.Post("/scores-by-section", a.scoresBySection)
	r.Post("/submit-section-score", a.submitScore)
}

func (a *API) Handler() http.Handler { return a.router }

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, "API is running for neo compliance", map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.deps.Version,
		"commit":  obs.CurrentBuild().Commit,
	})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Ready.Check(r.Context()); err != nil {
		obs.Logger().WithError(err).Warn("readiness_failed")
		writeError(w, r, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeSuccess(w, http.StatusOK, "ready", map[string]any{"status": "ready"})
}
