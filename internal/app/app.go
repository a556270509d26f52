// Package app assembles the storage backends, domain services and
// transports into a runnable API process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/Chitrarthrai/NeoCompliance/internal/auth"
	"github.com/Chitrarthrai/NeoCompliance/internal/config"
	"github.com/Chitrarthrai/NeoCompliance/internal/httpapi"
	"github.com/Chitrarthrai/NeoCompliance/internal/migrate"
	"github.com/Chitrarthrai/NeoCompliance/internal/obs"
	"github.com/Chitrarthrai/NeoCompliance/internal/org"
	"github.com/Chitrarthrai/NeoCompliance/internal/quiz"
	"github.com/Chitrarthrai/NeoCompliance/internal/scoring"
	"github.com/Chitrarthrai/NeoCompliance/internal/store/memory"
	"github.com/Chitrarthrai/NeoCompliance/internal/store/pg"
	"github.com/Chitrarthrai/NeoCompliance/internal/store/redistoken"
	"github.com/Chitrarthrai/NeoCompliance/ops/migrations"
)

const tokenSweepInterval = time.Hour

type repository interface {
	org.Repository
	quiz.Repository
	scoring.Repository
	Users() auth.IdentityStore
	Inspectors() auth.IdentityStore
	Ping(ctx context.Context) error
}

type App struct {
	cfg     config.Config
	version string
	log     *logrus.Logger

	auth    *auth.Service
	api     *httpapi.API
	server  *http.Server
	grpc    *grpc.Server
	sweeper *pg.Store
	pingers []httpapi.Pinger
	closers []io.Closer
}

// New opens the configured backends and wires the services. The caller owns
// the returned App and must Close it if Run is never called.
func New(ctx context.Context, cfg config.Config, version string) (*App, error) {
	a := &App{cfg: cfg, version: version, log: obs.Logger()}

	repo, tokens, err := a.openStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	privileged, ok := auth.ParseRoles(cfg.Auth.PrivilegedRoles)
	if !ok {
		a.Close()
		return nil, fmt.Errorf("app: unknown role in PRIVILEGED_ROLES %v", cfg.Auth.PrivilegedRoles)
	}

	tokenSvc, err := auth.NewTokenService(cfg.Auth.AccessTokenSecret, cfg.Auth.RefreshTokenSecret, tokens,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithAccessTTL(cfg.Auth.AccessTokenTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTokenTTL),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	dir := auth.NewDirectory(repo.Users(), repo.Inspectors())
	stores := org.NewService(repo, dir)
	a.auth = auth.NewService(dir, tokenSvc,
		auth.WithHasher(auth.Bcrypt{Cost: cfg.Auth.BcryptCost}),
		auth.WithMemberships(stores),
	)

	probe := httpapi.ReadyProbe{Deps: append([]httpapi.Pinger{repo}, a.pingers...)}

	a.api = httpapi.New(httpapi.Deps{
		Auth:    a.auth,
		Stores:  stores,
		Quiz:    quiz.NewService(repo, dir),
		Scores:  scoring.NewService(repo, stores, dir),
		Ready:   probe,
		Version: version,
	}, httpapi.Options{
		PrivilegedRoles: privileged,
		CookieSecure:    cfg.Auth.CookieSecure,
		MaxBodyBytes:    cfg.HTTP.MaxBodyBytes,
		RateLimitPerSec: cfg.HTTP.RateLimitPerSec,
		RateLimitBurst:  cfg.HTTP.RateLimitBurst,
		CORSOrigins:     cfg.HTTP.CORSOrigins,
	})

	a.server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if cfg.GRPCAddr != "" {
		a.grpc = grpc.NewServer()
		httpapi.NewGRPCServer(probe).Register(a.grpc)
	}

	if err := a.bootstrap(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// openStores picks PostgreSQL when DATABASE_URL is set and the in-memory
// store otherwise. REDIS_URL moves refresh token bookkeeping to Redis.
func (a *App) openStores(ctx context.Context) (repository, auth.RefreshTokenStore, error) {
	var (
		repo   repository
		tokens auth.RefreshTokenStore
	)
	if a.cfg.DatabaseURL != "" {
		st, err := pg.Open(a.cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		a.closers = append(a.closers, st)
		if err := st.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		if a.cfg.AutoMigrate {
			applied, err := migrate.NewManager(st.DB(), migrations.SQL(), migrations.Seeds()).Up(ctx)
			if err != nil {
				return nil, nil, fmt.Errorf("auto migrate: %w", err)
			}
			if len(applied) > 0 {
				a.log.WithField("migrations", applied).Info("migrations applied")
			}
		}
		repo, tokens = st, st
		a.sweeper = st
	} else {
		a.log.Warn("DATABASE_URL not set, using in-memory store")
		st := memory.New()
		repo, tokens = st, st
	}

	if a.cfg.RedisURL != "" {
		rt, err := redistoken.Open(ctx, a.cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis: %w", err)
		}
		a.closers = append(a.closers, rt)
		a.pingers = append(a.pingers, rt)
		tokens = rt
		a.sweeper = nil
	}
	return repo, tokens, nil
}

// bootstrap provisions the configured inspector once. An existing account
// with the same email is left untouched.
func (a *App) bootstrap(ctx context.Context) error {
	b := a.cfg.Bootstrap
	if b.InspectorEmail == "" {
		return nil
	}
	taken, err := a.auth.Directory().EmailTaken(ctx, b.InspectorEmail)
	if err != nil {
		return fmt.Errorf("bootstrap inspector: %w", err)
	}
	if taken {
		return nil
	}
	if _, err := a.auth.CreateInspector(ctx, auth.NewInspector{
		Name:     b.InspectorName,
		Email:    b.InspectorEmail,
		Password: b.InspectorPassword,
	}); err != nil {
		return fmt.Errorf("bootstrap inspector: %w", err)
	}
	a.log.WithField("email", b.InspectorEmail).Info("bootstrap inspector created")
	return nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler { return a.server.Handler }

// Run serves until SIGINT/SIGTERM or a listener failure, then shuts down.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer a.Close()

	errCh := make(chan error, 2)
	go func() {
		a.log.WithFields(logrus.Fields{"addr": a.server.Addr, "version": a.version}).Info("http listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	if a.grpc != nil {
		lis, err := net.Listen("tcp", a.cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		go func() {
			a.log.WithField("addr", a.cfg.GRPCAddr).Info("grpc listening")
			if err := a.grpc.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}
	if a.sweeper != nil {
		go a.sweepTokens(ctx)
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutting down")
	case runErr = <-errCh:
		a.log.WithError(runErr).Error("server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if a.grpc != nil {
		a.grpc.GracefulStop()
	}
	if err := a.server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	a.log.Info("stopped")
	return runErr
}

// sweepTokens purges expired refresh token rows from PostgreSQL.
func (a *App) sweepTokens(ctx context.Context) {
	ticker := time.NewTicker(tokenSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.sweeper.PurgeExpiredRefreshTokens(ctx)
			if err != nil {
				a.log.WithError(err).Warn("refresh token sweep failed")
				continue
			}
			if n > 0 {
				a.log.WithField("purged", n).Debug("refresh token sweep")
			}
		}
	}
}

// Close releases every backend opened by New. It is safe to call twice.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
