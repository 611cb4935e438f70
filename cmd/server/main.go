package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"drinkmailer/internal/adapters/appsscript"
	emailPkg "drinkmailer/internal/adapters/email"
	web "drinkmailer/internal/adapters/http"
	"drinkmailer/internal/adapters/http/middleware"
	"drinkmailer/internal/adapters/http/perf"
	"drinkmailer/internal/adapters/iplookup"
	"drinkmailer/internal/adapters/storage"
	auditStore "drinkmailer/internal/adapters/storage/audit"
	"drinkmailer/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

const (
	sessionSweepInterval = 10 * time.Minute
	shutdownTimeout      = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))
	if cfg.GeneratedCSRFKey {
		slog.Warn("config_event", "event", "csrf_key_generated", "note", "sessions will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	collector := perf.NewCollector(perf.DefaultRingSize)
	timedDB := storage.NewTimedDB(db, collector, cfg.SlowQueryMs)
	audits := auditStore.NewSQLiteStore(timedDB)

	hc := &http.Client{Timeout: cfg.HTTPTimeout}
	script, err := appsscript.NewClient(cfg.ScriptURL, hc, collector)
	if err != nil {
		log.Fatalf("invalid script URL: %v", err)
	}
	dispatcher, err := newDispatcher(cfg, script)
	if err != nil {
		log.Fatalf("failed to configure delivery: %v", err)
	}

	var egress atomic.Value
	egress.Store(iplookup.Unknown)
	sessions := middleware.NewSessionStore()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.IPLookup {
		g.Go(func() error {
			chain := iplookup.NewChain(iplookup.Ipify(hc, collector), iplookup.Httpbin(hc, collector))
			egress.Store(chain.Resolve(gctx))
			return nil
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(sessionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := sessions.Sweep(); n > 0 {
					slog.Info("session_event", "event", "swept", "count", n)
				}
			}
		}
	})

	mux := web.NewMux(gctx, web.Deps{
		Fetcher:        script,
		Dispatcher:     dispatcher,
		AuditStore:     audits,
		Sessions:       sessions,
		Perf:           collector,
		Location:       cfg.Location,
		EgressIP:       func() string { return egress.Load().(string) },
		Ping:           timedDB.PingContext,
		AccessHash:     cfg.AccessHash,
		CSRFKey:        cfg.CSRFKey,
		Secure:         cfg.SecureCookies(),
		TrustedOrigins: cfg.TrustedOrigins,
		RateLimit:      cfg.RateLimit,
		SlowRequestMs:  cfg.SlowRequestMs,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		slog.Info("server_event", "event", "starting",
			"version", version,
			"addr", cfg.Addr,
			"env", cfg.Env,
			"delivery", dispatcher.Name(),
			"organizer_gate", cfg.OrganizerGate(),
			"schema", storage.LatestVersion(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		slog.Info("server_event", "event", "shutting_down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
	slog.Info("server_event", "event", "stopped")
}

// newDispatcher picks the mail transport named by configuration.
func newDispatcher(cfg *config.Config, script *appsscript.Client) (emailPkg.Dispatcher, error) {
	renderer := emailPkg.NewRenderer(cfg.Location)
	switch cfg.Delivery {
	case emailPkg.DeliveryAppsScript:
		return emailPkg.NewAppsScriptDispatcher(script), nil
	case emailPkg.DeliveryResend:
		return emailPkg.NewResendDispatcher(cfg.ResendKey, cfg.MailFrom, renderer), nil
	case emailPkg.DeliverySendGrid:
		return emailPkg.NewSendGridDispatcher(cfg.SendGridKey, cfg.MailFrom, renderer), nil
	case emailPkg.DeliveryNoop:
		if cfg.Production() {
			slog.Warn("config_event", "event", "noop_delivery", "note", "announcements will not be sent")
		}
		return emailPkg.NewNoopDispatcher(renderer), nil
	}
	return nil, fmt.Errorf("unknown delivery %q", cfg.Delivery)
}
