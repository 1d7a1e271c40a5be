package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/knowledge-bank/kb-cloud/api"
	"github.com/knowledge-bank/kb-cloud/config"
	"github.com/knowledge-bank/kb-cloud/engines"
	"github.com/knowledge-bank/kb-cloud/jobs"
	"github.com/knowledge-bank/kb-cloud/logger"
	"github.com/knowledge-bank/kb-cloud/results"
	"github.com/knowledge-bank/kb-cloud/supabase"
	"github.com/knowledge-bank/kb-cloud/waitlist"
	"github.com/knowledge-bank/kb-cloud/websocket"
)

var (
	serveAddr       string
	shutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Starts the API server, the /api/events websocket hub and, unless
RESULTS_WATCH=false, the results directory watcher. SIGINT or SIGTERM shuts
everything down gracefully.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides KB_ADDR)")
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "Grace period for in-flight requests")
}

// openJobStore picks the job backend named by JOB_STORE.
func openJobStore(c *config.EnvConfig, l *logger.Logger) (jobs.Store, error) {
	switch c.JobStore {
	case config.StoreSQLite:
		return jobs.NewSQLiteStore(c.JobSQLitePath)
	case config.StoreSupabase:
		client, err := supabase.New(c.SupabaseURL, c.SupabaseServiceRoleKey, supabase.Options{
			Timeout: c.SupabaseTimeout,
			Logger:  l,
		})
		if err != nil {
			return nil, err
		}
		return jobs.NewSupabaseStore(client), nil
	default:
		return jobs.NewMemoryStore(), nil
	}
}

// newWaitlist returns a waitlist backed by the anon key, or an unconfigured
// one that answers 503.
func newWaitlist(c *config.EnvConfig, l *logger.Logger) (*waitlist.Service, error) {
	if !c.WaitlistEnabled() {
		return waitlist.NewService(nil, l), nil
	}
	client, err := supabase.New(c.SupabaseURL, c.SupabaseAnonKey, supabase.Options{
		Timeout: c.SupabaseTimeout,
		Logger:  l,
	})
	if err != nil {
		return nil, err
	}
	return waitlist.NewService(client, l), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := cfg.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	catalog, err := engines.Load(cfg.EnginesConfig)
	if err != nil {
		return err
	}
	store, err := openJobStore(cfg, log)
	if err != nil {
		return fmt.Errorf("open %s job store: %w", cfg.JobStore, err)
	}
	defer store.Close()

	wl, err := newWaitlist(cfg, log)
	if err != nil {
		return err
	}
	if !wl.Configured() {
		log.Warn("SUPABASE_URL or SUPABASE_ANON_KEY not set: /api/waitlist will answer 503")
	}

	events := websocket.NewEventServer(websocket.Options{
		AllowedOrigins: cfg.CORSOrigins,
		Logger:         log,
	})
	reader := results.NewReader(cfg.ResultsDir)

	apiCfg := api.Config{
		Env:         cfg.Env,
		CORSOrigins: cfg.CORSOrigins,
		Catalog:     catalog,
		Jobs:        jobs.NewService(store, events, log),
		Waitlist:    wl,
		Results:     reader,
		Events:      events,
		Logger:      log,
	}
	var watcher *results.Watcher
	if cfg.ResultsWatch {
		watcher = results.NewWatcher(reader, events, log)
		apiCfg.Watcher = watcher
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(apiCfg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return events.Run(gctx)
	})
	if watcher != nil {
		g.Go(func() error {
			// A missing results directory only disables live refresh; the
			// route still scans on demand.
			if err := watcher.Run(gctx); err != nil {
				log.Warnf("results watcher disabled: %v", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		log.WithFields(map[string]interface{}{
			"addr":      addr,
			"env":       cfg.Env,
			"job_store": cfg.JobStore,
			"engines":   catalog.Len(),
		}).Info("kb-cloud listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
