// Command gwadmin-dev serves an in-memory gateway admin API for local
// console development, optionally mirroring routes into Postgres.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"gwconsole/internal/adminserver"
	"gwconsole/internal/gatewaysync"
	"gwconsole/internal/metrics"
	"gwconsole/internal/utils"
)

type options struct {
	listen        string
	adminPassword string
	jwtSecret     string
	seed          bool
	pgDSN         string
	pgSchema      string
	syncSpec      string
	logFile       string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("gwadmin-dev", flag.ContinueOnError)
	fs.StringVar(&o.listen, "listen", ":8081", "listen address")
	fs.StringVar(&o.adminPassword, "admin-password", envOr("GWADMIN_PASSWORD", adminserver.DefaultAdminPassword), "password of the admin account")
	fs.StringVar(&o.jwtSecret, "jwt-secret", os.Getenv("GWADMIN_JWT_SECRET"), "token signing secret (random when empty)")
	fs.BoolVar(&o.seed, "seed", true, "create sample routes on start")
	fs.StringVar(&o.pgDSN, "pg-dsn", os.Getenv("GWADMIN_PG_DSN"), "Postgres DSN to mirror routes into (disabled when empty)")
	fs.StringVar(&o.pgSchema, "pg-schema", gatewaysync.DefaultSchema, "Postgres schema of the gateway tables")
	fs.StringVar(&o.syncSpec, "sync-spec", gatewaysync.DefaultSpec, "cron schedule of the periodic sync")
	fs.StringVar(&o.logFile, "log", "", "log file (stdout when empty)")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return o, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// newRouter builds the admin API with /metrics mounted alongside it.
func newRouter(store *adminserver.Store, o options, m *metrics.Metrics, logger *utils.Logger) (*gin.Engine, error) {
	srv, err := adminserver.New(store, adminserver.Options{
		JWTSecret:     o.jwtSecret,
		AdminPassword: o.adminPassword,
		SeedRoutes:    o.seed,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	r := srv.Router()
	r.GET("/metrics", gin.WrapH(m.Handler()))
	return r, nil
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	var logger *utils.Logger
	if o.logFile != "" {
		logger = utils.NewLogger(o.logFile)
	} else {
		logger = utils.NewWriterLogger(os.Stdout)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := adminserver.NewStore()
	m := metrics.New()
	router, err := newRouter(store, o, m, logger)
	if err != nil {
		log.Fatalf("Failed to create admin API: %v", err)
	}

	if o.pgDSN != "" {
		db, err := gatewaysync.Open(ctx, o.pgDSN)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer db.Close()
		syncer := gatewaysync.New(db, store, gatewaysync.Options{
			Schema: o.pgSchema,
			Spec:   o.syncSpec,
			Logger: logger,
			OnRun:  m.ObserveSync,
		})
		if err := syncer.Start(ctx); err != nil {
			log.Fatalf("Failed to start gateway sync: %v", err)
		}
		defer syncer.Stop()
		store.OnChange(syncer.Trigger)
		syncer.Trigger()
		logger.Writef("Mirroring routes into schema %s (%s)", o.pgSchema, o.syncSpec)
	}

	srv := &http.Server{
		Addr:              o.listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("Starting dev admin API on %s", o.listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down dev admin API...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Writef("Server forced to shutdown: %v", err)
	}
}
