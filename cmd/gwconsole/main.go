package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"gwconsole/internal/config"
	"gwconsole/internal/handlers"
	"gwconsole/internal/manager"
	"gwconsole/internal/metrics"
	"gwconsole/internal/middleware"
	"gwconsole/internal/session"
	"gwconsole/internal/utils"
	"gwconsole/internal/version"
)

type App struct {
	cfg         config.Config
	logger      *utils.Logger
	manager     *manager.Manager
	authService *middleware.AuthService
	wsHub       *middleware.Hub
	rateLimiter *middleware.RateLimiter
	metrics     *metrics.Metrics
	handlers    *handlers.Handlers
}

// newApp wires the console services. Persisted sessions are not restored
// here; main does that once the listener is configured.
func newApp(cfg config.Config, logger *utils.Logger, sessions *session.Store) *App {
	m := metrics.New()
	a := &App{
		cfg:         cfg,
		logger:      logger,
		authService: middleware.NewAuthService(cfg.JWTSecret, cfg.Console.SessionTTL),
		wsHub:       middleware.NewHub(logger),
		rateLimiter: middleware.NewPerMinuteLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst),
		metrics:     m,
	}
	a.manager = manager.New(manager.Options{
		Config:   cfg,
		Sessions: sessions,
		Logger:   logger,
		Metrics:  m,
	})
	a.handlers = handlers.New(handlers.Deps{
		Manager: a.manager,
		Auth:    a.authService,
		Hub:     a.wsHub,
		Metrics: m,
		Logger:  logger,
	})
	return a
}

func (a *App) setupRouter() *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))

	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	r.Use(a.rateLimiter.Middleware())

	a.handlers.Register(r)
	return r
}

func (a *App) shutdown() {
	a.handlers.Close()
	a.manager.Shutdown()
	a.rateLimiter.Stop()
}

func main() {
	configPath := flag.String("config", "gwconsole.yaml", "path to the YAML config file")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	dataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		log.Fatalf("Invalid data dir %q: %v", cfg.DataDir, err)
	}
	paths := utils.NewPaths(dataDir)
	logger := utils.NewLogger(paths.LogFile())
	defer logger.Close()
	if !paths.CheckRoot() {
		paths.DeployRoot(logger)
	}
	logger.Write("Starting gwconsole " + version.String())

	sessions := session.NewStore(paths)
	if err := sessions.Load(); err != nil {
		logger.Writef("Failed to load sessions: %v", err)
	}

	app := newApp(cfg, logger, sessions)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	restored, err := app.manager.Restore(ctx)
	cancel()
	if err != nil {
		logger.Writef("Session restore finished with errors: %v", err)
	}
	logger.Writef("Restored %d operator session(s)", restored)
	app.manager.StartTelemetryMonitor(cfg.Polling.TelemetryInterval)

	srv := &http.Server{
		Addr:           cfg.Listen,
		Handler:        app.setupRouter(),
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		var err error
		if cfg.TLS.Enabled {
			log.Printf("Starting HTTPS server on %s", cfg.Listen)
			err = srv.ListenAndServeTLS(cfg.TLS.CertPath, cfg.TLS.KeyPath)
		} else {
			log.Printf("Starting server on %s", cfg.Listen)
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	logger.Write("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Writef("Server forced to shutdown: %v", err)
	}
	app.shutdown()

	log.Println("Server exited")
}
