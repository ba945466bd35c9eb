// Package gatewaysync mirrors the admin API's routes into the Postgres
// schema read by the gateway runtime.
package gatewaysync

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"gwconsole/internal/models"
	"gwconsole/internal/utils"
)

const (
	DefaultSchema = "gateway"
	DefaultSpec   = "@every 30s"
)

// Execer runs one statement.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Database runs fn inside a transaction.
type Database interface {
	InTx(ctx context.Context, fn func(Execer) error) error
}

// Source supplies the routes to mirror.
type Source interface {
	Routes() []models.Route
}

// Postgres adapts *sql.DB to Database.
type Postgres struct {
	DB *sql.DB
}

// Open connects to dsn with the lib/pq driver and pings it.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	return &Postgres{DB: db}, nil
}

// InTx commits when fn succeeds and rolls back otherwise.
func (p *Postgres) InTx(ctx context.Context, fn func(Execer) error) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close closes the pool.
func (p *Postgres) Close() error { return p.DB.Close() }

// Options configures a Syncer.
type Options struct {
	Schema string
	Spec   string
	Logger *utils.Logger
	// OnRun, when set, receives the result of every run.
	OnRun func(error)
}

// Syncer clears and rewrites the gateway tables from Source.
type Syncer struct {
	db     Database
	source Source
	schema string
	spec   string
	logger *utils.Logger
	onRun  func(error)

	mu       sync.Mutex
	cron     *cron.Cron
	trigger  chan struct{}
	stop     chan struct{}
	wg       sync.WaitGroup
	lastRun  time.Time
	lastErr  error
	runCount int
}

// New creates a stopped syncer.
func New(db Database, source Source, opts Options) *Syncer {
	schema := opts.Schema
	if schema == "" {
		schema = DefaultSchema
	}
	spec := opts.Spec
	if spec == "" {
		spec = DefaultSpec
	}
	return &Syncer{
		db:      db,
		source:  source,
		schema:  schema,
		spec:    spec,
		logger:  opts.Logger,
		onRun:   opts.OnRun,
		trigger: make(chan struct{}, 1),
	}
}

func (s *Syncer) table(name string) string {
	return pq.QuoteIdentifier(s.schema) + "." + pq.QuoteIdentifier(name)
}

// Run performs one full sync.
func (s *Syncer) Run(ctx context.Context) error {
	routes := s.source.Routes()
	err := s.db.InTx(ctx, func(tx Execer) error {
		for _, name := range []string{"allowed_ips", "rate_limits", "routes"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+s.table(name)); err != nil {
				return fmt.Errorf("clear %s: %w", name, err)
			}
		}
		for _, r := range routes {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO "+s.table("routes")+" (id, route_id, predicates, uri, with_ip_filter, with_token, with_rate_limit) VALUES ($1, $2, $3, $4, $5, $6, $7)",
				r.ID, r.RouteID, r.Predicates, r.URI, r.WithIPFilter, r.WithToken, r.WithRateLimit,
			); err != nil {
				return fmt.Errorf("insert route %d: %w", r.ID, err)
			}
			if r.RateLimit != nil {
				if _, err := tx.ExecContext(ctx,
					"INSERT INTO "+s.table("rate_limits")+" (id, route_id, max_requests, time_window_ms) VALUES ($1, $2, $3, $4)",
					r.RateLimit.ID, r.ID, r.RateLimit.MaxRequests, r.RateLimit.TimeWindowMs,
				); err != nil {
					return fmt.Errorf("insert rate limit of route %d: %w", r.ID, err)
				}
			}
			for _, ip := range r.AllowedIPs {
				if _, err := tx.ExecContext(ctx,
					"INSERT INTO "+s.table("allowed_ips")+" (id, route_id, ip) VALUES ($1, $2, $3)",
					ip.ID, r.ID, ip.IP,
				); err != nil {
					return fmt.Errorf("insert ip %d of route %d: %w", ip.ID, r.ID, err)
				}
			}
		}
		return nil
	})

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastErr = err
	s.runCount++
	s.mu.Unlock()
	if s.onRun != nil {
		s.onRun(err)
	}
	if err != nil {
		s.logger.Writef("gateway sync failed: %v", err)
		return err
	}
	s.logger.Writef("gateway sync wrote %d routes", len(routes))
	return nil
}

// Status describes past runs.
type Status struct {
	LastRun time.Time
	LastErr error
	Runs    int
}

// Status returns the time and result of the last run and the run count.
func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{LastRun: s.lastRun, LastErr: s.lastErr, Runs: s.runCount}
}

// Trigger requests a sync soon. Calls while one is pending coalesce.
func (s *Syncer) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Start schedules periodic syncs and serves Trigger until Stop.
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.spec, func() { _ = s.Run(ctx) }); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", s.spec, err)
	}
	s.cron = c
	s.stop = make(chan struct{})
	stop := s.stop
	c.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.trigger:
				_ = s.Run(ctx)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop halts the schedule and waits for running jobs.
func (s *Syncer) Stop() {
	s.mu.Lock()
	c := s.cron
	stop := s.stop
	s.cron = nil
	s.stop = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	close(stop)
	s.wg.Wait()
}
