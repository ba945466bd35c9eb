package gatewaysync

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gwconsole/internal/models"
)

type fakeDB struct {
	mu         sync.Mutex
	statements []string
	committed  int
	failOn     string
}

type fakeExecer struct{ db *fakeDB }

func (e fakeExecer) ExecContext(_ context.Context, query string, _ ...interface{}) (sql.Result, error) {
	e.db.mu.Lock()
	defer e.db.mu.Unlock()
	if e.db.failOn != "" && strings.Contains(query, e.db.failOn) {
		return nil, errors.New("boom")
	}
	e.db.statements = append(e.db.statements, query)
	return nil, nil
}

func (f *fakeDB) InTx(ctx context.Context, fn func(Execer) error) error {
	if err := fn(fakeExecer{db: f}); err != nil {
		return err
	}
	f.mu.Lock()
	f.committed++
	f.mu.Unlock()
	return nil
}

func (f *fakeDB) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.statements...), f.committed
}

type staticSource []models.Route

func (s staticSource) Routes() []models.Route { return s }

func TestRunClearsThenInserts(t *testing.T) {
	rl := models.DefaultRateLimit()
	rl.ID = 7
	src := staticSource{{
		ID: 1, RouteID: "r1", Predicates: "/a/**", URI: "http://a",
		WithRateLimit: true, RateLimit: &rl,
		AllowedIPs: []models.AllowedIP{{ID: 3, IP: "10.0.0.1"}, {ID: 4, IP: "10.0.0.2"}},
	}}
	db := &fakeDB{}
	s := New(db, src, Options{})
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	stmts, committed := db.snapshot()
	if committed != 1 {
		t.Fatalf("expected one commit, got %d", committed)
	}
	if len(stmts) != 7 {
		t.Fatalf("expected 3 deletes and 4 inserts, got %d: %v", len(stmts), stmts)
	}
	if !strings.HasPrefix(stmts[0], `DELETE FROM "gateway"."allowed_ips"`) {
		t.Fatalf("expected allowed_ips cleared first, got %q", stmts[0])
	}
	if !strings.HasPrefix(stmts[3], `INSERT INTO "gateway"."routes"`) {
		t.Fatalf("expected route insert after deletes, got %q", stmts[3])
	}
	if st := s.Status(); st.LastErr != nil || st.Runs != 1 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestRunReportsFailureWithoutCommit(t *testing.T) {
	db := &fakeDB{failOn: "INSERT"}
	var reported error
	s := New(db, staticSource{{ID: 1, Predicates: "/a/**", URI: "http://a"}}, Options{
		Schema: "edge",
		OnRun:  func(err error) { reported = err },
	})
	if err := s.Run(context.Background()); err == nil {
		t.Fatalf("expected failure")
	}
	if reported == nil {
		t.Fatalf("expected OnRun to receive the failure")
	}
	stmts, committed := db.snapshot()
	if committed != 0 {
		t.Fatalf("expected no commit")
	}
	if !strings.Contains(stmts[0], `"edge"."allowed_ips"`) {
		t.Fatalf("expected custom schema, got %q", stmts[0])
	}
}

func TestTriggerRunsSync(t *testing.T) {
	db := &fakeDB{}
	s := New(db, staticSource{}, Options{Spec: "@every 1h"})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	s.Trigger()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, committed := db.snapshot(); committed > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("triggered sync did not run")
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(&fakeDB{}, staticSource{}, Options{Spec: "not a schedule"})
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected invalid schedule error")
	}
}
