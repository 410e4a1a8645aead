package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics("test")

	m.TickStarted(3)
	m.TickStarted(1)
	m.LeaseOutcome(true)
	m.LeaseOutcome(true)
	m.LeaseOutcome(false)
	m.ReleaseAdvanced(true)
	m.ReleaseAdvanced(false)
	m.TaskExecuted("FORK_BRANCH", true)
	m.TaskExecuted("FORK_BRANCH", true)
	m.TaskExecuted("CREATE_RC_TAG", false)
	m.NotificationDelivered(true)
	m.NotificationDelivered(false)

	snap := m.Snapshot()
	if snap.Ticks != 2 {
		t.Errorf("Ticks = %d, want 2", snap.Ticks)
	}
	if snap.LeasesAcquired != 2 || snap.LeasesContended != 1 {
		t.Errorf("leases = %d/%d, want 2/1", snap.LeasesAcquired, snap.LeasesContended)
	}
	if snap.ReleasesAdvanced != 1 || snap.ReleasesErrored != 1 {
		t.Errorf("releases = %d/%d, want 1/1", snap.ReleasesAdvanced, snap.ReleasesErrored)
	}
	if snap.TasksExecuted["FORK_BRANCH"] != 2 {
		t.Errorf("FORK_BRANCH executed = %d, want 2", snap.TasksExecuted["FORK_BRANCH"])
	}
	if snap.TasksFailed["CREATE_RC_TAG"] != 1 {
		t.Errorf("CREATE_RC_TAG failed = %d, want 1", snap.TasksFailed["CREATE_RC_TAG"])
	}
	if snap.NotificationsOK != 1 || snap.NotificationsErr != 1 {
		t.Errorf("notifications = %d/%d, want 1/1", snap.NotificationsOK, snap.NotificationsErr)
	}
}

func TestMetricsHandlerOutput(t *testing.T) {
	m := NewMetrics("1.2.3")
	m.TickStarted(5)
	m.TaskExecuted("FORK_BRANCH", true)
	m.TaskExecuted("CREATE_RC_TAG", false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`railhead_info{version="1.2.3"} 1`,
		"railhead_scheduler_ticks_total 1",
		"railhead_scheduler_candidates 5",
		`railhead_tasks_total{type="FORK_BRANCH",outcome="completed"} 1`,
		`railhead_tasks_total{type="CREATE_RC_TAG",outcome="failed"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestServerHealthz(t *testing.T) {
	s := NewServer(ServerParams{Metrics: NewMetrics("test")})
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}

func TestServerReadyz(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		s := NewServer(ServerParams{
			Readiness: func(ctx context.Context) error { return nil },
		})
		rec := httptest.NewRecorder()
		s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("readyz status = %d, want 200", rec.Code)
		}
	})

	t.Run("unavailable", func(t *testing.T) {
		s := NewServer(ServerParams{
			Readiness: func(ctx context.Context) error { return errors.New("db down") },
		})
		rec := httptest.NewRecorder()
		s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("readyz status = %d, want 503", rec.Code)
		}
		body, _ := io.ReadAll(rec.Body)
		if !strings.Contains(string(body), "db down") {
			t.Errorf("readyz body %q does not name the cause", body)
		}
	})
}

func TestServerTickEndpoint(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		fired := 0
		s := NewServer(ServerParams{Tick: func() { fired++ }})
		rec := httptest.NewRecorder()
		s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tick", nil))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("tick status = %d, want 202", rec.Code)
		}
		if fired != 1 {
			t.Errorf("tick fired %d times, want 1", fired)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		s := NewServer(ServerParams{})
		rec := httptest.NewRecorder()
		s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tick", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("tick status = %d, want 404 when disabled", rec.Code)
		}
	})
}

func TestServerStartAndClose(t *testing.T) {
	s := NewServer(ServerParams{ListenAddr: "127.0.0.1:0", Metrics: NewMetrics("test")})
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
