package container

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/railhead-io/railhead/internal/config"
)

func devConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Artifacts.RootDir = filepath.Join(t.TempDir(), "artifacts")
	return cfg
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(context.Background(), Params{}); err == nil {
		t.Fatal("New without config succeeded")
	}
}

func TestNewDevContainer(t *testing.T) {
	c, err := New(context.Background(), Params{Config: devConfig(t), Dev: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if c.MemoryProviders() == nil {
		t.Error("dev container has no in-memory providers")
	}
	if c.Store().Releases == nil || c.Store().CronJobs == nil {
		t.Error("store bundle is incomplete")
	}
	if c.Scheduler() == nil || c.Poller() == nil {
		t.Error("orchestration loop not wired")
	}
	if c.Metrics() == nil {
		t.Error("metrics not wired")
	}

	svc := c.Services()
	if svc.StartRelease == nil || svc.GetStatus == nil || svc.UploadBuild == nil {
		t.Error("service bundle is incomplete")
	}
}

func TestMemoryProvidersFollowConfig(t *testing.T) {
	cfg := devConfig(t)
	cfg.Providers.Memory.Enabled = true
	c, err := New(context.Background(), Params{Config: cfg})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if c.MemoryProviders() == nil {
		t.Error("providers.memory.enabled did not register the in-memory set")
	}

	c2, err := New(context.Background(), Params{Config: devConfig(t)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c2.Close()
	if c2.MemoryProviders() != nil {
		t.Error("in-memory providers registered without being enabled")
	}
}

func TestApplySchedulerOnStoppedContainer(t *testing.T) {
	c, err := New(context.Background(), Params{Config: devConfig(t), Dev: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	sc := c.Config().Scheduler
	sc.Concurrency = 2
	c.ApplyScheduler(sc)
}

func TestCloseIsIdempotent(t *testing.T) {
	c, err := New(context.Background(), Params{Config: devConfig(t), Dev: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestStartAfterCloseFails(t *testing.T) {
	c, err := New(context.Background(), Params{Config: devConfig(t), Dev: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("Start on a closed container succeeded")
	}
}

func TestStartAndStopDevContainer(t *testing.T) {
	cfg := devConfig(t)
	cfg.Observability.ListenAddr = "127.0.0.1:0"
	cfg.Observability.TickEndpoint = true

	c, err := New(context.Background(), Params{Config: cfg, Dev: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(context.Background()); err == nil {
		t.Error("second Start succeeded")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
