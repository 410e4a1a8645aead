package memprovider

import (
	"context"
	"testing"
	"time"

	"github.com/railhead-io/railhead/internal/domain/provider"
)

func TestCreateBranchIsDeterministic(t *testing.T) {
	ctx := context.Background()
	req := provider.CreateBranchRequest{BranchName: "release/v1.4.0", FromRef: "main"}

	first, err := New().CreateBranch(ctx, req)
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if len(first.SHA) != 40 {
		t.Errorf("SHA length = %d, want 40", len(first.SHA))
	}

	// A fresh set derives the same SHA from the same inputs.
	second, err := New().CreateBranch(ctx, req)
	if err != nil {
		t.Fatalf("CreateBranch on fresh set: %v", err)
	}
	if second.SHA != first.SHA {
		t.Errorf("SHA differs across sets: %s vs %s", second.SHA, first.SHA)
	}

	other, err := New().CreateBranch(ctx, provider.CreateBranchRequest{BranchName: "release/v1.5.0", FromRef: "main"})
	if err != nil {
		t.Fatalf("CreateBranch other: %v", err)
	}
	if other.SHA == first.SHA {
		t.Error("different branches share a SHA")
	}
}

func TestCreateBranchReplayReturnsExisting(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, err := s.CreateBranch(ctx, provider.CreateBranchRequest{BranchName: "release/v2.0.0", FromRef: "main"})
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	// A replay with a different base still lands on the original cut.
	replay, err := s.CreateBranch(ctx, provider.CreateBranchRequest{BranchName: "release/v2.0.0", FromRef: "develop"})
	if err != nil {
		t.Fatalf("replayed CreateBranch: %v", err)
	}
	if replay.SHA != first.SHA {
		t.Errorf("replay SHA = %s, want %s", replay.SHA, first.SHA)
	}
}

func TestCreateTagPointsAtBranch(t *testing.T) {
	ctx := context.Background()
	s := New()

	branch, err := s.CreateBranch(ctx, provider.CreateBranchRequest{BranchName: "release/v1.4.0", FromRef: "main"})
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	tag, err := s.CreateTag(ctx, provider.CreateTagRequest{TagName: "v1.4.0-rc1", TargetRef: "release/v1.4.0"})
	if err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	if tag.SHA != branch.SHA {
		t.Errorf("tag SHA = %s, want branch SHA %s", tag.SHA, branch.SHA)
	}

	replay, err := s.CreateTag(ctx, provider.CreateTagRequest{TagName: "v1.4.0-rc1", TargetRef: "somewhere-else"})
	if err != nil {
		t.Fatalf("replayed CreateTag: %v", err)
	}
	if replay.SHA != tag.SHA {
		t.Errorf("replay SHA = %s, want %s", replay.SHA, tag.SHA)
	}
}

func TestCompareRefsUsesScript(t *testing.T) {
	ctx := context.Background()
	s := New()

	commits := []provider.CommitInfo{
		{SHA: "aaa", Title: "feat: one", Author: "dev", Authored: time.Now()},
		{SHA: "bbb", Title: "fix: two", Author: "dev", Authored: time.Now()},
	}
	s.SetComparison("v1.4.0-rc1", "release/v1.4.0", commits)

	res, err := s.CompareRefs(ctx, provider.CompareRequest{Base: "v1.4.0-rc1", Head: "release/v1.4.0"})
	if err != nil {
		t.Fatalf("CompareRefs: %v", err)
	}
	if len(res.Commits) != 2 || res.Commits[0].Title != "feat: one" {
		t.Errorf("unexpected comparison: %+v", res.Commits)
	}

	empty, err := s.CompareRefs(ctx, provider.CompareRequest{Base: "main", Head: "release/v1.4.0"})
	if err != nil {
		t.Fatalf("CompareRefs unscripted: %v", err)
	}
	if len(empty.Commits) != 0 {
		t.Errorf("unscripted comparison returned %d commits", len(empty.Commits))
	}

	same, err := s.CompareRefs(ctx, provider.CompareRequest{Base: "main", Head: "main"})
	if err != nil {
		t.Fatalf("CompareRefs same ref: %v", err)
	}
	if len(same.Commits) != 0 {
		t.Error("same-ref comparison is not empty")
	}
}

func TestWorkflowRunProgression(t *testing.T) {
	ctx := context.Background()
	s := New()
	repo := provider.RepoRef{Owner: "acme", Name: "app"}

	run, err := s.TriggerWorkflow(ctx, provider.TriggerWorkflowRequest{WorkflowRef: "build.yml", Ref: "release/v1.4.0"})
	if err != nil {
		t.Fatalf("TriggerWorkflow: %v", err)
	}
	if run.ID != "run-1" || run.BuildNumber != "101" {
		t.Errorf("run = %+v", run)
	}

	state, err := s.WorkflowRunStatus(ctx, repo, run.ID)
	if err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if state.Status != provider.RunInProgress {
		t.Errorf("first poll status = %s, want IN_PROGRESS", state.Status)
	}

	state, err = s.WorkflowRunStatus(ctx, repo, run.ID)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if state.Status != provider.RunCompleted || state.Conclusion != "success" {
		t.Errorf("second poll = %+v, want COMPLETED/success", state)
	}

	if _, err := s.WorkflowRunStatus(ctx, repo, "run-99"); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestSetRunConclusion(t *testing.T) {
	ctx := context.Background()
	s := New(WithRunCompletion(1, "success"))
	repo := provider.RepoRef{Owner: "acme", Name: "app"}

	run, err := s.TriggerWorkflow(ctx, provider.TriggerWorkflowRequest{WorkflowRef: "regression.yml", Ref: "v1.4.0-rc1"})
	if err != nil {
		t.Fatalf("TriggerWorkflow: %v", err)
	}
	if err := s.SetRunConclusion(run.ID, "failure"); err != nil {
		t.Fatalf("SetRunConclusion: %v", err)
	}

	state, err := s.WorkflowRunStatus(ctx, repo, run.ID)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if state.Status != provider.RunCompleted || state.Conclusion != "failure" {
		t.Errorf("state = %+v, want COMPLETED/failure", state)
	}
}

func TestDispatchOnlyRunsAreDiscoverable(t *testing.T) {
	ctx := context.Background()
	s := New(WithDispatchOnly())
	repo := provider.RepoRef{Owner: "acme", Name: "app"}

	run, err := s.TriggerWorkflow(ctx, provider.TriggerWorkflowRequest{WorkflowRef: "build.yml", Ref: "release/v1.4.0"})
	if err != nil {
		t.Fatalf("TriggerWorkflow: %v", err)
	}
	if run.ID != "" {
		t.Errorf("dispatch-only trigger returned run %q", run.ID)
	}

	found, err := s.FindDispatchedRun(ctx, repo, "build.yml", "release/v1.4.0")
	if err != nil {
		t.Fatalf("FindDispatchedRun: %v", err)
	}
	if found.ID != "run-1" {
		t.Errorf("found run = %q, want run-1", found.ID)
	}

	missing, err := s.FindDispatchedRun(ctx, repo, "other.yml", "main")
	if err != nil {
		t.Fatalf("FindDispatchedRun unknown: %v", err)
	}
	if missing.ID != "" {
		t.Errorf("unknown dispatch returned run %q", missing.ID)
	}
}

func TestTicketKeysAreSequential(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, err := s.CreateReleaseTicket(ctx, provider.CreateTicketRequest{ProjectKey: "MOB", Title: "Android 1.4.0"})
	if err != nil {
		t.Fatalf("CreateReleaseTicket: %v", err)
	}
	second, err := s.CreateReleaseTicket(ctx, provider.CreateTicketRequest{ProjectKey: "MOB", Title: "iOS 1.4.0"})
	if err != nil {
		t.Fatalf("CreateReleaseTicket: %v", err)
	}
	if first.Key != "MOB-1" || second.Key != "MOB-2" {
		t.Errorf("keys = %s, %s", first.Key, second.Key)
	}

	status, err := s.TicketStatus(ctx, first.Key)
	if err != nil {
		t.Fatalf("TicketStatus: %v", err)
	}
	if status != "To Do" {
		t.Errorf("initial status = %q", status)
	}

	s.ResolveTickets()
	status, err = s.TicketStatus(ctx, second.Key)
	if err != nil {
		t.Fatalf("TicketStatus after resolve: %v", err)
	}
	if status != "Done" {
		t.Errorf("resolved status = %q", status)
	}

	if _, err := s.TicketStatus(ctx, "MOB-9"); err == nil {
		t.Error("expected error for unknown ticket")
	}
}

func TestTicketAutoDone(t *testing.T) {
	ctx := context.Background()
	s := New(WithTicketAutoDone(2))

	ticket, err := s.CreateReleaseTicket(ctx, provider.CreateTicketRequest{ProjectKey: "REL"})
	if err != nil {
		t.Fatalf("CreateReleaseTicket: %v", err)
	}

	status, _ := s.TicketStatus(ctx, ticket.Key)
	if status != "To Do" {
		t.Errorf("first check = %q, want To Do", status)
	}
	status, _ = s.TicketStatus(ctx, ticket.Key)
	if status != "Done" {
		t.Errorf("second check = %q, want Done", status)
	}
}

func TestSuiteRunsAndResets(t *testing.T) {
	ctx := context.Background()
	s := New()

	run, err := s.CreateSuiteRun(ctx, provider.CreateSuiteRunRequest{SuiteName: "Mobile Regression", Version: "1.4.0"})
	if err != nil {
		t.Fatalf("CreateSuiteRun: %v", err)
	}
	if run.ID != "suite-run-1" {
		t.Errorf("run ID = %q", run.ID)
	}

	if err := s.ResetSuiteRun(ctx, run.ID); err != nil {
		t.Fatalf("ResetSuiteRun: %v", err)
	}
	if got := s.Resets(); len(got) != 1 || got[0] != run.ID {
		t.Errorf("resets = %v", got)
	}

	if err := s.ResetSuiteRun(ctx, "suite-run-9"); err == nil {
		t.Error("expected error for unknown suite run")
	}
}

func TestMessagesAreRecorded(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, title := range []string{"Kickoff started", "Regression complete"} {
		if err := s.Send(ctx, provider.Message{Channel: "releases", Title: title}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("recorded %d messages, want 2", len(msgs))
	}
	if msgs[0].Title != "Kickoff started" || msgs[1].Title != "Regression complete" {
		t.Errorf("messages out of order: %+v", msgs)
	}
}

func TestRegisterCoversEveryCapability(t *testing.T) {
	reg := provider.NewRegistry()
	if err := New().Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := reg.SCM(ProviderType); err != nil {
		t.Errorf("SCM: %v", err)
	}
	if _, err := reg.CICD(ProviderType); err != nil {
		t.Errorf("CICD: %v", err)
	}
	if _, err := reg.WorkflowPoller(ProviderType); err != nil {
		t.Errorf("WorkflowPoller: %v", err)
	}
	if _, err := reg.PM(ProviderType); err != nil {
		t.Errorf("PM: %v", err)
	}
	if _, err := reg.TestManagement(ProviderType); err != nil {
		t.Errorf("TestManagement: %v", err)
	}
	if _, err := reg.Messaging(ProviderType); err != nil {
		t.Errorf("Messaging: %v", err)
	}
}
