package provider

import (
	"context"
	"time"
)

// RepoRef locates a source repository at a provider.
type RepoRef struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// CreateBranchRequest asks the SCM provider to cut a branch.
type CreateBranchRequest struct {
	Repo       RepoRef
	BranchName string
	FromRef    string
}

// BranchResult reports a created branch.
type BranchResult struct {
	Name string
	SHA  string
}

// CreateTagRequest asks the SCM provider to create a tag.
type CreateTagRequest struct {
	Repo      RepoRef
	TagName   string
	TargetRef string
	Message   string
}

// TagResult reports a created tag.
type TagResult struct {
	Name string
	SHA  string
}

// CompareRequest asks the SCM provider for the commits between two refs.
type CompareRequest struct {
	Repo RepoRef
	Base string
	Head string
}

// CommitInfo is one commit in a comparison.
type CommitInfo struct {
	SHA      string
	Title    string
	Author   string
	Authored time.Time
}

// CompareResult reports the commits between two refs, oldest first.
type CompareResult struct {
	Commits []CommitInfo
}

// SCM providers manage branches, tags and ref comparisons.
type SCM interface {
	// CreateBranch cuts a branch from the given ref.
	CreateBranch(ctx context.Context, req CreateBranchRequest) (BranchResult, error)

	// CreateTag creates an annotated tag at the given ref.
	CreateTag(ctx context.Context, req CreateTagRequest) (TagResult, error)

	// CompareRefs lists the commits reachable from head but not base.
	CompareRefs(ctx context.Context, req CompareRequest) (CompareResult, error)
}

// TriggerWorkflowRequest asks the CI/CD provider to start a workflow.
type TriggerWorkflowRequest struct {
	Repo        RepoRef
	WorkflowRef string
	Ref         string
	Inputs      map[string]string
}

// WorkflowRun reports a triggered workflow run.
type WorkflowRun struct {
	ID          string
	BuildNumber string
	URL         string
}

// CICDWorkflow providers trigger build workflows.
type CICDWorkflow interface {
	// TriggerWorkflow starts a workflow on the given ref and returns
	// the run it started.
	TriggerWorkflow(ctx context.Context, req TriggerWorkflowRequest) (WorkflowRun, error)
}

// RunStatus is the coarse state of a workflow run.
type RunStatus string

// Workflow run statuses.
const (
	RunQueued     RunStatus = "QUEUED"
	RunInProgress RunStatus = "IN_PROGRESS"
	RunCompleted  RunStatus = "COMPLETED"
)

// WorkflowRunState reports the observed state of a workflow run.
type WorkflowRunState struct {
	Status     RunStatus
	Conclusion string
	URL        string
}

// WorkflowPoller providers observe workflow runs they did not
// necessarily trigger.
type WorkflowPoller interface {
	// WorkflowRunStatus fetches the current state of a run.
	WorkflowRunStatus(ctx context.Context, repo RepoRef, runID string) (WorkflowRunState, error)

	// FindDispatchedRun locates the run a workflow dispatch started on
	// the given ref. Providers whose dispatch API does not return the
	// run identifier are discovered through this after the fact.
	FindDispatchedRun(ctx context.Context, repo RepoRef, workflowRef, ref string) (WorkflowRun, error)
}

// CreateTicketRequest asks the PM provider to open a release ticket.
type CreateTicketRequest struct {
	ProjectKey  string
	Title       string
	Description string
	Platform    string
	Version     string
	Labels      []string
}

// Ticket reports a created ticket.
type Ticket struct {
	Key string
	URL string
}

// PMTicket providers manage project management tickets.
type PMTicket interface {
	// CreateReleaseTicket opens the release ticket for one platform.
	CreateReleaseTicket(ctx context.Context, req CreateTicketRequest) (Ticket, error)

	// TicketStatus fetches the current status name of a ticket.
	TicketStatus(ctx context.Context, key string) (string, error)
}

// CreateSuiteRunRequest asks the test management provider for a suite run.
type CreateSuiteRunRequest struct {
	SuiteName   string
	Version     string
	Description string
}

// SuiteRun reports a created test suite run.
type SuiteRun struct {
	ID  string
	URL string
}

// TestManagementRun providers manage regression test suite runs.
type TestManagementRun interface {
	// CreateSuiteRun creates a fresh suite run for a release.
	CreateSuiteRun(ctx context.Context, req CreateSuiteRunRequest) (SuiteRun, error)

	// ResetSuiteRun clears the results of an existing suite run so the
	// next regression cycle starts clean.
	ResetSuiteRun(ctx context.Context, runID string) error
}

// Message is one notification to a channel.
type Message struct {
	Channel string
	Title   string
	Body    string
	Fields  map[string]string
}

// Messaging providers deliver notifications.
type Messaging interface {
	// Send delivers a message to its channel.
	Send(ctx context.Context, msg Message) error
}
