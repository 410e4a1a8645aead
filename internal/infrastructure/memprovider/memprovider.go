// Package memprovider implements every provider capability in memory.
// Results are deterministic: branch and tag SHAs are derived from their
// inputs, ticket keys and run identifiers are sequential, and messages
// are recorded instead of delivered. The set backs dev-mode serving and
// the integration tests, where a pipeline must run end to end without
// any external system.
package memprovider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/railhead-io/railhead/internal/domain/provider"
	rherrors "github.com/railhead-io/railhead/internal/errors"
)

// ProviderType is the provider type the set registers under.
const ProviderType = "memory"

// Ensure Set covers every capability.
var (
	_ provider.SCM               = (*Set)(nil)
	_ provider.CICDWorkflow      = (*Set)(nil)
	_ provider.WorkflowPoller    = (*Set)(nil)
	_ provider.PMTicket          = (*Set)(nil)
	_ provider.TestManagementRun = (*Set)(nil)
	_ provider.Messaging         = (*Set)(nil)
)

type runState struct {
	run        provider.WorkflowRun
	polls      int
	conclusion string
}

type ticketState struct {
	status string
	checks int
}

// Set is one in-memory provider covering all capabilities. All methods
// are safe for concurrent use.
type Set struct {
	mu sync.Mutex

	completeAfter int
	conclusion    string
	dispatchOnly  bool
	autoDoneAfter int
	doneStatus    string

	branches    map[string]provider.BranchResult
	tags        map[string]provider.TagResult
	comparisons map[string][]provider.CommitInfo

	runSeq     int
	buildSeq   int
	runs       map[string]*runState
	runOrder   []string
	dispatched map[string]string

	ticketSeq int
	tickets   map[string]*ticketState

	suiteSeq int
	suites   map[string]bool
	resets   []string

	sent []provider.Message
}

// Option configures a Set.
type Option func(*Set)

// WithRunCompletion sets how many status polls a workflow run takes to
// complete and the conclusion it completes with.
func WithRunCompletion(polls int, conclusion string) Option {
	return func(s *Set) {
		if polls > 0 {
			s.completeAfter = polls
		}
		if conclusion != "" {
			s.conclusion = conclusion
		}
	}
}

// WithDispatchOnly makes TriggerWorkflow return an empty run, the way
// dispatch-style CI APIs do. The run is still discoverable through
// FindDispatchedRun.
func WithDispatchOnly() Option {
	return func(s *Set) { s.dispatchOnly = true }
}

// WithTicketAutoDone makes tickets reach the done status after the
// given number of status checks. The flipped status is returned on the
// check that crosses the threshold. Without this option tickets stay in
// their initial status until resolved explicitly.
func WithTicketAutoDone(checks int) Option {
	return func(s *Set) {
		if checks > 0 {
			s.autoDoneAfter = checks
		}
	}
}

// WithTicketDoneStatus overrides the status resolved tickets report.
func WithTicketDoneStatus(status string) Option {
	return func(s *Set) {
		if status != "" {
			s.doneStatus = status
		}
	}
}

// New creates an empty in-memory provider set.
func New(opts ...Option) *Set {
	s := &Set{
		completeAfter: 2,
		conclusion:    "success",
		doneStatus:    "Done",
		branches:      make(map[string]provider.BranchResult),
		tags:          make(map[string]provider.TagResult),
		comparisons:   make(map[string][]provider.CommitInfo),
		runs:          make(map[string]*runState),
		dispatched:    make(map[string]string),
		tickets:       make(map[string]*ticketState),
		suites:        make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register registers the set under ProviderType for every capability.
func (s *Set) Register(reg *provider.Registry) error {
	if err := reg.RegisterSCM(ProviderType, s); err != nil {
		return err
	}
	if err := reg.RegisterCICD(ProviderType, s); err != nil {
		return err
	}
	if err := reg.RegisterWorkflowPoller(ProviderType, s); err != nil {
		return err
	}
	if err := reg.RegisterPM(ProviderType, s); err != nil {
		return err
	}
	if err := reg.RegisterTestManagement(ProviderType, s); err != nil {
		return err
	}
	return reg.RegisterMessaging(ProviderType, s)
}

// CreateBranch records a branch with a SHA derived from its inputs. A
// branch that already exists is returned as-is, which mirrors how the
// real SCM providers converge replayed fork tasks.
func (s *Set) CreateBranch(_ context.Context, req provider.CreateBranchRequest) (provider.BranchResult, error) {
	if req.BranchName == "" {
		return provider.BranchResult{}, rherrors.Validation("memprovider.CreateBranch", "branch name cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.branches[req.BranchName]; ok {
		return existing, nil
	}
	res := provider.BranchResult{
		Name: req.BranchName,
		SHA:  pseudoSHA("branch", req.BranchName, req.FromRef),
	}
	s.branches[req.BranchName] = res
	return res, nil
}

// CreateTag records a tag pointing at the resolved target. An existing
// tag is returned as-is.
func (s *Set) CreateTag(_ context.Context, req provider.CreateTagRequest) (provider.TagResult, error) {
	if req.TagName == "" {
		return provider.TagResult{}, rherrors.Validation("memprovider.CreateTag", "tag name cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.tags[req.TagName]; ok {
		return existing, nil
	}
	res := provider.TagResult{
		Name: req.TagName,
		SHA:  s.resolveLocked(req.TargetRef),
	}
	s.tags[req.TagName] = res
	return res, nil
}

// CompareRefs returns the scripted commits for the base..head pair, or
// an empty comparison when nothing was scripted. Two equal refs always
// compare empty.
func (s *Set) CompareRefs(_ context.Context, req provider.CompareRequest) (provider.CompareResult, error) {
	if req.Base == req.Head {
		return provider.CompareResult{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	commits := s.comparisons[compareKey(req.Base, req.Head)]
	return provider.CompareResult{
		Commits: append([]provider.CommitInfo(nil), commits...),
	}, nil
}

// SetComparison scripts the commits CompareRefs reports for a
// base..head pair.
func (s *Set) SetComparison(base, head string, commits []provider.CommitInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comparisons[compareKey(base, head)] = append([]provider.CommitInfo(nil), commits...)
}

// TriggerWorkflow starts a synthetic run with a sequential ID and build
// number. The run progresses through status polls; see
// WorkflowRunStatus.
func (s *Set) TriggerWorkflow(_ context.Context, req provider.TriggerWorkflowRequest) (provider.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runSeq++
	s.buildSeq++
	run := provider.WorkflowRun{
		ID:          fmt.Sprintf("run-%d", s.runSeq),
		BuildNumber: fmt.Sprintf("%d", 100+s.buildSeq),
		URL:         fmt.Sprintf("https://ci.localhost/runs/run-%d", s.runSeq),
	}
	s.runs[run.ID] = &runState{run: run, conclusion: s.conclusion}
	s.runOrder = append(s.runOrder, run.ID)
	s.dispatched[dispatchKey(req.WorkflowRef, req.Ref)] = run.ID
	if s.dispatchOnly {
		return provider.WorkflowRun{}, nil
	}
	return run, nil
}

// WorkflowRunStatus advances the run one step per call. A run reports
// IN_PROGRESS until the configured number of polls is reached, then
// COMPLETED with its conclusion.
func (s *Set) WorkflowRunStatus(_ context.Context, _ provider.RepoRef, runID string) (provider.WorkflowRunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.runs[runID]
	if !ok {
		return provider.WorkflowRunState{}, rherrors.NotFound("memprovider.WorkflowRunStatus", fmt.Sprintf("run %s not found", runID))
	}
	state.polls++
	if state.polls >= s.completeAfter {
		return provider.WorkflowRunState{
			Status:     provider.RunCompleted,
			Conclusion: state.conclusion,
			URL:        state.run.URL,
		}, nil
	}
	return provider.WorkflowRunState{
		Status: provider.RunInProgress,
		URL:    state.run.URL,
	}, nil
}

// FindDispatchedRun returns the run the last trigger on the workflow
// and ref started. An unknown pair reports an empty run, which callers
// read as "not visible yet".
func (s *Set) FindDispatchedRun(_ context.Context, _ provider.RepoRef, workflowRef, ref string) (provider.WorkflowRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	runID, ok := s.dispatched[dispatchKey(workflowRef, ref)]
	if !ok {
		return provider.WorkflowRun{}, nil
	}
	return s.runs[runID].run, nil
}

// SetRunConclusion overrides the conclusion a run completes with.
func (s *Set) SetRunConclusion(runID, conclusion string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.runs[runID]
	if !ok {
		return rherrors.NotFound("memprovider.SetRunConclusion", fmt.Sprintf("run %s not found", runID))
	}
	state.conclusion = conclusion
	return nil
}

// RunIDs returns the identifiers of every triggered run in order.
func (s *Set) RunIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.runOrder...)
}

// CreateReleaseTicket opens a ticket with a sequential project key.
func (s *Set) CreateReleaseTicket(_ context.Context, req provider.CreateTicketRequest) (provider.Ticket, error) {
	project := req.ProjectKey
	if project == "" {
		project = "REL"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticketSeq++
	key := fmt.Sprintf("%s-%d", project, s.ticketSeq)
	s.tickets[key] = &ticketState{status: "To Do"}
	return provider.Ticket{
		Key: key,
		URL: "https://pm.localhost/browse/" + key,
	}, nil
}

// TicketStatus reports a ticket's status. With auto-done configured,
// the check that crosses the threshold flips the ticket to the done
// status and reports it.
func (s *Set) TicketStatus(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.tickets[key]
	if !ok {
		return "", rherrors.NotFound("memprovider.TicketStatus", fmt.Sprintf("ticket %s not found", key))
	}
	state.checks++
	if s.autoDoneAfter > 0 && state.checks >= s.autoDoneAfter {
		state.status = s.doneStatus
	}
	return state.status, nil
}

// ResolveTickets moves every known ticket to the done status.
func (s *Set) ResolveTickets() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, state := range s.tickets {
		state.status = s.doneStatus
	}
}

// SetTicketStatus sets one ticket's status.
func (s *Set) SetTicketStatus(key, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.tickets[key]
	if !ok {
		return rherrors.NotFound("memprovider.SetTicketStatus", fmt.Sprintf("ticket %s not found", key))
	}
	state.status = status
	return nil
}

// CreateSuiteRun creates a suite run with a sequential identifier.
func (s *Set) CreateSuiteRun(_ context.Context, _ provider.CreateSuiteRunRequest) (provider.SuiteRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suiteSeq++
	id := fmt.Sprintf("suite-run-%d", s.suiteSeq)
	s.suites[id] = true
	return provider.SuiteRun{
		ID:  id,
		URL: "https://tms.localhost/runs/" + id,
	}, nil
}

// ResetSuiteRun records a reset of an existing suite run.
func (s *Set) ResetSuiteRun(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.suites[runID] {
		return rherrors.NotFound("memprovider.ResetSuiteRun", fmt.Sprintf("suite run %s not found", runID))
	}
	s.resets = append(s.resets, runID)
	return nil
}

// Resets returns the suite run IDs that were reset, in order.
func (s *Set) Resets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.resets...)
}

// Send records the message.
func (s *Set) Send(_ context.Context, msg provider.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

// Messages returns every recorded message in send order.
func (s *Set) Messages() []provider.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]provider.Message(nil), s.sent...)
}

// Branch returns a recorded branch.
func (s *Set) Branch(name string) (provider.BranchResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.branches[name]
	return res, ok
}

// Tag returns a recorded tag.
func (s *Set) Tag(name string) (provider.TagResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.tags[name]
	return res, ok
}

// resolveLocked maps a ref to a SHA. Known branches and tags resolve to
// their recorded SHA so tags land on the commit the branch points at.
func (s *Set) resolveLocked(ref string) string {
	if b, ok := s.branches[ref]; ok {
		return b.SHA
	}
	if t, ok := s.tags[ref]; ok {
		return t.SHA
	}
	return pseudoSHA("ref", ref)
}

// pseudoSHA derives a stable 40-hex-digit identifier from its inputs.
func pseudoSHA(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:40]
}

func compareKey(base, head string) string { return base + ".." + head }

func dispatchKey(workflowRef, ref string) string { return workflowRef + "@" + ref }
