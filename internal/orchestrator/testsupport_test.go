package orchestrator

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/ports"
	"github.com/railhead-io/railhead/internal/domain/provider"
	"github.com/railhead-io/railhead/internal/domain/release"
	"github.com/railhead-io/railhead/internal/infrastructure/persistence/memory"
)

const testProvider = "fake"

// testClock is a hand-advanced clock so tests control what "now" means
// between ticks.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock { return &testClock{now: start} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeSCM struct {
	mu        sync.Mutex
	branches  []provider.CreateBranchRequest
	tags      []provider.CreateTagRequest
	commits   []provider.CommitInfo
	branchErr error
	tagErr    error
}

func (f *fakeSCM) CreateBranch(_ context.Context, req provider.CreateBranchRequest) (provider.BranchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.branchErr != nil {
		return provider.BranchResult{}, f.branchErr
	}
	f.branches = append(f.branches, req)
	return provider.BranchResult{Name: req.BranchName, SHA: "sha-" + req.BranchName}, nil
}

func (f *fakeSCM) CreateTag(_ context.Context, req provider.CreateTagRequest) (provider.TagResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tagErr != nil {
		return provider.TagResult{}, f.tagErr
	}
	f.tags = append(f.tags, req)
	return provider.TagResult{Name: req.TagName, SHA: "sha-" + req.TagName}, nil
}

func (f *fakeSCM) CompareRefs(_ context.Context, _ provider.CompareRequest) (provider.CompareResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return provider.CompareResult{Commits: f.commits}, nil
}

func (f *fakeSCM) tagNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.tags))
	for _, tag := range f.tags {
		names = append(names, tag.TagName)
	}
	return names
}

type fakeCICD struct {
	mu       sync.Mutex
	triggers []provider.TriggerWorkflowRequest
	seq      int
	// dispatch mimics providers whose trigger API does not report the
	// run it started.
	dispatch bool
	err      error
}

func (f *fakeCICD) TriggerWorkflow(_ context.Context, req provider.TriggerWorkflowRequest) (provider.WorkflowRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return provider.WorkflowRun{}, f.err
	}
	f.triggers = append(f.triggers, req)
	if f.dispatch {
		return provider.WorkflowRun{}, nil
	}
	f.seq++
	return provider.WorkflowRun{
		ID:          fmt.Sprintf("run-%d", f.seq),
		BuildNumber: fmt.Sprintf("%d", 100+f.seq),
		URL:         fmt.Sprintf("https://ci.test/runs/%d", f.seq),
	}, nil
}

func (f *fakeCICD) triggered() []provider.TriggerWorkflowRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.TriggerWorkflowRequest(nil), f.triggers...)
}

type fakePM struct {
	mu       sync.Mutex
	seq      int
	tickets  []provider.CreateTicketRequest
	statuses map[string]string
	err      error
}

func newFakePM() *fakePM { return &fakePM{statuses: map[string]string{}} }

func (f *fakePM) CreateReleaseTicket(_ context.Context, req provider.CreateTicketRequest) (provider.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return provider.Ticket{}, f.err
	}
	f.seq++
	f.tickets = append(f.tickets, req)
	key := fmt.Sprintf("%s-%d", req.ProjectKey, f.seq)
	f.statuses[key] = "To Do"
	return provider.Ticket{Key: key, URL: "https://pm.test/browse/" + key}, nil
}

func (f *fakePM) TicketStatus(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[key]
	if !ok {
		return "", fmt.Errorf("ticket %s not found", key)
	}
	return status, nil
}

// resolveAll moves every known ticket to the given status.
func (f *fakePM) resolveAll(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.statuses {
		f.statuses[key] = status
	}
}

type fakeTestMgmt struct {
	mu     sync.Mutex
	seq    int
	suites []provider.CreateSuiteRunRequest
	resets []string
	err    error
}

func (f *fakeTestMgmt) CreateSuiteRun(_ context.Context, req provider.CreateSuiteRunRequest) (provider.SuiteRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return provider.SuiteRun{}, f.err
	}
	f.seq++
	f.suites = append(f.suites, req)
	id := fmt.Sprintf("suite-%d", f.seq)
	return provider.SuiteRun{ID: id, URL: "https://tms.test/runs/" + id}, nil
}

func (f *fakeTestMgmt) ResetSuiteRun(_ context.Context, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.resets = append(f.resets, runID)
	return nil
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []provider.Message
	err  error
}

func (f *fakeMessenger) Send(_ context.Context, msg provider.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMessenger) messages() []provider.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.Message(nil), f.sent...)
}

type fakePoller struct {
	mu         sync.Mutex
	states     map[string]provider.WorkflowRunState
	dispatched map[string]provider.WorkflowRun
}

func newFakePoller() *fakePoller {
	return &fakePoller{
		states:     map[string]provider.WorkflowRunState{},
		dispatched: map[string]provider.WorkflowRun{},
	}
}

func (f *fakePoller) WorkflowRunStatus(_ context.Context, _ provider.RepoRef, runID string) (provider.WorkflowRunState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[runID]
	if !ok {
		return provider.WorkflowRunState{}, fmt.Errorf("run %s not found", runID)
	}
	return state, nil
}

func (f *fakePoller) FindDispatchedRun(_ context.Context, _ provider.RepoRef, workflowRef, ref string) (provider.WorkflowRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dispatched[workflowRef+"@"+ref], nil
}

func (f *fakePoller) setDispatched(workflowRef, ref string, run provider.WorkflowRun) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched[workflowRef+"@"+ref] = run
}

func (f *fakePoller) setState(runID string, state provider.WorkflowRunState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[runID] = state
}

// fixtureOpts shapes the release and pipeline a fixture starts with.
// The zero value gives a two-platform minor release whose kick-off is
// due immediately, with builds on and automation off.
type fixtureOpts struct {
	cron       *pipeline.CronConfig
	slots      []pipeline.RegressionSlot
	auto2      bool
	auto3      bool
	platforms  []release.Platform
	reminder   *time.Time
	noTestMgmt bool
	dispatch   bool

	// kickOffDelay pushes the kick-off date past the fixture start.
	kickOffDelay time.Duration
}

type fixture struct {
	db       *memory.DB
	store    ports.Store
	clock    *testClock
	registry *provider.Registry

	scm      *fakeSCM
	cicd     *fakeCICD
	pm       *fakePM
	testMgmt *fakeTestMgmt
	msgr     *fakeMessenger
	poller   *fakePoller

	exec  *TaskExecutor
	orch  *Orchestrator
	relID release.ReleaseID
}

var fixtureStart = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()
	ctx := context.Background()

	db := memory.New()
	f := &fixture{
		db:       db,
		store:    db.Store(),
		clock:    newTestClock(fixtureStart),
		scm:      &fakeSCM{},
		cicd:     &fakeCICD{dispatch: opts.dispatch},
		pm:       newFakePM(),
		testMgmt: &fakeTestMgmt{},
		msgr:     &fakeMessenger{},
		poller:   newFakePoller(),
	}

	reg := provider.NewRegistry()
	for _, err := range []error{
		reg.RegisterSCM(testProvider, f.scm),
		reg.RegisterCICD(testProvider, f.cicd),
		reg.RegisterPM(testProvider, f.pm),
		reg.RegisterMessaging(testProvider, f.msgr),
		reg.RegisterTestManagement(testProvider, f.testMgmt),
		reg.RegisterWorkflowPoller(testProvider, f.poller),
	} {
		if err != nil {
			t.Fatalf("register provider: %v", err)
		}
	}
	f.registry = reg

	cfg := &release.ReleaseConfig{
		ID:                "cfg-1",
		TenantID:          "tenant-1",
		Name:              "mobile releases",
		SCMProvider:       testProvider,
		CICDProvider:      testProvider,
		PMProvider:        testProvider,
		MessagingProvider: testProvider,
		Settings: release.ConfigSettings{
			RepoOwner: "acme",
			RepoName:  "mobile",
			CICDWorkflows: map[string]string{
				"android": "android-build.yml",
				"ios":     "ios-build.yml",
			},
			TestFlightWorkflow:  "testflight.yml",
			AutomationWorkflow:  "automation.yml",
			PMProjectKey:        "REL",
			TestSuiteName:       "Mobile Regression",
			NotificationChannel: "releases",
		},
		CreatedAt: fixtureStart,
		UpdatedAt: fixtureStart,
	}
	if !opts.noTestMgmt {
		cfg.TestManagementProvider = testProvider
	}
	if err := f.store.Configs.Create(ctx, cfg); err != nil {
		t.Fatalf("create config: %v", err)
	}

	kickOff := fixtureStart.Add(opts.kickOffDelay)
	rel, err := release.NewRelease(release.NewReleaseParams{
		ID:                  "rel-1",
		TenantID:            "tenant-1",
		Type:                release.TypeMinor,
		BaseBranch:          "develop",
		ConfigID:            cfg.ID,
		TargetReleaseDate:   kickOff.AddDate(0, 0, 14),
		KickOffDate:         kickOff,
		KickOffReminderDate: opts.reminder,
		CreatedByAccountID:  "acct-1",
		PilotAccountID:      "acct-2",
	}, fixtureStart)
	if err != nil {
		t.Fatalf("NewRelease() error = %v", err)
	}
	if err := rel.Begin("acct-1", fixtureStart); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := f.store.Releases.Create(ctx, rel); err != nil {
		t.Fatalf("create release: %v", err)
	}
	f.relID = rel.ID()

	platforms := opts.platforms
	if platforms == nil {
		platforms = []release.Platform{release.PlatformAndroid, release.PlatformIOS}
	}
	mappings := make(release.Mappings, 0, len(platforms))
	for _, p := range platforms {
		mappings = append(mappings, release.PlatformTargetMapping{
			ReleaseID: rel.ID(),
			Platform:  p,
			Target:    p.DefaultTarget(),
			Version:   "1.0.0",
		})
	}
	if err := f.store.Mappings.ReplaceForRelease(ctx, rel.ID(), mappings); err != nil {
		t.Fatalf("replace mappings: %v", err)
	}

	cronCfg := pipeline.CronConfig{PreRegressionBuilds: true, TestFlightBuilds: true}
	if opts.cron != nil {
		cronCfg = *opts.cron
	}
	job, err := pipeline.NewCronJob(pipeline.NewCronJobParams{
		ID:                     "cron-1",
		ReleaseID:              rel.ID(),
		Config:                 cronCfg,
		UpcomingRegressions:    opts.slots,
		AutoTransitionToStage2: opts.auto2,
		AutoTransitionToStage3: opts.auto3,
	}, fixtureStart)
	if err != nil {
		t.Fatalf("NewCronJob() error = %v", err)
	}
	if err := job.Start(fixtureStart); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.store.CronJobs.Create(ctx, job); err != nil {
		t.Fatalf("create cron job: %v", err)
	}

	logger := log.New(io.Discard)
	f.exec = NewTaskExecutor(ExecutorParams{
		Store:  f.store,
		Clock:  f.clock,
		Logger: logger,
	})
	f.orch = NewOrchestrator(OrchestratorParams{
		Store:    f.store,
		Tx:       db,
		Registry: reg,
		Executor: f.exec,
		Clock:    f.clock,
		Logger:   logger,
	})
	return f
}

// tick runs one orchestrator pass and fails the test on error.
func (f *fixture) tick(t *testing.T) {
	t.Helper()
	if err := f.orch.ExecuteRelease(context.Background(), f.relID); err != nil {
		t.Fatalf("ExecuteRelease() error = %v", err)
	}
}

func (f *fixture) tickErr() error {
	return f.orch.ExecuteRelease(context.Background(), f.relID)
}

func (f *fixture) job(t *testing.T) *pipeline.CronJob {
	t.Helper()
	job, err := f.store.CronJobs.FindByReleaseID(context.Background(), f.relID)
	if err != nil {
		t.Fatalf("FindByReleaseID() error = %v", err)
	}
	return job
}

func (f *fixture) saveJob(t *testing.T, job *pipeline.CronJob) {
	t.Helper()
	if err := f.store.CronJobs.Update(context.Background(), job); err != nil {
		t.Fatalf("update cron job: %v", err)
	}
}

func (f *fixture) release(t *testing.T) *release.Release {
	t.Helper()
	rel, err := f.store.Releases.FindByID(context.Background(), f.relID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	return rel
}

func (f *fixture) saveRelease(t *testing.T, rel *release.Release) {
	t.Helper()
	if err := f.store.Releases.Update(context.Background(), rel); err != nil {
		t.Fatalf("update release: %v", err)
	}
}

func (f *fixture) stageTasks(t *testing.T, stage release.Stage) []*pipeline.ReleaseTask {
	t.Helper()
	tasks, err := f.store.Tasks.FindByReleaseAndStage(context.Background(), f.relID, stage)
	if err != nil {
		t.Fatalf("FindByReleaseAndStage(%s) error = %v", stage, err)
	}
	return tasks
}

// task returns the newest task of the given type.
func (f *fixture) task(t *testing.T, taskType pipeline.TaskType) *pipeline.ReleaseTask {
	t.Helper()
	tasks, err := f.store.Tasks.FindByTaskType(context.Background(), f.relID, taskType)
	if err != nil {
		t.Fatalf("FindByTaskType(%s) error = %v", taskType, err)
	}
	if len(tasks) == 0 {
		t.Fatalf("no %s task found", taskType)
	}
	return tasks[0]
}

func (f *fixture) saveTask(t *testing.T, task *pipeline.ReleaseTask) {
	t.Helper()
	if err := f.store.Tasks.Update(context.Background(), task); err != nil {
		t.Fatalf("update task: %v", err)
	}
}

func (f *fixture) latestCycle(t *testing.T) *pipeline.RegressionCycle {
	t.Helper()
	cycle, err := f.store.Cycles.FindLatest(context.Background(), f.relID)
	if err != nil {
		t.Fatalf("FindLatest() error = %v", err)
	}
	return cycle
}

func requireStage(t *testing.T, job *pipeline.CronJob, stage release.Stage, want pipeline.StageStatus) {
	t.Helper()
	if got := job.StageStatusFor(stage); got != want {
		t.Fatalf("stage %s = %s, want %s", stage, got, want)
	}
}

func completeAll(t *testing.T, f *fixture, stage release.Stage) {
	t.Helper()
	for _, task := range f.stageTasks(t, stage) {
		if task.Status() != pipeline.TaskCompleted {
			t.Fatalf("%s task %s = %s, want COMPLETED", stage, task.Type(), task.Status())
		}
	}
}
