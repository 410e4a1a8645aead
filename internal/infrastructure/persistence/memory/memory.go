// Package memory provides an in-memory Store implementation. It backs
// unit tests, the demo seed path and single-process deployments that do
// not need a database. Rows are held in their persisted form, so every
// read rebuilds a fresh aggregate exactly like the SQL store does.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/railhead-io/railhead/internal/domain/pipeline"
	"github.com/railhead-io/railhead/internal/domain/ports"
	"github.com/railhead-io/railhead/internal/domain/release"
)

// DB is the shared state behind one in-memory Store. All repositories
// returned by Store share the same mutex, which stands in for the
// row-level locking a real database provides.
type DB struct {
	mu sync.RWMutex

	releases  map[release.ReleaseID]release.ReconstructReleaseParams
	cronJobs  map[release.ReleaseID]pipeline.ReconstructCronJobParams
	tasks     map[string]pipeline.ReconstructTaskParams
	cycles    map[string]pipeline.ReconstructCycleParams
	tagCounts map[release.ReleaseID]int
	mappings  map[release.ReleaseID]release.Mappings
	uploads   map[release.ReleaseID][]release.ReleaseUpload
	builds    map[release.ReleaseID][]pipeline.Build
	history   map[release.ReleaseID][]release.StateHistory
	configs   map[string]release.ReleaseConfig
}

// New creates an empty in-memory database.
func New() *DB {
	return &DB{
		releases:  make(map[release.ReleaseID]release.ReconstructReleaseParams),
		cronJobs:  make(map[release.ReleaseID]pipeline.ReconstructCronJobParams),
		tasks:     make(map[string]pipeline.ReconstructTaskParams),
		cycles:    make(map[string]pipeline.ReconstructCycleParams),
		tagCounts: make(map[release.ReleaseID]int),
		mappings:  make(map[release.ReleaseID]release.Mappings),
		uploads:   make(map[release.ReleaseID][]release.ReleaseUpload),
		builds:    make(map[release.ReleaseID][]pipeline.Build),
		history:   make(map[release.ReleaseID][]release.StateHistory),
		configs:   make(map[string]release.ReleaseConfig),
	}
}

// Store returns the repository bundle backed by this database.
func (db *DB) Store() ports.Store {
	return ports.Store{
		Releases: &releaseRepo{db},
		CronJobs: &cronJobRepo{db},
		Tasks:    &taskRepo{db},
		Cycles:   &cycleRepo{db},
		Mappings: &mappingRepo{db},
		Uploads:  &uploadRepo{db},
		Builds:   &buildRepo{db},
		History:  &historyRepo{db},
		Configs:  &configRepo{db},
	}
}

// WithinTx runs fn against a snapshot of the database and adopts the
// snapshot's state only when fn succeeds. Other callers block for the
// duration, which matches the serializable isolation the orchestrator
// expects for multi-row steps.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, s ports.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.cloneLocked()
	if err := fn(ctx, snapshot.Store()); err != nil {
		return err
	}
	db.adoptLocked(snapshot)
	return nil
}

func (db *DB) cloneLocked() *DB {
	out := New()
	for k, v := range db.releases {
		out.releases[k] = v
	}
	for k, v := range db.cronJobs {
		v.UpcomingRegressions = append([]pipeline.RegressionSlot(nil), v.UpcomingRegressions...)
		out.cronJobs[k] = v
	}
	for k, v := range db.tasks {
		v.ExternalData = v.ExternalData.Clone()
		out.tasks[k] = v
	}
	for k, v := range db.cycles {
		out.cycles[k] = v
	}
	for k, v := range db.tagCounts {
		out.tagCounts[k] = v
	}
	for k, v := range db.mappings {
		out.mappings[k] = append(release.Mappings(nil), v...)
	}
	for k, v := range db.uploads {
		out.uploads[k] = append([]release.ReleaseUpload(nil), v...)
	}
	for k, v := range db.builds {
		out.builds[k] = append([]pipeline.Build(nil), v...)
	}
	for k, v := range db.history {
		entries := make([]release.StateHistory, len(v))
		for i, h := range v {
			h.Items = append([]release.StateHistoryItem(nil), h.Items...)
			entries[i] = h
		}
		out.history[k] = entries
	}
	for k, v := range db.configs {
		out.configs[k] = v
	}
	return out
}

func (db *DB) adoptLocked(snapshot *DB) {
	db.releases = snapshot.releases
	db.cronJobs = snapshot.cronJobs
	db.tasks = snapshot.tasks
	db.cycles = snapshot.cycles
	db.tagCounts = snapshot.tagCounts
	db.mappings = snapshot.mappings
	db.uploads = snapshot.uploads
	db.builds = snapshot.builds
	db.history = snapshot.history
	db.configs = snapshot.configs
}

func copyStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// --- releases ---

type releaseRepo struct{ db *DB }

func releaseRow(r *release.Release) release.ReconstructReleaseParams {
	return release.ReconstructReleaseParams{
		ID:                   r.ID(),
		TenantID:             r.TenantID(),
		Type:                 r.Type(),
		Status:               r.Status(),
		Branch:               r.Branch(),
		BaseBranch:           r.BaseBranch(),
		ConfigID:             r.ConfigID(),
		TargetReleaseDate:    r.TargetReleaseDate(),
		KickOffDate:          r.KickOffDate(),
		KickOffReminderDate:  copyTime(r.KickOffReminderDate()),
		HasManualBuildUpload: r.HasManualBuildUpload(),
		CreatedByAccountID:   r.CreatedByAccountID(),
		PilotAccountID:       r.PilotAccountID(),
		LastUpdatedAccountID: r.LastUpdatedAccountID(),
		CreatedAt:            r.CreatedAt(),
		UpdatedAt:            r.UpdatedAt(),
	}
}

func (r *releaseRepo) Create(ctx context.Context, rel *release.Release) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, exists := r.db.releases[rel.ID()]; exists {
		return fmt.Errorf("release %s already exists", rel.ID())
	}
	r.db.releases[rel.ID()] = releaseRow(rel)
	return nil
}

func (r *releaseRepo) FindByID(ctx context.Context, id release.ReleaseID) (*release.Release, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	row, ok := r.db.releases[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", release.ErrReleaseNotFound, id)
	}
	return release.ReconstructRelease(row), nil
}

func (r *releaseRepo) FindByTenant(ctx context.Context, tenantID string) ([]*release.Release, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var rows []release.ReconstructReleaseParams
	for _, row := range r.db.releases {
		if row.TenantID == tenantID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID > rows[j].ID
	})
	out := make([]*release.Release, 0, len(rows))
	for _, row := range rows {
		out = append(out, release.ReconstructRelease(row))
	}
	return out, nil
}

func (r *releaseRepo) FindByStatus(ctx context.Context, status release.Status) ([]*release.Release, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var rows []release.ReconstructReleaseParams
	for _, row := range r.db.releases {
		if row.Status == status {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	out := make([]*release.Release, 0, len(rows))
	for _, row := range rows {
		out = append(out, release.ReconstructRelease(row))
	}
	return out, nil
}

func (r *releaseRepo) Update(ctx context.Context, rel *release.Release) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.releases[rel.ID()]; !ok {
		return fmt.Errorf("%w: %s", release.ErrReleaseNotFound, rel.ID())
	}
	r.db.releases[rel.ID()] = releaseRow(rel)
	return nil
}

// --- cron jobs ---

type cronJobRepo struct{ db *DB }

func cronRow(j *pipeline.CronJob, version int) pipeline.ReconstructCronJobParams {
	return pipeline.ReconstructCronJobParams{
		ID:                     j.ID(),
		ReleaseID:              j.ReleaseID(),
		Stage1Status:           j.StageStatusFor(release.StageKickoff),
		Stage2Status:           j.StageStatusFor(release.StageRegression),
		Stage3Status:           j.StageStatusFor(release.StagePostRegression),
		CronStatus:             j.CronStatus(),
		PauseType:              j.PauseReason(),
		AutoTransitionToStage2: j.AutoTransitionToStage2(),
		AutoTransitionToStage3: j.AutoTransitionToStage3(),
		Config:                 j.Config(),
		UpcomingRegressions:    j.UpcomingRegressions(),
		LockedBy:               copyStr(j.LockedBy()),
		LockedAt:               copyTime(j.LockedAt()),
		LockTimeoutSec:         j.LockTimeoutSec(),
		Version:                version,
		CreatedAt:              j.CreatedAt(),
		UpdatedAt:              j.UpdatedAt(),
	}
}

func (r *cronJobRepo) Create(ctx context.Context, job *pipeline.CronJob) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, exists := r.db.cronJobs[job.ReleaseID()]; exists {
		return fmt.Errorf("cron job for release %s already exists", job.ReleaseID())
	}
	r.db.cronJobs[job.ReleaseID()] = cronRow(job, job.Version())
	return nil
}

func (r *cronJobRepo) FindByReleaseID(ctx context.Context, releaseID release.ReleaseID) (*pipeline.CronJob, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	row, ok := r.db.cronJobs[releaseID]
	if !ok {
		return nil, fmt.Errorf("%w: release %s", pipeline.ErrCronJobNotFound, releaseID)
	}
	return pipeline.ReconstructCronJob(row), nil
}

func (r *cronJobRepo) FindRunningCandidates(ctx context.Context) ([]*pipeline.CronJob, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var rows []pipeline.ReconstructCronJobParams
	for _, row := range r.db.cronJobs {
		if row.CronStatus == pipeline.CronRunning {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ReleaseID < rows[j].ReleaseID })
	out := make([]*pipeline.CronJob, 0, len(rows))
	for _, row := range rows {
		out = append(out, pipeline.ReconstructCronJob(row))
	}
	return out, nil
}

// Update applies an optimistic version check: the aggregate must carry
// the version it was read at, and the stored row advances by one. A
// caller holding a stale aggregate gets ErrStaleCronJob and must refetch.
func (r *cronJobRepo) Update(ctx context.Context, job *pipeline.CronJob) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	row, ok := r.db.cronJobs[job.ReleaseID()]
	if !ok {
		return fmt.Errorf("%w: release %s", pipeline.ErrCronJobNotFound, job.ReleaseID())
	}
	if row.Version != job.Version() {
		return fmt.Errorf("%w: have %d, row is %d", pipeline.ErrStaleCronJob, job.Version(), row.Version)
	}
	next := cronRow(job, row.Version+1)
	// Lease columns are owned by the lease operations, not by Update.
	next.LockedBy = row.LockedBy
	next.LockedAt = row.LockedAt
	r.db.cronJobs[job.ReleaseID()] = next
	return nil
}

func (r *cronJobRepo) AcquireLease(ctx context.Context, releaseID release.ReleaseID, owner string, now time.Time) (bool, error) {
	if owner == "" {
		return false, fmt.Errorf("lease owner cannot be empty")
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	row, ok := r.db.cronJobs[releaseID]
	if !ok {
		return false, fmt.Errorf("%w: release %s", pipeline.ErrCronJobNotFound, releaseID)
	}
	if row.LockedBy != nil && *row.LockedBy != owner && !leaseExpired(row, now) {
		return false, nil
	}
	row.LockedBy = &owner
	at := now
	row.LockedAt = &at
	// Taking the lease advances the version like any other write, so a
	// reader holding the pre-acquire row cannot overwrite the lease.
	row.Version++
	r.db.cronJobs[releaseID] = row
	return true, nil
}

func (r *cronJobRepo) RenewLease(ctx context.Context, releaseID release.ReleaseID, owner string, now time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	row, ok := r.db.cronJobs[releaseID]
	if !ok {
		return false, fmt.Errorf("%w: release %s", pipeline.ErrCronJobNotFound, releaseID)
	}
	if row.LockedBy == nil || *row.LockedBy != owner {
		return false, nil
	}
	at := now
	row.LockedAt = &at
	r.db.cronJobs[releaseID] = row
	return true, nil
}

func (r *cronJobRepo) ReleaseLease(ctx context.Context, releaseID release.ReleaseID, owner string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	row, ok := r.db.cronJobs[releaseID]
	if !ok {
		return fmt.Errorf("%w: release %s", pipeline.ErrCronJobNotFound, releaseID)
	}
	if row.LockedBy == nil || *row.LockedBy != owner {
		return nil
	}
	row.LockedBy = nil
	row.LockedAt = nil
	r.db.cronJobs[releaseID] = row
	return nil
}

func leaseExpired(row pipeline.ReconstructCronJobParams, now time.Time) bool {
	if row.LockedAt == nil {
		return true
	}
	timeout := row.LockTimeoutSec
	if timeout <= 0 {
		timeout = pipeline.DefaultLockTimeoutSec
	}
	return now.Sub(*row.LockedAt) > time.Duration(timeout)*time.Second
}

// --- tasks ---

type taskRepo struct{ db *DB }

func taskRow(t *pipeline.ReleaseTask) pipeline.ReconstructTaskParams {
	return pipeline.ReconstructTaskParams{
		ID:           t.ID(),
		ReleaseID:    t.ReleaseID(),
		RegressionID: copyStr(t.RegressionID()),
		Type:         t.Type(),
		Stage:        t.Stage(),
		Status:       t.Status(),
		ExternalID:   copyStr(t.ExternalID()),
		ExternalData: t.ExternalData().Clone(),
		CreatedAt:    t.CreatedAt(),
		UpdatedAt:    t.UpdatedAt(),
	}
}

func taskOrder(t pipeline.TaskType) int {
	spec, ok := pipeline.SpecFor(t)
	if !ok {
		return 99
	}
	return spec.Order
}

func sortCatalogOrder(rows []pipeline.ReconstructTaskParams) {
	sort.Slice(rows, func(i, j int) bool {
		oi, oj := taskOrder(rows[i].Type), taskOrder(rows[j].Type)
		if oi != oj {
			return oi < oj
		}
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].ID < rows[j].ID
	})
}

func (r *taskRepo) BulkCreate(ctx context.Context, tasks []*pipeline.ReleaseTask) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, t := range tasks {
		if _, exists := r.db.tasks[t.ID()]; exists {
			return fmt.Errorf("task %s already exists", t.ID())
		}
	}
	for _, t := range tasks {
		r.db.tasks[t.ID()] = taskRow(t)
	}
	return nil
}

func (r *taskRepo) FindByID(ctx context.Context, id string) (*pipeline.ReleaseTask, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	row, ok := r.db.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pipeline.ErrTaskNotFound, id)
	}
	return pipeline.ReconstructTask(row), nil
}

func (r *taskRepo) FindByReleaseAndStage(ctx context.Context, releaseID release.ReleaseID, stage release.Stage) ([]*pipeline.ReleaseTask, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var rows []pipeline.ReconstructTaskParams
	for _, row := range r.db.tasks {
		if row.ReleaseID == releaseID && row.Stage == stage {
			rows = append(rows, row)
		}
	}
	sortCatalogOrder(rows)
	out := make([]*pipeline.ReleaseTask, 0, len(rows))
	for _, row := range rows {
		out = append(out, pipeline.ReconstructTask(row))
	}
	return out, nil
}

func (r *taskRepo) FindByTaskType(ctx context.Context, releaseID release.ReleaseID, taskType pipeline.TaskType) ([]*pipeline.ReleaseTask, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var rows []pipeline.ReconstructTaskParams
	for _, row := range r.db.tasks {
		if row.ReleaseID == releaseID && row.Type == taskType {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID > rows[j].ID
	})
	out := make([]*pipeline.ReleaseTask, 0, len(rows))
	for _, row := range rows {
		out = append(out, pipeline.ReconstructTask(row))
	}
	return out, nil
}

func (r *taskRepo) FindByRegressionCycle(ctx context.Context, regressionID string) ([]*pipeline.ReleaseTask, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var rows []pipeline.ReconstructTaskParams
	for _, row := range r.db.tasks {
		if row.RegressionID != nil && *row.RegressionID == regressionID {
			rows = append(rows, row)
		}
	}
	sortCatalogOrder(rows)
	out := make([]*pipeline.ReleaseTask, 0, len(rows))
	for _, row := range rows {
		out = append(out, pipeline.ReconstructTask(row))
	}
	return out, nil
}

func (r *taskRepo) Update(ctx context.Context, task *pipeline.ReleaseTask) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.tasks[task.ID()]; !ok {
		return fmt.Errorf("%w: %s", pipeline.ErrTaskNotFound, task.ID())
	}
	r.db.tasks[task.ID()] = taskRow(task)
	return nil
}

// --- regression cycles ---

type cycleRepo struct{ db *DB }

func cycleRow(c *pipeline.RegressionCycle) pipeline.ReconstructCycleParams {
	return pipeline.ReconstructCycleParams{
		ID:        c.ID(),
		ReleaseID: c.ReleaseID(),
		CycleTag:  c.CycleTag(),
		Status:    c.Status(),
		IsLatest:  c.IsLatest(),
		CreatedAt: c.CreatedAt(),
		UpdatedAt: c.UpdatedAt(),
	}
}

func (r *cycleRepo) Create(ctx context.Context, cycle *pipeline.RegressionCycle) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, exists := r.db.cycles[cycle.ID()]; exists {
		return fmt.Errorf("cycle %s already exists", cycle.ID())
	}
	r.db.cycles[cycle.ID()] = cycleRow(cycle)
	r.db.tagCounts[cycle.ReleaseID()]++
	return nil
}

func (r *cycleRepo) FindByID(ctx context.Context, id string) (*pipeline.RegressionCycle, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	row, ok := r.db.cycles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pipeline.ErrCycleNotFound, id)
	}
	return pipeline.ReconstructCycle(row), nil
}

func (r *cycleRepo) FindLatest(ctx context.Context, releaseID release.ReleaseID) (*pipeline.RegressionCycle, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var found *pipeline.ReconstructCycleParams
	for id := range r.db.cycles {
		row := r.db.cycles[id]
		if row.ReleaseID != releaseID || !row.IsLatest {
			continue
		}
		if found == nil || row.CreatedAt.After(found.CreatedAt) {
			found = &row
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: release %s", pipeline.ErrCycleNotFound, releaseID)
	}
	return pipeline.ReconstructCycle(*found), nil
}

func (r *cycleRepo) FindAll(ctx context.Context, releaseID release.ReleaseID) ([]*pipeline.RegressionCycle, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var rows []pipeline.ReconstructCycleParams
	for _, row := range r.db.cycles {
		if row.ReleaseID == releaseID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].ID < rows[j].ID
	})
	out := make([]*pipeline.RegressionCycle, 0, len(rows))
	for _, row := range rows {
		out = append(out, pipeline.ReconstructCycle(row))
	}
	return out, nil
}

func (r *cycleRepo) Update(ctx context.Context, cycle *pipeline.RegressionCycle) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.cycles[cycle.ID()]; !ok {
		return fmt.Errorf("%w: %s", pipeline.ErrCycleNotFound, cycle.ID())
	}
	r.db.cycles[cycle.ID()] = cycleRow(cycle)
	return nil
}

func (r *cycleRepo) CountByRelease(ctx context.Context, releaseID release.ReleaseID) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	count := 0
	for _, row := range r.db.cycles {
		if row.ReleaseID == releaseID {
			count++
		}
	}
	return count, nil
}

func (r *cycleRepo) CountTagsByRelease(ctx context.Context, releaseID release.ReleaseID) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return r.db.tagCounts[releaseID], nil
}

// --- platform mappings ---

type mappingRepo struct{ db *DB }

func (r *mappingRepo) ReplaceForRelease(ctx context.Context, releaseID release.ReleaseID, mappings release.Mappings) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.mappings[releaseID] = append(release.Mappings(nil), mappings...)
	return nil
}

func (r *mappingRepo) FindByRelease(ctx context.Context, releaseID release.ReleaseID) (release.Mappings, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return append(release.Mappings(nil), r.db.mappings[releaseID]...), nil
}

// --- uploads ---

type uploadRepo struct{ db *DB }

func (r *uploadRepo) Create(ctx context.Context, upload release.ReleaseUpload) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rows := r.db.uploads[upload.ReleaseID]
	for i, u := range rows {
		if u.Stage == upload.Stage && u.Platform == upload.Platform {
			rows[i] = upload
			return nil
		}
	}
	r.db.uploads[upload.ReleaseID] = append(rows, upload)
	return nil
}

func (r *uploadRepo) FindByRelease(ctx context.Context, releaseID release.ReleaseID) ([]release.ReleaseUpload, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := append([]release.ReleaseUpload(nil), r.db.uploads[releaseID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (r *uploadRepo) FindByReleaseAndStage(ctx context.Context, releaseID release.ReleaseID, stage release.Stage) ([]release.ReleaseUpload, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []release.ReleaseUpload
	for _, u := range r.db.uploads[releaseID] {
		if u.Stage == stage {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

// --- builds ---

type buildRepo struct{ db *DB }

func (r *buildRepo) Create(ctx context.Context, build pipeline.Build) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.builds[build.ReleaseID] = append(r.db.builds[build.ReleaseID], build)
	return nil
}

func (r *buildRepo) FindByRelease(ctx context.Context, releaseID release.ReleaseID) ([]pipeline.Build, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := append([]pipeline.Build(nil), r.db.builds[releaseID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	return out, nil
}

func (r *buildRepo) FindByRegressionCycle(ctx context.Context, regressionID string) ([]pipeline.Build, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []pipeline.Build
	for _, builds := range r.db.builds {
		for _, b := range builds {
			if b.RegressionID != nil && *b.RegressionID == regressionID {
				out = append(out, b)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	return out, nil
}

// --- state history ---

type historyRepo struct{ db *DB }

func (r *historyRepo) Append(ctx context.Context, entry *release.StateHistory) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored := *entry
	stored.Items = append([]release.StateHistoryItem(nil), entry.Items...)
	r.db.history[entry.ReleaseID] = append(r.db.history[entry.ReleaseID], stored)
	return nil
}

func (r *historyRepo) FindByRelease(ctx context.Context, releaseID release.ReleaseID) ([]*release.StateHistory, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	entries := r.db.history[releaseID]
	out := make([]*release.StateHistory, 0, len(entries))
	for i := range entries {
		h := entries[i]
		h.Items = append([]release.StateHistoryItem(nil), h.Items...)
		out = append(out, &h)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// --- release configs ---

type configRepo struct{ db *DB }

func (r *configRepo) Create(ctx context.Context, cfg *release.ReleaseConfig) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, exists := r.db.configs[cfg.ID]; exists {
		return fmt.Errorf("release config %s already exists", cfg.ID)
	}
	r.db.configs[cfg.ID] = *cfg
	return nil
}

func (r *configRepo) FindByID(ctx context.Context, id string) (*release.ReleaseConfig, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	cfg, ok := r.db.configs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", release.ErrConfigNotFound, id)
	}
	return &cfg, nil
}

func (r *configRepo) FindByTenant(ctx context.Context, tenantID string) ([]*release.ReleaseConfig, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []*release.ReleaseConfig
	for id := range r.db.configs {
		cfg := r.db.configs[id]
		if cfg.TenantID == tenantID {
			out = append(out, &cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *configRepo) Update(ctx context.Context, cfg *release.ReleaseConfig) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.configs[cfg.ID]; !ok {
		return fmt.Errorf("%w: %s", release.ErrConfigNotFound, cfg.ID)
	}
	r.db.configs[cfg.ID] = *cfg
	return nil
}
