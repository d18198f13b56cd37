// Package scheduler binds campaigns to cron patterns and re-runs the
// send pipeline at every firing.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"CampaignMailer/internal/errs"
	"CampaignMailer/internal/metrics"
	"CampaignMailer/internal/models"
)

// Store is the campaign persistence the scheduler needs. *db.Store
// satisfies it.
type Store interface {
	GetCampaign(ctx context.Context, id int64) (models.Campaign, error)
	ListScheduled(ctx context.Context) ([]models.Campaign, error)
	MarkScheduled(ctx context.Context, id int64, pattern, timezone string) error
	MarkUnscheduled(ctx context.Context, id int64) error
	SetStatus(ctx context.Context, id int64, status models.CampaignStatus) error
	MarkSending(ctx context.Context, id int64, at time.Time) error
	CompleteExecution(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, id int64, errorMsg string) error
}

// Runner executes one firing to the end. *dispatch.Dispatcher
// satisfies it.
type Runner interface {
	RunCampaign(ctx context.Context, c models.Campaign, jobID string) (models.JobStatus, error)
}

// JobStopper stops running jobs of a campaign. *jobs.Registry
// satisfies it.
type JobStopper interface {
	StopCampaign(campaignID int64) int
}

// writeTimeout bounds the status writes that close a firing. They run
// detached from the firing's context so shutdown cannot drop them.
const writeTimeout = 10 * time.Second

type binding struct {
	entry    cron.EntryID
	pattern  string
	timezone string
}

type Scheduler struct {
	ctx      context.Context
	cron     *cron.Cron
	store    Store
	runner   Runner
	jobs     JobStopper
	timezone string
	log      *zap.Logger

	mu       sync.Mutex
	bindings map[int64]binding
	running  map[int64]struct{}

	now func() time.Time
}

// New creates a scheduler whose firings run under ctx. timezone is used
// for campaigns that do not name their own.
func New(ctx context.Context, store Store, runner Runner, jobs JobStopper, timezone string, log *zap.Logger) (*Scheduler, error) {
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, fmt.Errorf("scheduler timezone %q: %w", timezone, err)
	}

	cl := cronLogger{log.Sugar()}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	return &Scheduler{
		ctx:      ctx,
		cron:     c,
		store:    store,
		runner:   runner,
		jobs:     jobs,
		timezone: timezone,
		log:      log,
		bindings: make(map[int64]binding),
		running:  make(map[int64]struct{}),
		now:      time.Now,
	}, nil
}

// Start begins firing timers. Bindings may be added before or after.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop destroys every timer and waits for running firings to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for id, b := range s.bindings {
		s.cron.Remove(b.entry)
		delete(s.bindings, id)
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.log.Info("all scheduled jobs cleaned up")
}

// Reload re-arms every campaign persisted as scheduled. It is run once
// at startup; timers never survive a restart on their own.
func (s *Scheduler) Reload(ctx context.Context) (int, error) {
	campaigns, err := s.store.ListScheduled(ctx)
	if err != nil {
		return 0, fmt.Errorf("list scheduled campaigns: %w", err)
	}

	armed := 0
	for _, c := range campaigns {
		if c.SchedulePattern == "" {
			continue
		}
		if c.Status == models.CampaignSending {
			s.log.Warn("campaign was sending when the process stopped",
				zap.Int64("campaign_id", c.ID),
			)
			if err := s.store.RecordFailure(ctx, c.ID, "firing interrupted before completion"); err != nil {
				s.log.Error("cannot reset interrupted campaign",
					zap.Int64("campaign_id", c.ID),
					zap.Error(err),
				)
			}
		}
		if err := s.arm(c.ID, c.SchedulePattern, s.zone(c)); err != nil {
			s.log.Error("cannot re-arm campaign",
				zap.Int64("campaign_id", c.ID),
				zap.String("pattern", c.SchedulePattern),
				zap.Error(err),
			)
			continue
		}
		armed++
	}

	s.log.Info("loaded scheduled campaigns", zap.Int("count", armed))
	return armed, nil
}

// Schedule validates the campaign's pattern, persists it as scheduled
// and (re)arms its timer. A previous binding for the campaign is
// replaced, never stacked. On error nothing changes.
func (s *Scheduler) Schedule(ctx context.Context, c models.Campaign) error {
	if c.ID <= 0 {
		return fmt.Errorf("%w: campaign id %d", errs.ErrInvalidArgument, c.ID)
	}

	tz := s.zone(c)
	if _, err := parse(c.SchedulePattern, tz); err != nil {
		return err
	}

	if err := s.store.MarkScheduled(ctx, c.ID, c.SchedulePattern, c.Timezone); err != nil {
		return fmt.Errorf("persist schedule for campaign %d: %w", c.ID, err)
	}

	if err := s.arm(c.ID, c.SchedulePattern, tz); err != nil {
		return err
	}

	s.log.Info("campaign scheduled",
		zap.Int64("campaign_id", c.ID),
		zap.String("name", c.Name),
		zap.String("pattern", c.SchedulePattern),
		zap.String("timezone", tz),
	)
	return nil
}

// Unschedule removes the campaign's timer, if any, and persists it as a
// draft with no pattern. Unscheduling twice is not an error.
func (s *Scheduler) Unschedule(ctx context.Context, rawID string) error {
	id, err := ParseCampaignID(rawID)
	if err != nil {
		return err
	}

	if err := s.store.MarkUnscheduled(ctx, id); err != nil {
		return fmt.Errorf("persist unschedule for campaign %d: %w", id, err)
	}

	s.mu.Lock()
	b, ok := s.bindings[id]
	if ok {
		s.cron.Remove(b.entry)
		delete(s.bindings, id)
	}
	s.mu.Unlock()

	s.log.Info("campaign unscheduled",
		zap.Int64("campaign_id", id),
		zap.Bool("had_timer", ok),
	)
	return nil
}

// Pause stops every running job of the campaign and persists it as
// paused. Its timer stays armed; firings are skipped while paused.
func (s *Scheduler) Pause(ctx context.Context, rawID string) (int, error) {
	id, err := ParseCampaignID(rawID)
	if err != nil {
		return 0, err
	}

	stopped := s.jobs.StopCampaign(id)

	if err := s.store.SetStatus(ctx, id, models.CampaignPaused); err != nil {
		return stopped, fmt.Errorf("persist pause for campaign %d: %w", id, err)
	}

	s.log.Info("campaign paused",
		zap.Int64("campaign_id", id),
		zap.Int("jobs_stopped", stopped),
	)
	return stopped, nil
}

// Fire runs one firing of the campaign: sending, then back to
// scheduled with the execution counter bumped, or back to scheduled
// with the error recorded. A firing that finds the previous one still
// running is skipped.
func (s *Scheduler) Fire(ctx context.Context, id int64) error {
	log := s.log.With(zap.Int64("campaign_id", id))

	if !s.claim(id) {
		metrics.CampaignFirings.WithLabelValues("skipped").Inc()
		log.Warn("scheduled firing skipped, previous firing still running")
		return nil
	}
	defer s.release(id)

	c, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		metrics.CampaignFirings.WithLabelValues("error").Inc()
		log.Error("scheduled campaign not loadable", zap.Error(err))
		return err
	}

	if c.Status == models.CampaignPaused {
		metrics.CampaignFirings.WithLabelValues("skipped").Inc()
		log.Warn("scheduled firing skipped, campaign is paused")
		return nil
	}

	if err := s.store.MarkSending(ctx, id, s.now()); err != nil {
		if errors.Is(err, errs.ErrCampaignNotFound) {
			metrics.CampaignFirings.WithLabelValues("skipped").Inc()
			log.Warn("scheduled firing skipped, campaign no longer scheduled")
			return nil
		}
		log.Error("failed to mark campaign sending", zap.Error(err))
	}

	jobID := fmt.Sprintf("scheduled-campaign-%d-%s", id, uuid.NewString())
	log.Info("executing scheduled campaign",
		zap.String("name", c.Name),
		zap.String("job_id", jobID),
	)

	st, runErr := s.runner.RunCampaign(ctx, c, jobID)

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if runErr != nil {
		metrics.CampaignFirings.WithLabelValues("error").Inc()
		log.Error("scheduled campaign failed", zap.String("job_id", jobID), zap.Error(runErr))

		if err := s.store.RecordFailure(wctx, id, runErr.Error()); err != nil {
			log.Error("failed to record campaign error", zap.Error(err))
		}
		return runErr
	}

	if st.Stopped {
		if s.paused(wctx, id) {
			metrics.CampaignFirings.WithLabelValues("stopped").Inc()
			log.Info("scheduled campaign stopped by pause", zap.String("job_id", jobID))
			return nil
		}
		if ctx.Err() != nil {
			metrics.CampaignFirings.WithLabelValues("interrupted").Inc()
			log.Warn("scheduled campaign interrupted by shutdown",
				zap.String("job_id", jobID),
				zap.Int("sent", st.Sent),
				zap.Int("total", st.Total),
			)
			msg := fmt.Sprintf("firing interrupted after %d of %d recipients", st.Sent+st.Failed, st.Total)
			if err := s.store.RecordFailure(wctx, id, msg); err != nil {
				log.Error("failed to record campaign error", zap.Error(err))
			}
			return nil
		}
	}

	if err := s.store.CompleteExecution(wctx, id); err != nil {
		log.Error("failed to complete campaign execution", zap.Error(err))
	}

	metrics.CampaignFirings.WithLabelValues("success").Inc()
	log.Info("scheduled campaign completed",
		zap.String("job_id", jobID),
		zap.Int("sent", st.Sent),
		zap.Int("failed", st.Failed),
	)
	return nil
}

// IsScheduled reports whether the campaign has an active timer.
func (s *Scheduler) IsScheduled(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.bindings[id]
	return ok
}

// Scheduled lists campaign ids with active timers.
func (s *Scheduler) Scheduled() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.bindings))
	for id := range s.bindings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// NextRun returns when the campaign's timer fires next after t.
func (s *Scheduler) NextRun(id int64, t time.Time) (time.Time, bool) {
	s.mu.Lock()
	b, ok := s.bindings[id]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}

	e := s.cron.Entry(b.entry)
	if !e.Valid() {
		return time.Time{}, false
	}
	return e.Schedule.Next(t), true
}

// Timezone is the default zone for campaigns without one.
func (s *Scheduler) Timezone() string {
	return s.timezone
}

func (s *Scheduler) arm(id int64, pattern, tz string) error {
	sched, err := parse(pattern, tz)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.bindings[id]; ok {
		s.cron.Remove(old.entry)
	}

	entry := s.cron.Schedule(sched, cron.FuncJob(func() {
		_ = s.Fire(s.ctx, id)
	}))
	s.bindings[id] = binding{entry: entry, pattern: pattern, timezone: tz}
	return nil
}

func (s *Scheduler) claim(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.running[id]; busy {
		return false
	}
	s.running[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id int64) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}

func (s *Scheduler) zone(c models.Campaign) string {
	if c.Timezone != "" {
		return c.Timezone
	}
	return s.timezone
}

func (s *Scheduler) paused(ctx context.Context, id int64) bool {
	c, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		return errors.Is(err, errs.ErrCampaignNotFound)
	}
	return c.Status == models.CampaignPaused
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	// SkipIfStillRunning reports a dropped run as "skip".
	if msg == "skip" {
		metrics.CampaignFirings.WithLabelValues("skipped").Inc()
		l.s.Warnw("scheduled firing skipped, previous firing still running", keysAndValues...)
		return
	}
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
