// Package scheduler fires named jobs on independent cron schedules,
// at most once concurrently per job, with no backfill of missed
// firings on restart. Built on github.com/robfig/cron/v3 rather than a
// hand-rolled ticker loop.
package scheduler

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aerc-harvest/harvester/internal/metadata"
)

// JobFunc is one scheduled unit of work. Scheduler-level concerns
// (run-level deadline, run_id minting) belong to the job's own
// implementation (e.g. orchestrator.Orchestrator.Run already mints a
// fresh run_id every call) — ClockScheduler only decides *when* to
// call it and guards against overlapping calls to the same job.
type JobFunc func()

// Job is one named, cron-scheduled unit of work.
type Job struct {
	Name string
	Spec string // standard 5-field cron expression
	Run  JobFunc
}

// ClockScheduler fires registered Jobs on their own cron schedule.
// At most one concurrent firing per job (a firing that
// finds the previous one still running is skipped, not queued), and
// no backfill of any firing missed while the process was down —
// cron.Cron already only ever looks forward from Start(), never
// replays time it didn't see.
type ClockScheduler struct {
	cron         *cron.Cron
	metadataSink metadata.MetadataSink

	mu      sync.Mutex
	running map[string]bool
}

func NewClockScheduler(metadataSink metadata.MetadataSink) *ClockScheduler {
	return &ClockScheduler{
		cron:         cron.New(),
		metadataSink: metadataSink,
		running:      make(map[string]bool),
	}
}

// Register adds job to the schedule. An invalid cron expression is
// returned as an error rather than panicking, since job specs
// typically come from operator-supplied configuration
// (scrape_schedule / enrichment_schedule).
func (s *ClockScheduler) Register(job Job) error {
	_, err := s.cron.AddFunc(job.Spec, func() { s.fire(job) })
	return err
}

// RunAdHoc fires job once, immediately, bypassing the cron schedule
// entirely, still subject to the same skip-if-already-running guard a
// scheduled firing would get. The CLI subcommands do not go through
// it; they call the pipeline directly.
func (s *ClockScheduler) RunAdHoc(job Job) {
	s.fire(job)
}

func (s *ClockScheduler) fire(job Job) {
	s.mu.Lock()
	if s.running[job.Name] {
		s.mu.Unlock()
		s.metadataSink.RecordError(
			time.Now(), "scheduler", "fire",
			metadata.CauseCanceled, "job already running, skipping this firing",
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrField, job.Name)},
		)
		return
	}
	s.running[job.Name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running[job.Name] = false
		s.mu.Unlock()
	}()

	job.Run()
}

// Start begins firing registered jobs on their schedules. Non-blocking.
func (s *ClockScheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight job to return.
func (s *ClockScheduler) Stop() {
	<-s.cron.Stop().Done()
}
