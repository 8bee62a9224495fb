package main

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/teambition/rrule-go"

	"github.com/pavitra93/gym-tenant-system/shared/clock"
	"github.com/pavitra93/gym-tenant-system/shared/metrics"
)

// Lease grants one replica the right to run a job.
type Lease interface {
	AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name, holder string) error
}

const (
	resultSuccess = "success"
	resultFailed  = "failed"
	resultSkipped = "skipped"
)

// JobStatus is the externally visible state of one job.
type JobStatus struct {
	Name       string     `json:"name"`
	Rule       string     `json:"rule"`
	NextRun    time.Time  `json:"next_run"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	LastResult string     `json:"last_result,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

type job struct {
	name string
	rule *rrule.RRule
	run  func(ctx context.Context) error

	next       time.Time
	lastRun    *time.Time
	lastResult string
	lastError  string
}

// Scheduler runs jobs on RRULE schedules. Every run is guarded by a lease
// so replicas never run the same job concurrently.
type Scheduler struct {
	mu       sync.Mutex
	jobs     []*job
	lease    Lease
	holder   string
	leaseTTL time.Duration
	clock    clock.Clock
	loc      *time.Location
	log      logrus.FieldLogger
}

func NewScheduler(lease Lease, holder string, leaseTTL time.Duration, c clock.Clock, loc *time.Location, log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		lease:    lease,
		holder:   holder,
		leaseTTL: leaseTTL,
		clock:    c,
		loc:      loc,
		log:      log,
	}
}

// Add registers a job. The rule is anchored at midnight of the current day
// in the scheduler's timezone, so BYHOUR parts are local hours.
func (s *Scheduler) Add(name, rule string, run func(ctx context.Context) error) error {
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", name, rule, err)
	}
	now := s.clock.Now()
	r.DTStart(clock.StartOfDay(now, s.loc))

	j := &job{name: name, rule: r, run: run}
	j.next = r.After(now, false)
	if j.next.IsZero() {
		return fmt.Errorf("job %s: schedule %q has no future occurrence", name, rule)
	}

	s.mu.Lock()
	s.jobs = append(s.jobs, j)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"job": name, "next_run": j.next}).Info("Job registered")
	return nil
}

// nextWake is the earliest upcoming run across all jobs.
func (s *Scheduler) nextWake() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	var earliest time.Time
	for _, j := range s.jobs {
		if !j.next.IsZero() && (earliest.IsZero() || j.next.Before(earliest)) {
			earliest = j.next
		}
	}
	return earliest
}

// RunDue runs every job whose next run is at or before now, in
// registration order, and schedules each one's following run.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if !j.next.IsZero() && !j.next.After(now) {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		if ctx.Err() != nil {
			return
		}
		s.runJob(ctx, j, now)
	}
}

func (s *Scheduler) runJob(ctx context.Context, j *job, now time.Time) {
	logger := s.log.WithField("job", j.name)

	result, errMsg := resultSkipped, ""
	acquired, err := s.lease.AcquireLease(ctx, j.name, s.holder, s.leaseTTL)
	switch {
	case err != nil:
		result, errMsg = resultFailed, err.Error()
		logger.WithError(err).Error("Failed to acquire job lease")
	case !acquired:
		logger.Debug("Job lease held by another replica")
	default:
		start := time.Now()
		runErr := j.run(ctx)
		if releaseErr := s.lease.ReleaseLease(context.WithoutCancel(ctx), j.name, s.holder); releaseErr != nil {
			logger.WithError(releaseErr).Warn("Failed to release job lease")
		}
		entry := logger.WithField("duration", time.Since(start))
		if runErr != nil {
			result, errMsg = resultFailed, runErr.Error()
			entry.WithError(runErr).Error("Job failed")
		} else {
			result = resultSuccess
			entry.Info("Job completed")
		}
	}
	metrics.RecordJobRun(j.name, result)

	s.mu.Lock()
	ran := now
	j.lastRun = &ran
	j.lastResult = result
	j.lastError = errMsg
	j.next = j.rule.After(now, false)
	s.mu.Unlock()
}

// Run waits for due jobs until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		wake := s.nextWake()
		if wake.IsZero() {
			<-ctx.Done()
			return nil
		}
		timer := time.NewTimer(time.Until(wake))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		s.RunDue(ctx, s.clock.Now())
	}
}

// Status lists jobs ordered by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, JobStatus{
			Name:       j.name,
			Rule:       j.rule.String(),
			NextRun:    j.next,
			LastRun:    j.lastRun,
			LastResult: j.lastResult,
			LastError:  j.lastError,
		})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}
