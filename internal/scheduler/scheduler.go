// Package scheduler runs recurring dumps on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"mysql-dump-manager/internal/backup"
	"mysql-dump-manager/internal/logging"
)

// DefaultRunTimeout bounds a single scheduled dump
const DefaultRunTimeout = 30 * time.Minute

// DefaultLabel names scheduled dumps without an explicit label
const DefaultLabel = "scheduled"

// Request describes a recurring dump. Days use 0 = Monday through 6 = Sunday;
// no days means every day.
type Request struct {
	Hour   int               `mapstructure:"hour" yaml:"hour" json:"hour"`
	Minute int               `mapstructure:"minute" yaml:"minute" json:"minute"`
	Days   []int             `mapstructure:"days" yaml:"days,omitempty" json:"days,omitempty"`
	Type   backup.BackupType `mapstructure:"type" yaml:"type,omitempty" json:"type,omitempty"`
	Tables []string          `mapstructure:"tables" yaml:"tables,omitempty" json:"tables,omitempty"`
	Label  string            `mapstructure:"label" yaml:"label,omitempty" json:"label,omitempty"`
}

// Validate checks the request fields
func (r Request) Validate() error {
	var errs backup.ValidationErrors
	if r.Hour < 0 || r.Hour > 23 {
		errs.Add("hour", "hour must be between 0 and 23", r.Hour)
	}
	if r.Minute < 0 || r.Minute > 59 {
		errs.Add("minute", "minute must be between 0 and 59", r.Minute)
	}
	for _, d := range r.Days {
		if d < 0 || d > 6 {
			errs.Add("days", "days must be between 0 (Monday) and 6 (Sunday)", d)
			break
		}
	}
	switch r.Type {
	case "", backup.BackupTypeFull:
	case backup.BackupTypePartial:
		if len(r.Tables) == 0 || (backup.DumpRequest{Tables: r.Tables}).Validate() != nil {
			errs.Add("tables", "a partial scheduled dump requires at least one table", r.Tables)
		}
	default:
		errs.Add("type", "type must be full or partial", r.Type)
	}

	if errs.HasErrors() {
		return backup.NewValidationError("invalid schedule", errs)
	}
	return nil
}

// Spec returns the five-field cron expression for the request
func (r Request) Spec() string {
	return fmt.Sprintf("%d %d * * %s", r.Minute, r.Hour, cronDays(r.Days))
}

func (r Request) dumpRequest() backup.DumpRequest {
	req := backup.DumpRequest{Label: r.Label}
	if req.Label == "" {
		req.Label = DefaultLabel
	}
	if r.Type == backup.BackupTypePartial {
		req.Tables = r.Tables
	}
	return req
}

// cronDays converts Monday-based day numbers to cron's Sunday-based ones
func cronDays(days []int) string {
	if len(days) == 0 {
		return "*"
	}
	seen := make(map[int]bool, len(days))
	var converted []int
	for _, d := range days {
		c := (d + 1) % 7
		if !seen[c] {
			seen[c] = true
			converted = append(converted, c)
		}
	}
	sort.Ints(converted)

	parts := make([]string, len(converted))
	for i, c := range converted {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ",")
}

// JobInfo describes a scheduled job and its last run
type JobInfo struct {
	ID             string     `json:"id" yaml:"id"`
	Spec           string     `json:"spec" yaml:"spec"`
	Request        Request    `json:"request" yaml:"request"`
	CreatedAt      time.Time  `json:"created_at" yaml:"created_at"`
	NextRun        *time.Time `json:"next_run,omitempty" yaml:"next_run,omitempty"`
	LastRun        *time.Time `json:"last_run,omitempty" yaml:"last_run,omitempty"`
	LastArtifactID int64      `json:"last_artifact_id,omitempty" yaml:"last_artifact_id,omitempty"`
	LastError      string     `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	Runs           int        `json:"runs" yaml:"runs"`
}

type job struct {
	info     JobInfo
	entryID  cron.EntryID
	schedule cron.Schedule
}

// RunHook observes every finished scheduled dump
type RunHook func(jobID string, artifact *backup.Artifact, err error, duration time.Duration)

// Option configures a Scheduler
type Option func(*Scheduler)

// WithRunTimeout bounds each scheduled dump
func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLocation evaluates schedules in loc instead of the local time zone
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithRunHook registers a callback run after every scheduled dump
func WithRunHook(hook RunHook) Option {
	return func(s *Scheduler) {
		s.hook = hook
	}
}

// Scheduler triggers dumps on cron schedules. Jobs live in memory for the
// lifetime of the process.
type Scheduler struct {
	dumper   backup.Dumper
	logger   *logging.Logger
	timeout  time.Duration
	location *time.Location
	hook     RunHook
	parser   cron.Parser
	now      func() time.Time

	mu      sync.RWMutex
	cron    *cron.Cron
	jobs    map[string]*job
	running bool
}

// New creates a stopped scheduler
func New(dumper backup.Dumper, logger *logging.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	s := &Scheduler{
		dumper:   dumper,
		logger:   logger,
		timeout:  DefaultRunTimeout,
		location: time.Local,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		now:      time.Now,
		jobs:     make(map[string]*job),
	}
	for _, opt := range opts {
		opt(s)
	}

	cl := cronLogger{logger: logger}
	s.cron = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s
}

// Schedule registers a recurring dump and returns its job
func (s *Scheduler) Schedule(req Request) (*JobInfo, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Type == "" {
		req.Type = backup.BackupTypeFull
	}
	if req.Type == backup.BackupTypeFull {
		req.Tables = nil
	}

	spec := req.Spec()
	schedule, err := s.parser.Parse(spec)
	if err != nil {
		return nil, backup.NewValidationError(fmt.Sprintf("invalid schedule %q", spec), err)
	}

	j := &job{
		info: JobInfo{
			ID:        uuid.NewString(),
			Spec:      spec,
			Request:   req,
			CreatedAt: s.now(),
		},
		schedule: schedule,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j.entryID = s.cron.Schedule(schedule, cron.FuncJob(func() { s.run(j.info.ID) }))
	s.jobs[j.info.ID] = j

	s.logger.WithFields(map[string]interface{}{
		"job_id": j.info.ID,
		"spec":   spec,
		"type":   req.Type,
		"tables": len(req.Tables),
	}).Info("Dump scheduled")

	info := s.infoLocked(j)
	return &info, nil
}

// Jobs lists scheduled jobs ordered by next run
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, s.infoLocked(j))
	}
	sort.Slice(out, func(i, k int) bool {
		a, b := out[i].NextRun, out[k].NextRun
		switch {
		case a == nil || b == nil:
			return out[i].CreatedAt.Before(out[k].CreatedAt)
		case a.Equal(*b):
			return out[i].ID < out[k].ID
		}
		return a.Before(*b)
	})
	return out
}

// Job returns one scheduled job
func (s *Scheduler) Job(id string) (*JobInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	info := s.infoLocked(j)
	return &info, true
}

// Cancel removes a job; false means it did not exist
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false
	}
	s.cron.Remove(j.entryID)
	delete(s.jobs, id)
	s.logger.WithField("job_id", id).Info("Scheduled dump cancelled")
	return true
}

// Start begins firing jobs; calling it twice is a no-op
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Infof("Scheduler started with %d jobs", len(s.jobs))
}

// Stop stops firing jobs and waits for running dumps until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stopped := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-stopped.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop interrupted: %w", ctx.Err())
	}
}

// Running reports whether Start was called without a matching Stop
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// run executes one job; every run gets its own context
func (s *Scheduler) run(id string) {
	s.mu.RLock()
	j, ok := s.jobs[id]
	var req Request
	if ok {
		req = j.info.Request
	}
	s.mu.RUnlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	started := s.now()
	artifact, err := s.dumper.Dump(ctx, req.dumpRequest())
	duration := time.Since(started)

	s.mu.Lock()
	if j, ok := s.jobs[id]; ok {
		j.info.Runs++
		j.info.LastRun = &started
		if err != nil {
			j.info.LastError = err.Error()
		} else {
			j.info.LastError = ""
			j.info.LastArtifactID = artifact.ID
		}
	}
	s.mu.Unlock()

	fields := map[string]interface{}{
		"job_id":   id,
		"duration": duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		s.logger.WithFields(fields).Error("Scheduled dump failed")
	} else {
		fields["backup_id"] = artifact.ID
		s.logger.WithFields(fields).Info("Scheduled dump completed")
	}

	if s.hook != nil {
		s.hook(id, artifact, err, duration)
	}
}

func (s *Scheduler) infoLocked(j *job) JobInfo {
	info := j.info
	next := s.cron.Entry(j.entryID).Next
	if next.IsZero() {
		next = j.schedule.Next(s.now().In(s.location))
	}
	if !next.IsZero() {
		info.NextRun = &next
	}
	if info.Request.Days != nil {
		info.Request.Days = append([]int(nil), info.Request.Days...)
	}
	if info.Request.Tables != nil {
		info.Request.Tables = append([]string(nil), info.Request.Tables...)
	}
	return info
}

// cronLogger routes cron's own logging through the application logger
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(pairs(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := pairs(keysAndValues)
	fields["error"] = err.Error()
	l.logger.WithFields(fields).Error("cron: " + msg)
}

func pairs(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2+1)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
