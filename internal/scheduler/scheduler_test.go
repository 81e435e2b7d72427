package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mysql-dump-manager/internal/backup"
	"mysql-dump-manager/internal/logging"
)

type fakeDumper struct {
	mu       sync.Mutex
	requests []backup.DumpRequest
	err      error
	nextID   int64
}

func (f *fakeDumper) Dump(ctx context.Context, req backup.DumpRequest) (*backup.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("scheduled dumps must run with a deadline")
	}
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	f.nextID++
	return &backup.Artifact{ID: f.nextID}, nil
}

func newTestScheduler(dumper backup.Dumper, opts ...Option) *Scheduler {
	opts = append([]Option{WithLocation(time.UTC)}, opts...)
	s := New(dumper, logging.NewDiscardLogger(), opts...)
	s.now = func() time.Time { return time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC) } // a Monday
	return s
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		valid bool
	}{
		{"daily full", Request{Hour: 2, Minute: 30}, true},
		{"weekdays", Request{Hour: 23, Minute: 59, Days: []int{0, 1, 2, 3, 4}}, true},
		{"partial with tables", Request{Type: backup.BackupTypePartial, Tables: []string{"orders"}}, true},
		{"hour out of range", Request{Hour: 24}, false},
		{"negative minute", Request{Minute: -1}, false},
		{"bad day", Request{Days: []int{7}}, false},
		{"partial without tables", Request{Type: backup.BackupTypePartial}, false},
		{"partial with blank tables", Request{Type: backup.BackupTypePartial, Tables: []string{" "}}, false},
		{"unknown type", Request{Type: "incremental"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, backup.IsValidation(err))
		})
	}
}

func TestRequest_Spec(t *testing.T) {
	assert.Equal(t, "30 2 * * *", Request{Hour: 2, Minute: 30}.Spec())
	// Monday-based input: 0 = Monday, 6 = Sunday
	assert.Equal(t, "0 9 * * 1", Request{Hour: 9, Days: []int{0}}.Spec())
	assert.Equal(t, "0 9 * * 0,6", Request{Hour: 9, Days: []int{6, 5, 6}}.Spec())
}

func TestScheduler_ScheduleAndJobs(t *testing.T) {
	s := newTestScheduler(&fakeDumper{})

	nightly, err := s.Schedule(Request{Hour: 2, Minute: 0})
	require.NoError(t, err)
	assert.NotEmpty(t, nightly.ID)
	assert.Equal(t, backup.BackupTypeFull, nightly.Request.Type)
	require.NotNil(t, nightly.NextRun)
	assert.Equal(t, time.Date(2024, 3, 5, 2, 0, 0, 0, time.UTC), *nightly.NextRun)

	sunday, err := s.Schedule(Request{Hour: 12, Days: []int{6}, Type: backup.BackupTypePartial, Tables: []string{"orders"}})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), *sunday.NextRun)

	today, err := s.Schedule(Request{Hour: 11, Minute: 15})
	require.NoError(t, err)

	jobs := s.Jobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{today.ID, nightly.ID, sunday.ID}, []string{jobs[0].ID, jobs[1].ID, jobs[2].ID})

	_, err = s.Schedule(Request{Hour: 25})
	assert.True(t, backup.IsValidation(err))
	assert.Len(t, s.Jobs(), 3)
}

func TestScheduler_FullScheduleDropsTables(t *testing.T) {
	s := newTestScheduler(&fakeDumper{})
	job, err := s.Schedule(Request{Hour: 1, Tables: []string{"users"}})
	require.NoError(t, err)
	assert.Nil(t, job.Request.Tables)
}

func TestScheduler_Cancel(t *testing.T) {
	s := newTestScheduler(&fakeDumper{})
	job, err := s.Schedule(Request{Hour: 3})
	require.NoError(t, err)

	assert.True(t, s.Cancel(job.ID))
	assert.False(t, s.Cancel(job.ID))
	assert.Empty(t, s.Jobs())
	_, ok := s.Job(job.ID)
	assert.False(t, ok)
}

func TestScheduler_Run(t *testing.T) {
	dumper := &fakeDumper{}
	var (
		hookMu    sync.Mutex
		hookCalls []string
	)
	s := newTestScheduler(dumper, WithRunTimeout(time.Minute), WithRunHook(func(jobID string, artifact *backup.Artifact, err error, d time.Duration) {
		hookMu.Lock()
		hookCalls = append(hookCalls, jobID)
		hookMu.Unlock()
	}))

	job, err := s.Schedule(Request{Hour: 4, Type: backup.BackupTypePartial, Tables: []string{"orders", "items"}, Label: "nightly orders"})
	require.NoError(t, err)

	s.run(job.ID)

	require.Len(t, dumper.requests, 1)
	assert.Equal(t, backup.DumpRequest{Tables: []string{"orders", "items"}, Label: "nightly orders"}, dumper.requests[0])

	info, ok := s.Job(job.ID)
	require.True(t, ok)
	assert.Equal(t, 1, info.Runs)
	assert.Equal(t, int64(1), info.LastArtifactID)
	assert.Empty(t, info.LastError)
	require.NotNil(t, info.LastRun)
	assert.Equal(t, []string{job.ID}, hookCalls)

	dumper.err = backup.NewDatabaseError("connection lost", nil)
	s.run(job.ID)
	info, _ = s.Job(job.ID)
	assert.Equal(t, 2, info.Runs)
	assert.Contains(t, info.LastError, "connection lost")
	assert.Equal(t, int64(1), info.LastArtifactID)

	s.run("missing")
	assert.Len(t, dumper.requests, 2)
}

func TestScheduler_DefaultLabel(t *testing.T) {
	dumper := &fakeDumper{}
	s := newTestScheduler(dumper)
	job, err := s.Schedule(Request{Hour: 4})
	require.NoError(t, err)

	s.run(job.ID)
	require.Len(t, dumper.requests, 1)
	assert.Equal(t, backup.DumpRequest{Label: DefaultLabel}, dumper.requests[0])
}

func TestScheduler_StartStop(t *testing.T) {
	s := newTestScheduler(&fakeDumper{})
	assert.False(t, s.Running())
	assert.NoError(t, s.Stop(context.Background()))

	s.Start()
	s.Start()
	assert.True(t, s.Running())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
	assert.False(t, s.Running())
}
