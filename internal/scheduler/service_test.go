package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLock struct {
	allow    bool
	acquires int
	releases int
}

func (l *stubLock) Acquire(context.Context) (bool, error) {
	l.acquires++
	return l.allow, nil
}

func (l *stubLock) Release(context.Context) error {
	l.releases++
	return nil
}

type countingJob struct {
	name string
	runs int
	err  error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func TestServiceTickRunsJobsUnderLock(t *testing.T) {
	lock := &stubLock{allow: true}
	job := &countingJob{name: "auction-promote"}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     lock,
	})
	require.NoError(t, err)

	svc.tick(context.Background())
	assert.Equal(t, 1, job.runs)
	assert.Equal(t, 1, lock.acquires)
	assert.Equal(t, 1, lock.releases)
}

func TestServiceTickSkipsWhenLockHeldElsewhere(t *testing.T) {
	lock := &stubLock{allow: false}
	job := &countingJob{name: "auction-promote"}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     lock,
	})
	require.NoError(t, err)

	svc.tick(context.Background())
	assert.Zero(t, job.runs)
	assert.Zero(t, lock.releases)
}

func TestServiceTickContinuesPastFailingJob(t *testing.T) {
	lock := &stubLock{allow: true}
	failing := &countingJob{name: "auction-promote", err: assert.AnError}
	trailing := &countingJob{name: "auction-finalize"}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(failing, trailing),
		Lock:     lock,
	})
	require.NoError(t, err)

	svc.tick(context.Background())
	assert.Equal(t, 1, failing.runs)
	assert.Equal(t, 1, trailing.runs)
}

func TestRegistryIgnoresNilJobs(t *testing.T) {
	registry := NewRegistry(nil, &countingJob{name: "only"})
	registry.Register(nil)
	assert.Len(t, registry.Jobs(), 1)
}
