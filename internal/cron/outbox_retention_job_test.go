package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/pkg/logger"
)

type pruneCall struct {
	cutoff      time.Time
	maxAttempts int
	limit       int
}

type fakeOutboxPruner struct {
	results []int64
	err     error
	calls   []pruneCall
}

func (f *fakeOutboxPruner) DeleteSettledBefore(_ context.Context, cutoff time.Time, maxAttempts, limit int) (int64, error) {
	f.calls = append(f.calls, pruneCall{cutoff: cutoff, maxAttempts: maxAttempts, limit: limit})
	if f.err != nil {
		return 0, f.err
	}
	if n := len(f.calls) - 1; n < len(f.results) {
		return f.results[n], nil
	}
	return 0, nil
}

func newRetentionJob(t *testing.T, repo *fakeOutboxPruner, params OutboxRetentionJobParams) *outboxRetentionJob {
	t.Helper()
	params.Logger = logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	params.Repository = repo
	job, err := NewOutboxRetentionJob(params)
	require.NoError(t, err)
	return job.(*outboxRetentionJob)
}

func TestOutboxRetentionDefaults(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxPruner{results: []int64{7}}
	job := newRetentionJob(t, repo, OutboxRetentionJobParams{MaxAttempts: 10})
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, repo.calls, 1)
	assert.Equal(t, now.Add(-defaultOutboxRetention), repo.calls[0].cutoff)
	assert.Equal(t, 10, repo.calls[0].maxAttempts)
	assert.Equal(t, defaultRetentionBatch, repo.calls[0].limit)
}

func TestOutboxRetentionLoopsUntilShortBatch(t *testing.T) {
	repo := &fakeOutboxPruner{results: []int64{2, 2, 1}}
	job := newRetentionJob(t, repo, OutboxRetentionJobParams{Retention: 48 * time.Hour, Batch: 2})

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, repo.calls, 3)
	for _, call := range repo.calls {
		assert.Equal(t, repo.calls[0].cutoff, call.cutoff)
	}
}

func TestOutboxRetentionStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := &fakeOutboxPruner{results: []int64{2, 2, 2}}
	job := newRetentionJob(t, repo, OutboxRetentionJobParams{Batch: 2})

	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
	assert.Len(t, repo.calls, 1)
}

func TestOutboxRetentionPropagatesError(t *testing.T) {
	job := newRetentionJob(t, &fakeOutboxPruner{err: errors.New("boom")}, OutboxRetentionJobParams{})
	assert.ErrorContains(t, job.Run(context.Background()), "boom")
}

func TestNewOutboxRetentionJobValidates(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Repository: &fakeOutboxPruner{}})
	assert.Error(t, err)
	_, err = NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.New(logger.Options{Output: io.Discard})})
	assert.Error(t, err)
}
