package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopifyapp/pkg/config"
)

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j funcJob) Name() string                     { return j.name }
func (j funcJob) Handle(ctx context.Context) error { return j.fn(ctx) }

func TestManager_RunsDispatchedJobs(t *testing.T) {
	m := NewManager(config.JobsConfig{WebhooksQueue: "webhooks", Workers: 2, Timeout: time.Second}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	var n atomic.Int32
	done := make(chan struct{}, 3)
	job := funcJob{name: "count", fn: func(ctx context.Context) error {
		n.Add(1)
		done <- struct{}{}
		return nil
	}}
	require.NoError(t, m.Dispatch(job, "webhooks"))
	require.NoError(t, m.Dispatch(job, "missing-queue"))
	require.NoError(t, m.Dispatch(job, DefaultQueue))

	for range 3 {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("job did not run")
		}
	}
	m.Stop()
	assert.Equal(t, int32(3), n.Load())
}

func TestManager_DropsWhenFull(t *testing.T) {
	m := NewManager(config.JobsConfig{Workers: 1}, zerolog.Nop())
	job := funcJob{name: "noop", fn: func(context.Context) error { return nil }}

	var err error
	for range 10 {
		if err = m.Dispatch(job, DefaultQueue); err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestManager_DispatchNowRecoversAndTimesOut(t *testing.T) {
	m := NewManager(config.JobsConfig{Timeout: 20 * time.Millisecond}, zerolog.Nop())

	err := m.DispatchNow(context.Background(), funcJob{name: "panic", fn: func(context.Context) error { panic("boom") }})
	assert.ErrorContains(t, err, "boom")

	err = m.DispatchNow(context.Background(), funcJob{name: "slow", fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
