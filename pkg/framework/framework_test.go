package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil, nil).Aggregate())
	err := errs.Add(errors.New("a"), nil, errors.New("b")).Aggregate()
	require.Error(t, err)
	assert.Equal(t, "Multiple errors:\na\nb", err.Error())
}

func TestRunnerStopsOnFirstExit(t *testing.T) {
	failure := errors.New("lost")
	r := NewRunner()
	r.Go(
		RunFunc(func(ctx context.Context) error { return failure }),
		NamedRun("waiter", RunFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})),
	)
	err := r.Wait()
	var aggr *AggregatedError
	require.True(t, errors.As(err, &aggr))
	assert.Equal(t, []error{failure}, aggr.Errors)
}

func TestRunWithContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stopCh := make(chan struct{})
	cancel()
	err := RunWithContextCancel(ctx, func() { close(stopCh) }, func() error {
		<-stopCh
		return nil
	})
	assert.Equal(t, context.Canceled, err)
	assert.NoError(t, RunWithContext(context.Background(), func() error { return nil }))
}

func TestLoopStages(t *testing.T) {
	l := NewLoop(time.Hour)
	var order []string
	record := func(name string) Controller {
		return ControlFunc(func(cc ControlContext) error {
			order = append(order, name)
			return nil
		})
	}
	l.AddController(StageIdle, record("idle"))
	l.AddController(StageSample, record("sample"))
	l.AddController(StageReport, record("report"), ControlFunc(func(cc ControlContext) error {
		assert.Equal(t, StageReport, cc.Stage())
		assert.Equal(t, uint64(1), cc.Iteration())
		return errors.New("ignored")
	}))
	l.RunIteration(context.Background())
	assert.Equal(t, []string{"sample", "report", "idle"}, order)
}

func TestLoopTriggerNext(t *testing.T) {
	l := NewLoop(time.Hour)
	ran := make(chan uint64, 4)
	l.AddController(StageSample, ControlFunc(func(cc ControlContext) error {
		ran <- cc.Iteration()
		return nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	l.TriggerNext()
	select {
	case n := <-ran:
		assert.Equal(t, uint64(1), n)
	case <-time.After(time.Second):
		t.Fatal("iteration not triggered")
	}
	cancel()
	assert.Equal(t, context.Canceled, <-done)
}
