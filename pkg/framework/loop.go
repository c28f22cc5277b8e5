package framework

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is the loop interval when none is set.
const DefaultInterval = 100 * time.Millisecond

// Loop periodically runs controllers by stage.
type Loop struct {
	Interval time.Duration

	lock        sync.Mutex
	controllers [numStages][]Controller
	runners     []Runnable
	iteration   uint64

	wakeUpCh chan struct{}
}

type loopIteration struct {
	loop      *Loop
	ctx       context.Context
	time      time.Time
	iteration uint64
	stage     Stage
}

// NewLoop creates a Loop.
func NewLoop(interval time.Duration) *Loop {
	return &Loop{Interval: interval, wakeUpCh: make(chan struct{}, 1)}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers at a stage. Controllers which are
// also Runnable are started with the loop.
func (l *Loop) AddController(stage Stage, ctls ...Controller) *Loop {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.controllers[stage] = append(l.controllers[stage], ctls...)
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnable implementions started with the loop.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.lock.Lock()
	l.runners = append(l.runners, runnables...)
	l.lock.Unlock()
	return l
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	if l.wakeUpCh == nil {
		l.wakeUpCh = make(chan struct{}, 1)
	}
	l.lock.Lock()
	runners := append([]Runnable(nil), l.runners...)
	l.lock.Unlock()

	runner := NewRunnerWith(ctx)
	runner.Go(runners...)
	defer runner.Wait()

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.RunIteration(ctx)
		case <-l.wakeUpCh:
			l.RunIteration(ctx)
		}
	}
}

// TriggerNext schedules an iteration without waiting for the interval.
func (l *Loop) TriggerNext() {
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

// RunIteration runs all controllers once, stage by stage.
func (l *Loop) RunIteration(ctx context.Context) {
	l.lock.Lock()
	l.iteration++
	iter := &loopIteration{loop: l, ctx: ctx, time: time.Now(), iteration: l.iteration}
	var stages [numStages][]Controller
	for n := range l.controllers {
		stages[n] = append([]Controller(nil), l.controllers[n]...)
	}
	l.lock.Unlock()

	for n, ctls := range stages {
		iter.stage = Stage(n)
		for _, ctl := range ctls {
			if err := ctl.Control(iter); err != nil {
				glog.Errorf("controller error: %v", err)
			}
		}
	}
}

func (t *loopIteration) Context() context.Context { return t.ctx }
func (t *loopIteration) Time() time.Time          { return t.time }
func (t *loopIteration) Iteration() uint64        { return t.iteration }
func (t *loopIteration) Stage() Stage             { return t.stage }
func (t *loopIteration) TriggerNext()             { t.loop.TriggerNext() }
