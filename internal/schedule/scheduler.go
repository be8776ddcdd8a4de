package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTimer(d time.Duration) Timer {
	if d < 0 {
		d = 0
	}
	return realTimer{t: time.NewTimer(d)}
}

func (t realTimer) C() <-chan time.Time { return t.t.C }

func (t realTimer) Stop() bool { return t.t.Stop() }

type SchedulerConfig struct {
	// MaxConcurrentSubjects bounds how many distinct subjects are processed
	// in parallel during a drain. Actions for the same subject always run
	// sequentially.
	MaxConcurrentSubjects int
	// RetryInterval sizes the sleep when overdue rows stay behind for a
	// transient retry, so the loop does not spin on them.
	RetryInterval time.Duration
}

// Reporter receives the verdict of every executed action. Wired to the
// audit log at startup.
type Reporter func(ctx context.Context, action PendingAction, outcome Outcome, err error)

// Scheduler runs the single timer loop: sleep until the soonest pending
// trigger, drain everything due, re-arm. A Nudge from an insert with a
// sooner trigger pre-empts the current wait.
type Scheduler struct {
	store    Store
	exec     *Executor
	logger   *zap.Logger
	clock    Clock
	cfg      SchedulerConfig
	reporter Reporter

	nudge chan struct{}
	done  chan struct{}
	wg    sync.WaitGroup
}

func NewScheduler(cfg SchedulerConfig, store Store, exec *Executor, logger *zap.Logger) *Scheduler {
	if cfg.MaxConcurrentSubjects <= 0 {
		cfg.MaxConcurrentSubjects = 4
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Minute
	}
	return &Scheduler{
		store:  store,
		exec:   exec,
		logger: logger,
		clock:  realClock{},
		cfg:    cfg,
		nudge:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *Scheduler) WithClock(clock Clock) {
	s.clock = clock
}

func (s *Scheduler) SetReporter(reporter Reporter) {
	s.reporter = reporter
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Scheduler) Stop() {
	close(s.done)
	s.wg.Wait()
}

// Nudge wakes the loop so it re-reads the soonest trigger. Safe to call
// from any goroutine; coalesces while a wake is already queued.
func (s *Scheduler) Nudge() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	ctx := context.Background()

	for {
		retained, err := s.drainDue(ctx)
		if err != nil {
			// Store corruption breaks the exactly-once guarantee; halting
			// beats guessing.
			s.logger.Error("action store unavailable, scheduler halted", zap.Error(err))
			return
		}

		next, ok, err := s.store.PeekNextAction(ctx)
		if err != nil {
			s.logger.Error("action store unavailable, scheduler halted", zap.Error(err))
			return
		}

		var timer Timer
		var timerC <-chan time.Time
		if ok {
			wait := next.Sub(s.clock.Now())
			if wait < 0 {
				wait = 0
			}
			if retained > 0 && wait < s.cfg.RetryInterval {
				wait = s.cfg.RetryInterval
			}
			timer = s.clock.NewTimer(wait)
			timerC = timer.C()
		}

		select {
		case <-s.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.nudge:
			if timer != nil {
				timer.Stop()
			}
		case <-timerC:
		}
	}
}

// drainDue processes the full batch of currently-due actions. Independent
// subjects run concurrently under the worker cap; same-subject actions run
// in (trigger_at, created_at) order on one goroutine. Returns how many rows
// were left behind for retry.
func (s *Scheduler) drainDue(ctx context.Context) (int, error) {
	due, err := s.store.DueActions(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	groups := groupBySubject(due)
	sem := semaphore.NewWeighted(int64(s.cfg.MaxConcurrentSubjects))
	var wg sync.WaitGroup
	var retained atomic.Int64
	var fatalMu sync.Mutex
	var fatal error

	for _, group := range groups {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(batch []PendingAction) {
			defer wg.Done()
			defer sem.Release(1)
			for _, action := range batch {
				kept, err := s.runOne(ctx, action)
				if kept {
					retained.Add(1)
				}
				if err != nil {
					fatalMu.Lock()
					if fatal == nil {
						fatal = err
					}
					fatalMu.Unlock()
					return
				}
			}
		}(group)
	}
	wg.Wait()

	return int(retained.Load()), fatal
}

// runOne executes a single action and commits the verdict to the store.
// Execution failures are logged and never abort the batch; only a store
// mutation failure propagates, since the row can no longer be settled.
func (s *Scheduler) runOne(ctx context.Context, action PendingAction) (retained bool, err error) {
	outcome, execErr := s.exec.Execute(ctx, action)

	fields := []zap.Field{
		zap.String("action_id", action.ID),
		zap.String("kind", string(action.Kind)),
		zap.String("guild_id", action.Subject.GuildID),
		zap.String("target_id", action.Subject.TargetID),
		zap.String("outcome", outcome.String()),
	}
	switch {
	case execErr == nil:
		s.logger.Info("action executed", fields...)
	case outcome == OutcomeRetry:
		s.logger.Warn("action deferred", append(fields, zap.Error(execErr))...)
	default:
		s.logger.Warn("action failed", append(fields, zap.Error(execErr))...)
	}
	if s.reporter != nil {
		s.reporter(ctx, action, outcome, execErr)
	}

	if outcome == OutcomeRetry {
		return true, nil
	}
	if err := s.store.DeleteAction(ctx, action.ID); err != nil {
		return false, err
	}
	return false, nil
}

func groupBySubject(actions []PendingAction) [][]PendingAction {
	index := make(map[string]int)
	var groups [][]PendingAction
	for _, action := range actions {
		key := action.Subject.Key()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], action)
	}
	return groups
}
