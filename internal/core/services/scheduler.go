package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/marginalia/internal/core/domain"
	"github.com/custodia-labs/marginalia/internal/core/ports/driven"
	"github.com/custodia-labs/marginalia/internal/core/ports/driving"
	"github.com/custodia-labs/marginalia/internal/csync"
	"github.com/custodia-labs/marginalia/internal/logger"
)

// Ensure ChangeScheduler implements the interface.
var _ driving.ChangeScheduler = (*ChangeScheduler)(nil)

const (
	// historyKeep is the number of completion records kept per path.
	historyKeep = 100

	// historyPruneInterval is how often old completion records are pruned.
	historyPruneInterval = 10 * time.Minute
)

// ChangeScheduler polls a source for changed items, debounces them and
// hands them to a single worker. A path is never pending or processing
// more than once at a time. Failed items are retried on later ticks
// because their processed version is left unchanged.
//
// The processed and inFlight maps are owned by the tick goroutine. The
// worker only talks to it through the todo and done queues, which are
// unbounded so neither side can block the other.
type ChangeScheduler struct {
	config    domain.WatchConfig
	source    driven.SourceEnumerator
	processor driven.Processor
	store     driven.ProcessedStore
	notifier  driven.ChangeNotifier
	limiter   *rate.Limiter
	now       func() time.Time

	todo *csync.Queue[domain.ScheduleEntry]
	done *csync.Queue[domain.CompletionEvent]

	processed map[string]time.Time
	inFlight  map[string]struct{}
	lastStats time.Time
	lastPrune time.Time

	enqueued    atomic.Int64
	succeeded   atomic.Int64
	failed      atomic.Int64
	inFlightLen atomic.Int64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// SchedulerOption configures optional ChangeScheduler collaborators.
type SchedulerOption func(*ChangeScheduler)

// WithProcessedStore persists processed versions and completion history.
func WithProcessedStore(store driven.ProcessedStore) SchedulerOption {
	return func(s *ChangeScheduler) {
		s.store = store
	}
}

// WithNotifier wakes the tick loop early when the notifier reports a change.
func WithNotifier(notifier driven.ChangeNotifier) SchedulerOption {
	return func(s *ChangeScheduler) {
		s.notifier = notifier
	}
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *ChangeScheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewChangeScheduler creates a scheduler for the given source and processor.
func NewChangeScheduler(
	config domain.WatchConfig,
	source driven.SourceEnumerator,
	processor driven.Processor,
	opts ...SchedulerOption,
) *ChangeScheduler {
	s := &ChangeScheduler{
		config:    config,
		source:    source,
		processor: processor,
		now:       time.Now,
		todo:      csync.NewQueue[domain.ScheduleEntry](),
		done:      csync.NewQueue[domain.CompletionEvent](),
		processed: make(map[string]time.Time),
		inFlight:  make(map[string]struct{}),
	}
	if config.MaxProcessRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(config.MaxProcessRate), 1)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the tick loop and the worker. This method blocks until Stop
// is called or ctx is cancelled. An item being processed when the loop
// stops is allowed to finish.
func (s *ChangeScheduler) Start(ctx context.Context) error {
	if s.source == nil || s.processor == nil {
		return fmt.Errorf("%w: scheduler needs a source and a processor", domain.ErrInvalidConfig)
	}
	if s.config.TickPeriod <= 0 {
		return fmt.Errorf("%w: tick period must be positive", domain.ErrInvalidConfig)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.wg.Add(1)
	s.mu.Unlock()

	s.loadVersions(ctx)

	workerCtx, cancel := context.WithCancel(ctx)
	go func() {
		defer s.wg.Done()
		s.work(workerCtx)
	}()

	err := s.run(ctx, stopCh)

	cancel()
	s.wg.Wait()

	// Record outcomes that arrived after the last tick.
	s.drainCompletions(context.WithoutCancel(ctx))

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop gracefully shuts down the scheduler and waits for the worker.
func (s *ChangeScheduler) Stop() error {
	s.mu.Lock()
	if !s.running || s.stopCh == nil {
		s.mu.Unlock()
		return nil
	}
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// Stats returns a snapshot of the scheduler counters.
func (s *ChangeScheduler) Stats() domain.SchedulerStats {
	return domain.SchedulerStats{
		Enqueued:  s.enqueued.Load(),
		Succeeded: s.succeeded.Load(),
		Failed:    s.failed.Load(),
		InFlight:  int(s.inFlightLen.Load()),
	}
}

// loadVersions seeds the processed map from the store.
func (s *ChangeScheduler) loadVersions(ctx context.Context) {
	if s.store == nil {
		return
	}
	versions, err := s.store.LoadVersions(ctx)
	if err != nil {
		logger.Warn("scheduler: failed to load processed versions: %v", err)
		return
	}
	for path, version := range versions {
		if version.After(s.processed[path]) {
			s.processed[path] = version
		}
	}
	logger.Debug("scheduler: loaded %d processed versions", len(versions))
}

// run is the tick loop.
func (s *ChangeScheduler) run(ctx context.Context, stopCh <-chan struct{}) error {
	s.tick(ctx, s.now())

	ticker := time.NewTicker(s.config.TickPeriod)
	defer ticker.Stop()

	var changes <-chan struct{}
	if s.notifier != nil {
		changes = s.notifier.Changes()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.tick(ctx, s.now())
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			s.tick(ctx, s.now())
		}
	}
}

// tick drains completions and then enqueues every item that changed since
// it was last processed and has been quiet for the debounce delay.
func (s *ChangeScheduler) tick(ctx context.Context, now time.Time) {
	s.drainCompletions(ctx)

	items, err := s.source.Enumerate(ctx)
	if err != nil {
		logger.Warn("scheduler: enumerate failed: %v", err)
		s.housekeeping(ctx, now)
		return
	}

	cutoff := now.Add(-s.config.DebounceDelay)
	for _, item := range items {
		if _, busy := s.inFlight[item.Path]; busy {
			continue
		}
		if last, ok := s.processed[item.Path]; ok && !item.Version.After(last) {
			continue
		}
		if item.Version.After(cutoff) {
			logger.Debug("scheduler: %s changed, waiting for it to settle", item.Path)
			continue
		}

		s.todo.Push(domain.ScheduleEntry{Path: item.Path, ObservedVersion: item.Version})
		s.inFlight[item.Path] = struct{}{}
		s.enqueued.Add(1)
		logger.Info("scheduled %s", item.Path)
	}
	s.inFlightLen.Store(int64(len(s.inFlight)))

	s.housekeeping(ctx, now)
}

// drainCompletions applies every queued completion without blocking.
func (s *ChangeScheduler) drainCompletions(ctx context.Context) {
	for {
		event, ok := s.done.TryPop()
		if !ok {
			break
		}

		if event.Success {
			s.processed[event.Path] = event.ObservedVersion
			s.succeeded.Add(1)
			if s.store != nil {
				if err := s.store.SaveVersion(ctx, event.Path, event.ObservedVersion); err != nil {
					logger.Warn("scheduler: failed to save version for %s: %v", event.Path, err)
				}
			}
		} else {
			s.failed.Add(1)
			logger.Warn("processing %s failed, will retry", event.Path)
		}
		delete(s.inFlight, event.Path)

		if s.store != nil {
			record := &domain.CompletionRecord{CompletionEvent: event}
			if err := s.store.RecordCompletion(ctx, record); err != nil {
				logger.Warn("scheduler: failed to record completion for %s: %v", event.Path, err)
			}
		}
	}
	s.inFlightLen.Store(int64(len(s.inFlight)))
}

// housekeeping logs counters and prunes history on their own periods.
func (s *ChangeScheduler) housekeeping(ctx context.Context, now time.Time) {
	if s.config.StatsPeriod > 0 && now.Sub(s.lastStats) >= s.config.StatsPeriod {
		if !s.lastStats.IsZero() {
			st := s.Stats()
			logger.Info("scheduler: enqueued=%d succeeded=%d failed=%d in_flight=%d",
				st.Enqueued, st.Succeeded, st.Failed, st.InFlight)
		}
		s.lastStats = now
	}

	if s.store != nil && now.Sub(s.lastPrune) >= historyPruneInterval {
		if err := s.store.PruneHistory(ctx, historyKeep); err != nil {
			logger.Warn("scheduler: failed to prune history: %v", err)
		}
		s.lastPrune = now
	}
}

// work is the single worker loop.
func (s *ChangeScheduler) work(ctx context.Context) {
	for {
		entry, err := s.todo.Pop(ctx)
		if err != nil {
			return
		}
		s.done.Push(s.processEntry(ctx, entry))
	}
}

// processEntry runs the processor on one entry. The processor sees a
// context that outlives ctx so that a shutdown lets the current item
// finish; only the configured timeout bounds it.
func (s *ChangeScheduler) processEntry(ctx context.Context, entry domain.ScheduleEntry) domain.CompletionEvent {
	event := domain.CompletionEvent{
		Path:            entry.Path,
		ObservedVersion: entry.ObservedVersion,
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			event.StartedAt = s.now()
			event.EndedAt = event.StartedAt
			return event
		}
	}

	procCtx := context.WithoutCancel(ctx)
	if s.config.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		procCtx, cancel = context.WithTimeout(procCtx, s.config.ProcessTimeout)
		defer cancel()
	}

	event.StartedAt = s.now()
	logger.Debug("processing %s", entry.Path)
	event.Success = s.safeProcess(procCtx, entry.Path)
	event.EndedAt = s.now()

	if errors.Is(procCtx.Err(), context.DeadlineExceeded) {
		logger.Warn("processing %s hit the %s timeout", entry.Path, s.config.ProcessTimeout)
	}
	return event
}

// safeProcess converts a processor panic into a failed completion.
func (s *ChangeScheduler) safeProcess(ctx context.Context, path string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("processing %s panicked: %v", path, r)
			ok = false
		}
	}()
	return s.processor.Process(ctx, path)
}
