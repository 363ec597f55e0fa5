package domain

import "time"

// Item is a candidate document reported by a source enumerator.
type Item struct {
	// Path identifies the item.
	Path string

	// Version is the item's last-modification timestamp.
	Version time.Time
}

// ScheduleEntry is a unit of work placed on the to-do queue.
// It is consumed exactly once by the worker and never mutated.
type ScheduleEntry struct {
	// Path identifies the item to process.
	Path string

	// ObservedVersion is the version seen when the item was judged due.
	ObservedVersion time.Time
}

// CompletionEvent reports the outcome of processing a ScheduleEntry.
type CompletionEvent struct {
	// Path identifies the processed item.
	Path string

	// ObservedVersion is copied from the ScheduleEntry.
	ObservedVersion time.Time

	// Success is false when processing should be retried.
	Success bool

	// StartedAt is when the worker began processing.
	StartedAt time.Time

	// EndedAt is when processing returned.
	EndedAt time.Time
}

// CompletionRecord is a persisted CompletionEvent.
type CompletionRecord struct {
	// ID uniquely identifies the record.
	ID string

	CompletionEvent
}

// WatchConfig holds change-scheduler configuration.
type WatchConfig struct {
	// TickPeriod is the interval between directory scans.
	TickPeriod time.Duration

	// DebounceDelay is the minimum quiet time after a change before an
	// item becomes eligible for processing.
	DebounceDelay time.Duration

	// Extensions limits enumeration to files with these extensions
	// (without the leading dot, case-insensitive).
	Extensions []string

	// StatsPeriod is how often counters are logged. Zero disables the log line.
	StatsPeriod time.Duration

	// ProcessTimeout bounds a single process call. Zero means no deadline.
	ProcessTimeout time.Duration

	// MaxProcessRate limits process calls per second. Zero means unlimited.
	MaxProcessRate float64
}

// DefaultWatchConfig returns the default scheduler settings.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		TickPeriod:    500 * time.Millisecond,
		DebounceDelay: 1 * time.Second,
		Extensions:    []string{"txt", "md"},
		StatsPeriod:   30 * time.Second,
	}
}

// SchedulerStats is a snapshot of the scheduler counters.
type SchedulerStats struct {
	// Enqueued counts ScheduleEntries put on the to-do queue.
	Enqueued int64

	// Succeeded counts successful completions.
	Succeeded int64

	// Failed counts failed completions.
	Failed int64

	// InFlight is the number of paths currently pending or processing.
	InFlight int
}
