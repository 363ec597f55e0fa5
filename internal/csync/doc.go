// Package csync provides concurrency primitives shared by the core services.
//
// Queue is an unbounded FIFO used as the channel between long-lived tasks.
// Unlike a buffered channel, Push never blocks, so a producer that also
// consumes a feedback queue can never deadlock against its consumer.
//
//	todo := csync.NewQueue[domain.ScheduleEntry]()
//	todo.Push(entry)
//	next, err := todo.Pop(ctx) // blocks until an entry or ctx is done
package csync
