// Package pipeline provides the client-side event pipeline.
//
// Producers call RecordEvent from anywhere in the host application. Each
// event is enriched with a generated id, a timestamp and a snapshot of the
// shared global context, then appended to a bounded in-memory queue.
//
// # Draining
//
// The queue is drained when its length reaches the batch size, on every tick
// of a single recurring timer, or on an explicit Flush. At most one drain runs
// at a time. A drain detaches the current queue before transmitting, so events
// recorded during network I/O accumulate in a fresh queue. A failed batch is
// put back at the front of the queue and retried on the next tick:
//
//	record ──► queue ──► drain ──► transport ──► collector
//	              ▲                    │
//	              └──── re-queue ◄─────┘ (failure)
//
// # Shutdown
//
// FlushOnShutdown hands whatever remains queued to the transport's
// fire-and-forget primitive when it has one (ports.Beaconer), and otherwise
// to an ordinary request that is allowed to outlive the caller. It never
// blocks and is never retried.
//
// # Bounds
//
// RecordEvent drops the new event when the queue is full. A re-queued batch
// is not re-checked against MaxQueueSize, so after a failed drain the queue
// may hold up to twice MaxQueueSize events until the next successful drain.
package pipeline
