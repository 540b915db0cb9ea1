// Package event implements the per-core edge-triggered wakeup signal of
// spec §4.C. On platforms with hardware inter-processor interrupts, notify
// and wait would be backed by an IPI; here both backends collapse to a
// single-slot buffered channel, which already gives the "at most one
// coalesced edge between two waits" semantics the spec asks for as the
// minimum — callers that need counted wakeups compose a semaphore on top
// (spec §9 Design Notes, "the counting-IPI semantics").
package event

// Bus holds one edge-triggered record per core, addressable by core id —
// the "Event record (one per core)" of spec §3.
type Bus struct {
	records []chan struct{}
}

// New allocates a Bus sized for n cores.
func New(n int) *Bus {
	records := make([]chan struct{}, n)
	for i := range records {
		records[i] = make(chan struct{}, 1)
	}
	return &Bus{records: records}
}

func (b *Bus) chanFor(coreid int) chan struct{} {
	return b.records[coreid]
}

// Wait blocks the calling core until at least one edge has arrived since
// the last consumed edge, consuming exactly one edge.
func (b *Bus) Wait(coreid int) {
	<-b.chanFor(coreid)
}

// Notify delivers an edge to coreid. Safe to call from any core. Repeated
// notifies between two waits coalesce into at most one delivered edge.
func (b *Bus) Notify(coreid int) {
	select {
	case b.chanFor(coreid) <- struct{}{}:
	default:
	}
}

// Drop discards any pending edge for coreid without blocking.
func (b *Bus) Drop(coreid int) {
	select {
	case <-b.chanFor(coreid):
	default:
	}
}
