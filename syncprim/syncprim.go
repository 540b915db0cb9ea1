// Package syncprim builds the semaphore and fence of spec §4.I on top of
// spinlock and event.Bus: "both are pure compositions, never
// inverse-referenced — cores do not know which sync primitive blocked
// them" (spec §9 Design Notes).
package syncprim

import (
	"github.com/nanvix-go/hal/event"
	"github.com/nanvix-go/hal/spinlock"
)

// Semaphore is a signed count guarded by a spinlock; a negative count's
// magnitude is the number of cores currently blocked in Down.
type Semaphore struct {
	lock    spinlock.Spinlock
	count   int
	bus     *event.Bus
	waiters []int // FIFO of coreids blocked in Down
}

// NewSemaphore initializes a semaphore with the given count over bus.
func NewSemaphore(count int, bus *event.Bus) *Semaphore {
	s := &Semaphore{count: count, bus: bus}
	s.lock.Init()
	return s
}

// Down decrements the count; if the result is negative the calling core
// (coreid) blocks on the event bus until a matching Up wakes it.
func (s *Semaphore) Down(coreid int) {
	s.lock.Lock()
	s.count--
	blocked := s.count < 0
	if blocked {
		s.waiters = append(s.waiters, coreid)
	}
	s.lock.Unlock()

	if blocked {
		s.bus.Wait(coreid)
	}
}

// Up increments the count; if the pre-increment value was negative, it
// wakes the FIFO-next blocked waiter.
func (s *Semaphore) Up() {
	s.lock.Lock()
	wasNegative := s.count < 0
	s.count++
	var waiter int
	haveWaiter := false
	if wasNegative && len(s.waiters) > 0 {
		waiter = s.waiters[0]
		s.waiters = s.waiters[1:]
		haveWaiter = true
	}
	s.lock.Unlock()

	if haveWaiter {
		s.bus.Notify(waiter)
	}
}

// Count returns the current signed count, for tests asserting the
// testable property (downs - ups) <= initial k.
func (s *Semaphore) Count() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.count
}

// Fence is a single-shot counted rendezvous: Wait blocks until Join has
// been called at least target times since NewFence.
type Fence struct {
	lock    spinlock.Spinlock
	target  int
	arrived int
	bus     *event.Bus
	waiters []int
}

// NewFence initializes a fence over bus with the given arrival target.
func NewFence(target int, bus *event.Bus) *Fence {
	f := &Fence{target: target, bus: bus}
	f.lock.Init()
	return f
}

// Join atomically increments the arrival count and, once it reaches
// target, wakes every core blocked in Wait.
func (f *Fence) Join() {
	f.lock.Lock()
	f.arrived++
	reached := f.arrived >= f.target
	var woken []int
	if reached {
		woken = f.waiters
		f.waiters = nil
	}
	f.lock.Unlock()

	for _, w := range woken {
		f.bus.Notify(w)
	}
}

// Wait blocks the calling core (coreid) until arrived >= target.
func (f *Fence) Wait(coreid int) {
	for {
		f.lock.Lock()
		if f.arrived >= f.target {
			f.lock.Unlock()
			return
		}
		f.waiters = append(f.waiters, coreid)
		f.lock.Unlock()

		f.bus.Wait(coreid)
	}
}

// Arrived reports the current arrival count.
func (f *Fence) Arrived() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.arrived
}
