// Package spinlock implements the fair-enough mutual-exclusion primitive
// (spec §4.B) every core descriptor, the startup fence, and each semaphore
// and fence is guarded by. It is a bare atomic word, not sync.Mutex: the HAL's own
// correctness arguments (lost-wakeup avoidance, etc.) are written in terms
// of "acquire the lock, invalidate, check state" and need the caller to see
// the CAS directly rather than through a blocking-scheduler abstraction.
package spinlock

import "sync/atomic"

const (
	unlocked int32 = 0
	locked   int32 = 1
)

// Spinlock is an atomic word with values {Unlocked, Locked}. Owner tracking
// is not required for correctness and fairness is not guaranteed, matching
// spec §3.
type Spinlock struct {
	state int32
}

// New returns an unlocked spinlock.
func New() *Spinlock {
	return &Spinlock{state: unlocked}
}

// Init resets l to unlocked. Provided so a Spinlock can be embedded as a
// zero-value field and explicitly initialized later, matching the spinlock
// field inside a core descriptor.
func (l *Spinlock) Init() {
	atomic.StoreInt32(&l.state, unlocked)
}

// InitLocked resets l to locked — used for the slave cores' initial lock
// state (spec §3, §4.G "Initial conditions").
func (l *Spinlock) InitLocked() {
	atomic.StoreInt32(&l.state, locked)
}

// Lock spins until the CAS Unlocked→Locked succeeds. No recursion is
// supported.
func (l *Spinlock) Lock() {
	for !atomic.CompareAndSwapInt32(&l.state, unlocked, locked) {
	}
}

// TryLock attempts the CAS once and reports whether it succeeded.
func (l *Spinlock) TryLock() bool {
	return atomic.CompareAndSwapInt32(&l.state, unlocked, locked)
}

// Unlock stores Unlocked with release semantics. Calling Unlock without a
// matching Lock is undefined behavior per spec and is not detected here.
func (l *Spinlock) Unlock() {
	atomic.StoreInt32(&l.state, unlocked)
}

// Locked reports the current state for diagnostics; it is not safe to act
// on without separately taking the lock.
func (l *Spinlock) Locked() bool {
	return atomic.LoadInt32(&l.state) == locked
}
