// Package cluster implements the core state machine and startup fence of
// spec §4.G and §4.J, grounded line-for-line on
// _examples/original_source/src/hal/cluster/cluster.c: the lifecycle
// reset→idle→running→(sleeping↔running)→zombie→resetting→idle, plus the
// one-shot gate slaves wait on until the master declares itself alive.
package cluster

import (
	"fmt"

	"github.com/nanvix-go/hal/cache"
	"github.com/nanvix-go/hal/config"
	"github.com/nanvix-go/hal/core"
	"github.com/nanvix-go/hal/errno"
	"github.com/nanvix-go/hal/event"
	"github.com/nanvix-go/hal/interrupt"
	"github.com/nanvix-go/hal/klog"
	"github.com/nanvix-go/hal/spinlock"
	"github.com/nanvix-go/hal/trap"
)

// IPILine is the interrupt line the event bus is layered over when a
// platform backs it with a hardware inter-processor interrupt.
const IPILine = 1

type slot struct {
	lock spinlock.Spinlock
	d    core.Descriptor
}

// Cluster owns the per-cluster core table, the shared event bus, one
// interrupt facade per core, and the startup fence. It is the thing an
// architecture constructs once at boot (spec §9: "model each as a
// statically-sized array indexed by core id, each element guarded by its
// own lock").
type Cluster struct {
	cfg        config.Config
	slots      []*slot
	bus        *event.Bus
	interrupts []*interrupt.Controller
	traps      []*trap.Table
	log        *klog.Logger
	PowerOffFn func(coreid int)

	fenceLock  spinlock.Spinlock
	fenceAlive bool
}

// New builds a cluster per cfg: cfg.MasterCoreID starts Running with its
// lock unlocked; every other core starts Resetting with its lock locked,
// matching spec §4.G "Initial conditions".
func New(cfg config.Config) *Cluster {
	n := cfg.CoresNum()
	cl := &Cluster{
		cfg:        cfg,
		slots:      make([]*slot, n),
		bus:        event.New(n),
		interrupts: make([]*interrupt.Controller, n),
		traps:      make([]*trap.Table, n),
		log:        klog.New("hal/cluster", klog.INFO),
	}
	cl.fenceLock.Init()

	for i := 0; i < n; i++ {
		s := &slot{d: core.Descriptor{ID: i}}
		if i == cfg.MasterCoreID {
			s.lock.Init()
			s.d.State = core.StateRunning
		} else {
			s.lock.InitLocked()
			s.d.State = core.StateResetting
		}
		cl.slots[i] = s
		cl.interrupts[i] = interrupt.New(i, cfg.InterruptsNum, cfg.SpuriousThreshold, cl.log.With(fmt.Sprintf("irq[%d]", i)))
		cl.traps[i] = trap.New(cfg.ExceptionsNum)

		tb := cl.traps[i]
		cl.interrupts[i].ModeReset = func() { tb.SetMode(trap.ModeNormal) }
	}

	return cl
}

// Interrupts returns the interrupt facade for coreid, for callers wiring
// handlers before the core is released.
func (cl *Cluster) Interrupts(coreid int) *interrupt.Controller {
	return cl.interrupts[coreid]
}

// Traps returns the exception/trap table for coreid, whose Mode is what
// interrupt.Controller.Enable resets to Normal (spec §4.D).
func (cl *Cluster) Traps(coreid int) *trap.Table {
	return cl.traps[coreid]
}

func (cl *Cluster) validCore(coreid int) bool {
	return coreid >= 0 && coreid < len(cl.slots)
}

// kpanic is the Go analogue of the original's KASSERT failure path: it
// disables interrupts and halts the calling goroutine forever, exactly like
// core.Halt's acceptNMI=false variant, here given a spin that blocks
// forever. A kpanic call must never let its caller proceed;
// callers rely on this and do not have a reachable statement after it.
func (cl *Cluster) kpanic(coreid int, msg string) {
	cl.log.Panic(func() {
		core.Halt(cl.interrupts[coreid], cl.log, false, func() { select {} })
	}, msg, klog.Int("core", coreid))
}

// --- Startup fence (spec §4.J) -------------------------------------------------

// FenceRelease is called exactly once, by the master, during its cluster
// setup.
func (cl *Cluster) FenceRelease() {
	cl.fenceLock.Lock()
	cl.fenceAlive = true
	cl.fenceLock.Unlock()
}

// FenceWait is called by every slave before proceeding with its own
// cluster setup; it spins until FenceRelease has been observed.
func (cl *Cluster) FenceWait() {
	for {
		cache.DCacheInvalidate()
		cl.fenceLock.Lock()
		if cl.fenceAlive {
			cl.fenceLock.Unlock()
			break
		}
		cache.Barrier()
		cl.fenceLock.Unlock()
		cache.DCacheInvalidate()
	}
}

// --- Core lifecycle state machine (spec §4.G) ----------------------------------

// CoreGetID returns coreid verbatim: Go has no architectural register to
// read a core id from, so every operation below threads it explicitly
// instead (see DESIGN.md).
func (cl *Cluster) CoreGetID(coreid int) int { return coreid }

// CoreIdle suspends coreid until a start signal is received. The calling
// goroutine must already hold coreid's lock on entry — either because this
// is the core's very first boot (slots are constructed pre-locked for
// every non-master core) or because CoreReset left it held.
func (cl *Cluster) CoreIdle(coreid int) {
	s := cl.slots[coreid]

	s.d.State = core.StateIdle
	cache.DCacheInvalidate()
	s.lock.Unlock()

	_, _ = cl.interrupts[coreid].SetLevel(interrupt.LevelLow)
	_ = cl.interrupts[coreid].Unmask(IPILine)

	for {
		s.lock.Lock()
		cache.DCacheInvalidate()

		if s.d.State != core.StateIdle {
			cl.bus.Drop(coreid)
			s.lock.Unlock()
			break
		}

		cache.DCacheInvalidate()
		s.lock.Unlock()

		cl.bus.Wait(coreid)
	}
}

// CoreSleep voluntarily suspends the calling core (which must be Running or
// Zombie) until a wakeup is received. The decrement-before-block ordering
// is the invariant that prevents a wakeup delivered between the snapshot
// and the sleep from being lost (spec §9 "Sleep/wake race").
func (cl *Cluster) CoreSleep(coreid int) {
	s := cl.slots[coreid]

	s.lock.Lock()
	cache.DCacheInvalidate()
	snapshot := s.d.State
	s.lock.Unlock()

	for {
		s.lock.Lock()
		cache.DCacheInvalidate()

		if s.d.Wakeups > 0 {
			s.d.State = snapshot
			s.d.Wakeups--
			cache.DCacheInvalidate()
			s.lock.Unlock()
			return
		}

		s.d.State = core.StateSleeping
		cache.DCacheInvalidate()
		s.lock.Unlock()

		cl.bus.Wait(coreid)
	}
}

// CoreWakeup delivers a wakeup signal to coreid, callable from any core.
func (cl *Cluster) CoreWakeup(coreid int) error {
	if !cl.validCore(coreid) {
		return errno.New("core_wakeup", errno.EINVAL)
	}

	s := cl.slots[coreid]
	s.lock.Lock()
	cache.DCacheInvalidate()

	if s.d.State == core.StateIdle {
		s.lock.Unlock()
		return errno.New("core_wakeup", errno.EINVAL)
	}

	s.d.Wakeups++
	cl.bus.Notify(coreid)

	cache.DCacheInvalidate()
	s.lock.Unlock()
	return nil
}

// CoreStart installs fn as coreid's entry routine and wakes it. callerID is
// the id of the calling core, rejected if it equals coreid.
func (cl *Cluster) CoreStart(callerID, coreid int, fn func()) error {
	if !cl.validCore(coreid) {
		return errno.New("core_start", errno.EINVAL)
	}
	if coreid == callerID {
		return errno.New("core_start", errno.EINVAL)
	}
	if fn == nil {
		return errno.New("core_start", errno.EINVAL)
	}

	s := cl.slots[coreid]
	ntrials := 0

	for {
		s.lock.Lock()
		cache.DCacheInvalidate()

		switch s.d.State {
		case core.StateZombie:
			s.lock.Unlock()
			continue

		case core.StateResetting:
			s.lock.Unlock()
			if ntrials++; ntrials < cl.cfg.CoreStartNtrials {
				continue
			}
			cl.log.Warn("failed to start core", klog.Int("core", coreid))
			return errno.New("core_start", errno.EBUSY)

		case core.StateIdle:
			s.d.State = core.StateRunning
			s.d.Start = fn
			s.d.Wakeups = 0
			cache.DCacheInvalidate()

			cl.bus.Notify(coreid)
			s.lock.Unlock()
			return nil

		default:
			s.lock.Unlock()
			return errno.New("core_start", errno.EBUSY)
		}
	}
}

// CoreRun is the tail of CoreIdle after a successful start: it records
// first-ever initialization and invokes the installed start routine, which
// is expected to call CoreRelease then CoreReset before returning.
func (cl *Cluster) CoreRun(coreid int) {
	s := cl.slots[coreid]

	s.lock.Lock()
	cache.DCacheInvalidate()
	if !s.d.Initialized {
		s.d.Initialized = true
		cache.DCacheInvalidate()
	}
	start := s.d.Start
	s.lock.Unlock()

	start()
}

// CoreRelease puts coreid in the Zombie pre-resetting state so that a
// concurrent CoreStart knows to retry rather than fail. Master may not
// call this.
func (cl *Cluster) CoreRelease(coreid int) error {
	if coreid == cl.cfg.MasterCoreID {
		return errno.New("core_release", errno.EINVAL)
	}

	s := cl.slots[coreid]
	s.lock.Lock()
	s.d.State = core.StateZombie
	cache.DCacheInvalidate()
	s.lock.Unlock()
	return nil
}

// CoreReset transitions coreid (which must have called CoreRelease first)
// from Zombie to Resetting and leaves its lock held: the lock is released
// only from within the next CoreIdle, exactly like the original's
// core_reset/core_idle handoff. The caller is expected to invoke CoreIdle
// again immediately after CoreReset returns (the architecture-specific
// reset trampoline that "does not return" in the original is out of scope
// here; the calling goroutine plays that role by looping).
func (cl *Cluster) CoreReset(coreid int) error {
	if coreid == cl.cfg.MasterCoreID {
		return errno.New("core_reset", errno.EINVAL)
	}

	_ = cl.interrupts[coreid].Mask(IPILine)
	_, _ = cl.interrupts[coreid].SetLevel(interrupt.LevelNone)

	s := cl.slots[coreid]
	s.lock.Lock()
	cache.DCacheInvalidate()

	if s.d.State != core.StateZombie {
		cl.kpanic(coreid, "core_reset: core did not signal release")
		select {} // unreachable: kpanic halts this goroutine forever
	}

	s.d.State = core.StateResetting
	cache.DCacheInvalidate()
	// Lock intentionally left held; CoreIdle releases it.
	return nil
}

// CoreShutdown powers coreid off; no further transitions are observable
// afterward (spec §3 invariant 6).
func (cl *Cluster) CoreShutdown(coreid int) {
	s := cl.slots[coreid]
	s.lock.Lock()
	s.d.State = core.StateOffline
	cache.DCacheInvalidate()
	s.lock.Unlock()

	if cl.PowerOffFn != nil {
		cl.PowerOffFn(coreid)
	}
}

// State reports coreid's current lifecycle state, invalidating the cache
// first since this is a read made outside any critical section the caller
// holds (spec §4.A).
func (cl *Cluster) State(coreid int) core.State {
	cache.DCacheInvalidate()
	s := cl.slots[coreid]
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.d.State
}

// RunSlaveMain is the slave-core main loop an architecture's entry
// trampoline calls once after FenceWait: idle until started, run to
// completion, and cycle back to idle after the started routine releases
// and resets. It never returns.
func (cl *Cluster) RunSlaveMain(coreid int) {
	for {
		cl.CoreIdle(coreid)
		cl.CoreRun(coreid)
	}
}
