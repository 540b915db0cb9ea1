// Package core provides the thin per-core entry points that sit in front
// of the cluster state machine: core_halt and core_setup in the original
// HAL (src/hal/core/core.c). The state machine itself — idle/sleep/wakeup/
// start/run/release/reset/shutdown — lives in package cluster, grounded on
// src/hal/cluster/cluster.c, since that is where the original keeps it too.
package core

import (
	"github.com/nanvix-go/hal/interrupt"
	"github.com/nanvix-go/hal/klog"
)

// Descriptor is "one core descriptor" (spec §3): the initialized flag,
// lifecycle state, wakeup counter, and installed start routine. The
// spinlock guarding it is not a field here; package cluster keeps it beside
// each Descriptor in its core table. It is intentionally data-only; the state
// machine operating on it lives in package cluster so that every
// transition can be grounded step-by-step against cluster.c.
type Descriptor struct {
	ID          int
	Initialized bool
	State       State
	Wakeups     uint
	Start       func()
}

// State is a core's lifecycle state (spec §3).
type State int

const (
	StateRunning State = iota
	StateIdle
	StateSleeping
	StateZombie
	StateResetting
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateIdle:
		return "IDLE"
	case StateSleeping:
		return "SLEEPING"
	case StateZombie:
		return "ZOMBIE"
	case StateResetting:
		return "RESETTING"
	case StateOffline:
		return "OFFLINE"
	default:
		return "UNKNOWN"
	}
}

// Setup is the counterpart of the original's core_setup. It logs the core's
// boot and returns; it does not change the execution mode and does not touch
// ic, so interrupt levels and masks stay as the caller left them. MMU/TLB
// setup is performed separately by the mmu package
// since only the master core builds the root tables (spec §4.F).
func Setup(ic *interrupt.Controller, log *klog.Logger) {
	log.Info("booting up core")
}

// Halt implements the two documented core_halt semantics (spec §9 Open
// Questions): acceptNMI=false disables interrupts and spins forever
// ("halt and stay"), matching the original's interrupts_disable() then an
// infinite loop; acceptNMI=true leaves the highest interrupt level
// (timer/NMI-equivalent) unmasked so a platform NMI can still reach the
// core ("halt and accept NMI"). Both variants then call spin; Halt returns
// only if spin returns.
func Halt(ic *interrupt.Controller, log *klog.Logger, acceptNMI bool, spin func()) {
	log.Info("halting")
	if acceptNMI {
		_, _ = ic.SetLevel(interrupt.LevelHigh)
	} else {
		ic.Disable()
	}
	spin()
}
