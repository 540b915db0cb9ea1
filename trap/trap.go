// Package trap implements the exception/trap facade of spec §4.E: a table
// indexed by exception kind, installable handlers, and the synchronous
// user→kernel trap dispatcher that flips the core's execution mode to Trap
// for the duration of a kernel call.
package trap

import (
	"sync"

	"github.com/nanvix-go/hal/cache"
	"github.com/nanvix-go/hal/errno"
	"github.com/nanvix-go/hal/klog"
)

// Mode is a core's execution mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeInterrupt
	ModeTrap
)

// Handler handles an exception/trap with the faulting address and an
// opaque kernel-call number (0 for a pure exception).
type Handler func(addr uintptr, kcall int)

type entry struct {
	handler     Handler
	description string
	registered  bool
}

// Table is one core's exception/trap table.
type Table struct {
	mu      sync.Mutex
	entries []entry
	mode    Mode
}

// New builds a Table with n exception kinds.
func New(n int) *Table {
	return &Table{entries: make([]entry, n), mode: ModeNormal}
}

// Register installs handler for exception kind, failing EBUSY if one is
// already installed.
func (t *Table) Register(kind int, description string, handler Handler) error {
	if kind < 0 || kind >= len(t.entries) {
		return errno.New("exception_register", errno.EINVAL)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entries[kind].registered {
		return errno.New("exception_register", errno.EBUSY)
	}
	t.entries[kind] = entry{handler: handler, description: description, registered: true}
	cache.DCacheInvalidate()
	return nil
}

// Unregister removes the handler for kind, failing EINVAL if absent.
func (t *Table) Unregister(kind int) error {
	if kind < 0 || kind >= len(t.entries) {
		return errno.New("exception_unregister", errno.EINVAL)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.entries[kind].registered {
		return errno.New("exception_unregister", errno.EINVAL)
	}
	t.entries[kind] = entry{}
	cache.DCacheInvalidate()
	return nil
}

// Mode returns the core's current execution mode.
func (t *Table) Mode() Mode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

// SetMode installs mode directly, outside the mode changes Dispatch (Trap,
// then Normal) and DoKcall (Trap, then the saved previous mode) make around
// their handlers. interrupt.Controller.Enable calls this with ModeNormal
// (spec §4.D: "on enable, also switch core execution mode back to Normal").
func (t *Table) SetMode(mode Mode) {
	t.mu.Lock()
	t.mode = mode
	t.mu.Unlock()
	cache.DCacheInvalidate()
}

// Dispatch delivers an exception of the given kind at addr to its
// registered handler, or logs and drops it (no default fault recovery at
// this layer; higher kernel layers decide what an unhandled fault means).
func (t *Table) Dispatch(kind int, addr uintptr, log *klog.Logger) {
	t.mu.Lock()
	t.mode = ModeTrap
	e := t.entries[kind]
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.mode = ModeNormal
		t.mu.Unlock()
	}()

	if !e.registered {
		log.Error("unhandled exception", klog.Int("kind", kind), klog.Any("addr", addr))
		return
	}
	e.handler(addr, 0)
}

// DoKcall is the trap entry point (do_kcall): a synchronous user→kernel
// call. It sets the mode to Trap, invokes the numbered kernel call through
// dispatch, and restores the previous mode on return.
func (t *Table) DoKcall(kcall int, dispatch func(kcall int) int64) int64 {
	t.mu.Lock()
	prev := t.mode
	t.mode = ModeTrap
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.mode = prev
		t.mu.Unlock()
	}()

	return dispatch(kcall)
}
