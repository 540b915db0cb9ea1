// Package context implements explicit cooperative context switching (spec
// §4.H), used only where an architecture opts in. A Context is an opaque
// saved register set plus two stack references; here the "saved register
// set" is a blocked goroutine (the Go runtime already parks its full stack
// and registers for us) and SwitchTo is the hand-off between two such
// goroutines. Cancellation is not supported: a Context must return by
// explicit hand-off, exactly as spec §4.H requires.
package context

// Context is one cooperative execution context.
type Context struct {
	wake           chan struct{}
	ustack, kstack uintptr
}

// Self wraps the calling goroutine itself as a Context, suitable as the
// "initial context" (L0 in spec §8 scenario 4) a core starts on before any
// Create'd context exists.
func Self() *Context {
	return &Context{wake: make(chan struct{})}
}

// Create returns a Context primed so that the first SwitchTo into it
// resumes at fn, called with this context (so fn can itself SwitchTo away)
// and the two given stacks.
func Create(fn func(self *Context, ustack, kstack uintptr), ustack, kstack uintptr) *Context {
	ctx := &Context{wake: make(chan struct{}), ustack: ustack, kstack: kstack}
	go func() {
		<-ctx.wake
		fn(ctx, ustack, kstack)
	}()
	return ctx
}

// Ustack and Kstack report the two stack references priming this context.
func (c *Context) Ustack() uintptr { return c.ustack }
func (c *Context) Kstack() uintptr { return c.kstack }

// SwitchTo atomically saves the current context (from, which must be the
// context of the calling goroutine) and resumes to. It returns once
// something later switches back to from.
func SwitchTo(from, to *Context) {
	to.wake <- struct{}{}
	<-from.wake
}
