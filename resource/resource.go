// Package resource implements the small typed pools higher kernel layers
// assume available (spec §4.L). The core lifecycle state machine does not
// call into this package directly; it exists because it is the one
// cross-cutting utility the rest of the kernel needs, same as in the
// original HAL.
package resource

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/nanvix-go/hal/errno"
)

// Flags mirror the resource flag word of spec §3/§4.L.
type Flags uint16

const (
	FlagUsed Flags = 1 << iota
	FlagBusy
	FlagReadOnly
	FlagWriteOnly
	FlagAsync
	FlagShared
	FlagMapped
	FlagValid
	FlagDirty
)

// Resource is the minimal element every pooled/queued object embeds: a
// flag word and an intrusive next-pointer for arrangements.
type Resource struct {
	Flags Flags
	next  *Resource
}

// Pool is a fixed-capacity typed pool of resources, tracked with a bitmap
// (one bit per slot) instead of the hand-rolled uint64 bitmaps the teacher
// used for its buddy/slab allocators.
type Pool struct {
	items    []Resource
	occupied *bitset.BitSet
}

// NewPool allocates a pool of n resources.
func NewPool(n int) *Pool {
	return &Pool{
		items:    make([]Resource, n),
		occupied: bitset.New(uint(n)),
	}
}

// Alloc returns the index of a free slot, marking it used, or EAGAIN
// ("no space") if the pool is full.
func (p *Pool) Alloc() (int, error) {
	for i := 0; i < len(p.items); i++ {
		if !p.occupied.Test(uint(i)) {
			p.occupied.Set(uint(i))
			p.items[i] = Resource{Flags: FlagUsed | FlagValid}
			return i, nil
		}
	}
	return -1, errno.New("resource_alloc", errno.EAGAIN)
}

// Free releases slot index back to the pool.
func (p *Pool) Free(index int) error {
	if index < 0 || index >= len(p.items) {
		return errno.New("resource_free", errno.EINVAL)
	}
	if !p.occupied.Test(uint(index)) {
		return errno.New("resource_free", errno.EINVAL)
	}
	p.occupied.Clear(uint(index))
	p.items[index] = Resource{}
	return nil
}

// At returns a pointer to slot index for the caller to inspect/mutate its
// flags. The pool is single-owner: concurrent Alloc/Free require an
// external lock, per spec §5.
func (p *Pool) At(index int) *Resource {
	return &p.items[index]
}

// Arrangement is an intrusive FIFO/ordered linked list of resources,
// restoring the operations declared in the original resource.h
// (enqueue/dequeue, ordered insert, remove-by-predicate) that the
// distilled spec only gestures at. See SPEC_FULL.md.
type Arrangement struct {
	head, tail *Resource
	size       int
}

// CompareFn orders two resources for InsertOrdered: -1, 0, 1 like
// strcmp/bytes.Compare.
type CompareFn func(a, b *Resource) int

// VerifyFn is a predicate used by RemoveMatching.
type VerifyFn func(r *Resource) bool

// Len reports the number of queued resources.
func (a *Arrangement) Len() int { return a.size }

// Enqueue appends r to the tail (FIFO put).
func (a *Arrangement) Enqueue(r *Resource) {
	r.next = nil
	if a.tail == nil {
		a.head, a.tail = r, r
	} else {
		a.tail.next = r
		a.tail = r
	}
	a.size++
}

// Dequeue pops the head resource, or nil if the arrangement is empty.
func (a *Arrangement) Dequeue() *Resource {
	if a.head == nil {
		return nil
	}
	r := a.head
	a.head = r.next
	if a.head == nil {
		a.tail = nil
	}
	r.next = nil
	a.size--
	return r
}

// InsertOrdered inserts r keeping the arrangement sorted by cmp ascending.
func (a *Arrangement) InsertOrdered(r *Resource, cmp CompareFn) {
	if a.head == nil || cmp(r, a.head) < 0 {
		r.next = a.head
		a.head = r
		if a.tail == nil {
			a.tail = r
		}
		a.size++
		return
	}

	prev := a.head
	for prev.next != nil && cmp(r, prev.next) >= 0 {
		prev = prev.next
	}
	r.next = prev.next
	prev.next = r
	if r.next == nil {
		a.tail = r
	}
	a.size++
}

// RemoveMatching removes and returns the first resource verify reports
// true for, or nil if none matches.
func (a *Arrangement) RemoveMatching(verify VerifyFn) *Resource {
	var prev *Resource
	for cur := a.head; cur != nil; cur = cur.next {
		if verify(cur) {
			if prev == nil {
				a.head = cur.next
			} else {
				prev.next = cur.next
			}
			if cur == a.tail {
				a.tail = prev
			}
			cur.next = nil
			a.size--
			return cur
		}
		prev = cur
	}
	return nil
}
