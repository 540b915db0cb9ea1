// Package mmu builds the one-shot static address space a cluster boots
// with (spec §4.F): a sequence of named regions checked for alignment and
// identity mapping, a root page directory filled from those regions, and a
// per-core TLB that a page-fault handler warms on demand.
//
// Only the master core calls Setup; slaves call NewTLB on the resulting
// *AddressSpace and otherwise only ever touch their own *TLB, matching
// "slaves inherit by pointer and perform only a local TLB init."
//
// The backing store for the address space is a real anonymous mmap region
// (golang.org/x/sys/unix), with per-region mprotect enforcing the
// writable/executable flags, so misuse of a region actually faults instead
// of being a bookkeeping-only violation.
package mmu

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/nanvix-go/hal/errno"
)

// Kind distinguishes the alignment rule a region must satisfy.
type Kind int

const (
	KindKernel Kind = iota // kernel text/data: page-table boundary
	KindKpool              // kernel memory pool: page-table boundary
	KindDevice             // MMIO-like region: page boundary
	KindUser               // the single user region: page boundary
)

// hugePageSize is the page-table boundary kernel/kpool regions must align
// to. It is used only for that alignment check: the TLB holds entries at
// page-size granularity only and is not warmed with huge-page entries.
const hugePageSize = 2 * 1024 * 1024

// Region describes one mapping the address space is built from.
type Region struct {
	Name       string
	Kind       Kind
	PhysBase   uintptr
	VirtBase   uintptr
	Size       uint64
	Writable   bool
	Executable bool
	// Identity requires VirtBase == PhysBase, for regions exposed to the
	// hypervisor.
	Identity bool
}

func (r Region) alignment() uint64 {
	switch r.Kind {
	case KindKernel, KindKpool:
		return hugePageSize
	default:
		return 0 // filled in by AddressSpace.pageSize at validation time
	}
}

// AddressSpace is the static, cluster-wide mapping built once at boot.
type AddressSpace struct {
	pageSize  uint64
	pageShift uint
	mem       []byte
	regions   []Region
	rootDir   map[uintptr]uint64 // page-aligned vaddr -> physical frame number
	rootDirMu sync.RWMutex
}

func log2(n uint64) uint {
	var shift uint
	for n > 1 {
		n >>= 1
		shift++
	}
	return shift
}

// Setup validates regions, mmaps the backing store, mprotects each region
// per its flags, and fills the root page directory. Called exactly once,
// by the master core.
func Setup(regions []Region, pageSize uint64) (*AddressSpace, error) {
	if pageSize == 0 || (pageSize&(pageSize-1)) != 0 {
		return nil, fmt.Errorf("mmu: page size %d is not a power of two", pageSize)
	}

	var total uint64
	for _, r := range regions {
		align := r.alignment()
		if align == 0 {
			align = pageSize
		}
		if r.VirtBase%align != 0 || r.PhysBase%align != 0 {
			return nil, fmt.Errorf("mmu: region %q is not aligned to %d", r.Name, align)
		}
		if r.Identity && r.VirtBase != r.PhysBase {
			return nil, fmt.Errorf("mmu: region %q requires identity mapping", r.Name)
		}
		if end := r.PhysBase + uintptr(r.Size); uint64(end) > total {
			total = uint64(end)
		}
	}

	mem, err := unix.Mmap(-1, 0, int(total), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mmu: mmap backing store: %w", err)
	}

	as := &AddressSpace{
		pageSize:  pageSize,
		pageShift: log2(pageSize),
		mem:       mem,
		regions:   regions,
		rootDir:   make(map[uintptr]uint64),
	}

	for _, r := range regions {
		prot := unix.PROT_READ
		if r.Writable {
			prot |= unix.PROT_WRITE
		}
		if r.Executable {
			prot |= unix.PROT_EXEC
		}
		if err := unix.Mprotect(mem[r.PhysBase:uintptr(r.PhysBase)+uintptr(r.Size)], prot); err != nil {
			_ = unix.Munmap(mem)
			return nil, fmt.Errorf("mmu: mprotect region %q: %w", r.Name, err)
		}

		for off := uint64(0); off < r.Size; off += pageSize {
			vpage := r.VirtBase + uintptr(off)
			ppage := r.PhysBase + uintptr(off)
			as.rootDir[vpage] = uint64(ppage) >> as.pageShift
		}
	}

	return as, nil
}

// Teardown releases the backing mmap. The HAL never calls this implicitly
// (spec §3 "the HAL never frees them implicitly"); it exists for tests.
func (as *AddressSpace) Teardown() error {
	return unix.Munmap(as.mem)
}

// TLB is one core's local translation cache, warmed lazily by page faults
// against the shared AddressSpace root directory.
type TLB struct {
	as      *AddressSpace
	mu      sync.RWMutex
	entries map[uintptr]uint64 // page-aligned vaddr -> physical frame number
}

// NewTLB performs "a local TLB init": an empty per-core cache over the
// shared, already-built AddressSpace.
func (as *AddressSpace) NewTLB() *TLB {
	return &TLB{as: as, entries: make(map[uintptr]uint64)}
}

func (as *AddressSpace) pageOf(vaddr uintptr) uintptr {
	return vaddr &^ uintptr(as.pageSize-1)
}

// Write installs a vaddr->paddr translation directly (tlb_write).
func (t *TLB) Write(vaddr, paddr uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[t.as.pageOf(vaddr)] = uint64(paddr) >> t.as.pageShift
}

// LookupVaddr returns the physical frame mapped for vaddr (tlb_lookup_vaddr).
func (t *TLB) LookupVaddr(vaddr uintptr) (frame uint64, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	frame, ok = t.entries[t.as.pageOf(vaddr)]
	return
}

// LookupPaddr returns a vaddr mapping to the page containing paddr
// (tlb_lookup_paddr); used for reverse debugging lookups. When several
// vaddrs map to that page, which one is returned is not defined.
func (t *TLB) LookupPaddr(paddr uintptr) (vaddr uintptr, ok bool) {
	frame := uint64(paddr) >> t.as.pageShift
	t.mu.RLock()
	defer t.mu.RUnlock()
	for v, f := range t.entries {
		if f == frame {
			return v, true
		}
	}
	return 0, false
}

// Inval invalidates the translation for vaddr (tlb_inval). A subsequent
// LookupVaddr returns ok=false until a page fault (or Write) re-establishes
// it.
func (t *TLB) Inval(vaddr uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, t.as.pageOf(vaddr))
}

// Flush invalidates every translation in this core's TLB (tlb_flush).
func (t *TLB) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[uintptr]uint64)
}

// HandleFault services a TLB miss for vaddr by looking up the root page
// directory and writing the translation on the fly, installed as the
// page-fault handler per spec §4.F. Returns EINVAL if vaddr is not mapped
// in the root directory (a genuine segmentation fault).
func (t *TLB) HandleFault(vaddr uintptr) error {
	page := t.as.pageOf(vaddr)

	t.as.rootDirMu.RLock()
	frame, ok := t.as.rootDir[page]
	t.as.rootDirMu.RUnlock()
	if !ok {
		return errno.New("tlb_fault", errno.EINVAL)
	}

	t.mu.Lock()
	t.entries[page] = frame
	t.mu.Unlock()
	return nil
}
