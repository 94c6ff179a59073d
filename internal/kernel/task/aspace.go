package task

import (
	"sync"

	"github.com/jixiang52002/magenta/internal/kernel/object"
	"github.com/jixiang52002/magenta/internal/kernel/status"
)

// mapBase is where the first mapping lands; regions are laid out
// upward with no reuse of freed ranges. Addresses are bookkeeping
// only, there is no real memory behind them.
const mapBase uint64 = 0x1000_0000

// Region is one live mapping of a vm object into an address space.
type Region struct {
	Base   uint64
	Length uint64
	Offset uint64
	Vmo    *object.VmObject
}

// AddressSpace is the per-process mapping ledger. Mappings pin their
// vm object with a reference until unmapped or the space is destroyed.
type AddressSpace struct {
	mu        sync.Mutex
	next      uint64
	regions   map[uint64]*Region
	destroyed bool
}

// NewAddressSpace returns an empty address space.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{next: mapBase, regions: make(map[uint64]*Region)}
}

// Map records a mapping of length bytes of vmo starting at offset and
// returns the assigned base address.
func (as *AddressSpace) Map(vmo *object.VmObject, offset, length uint64) (uint64, error) {
	if length == 0 {
		return 0, status.ErrInvalidArgs
	}
	as.mu.Lock()
	defer as.mu.Unlock()
	if as.destroyed {
		return 0, status.ErrBadState
	}
	base := as.next
	rounded := (length + object.PageSize - 1) &^ (object.PageSize - 1)
	as.next += rounded + object.PageSize
	object.Retain(vmo)
	as.regions[base] = &Region{Base: base, Length: length, Offset: offset, Vmo: vmo}
	return base, nil
}

// Unmap removes the mapping anchored at base.
func (as *AddressSpace) Unmap(base uint64) error {
	as.mu.Lock()
	r, ok := as.regions[base]
	if ok {
		delete(as.regions, base)
	}
	as.mu.Unlock()
	if !ok {
		return status.ErrNotFound
	}
	object.Release(r.Vmo)
	return nil
}

// Regions snapshots the live mappings, ordered by nothing in
// particular, for introspection.
func (as *AddressSpace) Regions() []Region {
	as.mu.Lock()
	defer as.mu.Unlock()
	out := make([]Region, 0, len(as.regions))
	for _, r := range as.regions {
		out = append(out, *r)
	}
	return out
}

// Destroy drops every mapping. Idempotent; the space rejects new
// mappings afterward.
func (as *AddressSpace) Destroy() {
	as.mu.Lock()
	if as.destroyed {
		as.mu.Unlock()
		return
	}
	as.destroyed = true
	regions := as.regions
	as.regions = nil
	as.mu.Unlock()
	for _, r := range regions {
		object.Release(r.Vmo)
	}
}
