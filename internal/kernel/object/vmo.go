package object

import (
	"sync"

	"github.com/jixiang52002/magenta/internal/kernel/status"
)

// DefaultVmObjectRights is the rights mask for fresh VM object handles.
const DefaultVmObjectRights = RightDuplicate | RightTransfer | RightRead |
	RightWrite | RightExecute | RightMap

// PageSize is the commit granularity of VM objects.
const PageSize = 4096

const maxVmObjectSize = 1 << 40

// VmObject is a resizable byte container backed by sparsely committed
// pages. The VM manager maps these; this layer only reads, writes, and
// sizes them.
type VmObject struct {
	Base

	mu    sync.Mutex
	size  uint64
	pages map[uint64][]byte // page index -> PageSize bytes
}

// NewVmObject creates a VM object of the given size. Pages commit
// lazily on first write.
func NewVmObject(size uint64) (*VmObject, Rights, error) {
	if size > maxVmObjectSize {
		return nil, 0, status.ErrInvalidArgs
	}
	v := &VmObject{
		Base:  NewBase(),
		size:  size,
		pages: make(map[uint64][]byte),
	}
	return v, DefaultVmObjectRights, nil
}

func (v *VmObject) Type() Type { return TypeVmObject }

// Size reports the current byte size.
func (v *VmObject) Size() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.size
}

// SetSize grows or shrinks the object; pages beyond the new size are
// discarded.
func (v *VmObject) SetSize(size uint64) error {
	if size > maxVmObjectSize {
		return status.ErrOutOfRange
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.size = size
	firstGone := (size + PageSize - 1) / PageSize
	for idx := range v.pages {
		if idx >= firstGone {
			delete(v.pages, idx)
		}
	}
	return nil
}

// Read copies up to len(buf) bytes starting at offset and returns the
// count actually read. Uncommitted ranges read as zero. Reads at or
// past the end return ErrOutOfRange.
func (v *VmObject) Read(buf []byte, offset uint64) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if offset >= v.size {
		return 0, status.ErrOutOfRange
	}
	n := uint64(len(buf))
	if offset+n > v.size {
		n = v.size - offset
	}
	for copied := uint64(0); copied < n; {
		idx := (offset + copied) / PageSize
		pgOff := (offset + copied) % PageSize
		chunk := PageSize - pgOff
		if chunk > n-copied {
			chunk = n - copied
		}
		if page, ok := v.pages[idx]; ok {
			copy(buf[copied:copied+chunk], page[pgOff:pgOff+chunk])
		} else {
			for i := copied; i < copied+chunk; i++ {
				buf[i] = 0
			}
		}
		copied += chunk
	}
	return int(n), nil
}

// Write copies data into the object at offset, committing pages as
// needed, and returns the count written (truncated at the current
// size).
func (v *VmObject) Write(data []byte, offset uint64) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if offset >= v.size {
		return 0, status.ErrOutOfRange
	}
	n := uint64(len(data))
	if offset+n > v.size {
		n = v.size - offset
	}
	for copied := uint64(0); copied < n; {
		idx := (offset + copied) / PageSize
		pgOff := (offset + copied) % PageSize
		chunk := PageSize - pgOff
		if chunk > n-copied {
			chunk = n - copied
		}
		page, ok := v.pages[idx]
		if !ok {
			page = make([]byte, PageSize)
			v.pages[idx] = page
		}
		copy(page[pgOff:pgOff+chunk], data[copied:copied+chunk])
		copied += chunk
	}
	return int(n), nil
}
