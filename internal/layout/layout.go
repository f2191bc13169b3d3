package layout

import (
	"fortio.org/safecast"
)

// Shape is the part of a descriptor that determines its trailing layout.
type Shape struct {
	VTableSlots    int
	Interfaces     int
	Finalizable    bool
	OptionalFields bool
}

// DescriptorLayout is the byte layout of one descriptor for a specific
// Target. Offsets are relative to the descriptor start; -1 means absent.
type DescriptorLayout struct {
	HeaderSize     int
	VTable         int
	InterfaceMap   int
	Finalizer      int
	OptionalFields int
	Size           int
	Align          int

	NumVTableSlots uint16
	NumInterfaces  uint16
}

// Engine computes descriptor layouts.
type Engine struct {
	Target Target

	cache *cache
}

// New creates a new Engine for the specified target.
func New(target Target) *Engine {
	return &Engine{
		Target: target,
		cache:  newCache(),
	}
}

// DescriptorLayout computes and caches the layout for a shape.
func (e *Engine) DescriptorLayout(s Shape) (DescriptorLayout, error) {
	if e.cache == nil {
		e.cache = newCache()
	}
	if cached, ok := e.cache.get(s); ok {
		return cached.Layout, cached.err()
	}
	l, err := e.compute(s)
	e.cache.put(s, &cacheEntry{Layout: l, Err: err})
	if err != nil {
		return l, err
	}
	return l, nil
}

// VTableSlotOffset returns the offset of vtable slot i.
func (l DescriptorLayout) VTableSlotOffset(ptrSize, i int) int {
	return l.VTable + i*ptrSize
}

// InterfaceEntryOffset returns the offset of interface map entry i.
func (l DescriptorLayout) InterfaceEntryOffset(ptrSize, i int) int {
	return l.InterfaceMap + i*ptrSize
}

func (e *Engine) compute(s Shape) (DescriptorLayout, *LayoutError) {
	slots, err := safecast.Conv[uint16](s.VTableSlots)
	if err != nil {
		return DescriptorLayout{}, &LayoutError{Kind: LayoutErrTooManySlots, Count: s.VTableSlots, Err: err}
	}
	ifaces, err := safecast.Conv[uint16](s.Interfaces)
	if err != nil {
		return DescriptorLayout{}, &LayoutError{Kind: LayoutErrTooManyInterfaces, Count: s.Interfaces, Err: err}
	}

	ptr := e.Target.ptrSize()
	l := DescriptorLayout{
		HeaderSize:     e.Target.HeaderSize(),
		Finalizer:      -1,
		OptionalFields: -1,
		Align:          maxInt(e.Target.PtrAlign, 4),
		NumVTableSlots: slots,
		NumInterfaces:  ifaces,
	}
	l.VTable = l.HeaderSize
	l.InterfaceMap = l.VTable + int(slots)*ptr
	end := l.InterfaceMap + int(ifaces)*e.Target.InterfaceEntrySize()

	// Finalizer first, then the optional fields pointer.
	if s.Finalizable {
		l.Finalizer = end
		end += ptr
	}
	if s.OptionalFields {
		l.OptionalFields = end
		end += ptr
	}
	l.Size = roundUp(end, l.Align)
	if _, err := safecast.Conv[uint32](l.Size); err != nil {
		return DescriptorLayout{}, &LayoutError{Kind: LayoutErrSizeOverflow, Count: l.Size, Err: err}
	}
	return l, nil
}

func roundUp(n, align int) int {
	if align <= 1 {
		return n
	}
	r := n % align
	if r == 0 {
		return n
	}
	return n + (align - r)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
