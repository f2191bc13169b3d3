package typedesc

import (
	"fmt"

	"aotrt/internal/contract"
)

// Addr is an address in the linked address space. Zero is the nil address.
type Addr uint64

// NoAddr is the nil address.
const NoAddr Addr = 0

func (a Addr) String() string { return fmt.Sprintf("%#x", uint64(a)) }

const indirectionTag Addr = 1

// TaggedPointer is a pointer whose low bit says whether it points at a
// descriptor directly (0) or at an indirection cell holding the
// descriptor's address (1). Both targets are at least 2-byte aligned, so
// the bit is always free.
type TaggedPointer Addr

// DirectPointer tags a direct descriptor address.
func DirectPointer(target Addr) TaggedPointer {
	contract.Assert(target&indirectionTag == 0, "DirectPointer", "target %v is not 2-byte aligned", target)
	return TaggedPointer(target)
}

// IndirectPointer tags the address of an indirection cell. The cell must be
// aligned to align, which must leave the low bit clear.
func IndirectPointer(cell Addr, align int) TaggedPointer {
	contract.Assert(align >= 2, "IndirectPointer", "alignment %d leaves no tag bit", align)
	contract.Assert(uint64(cell)%uint64(align) == 0, "IndirectPointer", "cell %v is not %d-byte aligned", cell, align)
	return TaggedPointer(cell | indirectionTag)
}

// IsIndirect reports whether the tag bit is set.
func (p TaggedPointer) IsIndirect() bool { return Addr(p)&indirectionTag != 0 }

// Addr strips the tag bit.
func (p TaggedPointer) Addr() Addr { return Addr(p) &^ indirectionTag }

func (p TaggedPointer) String() string {
	if p.IsIndirect() {
		return fmt.Sprintf("*[%v]", p.Addr())
	}
	return p.Addr().String()
}
