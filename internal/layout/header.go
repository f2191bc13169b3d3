package layout

// Fixed header offsets. The related-type union is pointer sized, so every
// field after it moves with the target pointer width.
const (
	OffComponentSize = 0 // u16
	OffFlags         = 2 // u16
	OffBaseSize      = 4 // u32
	OffRelatedType   = 8 // pointer
)

// OffNumVTableSlots is the offset of the u16 vtable slot count.
func (t Target) OffNumVTableSlots() int { return OffRelatedType + t.ptrSize() }

// OffNumInterfaces is the offset of the u16 interface count.
func (t Target) OffNumInterfaces() int { return t.OffNumVTableSlots() + 2 }

// OffHashCode is the offset of the u32 type hash.
func (t Target) OffHashCode() int { return t.OffNumInterfaces() + 2 }

// HeaderSize is the size of the fixed part of a descriptor. The vtable
// starts right after it.
func (t Target) HeaderSize() int { return t.OffHashCode() + 4 }

// InterfaceEntrySize is the size of one interface map entry.
func (t Target) InterfaceEntrySize() int { return t.ptrSize() }
