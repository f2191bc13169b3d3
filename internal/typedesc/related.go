package typedesc

// RelatedType is the decoded related-type field of a descriptor. The active
// variant is chosen by the descriptor kind and the indirection flag:
//
//	canonical, generic definition   BaseTypePointer | BaseTypeIndirectCell
//	cloned                          CanonicalIndirectCell
//	parameterized                   ElementTypePointer | ElementTypeIndirectCell
type RelatedType interface {
	// Resolve returns the referenced descriptor address, loading through
	// the indirection cell when there is one.
	Resolve(s *Space) Addr
	isRelatedType()
}

// BaseTypePointer is a direct base type pointer (nil for root types).
type BaseTypePointer struct{ Target Addr }

// BaseTypeIndirectCell points at a cell holding the base type.
type BaseTypeIndirectCell struct{ Cell Addr }

// CanonicalIndirectCell points at a cell holding the canonical descriptor
// of a cloned type.
type CanonicalIndirectCell struct{ Cell Addr }

// ElementTypePointer is a direct pointer to an array or pointer element.
type ElementTypePointer struct{ Target Addr }

// ElementTypeIndirectCell points at a cell holding the element type.
type ElementTypeIndirectCell struct{ Cell Addr }

func (r BaseTypePointer) Resolve(*Space) Addr         { return r.Target }
func (r BaseTypeIndirectCell) Resolve(s *Space) Addr  { return s.ptr(r.Cell) }
func (r CanonicalIndirectCell) Resolve(s *Space) Addr { return s.ptr(r.Cell) }
func (r ElementTypePointer) Resolve(*Space) Addr      { return r.Target }
func (r ElementTypeIndirectCell) Resolve(s *Space) Addr {
	return s.ptr(r.Cell)
}

func (BaseTypePointer) isRelatedType()         {}
func (BaseTypeIndirectCell) isRelatedType()    {}
func (CanonicalIndirectCell) isRelatedType()   {}
func (ElementTypePointer) isRelatedType()      {}
func (ElementTypeIndirectCell) isRelatedType() {}
