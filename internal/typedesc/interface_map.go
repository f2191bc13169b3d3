package typedesc

// InterfaceEntry is one slot of a descriptor's interface map.
type InterfaceEntry struct {
	space *Space
	addr  Addr
}

// Raw returns the stored tagged pointer.
func (e InterfaceEntry) Raw() TaggedPointer {
	return TaggedPointer(e.space.ptr(e.addr))
}

// InterfaceType resolves the entry: a tagged value is an indirection cell
// to load through, an untagged value is the interface descriptor itself.
func (e InterfaceEntry) InterfaceType() Descriptor {
	p := e.Raw()
	if p.IsIndirect() {
		return e.space.Descriptor(e.space.ptr(p.Addr()))
	}
	return e.space.Descriptor(p.Addr())
}
