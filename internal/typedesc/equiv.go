package typedesc

// canonicalOrSelf follows a cloned descriptor to its canonical type.
func (d Descriptor) canonicalOrSelf() Descriptor {
	if d.IsNil() || !d.IsCloned() {
		return d
	}
	return d.CanonicalType()
}

// Equivalent reports whether two descriptors denote the same type. Clones
// are equivalent to their canonical type; parameterized types (which may be
// emitted once per module) compare by shape and element type.
func Equivalent(a, b Descriptor) bool {
	if a.addr == b.addr {
		return true
	}
	if a.IsNil() || b.IsNil() {
		return false
	}
	a, b = a.canonicalOrSelf(), b.canonicalOrSelf()
	if a.addr == b.addr {
		return true
	}
	if !a.IsParameterized() || !b.IsParameterized() {
		return false
	}
	if a.ParameterizedShape() != b.ParameterizedShape() {
		return false
	}
	return Equivalent(a.RelatedParameterType(), b.RelatedParameterType())
}
