package delegate

import (
	"fmt"

	"aotrt/internal/symbols"
)

// Kind classifies a creation record.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindOpenStatic
	KindClosedStatic
	KindClosedInstance
)

func (k Kind) String() string {
	switch k {
	case KindOpenStatic:
		return "open-static"
	case KindClosedStatic:
		return "closed-static"
	case KindClosedInstance:
		return "closed-instance"
	default:
		return "invalid"
	}
}

// CreationInfo is what the code generator needs to construct a delegate:
// the constructor to call, the target entry point and, for static targets,
// the invoke thunk. Thunk is nil for instance targets.
type CreationInfo struct {
	Constructor *symbols.MethodNode
	Target      *symbols.MethodNode
	Thunk       *symbols.MethodNode
	kind        Kind
}

// Kind returns the shape the record was created for.
func (c CreationInfo) Kind() Kind { return c.kind }

// UsesUnboxingStub reports whether the target is an unboxing stub.
func (c CreationInfo) UsesUnboxingStub() bool {
	return c.Target != nil && c.Target.Unboxing
}

// Equal compares the three entry points by identity.
func (c CreationInfo) Equal(o CreationInfo) bool {
	return c.Constructor == o.Constructor && c.Target == o.Target && c.Thunk == o.Thunk
}

// Hash covers all three entry points, so records differing only in their
// thunk land in different buckets.
func (c CreationInfo) Hash() uint64 {
	const prime = 1099511628211
	h := uint64(14695981039346656037)
	for _, n := range [...]*symbols.MethodNode{c.Constructor, c.Target, c.Thunk} {
		h ^= uint64(n.Addr())
		h *= prime
	}
	return h
}

func (c CreationInfo) String() string {
	if c.Thunk == nil {
		return fmt.Sprintf("%v ctor=%s target=%s", c.kind, c.Constructor, c.Target)
	}
	return fmt.Sprintf("%v ctor=%s target=%s thunk=%s", c.kind, c.Constructor, c.Target, c.Thunk)
}
