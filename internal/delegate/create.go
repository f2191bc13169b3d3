// Package delegate decides how a delegate over a given target method is
// constructed: which runtime constructor runs, which entry point becomes the
// target, and which invoke thunk (if any) adapts the call.
package delegate

import (
	"errors"
	"fmt"

	"aotrt/internal/contract"
	"aotrt/internal/symbols"
	"aotrt/internal/typesys"
)

// ErrNotImplemented marks delegate shapes the runtime does not support.
var ErrNotImplemented = errors.New("not implemented")

// TypeSystem is the slice of the type system delegate creation queries.
// *typesys.Universe implements it.
type TypeSystem interface {
	WellKnownType(w typesys.WellKnownType) typesys.TypeID
	BaseType(t typesys.TypeID) typesys.TypeID
	KnownMethod(owner typesys.TypeID, name string) typesys.MethodID
	Signature(m typesys.MethodID) typesys.Signature
	OwningType(m typesys.MethodID) typesys.TypeID
	IsValueType(t typesys.TypeID) bool
	IsInstantiated(t typesys.TypeID) bool
	TypeDefinition(t typesys.TypeID) typesys.TypeID
	DelegateInfo(def typesys.TypeID) (typesys.DelegateInfo, bool)
	MethodForInstantiatedType(m typesys.MethodID, inst typesys.TypeID) typesys.MethodID
}

// SymbolFactory hands out interned entry points. *symbols.Factory
// implements it.
type SymbolFactory interface {
	MethodEntrypoint(m typesys.MethodID, unboxing bool) *symbols.MethodNode
}

// Create computes the creation record for a delegate of delegateType bound
// to targetMethod.
//
// The delegate family reserves one slot for a receiver, so a delegate whose
// Invoke takes n parameters is closed over a target taking n+1 (receiver
// included) and open over a target taking n. Any other arity is a contract
// violation; parameter types are assumed to have been checked upstream.
func Create(ts TypeSystem, nodes SymbolFactory, delegateType typesys.TypeID, targetMethod typesys.MethodID) (CreationInfo, error) {
	systemDelegate := ts.BaseType(ts.WellKnownType(typesys.WellKnownMulticastDelegate))

	sig := ts.Signature(targetMethod)
	targetParams := sig.Length
	if !sig.IsStatic {
		targetParams++
	}

	def := ts.TypeDefinition(delegateType)
	info, ok := ts.DelegateInfo(def)
	contract.Assert(ok, "delegate.Create", "type %d is not a registered delegate family", def)

	closedParams := info.Signature.Length + 1
	closed := closedParams == targetParams
	if !closed {
		contract.Assert(closedParams == targetParams+1, "delegate.Create",
			"delegate takes %d parameters but the target takes %d", info.Signature.Length, targetParams)
	}

	if sig.IsStatic {
		kind := typesys.OpenStaticThunk
		shape := KindOpenStatic
		if closed {
			kind = typesys.ClosedStaticThunk
			shape = KindClosedStatic
		}
		thunk, ok := info.Thunk(kind)
		contract.Assert(ok, "delegate.Create", "delegate family %d has no %v thunk", def, kind)
		if ts.IsInstantiated(delegateType) {
			thunk = ts.MethodForInstantiatedType(thunk, delegateType)
		}
		return CreationInfo{
			Constructor: nodes.MethodEntrypoint(ts.KnownMethod(systemDelegate, typesys.InitializeClosedStaticThunk), false),
			Target:      nodes.MethodEntrypoint(targetMethod, false),
			Thunk:       nodes.MethodEntrypoint(thunk, false),
			kind:        shape,
		}, nil
	}

	if !closed {
		return CreationInfo{}, fmt.Errorf("open instance delegates: %w", ErrNotImplemented)
	}
	useUnboxingStub := ts.IsValueType(ts.OwningType(targetMethod))
	return CreationInfo{
		Constructor: nodes.MethodEntrypoint(ts.KnownMethod(systemDelegate, typesys.InitializeClosedInstance), false),
		Target:      nodes.MethodEntrypoint(targetMethod, useUnboxingStub),
		kind:        KindClosedInstance,
	}, nil
}
