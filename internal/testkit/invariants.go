// Package testkit checks structural invariants of frozen descriptor spaces.
package testkit

import (
	"fmt"
	"sort"

	"fortio.org/safecast"

	"aotrt/internal/contract"
	"aotrt/internal/typedesc"
)

// CheckSpace walks every named descriptor in s and returns the first broken
// invariant:
//  1. every descriptor header lies inside its module image
//  2. a clone forwards to a canonical, equivalent descriptor
//  3. base chains of canonical types end at a root
//  4. interface map entries resolve to interfaces, which have no vtable
//  5. arrays and pointers have an element type
func CheckSpace(s *typedesc.Space) (err error) {
	defer contract.Recover(&err)
	if s == nil {
		return fmt.Errorf("nil space")
	}
	header := typedesc.Addr(s.Target().HeaderSize())
	total := 0
	for _, img := range s.Images() {
		total += len(img.Symbols)
	}

	for _, img := range s.Images() {
		size, err := safecast.Conv[uint64](len(img.Data))
		if err != nil {
			return fmt.Errorf("%s: image size: %w", img.Name, err)
		}
		end := img.Base + typedesc.Addr(size)

		names := make([]string, 0, len(img.Symbols))
		for name := range img.Symbols {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			a := img.Symbols[name]
			if a < img.Base || a+header > end {
				return fmt.Errorf("%s/%s: header at %v outside image [%v, %v)", img.Name, name, a, img.Base, end)
			}
			if err := checkDescriptor(s.Descriptor(a), total); err != nil {
				return fmt.Errorf("%s/%s: %w", img.Name, name, err)
			}
		}
	}
	return nil
}

func checkDescriptor(d typedesc.Descriptor, limit int) error {
	switch {
	case d.IsCloned():
		canon := d.CanonicalType()
		if canon.IsNil() || canon.IsCloned() {
			return fmt.Errorf("clone must forward to a canonical type")
		}
		if !typedesc.Equivalent(d, canon) {
			return fmt.Errorf("clone is not equivalent to %s", canon.Name())
		}
	case d.IsParameterized():
		if d.RelatedParameterType().IsNil() {
			return fmt.Errorf("parameterized type without element")
		}
	default:
		if err := checkBaseChain(d, limit); err != nil {
			return err
		}
	}

	if d.IsInterface() && d.NumVTableSlots() != 0 {
		return fmt.Errorf("interface with %d vtable slots", d.NumVTableSlots())
	}
	for i, e := range d.InterfaceMap() {
		iface := e.InterfaceType()
		if iface.IsNil() || !iface.IsInterface() {
			return fmt.Errorf("interface entry %d (%v) is not an interface", i, e.Raw())
		}
	}
	return nil
}

func checkBaseChain(d typedesc.Descriptor, limit int) error {
	cur := d
	for steps := 0; !cur.IsNil(); steps++ {
		if steps > limit {
			return fmt.Errorf("base chain does not terminate")
		}
		if cur.IsCloned() {
			cur = cur.CanonicalType()
		}
		if cur.IsParameterized() {
			return fmt.Errorf("base chain reaches parameterized %s", cur.Name())
		}
		cur = cur.NonClonedNonArrayBaseType()
	}
	return nil
}
