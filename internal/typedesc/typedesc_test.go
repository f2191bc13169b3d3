package typedesc

import (
	"errors"
	"testing"

	"aotrt/internal/contract"
	"aotrt/internal/layout"
)

type fakeServices struct {
	rare      map[Addr]RareFlags
	arrayBase Addr
	nullable  map[Addr]NullableInfo
}

func (f *fakeServices) RareFlags(a Addr) (RareFlags, bool) {
	r, ok := f.rare[a]
	return r, ok
}

func (f *fakeServices) ArrayBaseType(Addr) Addr { return f.arrayBase }

func (f *fakeServices) Nullable(a Addr) (NullableInfo, bool) {
	n, ok := f.nullable[a]
	return n, ok
}

type fixture struct {
	space *Space
	drafts map[string]*Draft
}

func (fx *fixture) get(t *testing.T, name string) Descriptor {
	t.Helper()
	d, ok := fx.drafts[name]
	if !ok {
		t.Fatalf("no draft %q", name)
	}
	return fx.space.Descriptor(d.Addr())
}

func must(t *testing.T, d *Draft, err error) *Draft {
	t.Helper()
	if err != nil {
		t.Fatalf("draft failed: %v", err)
	}
	return d
}

func expectViolation(t *testing.T, op string, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		v, ok := r.(*contract.Violation)
		if !ok {
			t.Fatalf("expected *contract.Violation from %s, got %T (%v)", op, r, r)
		}
		if v.Op != op {
			t.Fatalf("expected violation in %s, got %s: %s", op, v.Op, v.Msg)
		}
	}()
	fn()
}

// buildFixture lays out two modules:
//
//	core: Object, ValueType : Object, IFoo, Point : ValueType (IFoo),
//	      Base : Object (finalizable), Derived : Base, Point[], Point*
//	app:  Derived (clone), AppThing : Derived (IFoo), Derived[]
func buildFixture(t *testing.T, target layout.Target, svc *fakeServices) *fixture {
	t.Helper()
	b := NewBuilder(target)
	core := b.Module("core")
	app := b.Module("app")
	fx := &fixture{drafts: map[string]*Draft{}}
	add := func(d *Draft, err error) *Draft {
		d = must(t, d, err)
		fx.drafts[d.Module().Name()+":"+d.Name()] = d
		return d
	}

	object := add(core.Canonical(DraftSpec{Name: "Object", BaseSize: 16, ElementType: ElemClass, VTable: []Addr{0x100, 0x108, 0x110}}))
	valueType := add(core.Canonical(DraftSpec{Name: "ValueType", BaseSize: 16, ElementType: ElemClass, VTable: []Addr{0x100, 0x108, 0x110}}))
	ifoo := add(core.Canonical(DraftSpec{Name: "IFoo", Flags: FlagIsInterface, ElementType: ElemClass}))
	point := add(core.Canonical(DraftSpec{
		Name:        "Point",
		Flags:       FlagIsValueType,
		ElementType: ElemValueType,
		BaseSize:    24,
		VTable:      []Addr{0x100, 0x108, 0x200, 0x208},
		Interfaces:  []*Draft{nil},
		Optional:    OptionalFields{RareFlags: RareHasCctor, ValueTypeFieldPadding: 4},
	}))
	base := add(core.Canonical(DraftSpec{
		Name:        "Base",
		Flags:       FlagHasFinalizer | FlagHasPointers,
		ElementType: ElemClass,
		BaseSize:    24,
		VTable:      []Addr{0x100, 0x108, 0x110, 0x300},
		Finalizer:   0x3f0,
	}))
	derived := add(core.Canonical(DraftSpec{
		Name:        "Derived",
		Flags:       FlagHasFinalizer | FlagHasPointers,
		ElementType: ElemClass,
		BaseSize:    32,
		VTable:      []Addr{0x100, 0x108, 0x110, 0x400},
		Finalizer:   0x3f0,
	}))
	// Bootstrap wiring happens after every descriptor has an address.
	valueType.SetBaseType(object)
	point.SetBaseType(valueType)
	point.SetInterface(0, ifoo)
	base.SetBaseType(object)
	derived.SetBaseType(base)
	ifoo.SetBaseType(nil)
	object.SetBaseType(nil)

	add(core.Parameterized(ParameterizedSpec{
		DraftSpec: DraftSpec{Name: "Point[]", ElementType: ElemSzArray, ComponentSize: 8, VTable: []Addr{0x100, 0x108, 0x110}},
		Element:   point,
		Shape:     1,
	}))
	add(core.Parameterized(ParameterizedSpec{
		DraftSpec: DraftSpec{Name: "Point*", ElementType: ElemPtr},
		Element:   point,
		Shape:     0,
	}))

	add(app.Clone(derived))
	appThing := add(app.Canonical(DraftSpec{
		Name:        "AppThing",
		ElementType: ElemClass,
		BaseSize:    40,
		VTable:      []Addr{0x100, 0x108, 0x110, 0x500},
		Interfaces:  []*Draft{ifoo},
	}))
	appThing.ImportBaseType(derived)
	add(app.Parameterized(ParameterizedSpec{
		DraftSpec: DraftSpec{Name: "Derived[]", ElementType: ElemSzArray, ComponentSize: 8, Flags: FlagHasPointers},
		Element:   derived,
		Shape:     1,
	}))

	var services Services
	if svc != nil {
		services = svc
	}
	space, err := b.Freeze(services)
	if err != nil {
		t.Fatalf("freeze failed: %v", err)
	}
	fx.space = space
	return fx
}

func TestCanonicalHeaderRoundTrip(t *testing.T) {
	fx := buildFixture(t, layout.X86_64LinuxGNU(), nil)
	point := fx.get(t, "core:Point")
	if point.Kind() != KindCanonical || !point.IsCanonical() {
		t.Fatalf("expected canonical, got %v", point.Kind())
	}
	if !point.IsValueType() || point.IsReferenceType() || point.IsInterface() {
		t.Fatal("Point must be a non-interface value type")
	}
	if point.BaseSize() != 24 || point.NumVTableSlots() != 4 || point.NumInterfaces() != 1 {
		t.Fatalf("unexpected header: size=%d slots=%d ifaces=%d", point.BaseSize(), point.NumVTableSlots(), point.NumInterfaces())
	}
	if point.ElementType() != ElemValueType {
		t.Fatalf("expected valuetype element tag, got %v", point.ElementType())
	}
	if point.HashCode() != NameHash("Point") {
		t.Fatalf("hash mismatch: %#x", point.HashCode())
	}
	if point.VTableSlot(2) != 0x200 {
		t.Fatalf("vtable slot 2 = %v", point.VTableSlot(2))
	}
	if !point.HasOptionalFields() {
		t.Fatal("Point carries optional fields")
	}
	opt, err := point.OptionalFields()
	if err != nil {
		t.Fatalf("optional fields: %v", err)
	}
	if opt.RareFlags != RareHasCctor || opt.ValueTypeFieldPadding != 4 {
		t.Fatalf("unexpected optional fields %+v", opt)
	}
}

func TestCanonicalBaseChainsAreFiniteAndAcyclic(t *testing.T) {
	fx := buildFixture(t, layout.X86_64LinuxGNU(), nil)
	for name, d := range fx.drafts {
		desc := fx.space.Descriptor(d.Addr())
		if !desc.IsCanonical() {
			continue
		}
		if desc.IsArray() {
			t.Fatalf("%s: canonical type reports IsArray", name)
		}
		seen := map[Addr]bool{}
		for cur := desc; !cur.IsNil(); cur = cur.NonArrayBaseType() {
			if seen[cur.Addr()] {
				t.Fatalf("%s: base chain cycles at %s", name, cur.Name())
			}
			seen[cur.Addr()] = true
			if base := cur.NonArrayBaseType(); base.Addr() == cur.Addr() {
				t.Fatalf("%s: self base", cur.Name())
			}
		}
	}
	derived := fx.get(t, "core:Derived")
	if got := derived.NonArrayBaseType(); got.Addr() != fx.get(t, "core:Base").Addr() {
		t.Fatalf("Derived base = %s", got.Name())
	}
	if got := derived.BaseType(); got.Addr() != fx.get(t, "core:Base").Addr() {
		t.Fatalf("direct BaseType = %s", got.Name())
	}
}

func TestCrossModuleBaseGoesThroughCell(t *testing.T) {
	fx := buildFixture(t, layout.X86_64LinuxGNU(), nil)
	thing := fx.get(t, "app:AppThing")
	if !thing.IsRelatedTypeViaIndirectionCell() {
		t.Fatal("cross-module base must use an indirection cell")
	}
	if _, ok := thing.RelatedType().(BaseTypeIndirectCell); !ok {
		t.Fatalf("expected BaseTypeIndirectCell, got %T", thing.RelatedType())
	}
	if got := thing.NonArrayBaseType(); got.Addr() != fx.get(t, "core:Derived").Addr() {
		t.Fatalf("AppThing base = %s", got.Name())
	}
	expectViolation(t, "BaseType", func() { thing.BaseType() })
}

func TestParameterizedShapes(t *testing.T) {
	fx := buildFixture(t, layout.X86_64LinuxGNU(), nil)
	arr := fx.get(t, "core:Point[]")
	ptr := fx.get(t, "core:Point*")
	for _, d := range []Descriptor{arr, ptr} {
		if d.IsArray() == d.IsPointerTypeDefinition() {
			t.Fatalf("%s: IsArray and IsPointerTypeDefinition must be exclusive", d.Name())
		}
		if d.IsArray() != (d.ParameterizedShape() != 0) {
			t.Fatalf("%s: IsArray disagrees with shape", d.Name())
		}
	}
	if !arr.IsArray() || !ptr.IsPointerTypeDefinition() {
		t.Fatal("wrong parameterized classification")
	}
	if arr.ComponentSize() != 8 {
		t.Fatalf("component size %d", arr.ComponentSize())
	}
	if got := arr.RelatedParameterType(); got.Addr() != fx.get(t, "core:Point").Addr() {
		t.Fatalf("element = %s", got.Name())
	}
	if _, ok := arr.RelatedType().(ElementTypePointer); !ok {
		t.Fatalf("same-module element must be direct, got %T", arr.RelatedType())
	}
	appArr := fx.get(t, "app:Derived[]")
	if _, ok := appArr.RelatedType().(ElementTypeIndirectCell); !ok {
		t.Fatalf("cross-module element must use a cell, got %T", appArr.RelatedType())
	}
	if got := appArr.RelatedParameterType(); got.Addr() != fx.get(t, "core:Derived").Addr() {
		t.Fatalf("element = %s", got.Name())
	}
	expectViolation(t, "NonArrayBaseType", func() { arr.NonArrayBaseType() })
	expectViolation(t, "NonArrayBaseType", func() { ptr.NonArrayBaseType() })
	expectViolation(t, "RelatedParameterType", func() { fx.get(t, "core:Point").RelatedParameterType() })
}

func TestArrayBaseTypeComesFromServices(t *testing.T) {
	svc := &fakeServices{}
	fx := buildFixture(t, layout.X86_64LinuxGNU(), svc)
	object := fx.get(t, "core:Object")
	svc.arrayBase = object.Addr()
	arr := fx.get(t, "core:Point[]")
	if got := arr.ArrayBaseType(); got.Addr() != object.Addr() {
		t.Fatalf("array base = %s", got.Name())
	}
	expectViolation(t, "ArrayBaseType", func() { fx.get(t, "core:Point*").ArrayBaseType() })
}

func TestClonedForwardsToCanonical(t *testing.T) {
	svc := &fakeServices{}
	fx := buildFixture(t, layout.X86_64LinuxGNU(), svc)
	clone := fx.get(t, "app:Derived")
	canon := fx.get(t, "core:Derived")
	// Side-table entries exist for the canonical address only.
	svc.rare = map[Addr]RareFlags{canon.Addr(): RareHasCctor | RareIsNullable | RareIsDynamicType}
	svc.nullable = map[Addr]NullableInfo{canon.Addr(): {Type: fx.get(t, "core:Point").Addr(), ValueOffset: 8}}
	if !clone.IsCloned() || !clone.IsRelatedTypeViaIndirectionCell() {
		t.Fatal("clone must be cloned and indirect")
	}
	if _, ok := clone.RelatedType().(CanonicalIndirectCell); !ok {
		t.Fatalf("expected CanonicalIndirectCell, got %T", clone.RelatedType())
	}
	if clone.CanonicalType().Addr() != canon.Addr() {
		t.Fatal("clone resolves to the wrong canonical type")
	}
	checks := []struct {
		name string
		f    func(Descriptor) any
	}{
		{"IsValueType", func(d Descriptor) any { return d.IsValueType() }},
		{"IsInterface", func(d Descriptor) any { return d.IsInterface() }},
		{"IsArray", func(d Descriptor) any { return d.IsArray() }},
		{"IsFinalizable", func(d Descriptor) any { return d.IsFinalizable() }},
		{"HasReferenceFields", func(d Descriptor) any { return d.HasReferenceFields() }},
		{"NonArrayBaseType", func(d Descriptor) any { return d.NonArrayBaseType().Addr() }},
		{"NumVTableSlots", func(d Descriptor) any { return d.NumVTableSlots() }},
		{"HashCode", func(d Descriptor) any { return d.HashCode() }},
		{"FinalizerEntryPoint", func(d Descriptor) any { return d.FinalizerEntryPoint() }},
		{"RareFlags", func(d Descriptor) any { return d.RareFlags() }},
		{"HasCctor", func(d Descriptor) any { return d.HasCctor() }},
		{"IsDynamicType", func(d Descriptor) any { return d.IsDynamicType() }},
		{"IsNullable", func(d Descriptor) any { return d.IsNullable() }},
		{"NullableType", func(d Descriptor) any { return d.NullableType().Addr() }},
		{"NullableValueOffset", func(d Descriptor) any { return d.NullableValueOffset() }},
	}
	for _, c := range checks {
		if got, want := c.f(clone), c.f(canon); got != want {
			t.Errorf("%s: clone=%v canonical=%v", c.name, got, want)
		}
	}
	if clone.NullableType().Name() != "Point" || clone.NullableValueOffset() != 8 {
		t.Fatalf("clone nullable = %s +%d", clone.NullableType().Name(), clone.NullableValueOffset())
	}
	expectViolation(t, "CanonicalType", func() { canon.CanonicalType() })
	expectViolation(t, "NonClonedNonArrayBaseType", func() { clone.NonClonedNonArrayBaseType() })
}

func TestInterfaceMapTaggedAndDirect(t *testing.T) {
	fx := buildFixture(t, layout.X86_64LinuxGNU(), nil)
	ifoo := fx.get(t, "core:IFoo")

	point := fx.get(t, "core:Point")
	entries := point.InterfaceMap()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Raw().IsIndirect() {
		t.Fatal("same-module interface must be untagged")
	}
	if entries[0].InterfaceType().Addr() != ifoo.Addr() {
		t.Fatal("direct entry resolves to the wrong type")
	}

	thing := fx.get(t, "app:AppThing")
	entries = thing.InterfaceMap()
	if len(entries) != 1 || !entries[0].Raw().IsIndirect() {
		t.Fatal("cross-module interface must be tagged")
	}
	if entries[0].InterfaceType().Addr() != ifoo.Addr() {
		t.Fatal("tagged entry resolves to the wrong type")
	}
	if fx.get(t, "core:Object").InterfaceMap() != nil {
		t.Fatal("Object has no interfaces")
	}
}

func TestTaggedPointerRoundTrip(t *testing.T) {
	direct := DirectPointer(0x1000_0040)
	if direct.IsIndirect() || direct.Addr() != 0x1000_0040 {
		t.Fatalf("direct pointer mangled: %v", direct)
	}
	ind := IndirectPointer(0x1000_0048, 8)
	if !ind.IsIndirect() || ind.Addr() != 0x1000_0048 {
		t.Fatalf("indirect pointer mangled: %v", ind)
	}
	expectViolation(t, "DirectPointer", func() { DirectPointer(0x1001) })
	expectViolation(t, "IndirectPointer", func() { IndirectPointer(0x1004, 8) })
	expectViolation(t, "IndirectPointer", func() { IndirectPointer(0x1004, 1) })
}

func TestFinalizerEntryPoint(t *testing.T) {
	fx := buildFixture(t, layout.X86_64LinuxGNU(), nil)
	base := fx.get(t, "core:Base")
	if base.FinalizerEntryPoint() != 0x3f0 {
		t.Fatalf("finalizer = %v", base.FinalizerEntryPoint())
	}
	expectViolation(t, "FinalizerEntryPoint", func() { fx.get(t, "core:Point").FinalizerEntryPoint() })
}

func TestRareFlagsThroughServices(t *testing.T) {
	svc := &fakeServices{rare: map[Addr]RareFlags{}}
	fx := buildFixture(t, layout.MustLookup("armv7-linux-gnueabihf"), svc)
	point := fx.get(t, "core:Point")
	svc.rare[point.Addr()] = RareHasCctor | RareRequiresAlign8 | RareIsNullable
	svc.nullable = map[Addr]NullableInfo{point.Addr(): {Type: fx.get(t, "core:Object").Addr(), ValueOffset: 4}}

	if !point.HasCctor() || !point.RequiresAlign8() || !point.IsNullable() {
		t.Fatal("rare flags not forwarded")
	}
	if point.IsDynamicType() || point.SupportsCustomCastLogic() {
		t.Fatal("unset rare flags reported as set")
	}
	if point.NullableValueOffset() != 4 || point.NullableType().Name() != "Object" {
		t.Fatal("nullable info not forwarded")
	}
	// absence of an entry means unset
	obj := fx.get(t, "core:Object")
	if obj.RareFlags() != 0 || obj.HasCctor() {
		t.Fatal("missing entry must read as unset")
	}
	expectViolation(t, "NullableType", func() { obj.NullableType() })
}

func TestRequiresAlign8IgnoredOnOtherTargets(t *testing.T) {
	svc := &fakeServices{rare: map[Addr]RareFlags{}}
	fx := buildFixture(t, layout.X86_64LinuxGNU(), svc)
	point := fx.get(t, "core:Point")
	svc.rare[point.Addr()] = RareRequiresAlign8
	if point.RequiresAlign8() {
		t.Fatal("RequiresAlign8 only applies to align8 targets")
	}
}

func TestBuilderMutationRules(t *testing.T) {
	b := NewBuilder(layout.X86_64LinuxGNU())
	core := b.Module("core")
	other := b.Module("other")
	mk := func(d *Draft, err error) *Draft { return must(t, d, err) }
	a := mk(core.Canonical(DraftSpec{Name: "A"}))
	c := mk(core.Canonical(DraftSpec{Name: "C"}))
	imported := mk(other.Canonical(DraftSpec{Name: "Imported"}))
	arr := mk(core.Parameterized(ParameterizedSpec{DraftSpec: DraftSpec{Name: "A[]"}, Element: a, Shape: 1}))

	expectViolation(t, "SetBaseType", func() { a.SetBaseType(a) })
	expectViolation(t, "SetBaseType", func() { arr.SetBaseType(a) })

	// An imported base may be replaced by a direct one once, and only once.
	c.ImportBaseType(imported)
	c.SetBaseType(a)
	expectViolation(t, "SetBaseType", func() { c.SetBaseType(a) })
	expectViolation(t, "ImportBaseType", func() { c.ImportBaseType(imported) })

	clone := mk(other.Clone(a))
	expectViolation(t, "SetBaseType", func() { clone.SetBaseType(imported) })
	expectViolation(t, "Clone", func() { _, _ = core.Clone(a) })
	expectViolation(t, "Clone", func() { _, _ = other.Clone(clone) })

	if _, err := b.Freeze(nil); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	expectViolation(t, "SetBaseType", func() { a.SetBaseType(c) })
	expectViolation(t, "draft", func() { _, _ = core.Canonical(DraftSpec{Name: "Late"}) })
	expectViolation(t, "Freeze", func() { _, _ = b.Freeze(nil) })
}

func TestDraftErrors(t *testing.T) {
	b := NewBuilder(layout.X86_64LinuxGNU())
	m := b.Module("m")
	mk := func(d *Draft, err error) *Draft { return must(t, d, err) }
	if _, err := m.Canonical(DraftSpec{Name: "F", Flags: FlagHasFinalizer}); err == nil {
		t.Fatal("finalizable type without finalizer must fail")
	}
	mk(m.Canonical(DraftSpec{Name: "Dup"}))
	if _, err := m.Canonical(DraftSpec{Name: "Dup"}); err == nil {
		t.Fatal("duplicate descriptor name must fail")
	}
	if _, err := m.Parameterized(ParameterizedSpec{DraftSpec: DraftSpec{Name: "X[]"}, Shape: 1}); err == nil {
		t.Fatal("parameterized type without element must fail")
	}
	_, err := m.Canonical(DraftSpec{Name: "Huge", VTable: make([]Addr, 1<<16)})
	var le *layout.LayoutError
	if !errors.As(err, &le) || le.Kind != layout.LayoutErrTooManySlots {
		t.Fatalf("expected too-many-slots layout error, got %v", err)
	}
	mk(m.Canonical(DraftSpec{Name: "Unbound", Interfaces: []*Draft{nil}}))
	if _, err := b.Freeze(nil); err == nil {
		t.Fatal("freeze with an unset interface entry must fail")
	}
}

func TestEquivalent(t *testing.T) {
	b := NewBuilder(layout.X86_64LinuxGNU())
	core := b.Module("core")
	app := b.Module("app")
	mk := func(d *Draft, err error) *Draft { return must(t, d, err) }
	elem := mk(core.Canonical(DraftSpec{Name: "Elem"}))
	other := mk(core.Canonical(DraftSpec{Name: "Other"}))
	coreArr := mk(core.Parameterized(ParameterizedSpec{DraftSpec: DraftSpec{Name: "Elem[]"}, Element: elem, Shape: 1}))
	appArr := mk(app.Parameterized(ParameterizedSpec{DraftSpec: DraftSpec{Name: "Elem[]"}, Element: elem, Shape: 1}))
	appPtr := mk(app.Parameterized(ParameterizedSpec{DraftSpec: DraftSpec{Name: "Elem*"}, Element: elem}))
	otherArr := mk(app.Parameterized(ParameterizedSpec{DraftSpec: DraftSpec{Name: "Other[]"}, Element: other, Shape: 1}))
	clone := mk(app.Clone(elem))
	cloneArr := mk(app.Parameterized(ParameterizedSpec{DraftSpec: DraftSpec{Name: "ElemClone[]"}, Element: clone, Shape: 1}))
	space, err := b.Freeze(nil)
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	desc := func(d *Draft) Descriptor { return space.Descriptor(d.Addr()) }

	cases := []struct {
		name string
		a, b *Draft
		want bool
	}{
		{"same", elem, elem, true},
		{"clone", clone, elem, true},
		{"arrays in two modules", coreArr, appArr, true},
		{"array over clone", cloneArr, coreArr, true},
		{"array vs pointer", appArr, appPtr, false},
		{"different element", coreArr, otherArr, false},
		{"different canonical", elem, other, false},
	}
	for _, tc := range cases {
		if got := Equivalent(desc(tc.a), desc(tc.b)); got != tc.want {
			t.Errorf("%s: Equivalent = %v, want %v", tc.name, got, tc.want)
		}
		if got := Equivalent(desc(tc.b), desc(tc.a)); got != tc.want {
			t.Errorf("%s (swapped): Equivalent = %v, want %v", tc.name, got, tc.want)
		}
	}
	if Equivalent(desc(elem), Descriptor{}) {
		t.Fatal("nil descriptor is equivalent only to itself")
	}
	if desc(coreArr).HashCode() != desc(appArr).HashCode() {
		t.Fatal("equivalent arrays must hash alike")
	}
}

func TestOptionalFieldsRoundTrip(t *testing.T) {
	cases := []OptionalFields{
		{RareFlags: RareHasCctor},
		{NullableValueOffset: 8},
		{RareFlags: RareIsNullable | RareRequiresAlign8, NullableValueOffset: 4, ValueTypeFieldPadding: 300},
	}
	for _, want := range cases {
		enc := want.Encode()
		got, n, err := DecodeOptionalFields(append(enc, 0xff, 0xff))
		if err != nil {
			t.Fatalf("%+v: %v", want, err)
		}
		if got != want || n != len(enc) {
			t.Fatalf("round trip: got %+v (%d bytes), want %+v (%d bytes)", got, n, want, len(enc))
		}
	}
	if _, _, err := DecodeOptionalFields([]byte{byte(optRareFlags), 1}); err == nil {
		t.Fatal("missing terminator must be reported")
	}
	if _, _, err := DecodeOptionalFields([]byte{0x7f | 0x80, 1}); err == nil {
		t.Fatal("unknown tag must be reported")
	}
}

func TestTargetsOfOtherWidthAndOrder(t *testing.T) {
	for _, triple := range []string{"i686-linux-gnu", "ppc64-linux-gnu", "wasm32-unknown-unknown"} {
		t.Run(triple, func(t *testing.T) {
			fx := buildFixture(t, layout.MustLookup(triple), nil)
			base := fx.get(t, "core:Base")
			if base.FinalizerEntryPoint() != 0x3f0 || base.VTableSlot(3) != 0x300 {
				t.Fatalf("trailing data misread: fin=%v slot3=%v", base.FinalizerEntryPoint(), base.VTableSlot(3))
			}
			if base.BaseSize() != 24 || base.HashCode() != NameHash("Base") {
				t.Fatalf("header misread: size=%d hash=%#x", base.BaseSize(), base.HashCode())
			}
			thing := fx.get(t, "app:AppThing")
			if thing.InterfaceMap()[0].InterfaceType().Name() != "IFoo" {
				t.Fatal("tagged interface entry misread")
			}
			if thing.NonArrayBaseType().Name() != "Derived" {
				t.Fatal("indirect base misread")
			}
		})
	}
}

func TestLoadRejectsBadImages(t *testing.T) {
	tgt := layout.X86_64LinuxGNU()
	if _, err := Load(tgt, []ModuleImage{{Name: "z", Base: 0, Data: make([]byte, 8)}}, nil); err == nil {
		t.Fatal("zero base must be rejected")
	}
	overlap := []ModuleImage{
		{Name: "a", Base: 0x1000, Data: make([]byte, 0x20)},
		{Name: "b", Base: 0x1010, Data: make([]byte, 0x20)},
	}
	if _, err := Load(tgt, overlap, nil); err == nil {
		t.Fatal("overlapping images must be rejected")
	}
}

func TestSpaceReload(t *testing.T) {
	fx := buildFixture(t, layout.X86_64LinuxGNU(), nil)
	again, err := Load(fx.space.Target(), fx.space.Images(), nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	d, ok := again.Lookup("app", "AppThing")
	if !ok {
		t.Fatal("symbol lost on reload")
	}
	if d.Addr() != fx.get(t, "app:AppThing").Addr() || d.NonArrayBaseType().Name() != "Derived" {
		t.Fatal("reloaded space disagrees with the original")
	}
	if mod, _ := again.ModuleOf(d.NonArrayBaseType().Addr()); mod != "core" {
		t.Fatalf("base lives in %q", mod)
	}
	expectViolation(t, "Space.Descriptor", func() { again.Descriptor(0x42) })
}

func TestNameHashNormalizes(t *testing.T) {
	composed := "Caf\u00e9"
	decomposed := "Cafe\u0301"
	if NameHash(composed) != NameHash(decomposed) {
		t.Fatal("NFC-equivalent names must hash alike")
	}
	if NameHash("A") == NameHash("B") {
		t.Fatal("distinct names collide")
	}
}
