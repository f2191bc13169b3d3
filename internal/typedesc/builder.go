package typedesc

import (
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"

	"aotrt/internal/contract"
	"aotrt/internal/layout"
)

// moduleRegion is the address range reserved for each module. Module i
// starts at (i+1)*moduleRegion, which keeps 32-bit targets addressable for
// up to 15 modules.
const moduleRegion Addr = 0x1000_0000

// DraftSpec describes a descriptor before it is drafted. Kind, indirection
// and optional-field bits of Flags are managed by the builder and ignored.
type DraftSpec struct {
	Name          string
	Flags         Flags
	ElementType   ElementType
	BaseSize      uint32
	ComponentSize uint16
	VTable        []Addr
	// Interfaces fixes the interface count. Nil entries are placeholders
	// for SetInterface and must be filled before Freeze.
	Interfaces []*Draft
	Finalizer  Addr
	Optional   OptionalFields
	// HashCode overrides the hash derived from Name.
	HashCode uint32
}

// ParameterizedSpec describes an array (Shape != 0) or pointer (Shape == 0).
type ParameterizedSpec struct {
	DraftSpec
	Element *Draft
	Shape   uint32
}

// Builder assembles drafts for several modules and freezes them into an
// immutable Space. A Builder is not safe for concurrent use; it belongs to
// the single-threaded bootstrap phase.
type Builder struct {
	target  layout.Target
	engine  *layout.Engine
	modules []*ModuleBuilder
	frozen  bool
}

// NewBuilder creates a builder for target.
func NewBuilder(target layout.Target) *Builder {
	return &Builder{
		target: target,
		engine: layout.New(target),
	}
}

// Target returns the builder's target.
func (b *Builder) Target() layout.Target { return b.target }

// Module returns the named module, creating it on first use.
func (b *Builder) Module(name string) *ModuleBuilder {
	for _, m := range b.modules {
		if m.name == name {
			return m
		}
	}
	m := &ModuleBuilder{
		b:       b,
		name:    name,
		base:    Addr(len(b.modules)+1) * moduleRegion,
		cells:   make(map[*Draft]Addr),
		symbols: make(map[string]Addr),
	}
	b.modules = append(b.modules, m)
	return m
}

// ModuleBuilder allocates descriptors, indirection cells and optional field
// blobs inside one module.
type ModuleBuilder struct {
	b       *Builder
	name    string
	base    Addr
	size    int
	drafts  []*Draft
	cells   map[*Draft]Addr
	cellSeq []*Draft
	blobs   []blob
	symbols map[string]Addr
}

type blob struct {
	addr Addr
	data []byte
}

// Name returns the module name.
func (m *ModuleBuilder) Name() string { return m.name }

func (m *ModuleBuilder) alloc(size, align int) Addr {
	off := alignUp(m.size, align)
	m.size = off + size
	return m.base + Addr(off)
}

func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	if r := n % align; r != 0 {
		return n + align - r
	}
	return n
}

// cellFor returns the module's indirection cell for target, allocating it
// on first use.
func (m *ModuleBuilder) cellFor(target *Draft) Addr {
	if c, ok := m.cells[target]; ok {
		return c
	}
	ptr := m.b.target.PtrSize
	c := m.alloc(ptr, ptr)
	m.cells[target] = c
	m.cellSeq = append(m.cellSeq, target)
	return c
}

// Draft is a mutable descriptor under construction.
type Draft struct {
	mod    *ModuleBuilder
	addr   Addr
	kind   Kind
	spec   DraftSpec
	layout layout.DescriptorLayout
	blob   Addr

	related        *Draft
	relatedViaCell bool
	baseSet        bool
}

// Addr returns the address the descriptor will occupy.
func (d *Draft) Addr() Addr { return d.addr }

// Kind returns the descriptor kind.
func (d *Draft) Kind() Kind { return d.kind }

// Name returns the symbol name.
func (d *Draft) Name() string { return d.spec.Name }

// Module returns the owning module.
func (d *Draft) Module() *ModuleBuilder { return d.mod }

// HashCode returns the hash the header will carry.
func (d *Draft) HashCode() uint32 { return d.spec.HashCode }

// IsValueType reports the value-type attribute of the spec.
func (d *Draft) IsValueType() bool { return d.spec.Flags.Has(FlagIsValueType) }

func (d *Draft) mustBeMutable(op string) {
	contract.Assert(!d.mod.b.frozen, op, "%s: builder already frozen", d.spec.Name)
}

// Canonical drafts the authoritative descriptor of a type.
func (m *ModuleBuilder) Canonical(spec DraftSpec) (*Draft, error) {
	return m.draft(KindCanonical, spec)
}

// GenericDefinition drafts an uninstantiated generic type definition.
func (m *ModuleBuilder) GenericDefinition(spec DraftSpec) (*Draft, error) {
	return m.draft(KindGenericTypeDefinition, spec)
}

// Parameterized drafts an array or pointer type over spec.Element. Arrays
// and pointers are never cloned; each module emits its own copy.
func (m *ModuleBuilder) Parameterized(spec ParameterizedSpec) (*Draft, error) {
	if spec.Element == nil {
		return nil, fmt.Errorf("%s: parameterized type without element type", spec.Name)
	}
	ds := spec.DraftSpec
	ds.BaseSize = spec.Shape
	if ds.HashCode == 0 {
		ds.HashCode = ParameterizedHash(spec.Element.spec.HashCode, spec.Shape)
	}
	d, err := m.draft(KindParameterized, ds)
	if err != nil {
		return nil, err
	}
	d.related = spec.Element
	if spec.Element.mod != m {
		d.relatedViaCell = true
		m.cellFor(spec.Element)
	}
	return d, nil
}

// Clone drafts a forwarding copy of a canonical type that lives in another
// module. The clone always reaches its canonical type through a cell.
func (m *ModuleBuilder) Clone(canonical *Draft) (*Draft, error) {
	contract.Assert(canonical != nil && canonical.kind == KindCanonical, "Clone", "only canonical descriptors can be cloned")
	contract.Assert(canonical.mod != m, "Clone", "%s: clone must live in a different module than its canonical type", canonical.spec.Name)
	spec := canonical.spec
	spec.VTable = append([]Addr(nil), canonical.spec.VTable...)
	spec.Interfaces = append([]*Draft(nil), canonical.spec.Interfaces...)
	d, err := m.draft(KindCloned, spec)
	if err != nil {
		return nil, err
	}
	d.related = canonical
	d.relatedViaCell = true
	d.baseSet = true
	m.cellFor(canonical)
	return d, nil
}

func (m *ModuleBuilder) draft(kind Kind, spec DraftSpec) (*Draft, error) {
	contract.Assert(!m.b.frozen, "draft", "builder already frozen")
	if spec.Flags.Has(FlagHasFinalizer) && spec.Finalizer == NoAddr {
		return nil, fmt.Errorf("%s: finalizable type without finalizer entry point", spec.Name)
	}
	if spec.Name != "" {
		if _, dup := m.symbols[spec.Name]; dup {
			return nil, fmt.Errorf("module %s: duplicate descriptor %q", m.name, spec.Name)
		}
	}
	l, err := m.b.engine.DescriptorLayout(layout.Shape{
		VTableSlots:    len(spec.VTable),
		Interfaces:     len(spec.Interfaces),
		Finalizable:    spec.Flags.Has(FlagHasFinalizer),
		OptionalFields: !spec.Optional.IsZero(),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Name, err)
	}
	if spec.HashCode == 0 {
		spec.HashCode = NameHash(spec.Name)
	}
	d := &Draft{
		mod:    m,
		kind:   kind,
		spec:   spec,
		layout: l,
	}
	d.addr = m.alloc(l.Size, l.Align)
	if !spec.Optional.IsZero() {
		data := spec.Optional.Encode()
		d.blob = m.alloc(len(data), 1)
		m.blobs = append(m.blobs, blob{addr: d.blob, data: data})
	}
	m.drafts = append(m.drafts, d)
	if spec.Name != "" {
		m.symbols[spec.Name] = d.addr
	}
	return d, nil
}

// SetBaseType stores base as a direct pointer and clears the indirection
// flag. It is the only mutation of a canonical descriptor and may be called
// once per type, before Freeze.
func (d *Draft) SetBaseType(base *Draft) {
	d.mustBeMutable("SetBaseType")
	contract.Assert(d.kind == KindCanonical, "SetBaseType", "%s: only canonical, non-parameterized types have a settable base (kind %v)", d.spec.Name, d.kind)
	contract.Assert(base != d, "SetBaseType", "%s: a type cannot be its own base", d.spec.Name)
	contract.Assert(!d.baseSet || d.relatedViaCell, "SetBaseType", "%s: base type already set", d.spec.Name)
	d.related = base
	d.relatedViaCell = false
	d.baseSet = true
}

// ImportBaseType references base through an indirection cell in d's
// module, as required when base lives in another module.
func (d *Draft) ImportBaseType(base *Draft) {
	d.mustBeMutable("ImportBaseType")
	contract.Assert(d.kind == KindCanonical || d.kind == KindGenericTypeDefinition, "ImportBaseType", "%s: kind %v has no base type", d.spec.Name, d.kind)
	contract.Assert(base != nil && base != d, "ImportBaseType", "%s: invalid base", d.spec.Name)
	contract.Assert(!d.baseSet, "ImportBaseType", "%s: base type already set", d.spec.Name)
	d.related = base
	d.relatedViaCell = true
	d.baseSet = true
	d.mod.cellFor(base)
}

// SetInterface fills interface map entry i.
func (d *Draft) SetInterface(i int, iface *Draft) {
	d.mustBeMutable("SetInterface")
	contract.Assert(i >= 0 && i < len(d.spec.Interfaces), "SetInterface", "%s: entry %d out of range", d.spec.Name, i)
	contract.Assert(iface != nil, "SetInterface", "%s: nil interface", d.spec.Name)
	d.spec.Interfaces[i] = iface
}

// Freeze encodes every draft, patches indirection cells and returns the
// immutable Space. The builder cannot be used afterwards.
func (b *Builder) Freeze(svc Services) (*Space, error) {
	contract.Assert(!b.frozen, "Freeze", "builder already frozen")
	b.frozen = true

	// Interface entries that cross modules need cells; allocate them
	// before sizing the images.
	for _, m := range b.modules {
		for _, d := range m.drafts {
			for i, iface := range d.spec.Interfaces {
				if iface == nil {
					return nil, fmt.Errorf("%s: interface entry %d never set", d.spec.Name, i)
				}
				if iface.mod != m {
					m.cellFor(iface)
				}
			}
		}
	}

	images := make([]ModuleImage, 0, len(b.modules))
	for _, m := range b.modules {
		img, err := m.encode()
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return Load(b.target, images, svc)
}

func (m *ModuleBuilder) encode() (ModuleImage, error) {
	if Addr(m.size) > moduleRegion {
		return ModuleImage{}, fmt.Errorf("module %s: %d bytes exceed the module region", m.name, m.size)
	}
	w := &imageWriter{
		base:  m.base,
		data:  make([]byte, m.size),
		tgt:   m.b.target,
		order: m.b.target.ByteOrder(),
	}
	for _, target := range m.cellSeq {
		w.ptr(m.cells[target], target.addr)
	}
	for _, bl := range m.blobs {
		copy(w.data[bl.addr-m.base:], bl.data)
	}
	for _, d := range m.drafts {
		if err := m.encodeDraft(w, d); err != nil {
			return ModuleImage{}, err
		}
	}
	if w.err != nil {
		return ModuleImage{}, fmt.Errorf("module %s: %w", m.name, w.err)
	}
	syms := make(map[string]Addr, len(m.symbols))
	for k, v := range m.symbols {
		syms[k] = v
	}
	return ModuleImage{Name: m.name, Base: m.base, Data: w.data, Symbols: syms}, nil
}

func (m *ModuleBuilder) encodeDraft(w *imageWriter, d *Draft) error {
	if d.kind == KindCloned && d.related == nil {
		return fmt.Errorf("%s: clone without canonical type", d.spec.Name)
	}
	tgt := m.b.target
	flags := makeFlags(d.kind, d.spec.Flags, d.spec.ElementType)
	if d.relatedViaCell {
		flags |= FlagRelatedTypeViaIndirectionCell
	}
	if d.blob != NoAddr {
		flags |= FlagHasOptionalFields
	}

	a := d.addr
	w.u16(a+layout.OffComponentSize, d.spec.ComponentSize)
	w.u16(a+layout.OffFlags, uint16(flags))
	w.u32(a+layout.OffBaseSize, d.spec.BaseSize)
	switch {
	case d.related == nil:
		w.ptr(a+layout.OffRelatedType, NoAddr)
	case d.relatedViaCell:
		w.ptr(a+layout.OffRelatedType, m.cells[d.related])
	default:
		w.ptr(a+layout.OffRelatedType, d.related.addr)
	}
	w.u16(a+Addr(tgt.OffNumVTableSlots()), d.layout.NumVTableSlots)
	w.u16(a+Addr(tgt.OffNumInterfaces()), d.layout.NumInterfaces)
	w.u32(a+Addr(tgt.OffHashCode()), d.spec.HashCode)

	for i, slot := range d.spec.VTable {
		w.ptr(a+Addr(d.layout.VTableSlotOffset(tgt.PtrSize, i)), slot)
	}
	for i, iface := range d.spec.Interfaces {
		var p TaggedPointer
		if iface.mod == m {
			p = DirectPointer(iface.addr)
		} else {
			p = IndirectPointer(m.cells[iface], tgt.PtrAlign)
		}
		w.ptr(a+Addr(d.layout.InterfaceEntryOffset(tgt.PtrSize, i)), Addr(p))
	}
	if d.layout.Finalizer >= 0 {
		w.ptr(a+Addr(d.layout.Finalizer), d.spec.Finalizer)
	}
	if d.layout.OptionalFields >= 0 {
		w.ptr(a+Addr(d.layout.OptionalFields), d.blob)
	}
	return nil
}

type imageWriter struct {
	base  Addr
	data  []byte
	tgt   layout.Target
	order binary.ByteOrder
	err   error
}

func (w *imageWriter) off(a Addr) int { return int(a - w.base) }

func (w *imageWriter) u16(a Addr, v uint16) { w.order.PutUint16(w.data[w.off(a):], v) }
func (w *imageWriter) u32(a Addr, v uint32) { w.order.PutUint32(w.data[w.off(a):], v) }

func (w *imageWriter) ptr(a Addr, v Addr) {
	if w.tgt.PtrSize == 4 {
		n, err := safecast.Conv[uint32](uint64(v))
		if err != nil {
			if w.err == nil {
				w.err = fmt.Errorf("address %v does not fit a 32-bit pointer: %w", v, err)
			}
			return
		}
		w.order.PutUint32(w.data[w.off(a):], n)
		return
	}
	w.order.PutUint64(w.data[w.off(a):], uint64(v))
}
