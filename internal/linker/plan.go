package linker

import (
	"context"
	"fmt"

	"fortio.org/safecast"
	"golang.org/x/sync/errgroup"

	"aotrt/internal/layout"
	"aotrt/internal/pipeline"
	"aotrt/internal/project"
	"aotrt/internal/symbols"
	"aotrt/internal/trace"
	"aotrt/internal/typedesc"
	"aotrt/internal/typesys"
)

type slot struct {
	method   typesys.MethodID
	unboxing bool
}

// typePlan is everything known about a descriptor before it is drafted.
type typePlan struct {
	id        typesys.TypeID
	module    string
	cfg       *project.TypeConfig // nil for well-known, instantiated and parameterized types
	vtable    []slot
	ifaces    []typesys.TypeID
	finalizer typesys.MethodID
	extra     []string
	spec      typedesc.DraftSpec
}

// layoutTypes computes vtables, interface lists and finalizers in base-first
// order: a type starts from its base's slots, overrides slots by method
// name and appends new virtual methods.
func layoutTypes(w *world, order []typesys.TypeID) (map[typesys.TypeID]*typePlan, error) {
	u := w.u
	plans := make(map[typesys.TypeID]*typePlan, len(order))
	for _, id := range order {
		t := u.MustType(id)
		p := &typePlan{id: id, module: t.Module, cfg: w.configs[id], extra: w.extra[id]}
		if bp := plans[t.Base]; bp != nil {
			p.vtable = append([]slot(nil), bp.vtable...)
			p.ifaces = append([]typesys.TypeID(nil), bp.ifaces...)
			p.finalizer = bp.finalizer
		}

		var own []typesys.MethodID
		if t.IsInstantiated() {
			for _, m := range u.MethodsOf(t.Definition) {
				if u.MustMethod(m).Virtual {
					own = append(own, u.MethodForInstantiatedType(m, id))
				}
			}
		} else {
			own = u.MethodsOf(id)
		}
		if t.Kind != typesys.KindInterface {
			for _, m := range own {
				mm := u.MustMethod(m)
				if !mm.Virtual {
					continue
				}
				p.override(u, slot{method: m, unboxing: t.IsValueType()})
			}
		}

		for _, iface := range t.Interfaces {
			if !containsType(p.ifaces, iface) {
				p.ifaces = append(p.ifaces, iface)
			}
		}

		switch {
		case p.cfg != nil && p.cfg.Finalizer != "":
			m, ok := u.FindMethod(id, p.cfg.Finalizer)
			if !ok {
				return nil, fmt.Errorf("type %s: finalizer %s not found", t.Name, p.cfg.Finalizer)
			}
			p.finalizer = m
		case t.IsInstantiated():
			if dp := plans[t.Definition]; dp != nil && dp.finalizer != typesys.NoMethodID {
				p.finalizer = u.MethodForInstantiatedType(dp.finalizer, id)
			}
		}
		if p.finalizer != typesys.NoMethodID && (t.IsValueType() || t.Kind == typesys.KindInterface) {
			return nil, fmt.Errorf("type %s: only classes can be finalizable", t.Name)
		}
		plans[id] = p
	}
	return plans, nil
}

func (p *typePlan) override(u *typesys.Universe, s slot) {
	name := u.MustMethod(s.method).Name
	for i, existing := range p.vtable {
		if u.MustMethod(existing.method).Name == name {
			p.vtable[i] = s
			return
		}
	}
	p.vtable = append(p.vtable, s)
}

func containsType(ids []typesys.TypeID, id typesys.TypeID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// planSpecs fills in the draft spec of every plan. Modules are planned
// concurrently; each worker only writes the plans of its own module.
func planSpecs(ctx context.Context, w *world, target layout.Target, nodes *symbols.Factory, byModule map[string][]*typePlan, modules []string, jobs int) error {
	g, gctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for _, mod := range modules {
		mod := mod
		list := byModule[mod]
		g.Go(func() error {
			_, span := trace.StartSpan(trace.WithModule(gctx, mod), trace.ScopeModule, "plan:"+mod)
			defer span.End(fmt.Sprintf("%d types", len(list)))
			for _, p := range list {
				if err := gctx.Err(); err != nil {
					return err
				}
				spec, err := specFor(w, target, nodes, p)
				if err != nil {
					return stageErr(pipeline.StageEmit, mod, err)
				}
				p.spec = spec
			}
			return nil
		})
	}
	return g.Wait()
}

func specFor(w *world, target layout.Target, nodes *symbols.Factory, p *typePlan) (typedesc.DraftSpec, error) {
	u := w.u
	t := u.MustType(p.id)
	spec := typedesc.DraftSpec{Name: t.Name}
	cfg := configOf(w, p.id)

	switch t.Kind {
	case typesys.KindInterface:
		spec.Flags |= typedesc.FlagIsInterface
		spec.ElementType = typedesc.ElemClass
	case typesys.KindStruct:
		spec.Flags |= typedesc.FlagIsValueType
		spec.ElementType = typedesc.ElemValueType
	case typesys.KindArray:
		spec.ElementType = typedesc.ElemSzArray
		if t.Rank > 1 {
			spec.ElementType = typedesc.ElemArray
		}
		comp, refs, err := componentOf(w, target, t.Elem)
		if err != nil {
			return spec, fmt.Errorf("%s: %w", t.Name, err)
		}
		spec.ComponentSize = comp
		if refs {
			spec.Flags |= typedesc.FlagHasPointers
		}
	case typesys.KindPointer:
		spec.ElementType = typedesc.ElemPtr
	default:
		spec.ElementType = typedesc.ElemClass
		if p.id == u.WellKnownType(typesys.WellKnownObject) {
			spec.ElementType = typedesc.ElemObject
		}
	}
	if t.IsInstantiated() || t.IsGenericDefinition() {
		spec.Flags |= typedesc.FlagIsGeneric
	}

	if t.Kind != typesys.KindArray && t.Kind != typesys.KindPointer && t.Kind != typesys.KindInterface {
		size := 0
		if cfg != nil {
			size = cfg.Size
			if cfg.Pointers {
				spec.Flags |= typedesc.FlagHasPointers
			}
		}
		bs, err := baseSize(target, size)
		if err != nil {
			return spec, fmt.Errorf("%s: %w", t.Name, err)
		}
		spec.BaseSize = bs
	}

	if len(p.vtable) > 0 {
		spec.VTable = make([]typedesc.Addr, len(p.vtable))
		for i, s := range p.vtable {
			spec.VTable[i] = nodes.MethodEntrypoint(s.method, s.unboxing).Addr()
		}
	}
	if len(p.ifaces) > 0 {
		spec.Interfaces = make([]*typedesc.Draft, len(p.ifaces)) // wired after drafting
	}
	if p.finalizer != typesys.NoMethodID {
		spec.Flags |= typedesc.FlagHasFinalizer
		spec.Finalizer = nodes.MethodEntrypoint(p.finalizer, false).Addr()
	}

	if p.cfg != nil {
		opt, err := optionalFields(w, p)
		if err != nil {
			return spec, err
		}
		spec.Optional = opt
	}
	return spec, nil
}

// configOf returns the manifest entry describing t's instance layout. An
// instantiation shares the layout of its definition.
func configOf(w *world, id typesys.TypeID) *project.TypeConfig {
	if t := w.u.MustType(id); t.IsInstantiated() {
		return w.configs[t.Definition]
	}
	return w.configs[id]
}

// baseSize is the allocation size of an instance with size bytes of fields:
// object header and descriptor pointer first, never less than three
// pointers.
func baseSize(target layout.Target, size int) (uint32, error) {
	ptr := target.PtrSize
	n := 2*ptr + alignUp(size, ptr)
	if n < 3*ptr {
		n = 3 * ptr
	}
	return safecast.Conv[uint32](n)
}

func componentOf(w *world, target layout.Target, elem typesys.TypeID) (uint16, bool, error) {
	et := w.u.MustType(elem)
	if !et.IsValueType() {
		c, err := safecast.Conv[uint16](target.PtrSize)
		return c, et.Kind != typesys.KindPointer, err
	}
	cfg := configOf(w, elem)
	if cfg == nil {
		return 0, false, nil
	}
	c, err := safecast.Conv[uint16](cfg.Size)
	if err != nil {
		return 0, false, fmt.Errorf("element %s too large: %w", et.Name, err)
	}
	return c, cfg.Pointers, nil
}

func alignUp(n, align int) int {
	if r := n % align; r != 0 {
		return n + align - r
	}
	return n
}

var rareNames = map[string]typedesc.RareFlags{
	"cctor":       typedesc.RareHasCctor,
	"custom-cast": typedesc.RareSupportsCustomCastLogic,
	"align8":      typedesc.RareRequiresAlign8,
	"dynamic":     typedesc.RareIsDynamicType,
}

func optionalFields(w *world, p *typePlan) (typedesc.OptionalFields, error) {
	cfg := p.cfg
	var opt typedesc.OptionalFields
	for _, name := range cfg.Rare {
		f, ok := rareNames[name]
		if !ok {
			return opt, fmt.Errorf("type %s: unknown rare flag %q", cfg.Name, name)
		}
		opt.RareFlags |= f
	}
	pad, err := safecast.Conv[uint32](cfg.Padding)
	if err != nil {
		return opt, fmt.Errorf("type %s: padding: %w", cfg.Name, err)
	}
	opt.ValueTypeFieldPadding = pad
	if cfg.Nullable != nil {
		if !w.u.IsValueType(p.id) {
			return opt, fmt.Errorf("type %s: only value types can be nullable wrappers", cfg.Name)
		}
		off, err := safecast.Conv[uint8](cfg.Nullable.Offset)
		if err != nil {
			return opt, fmt.Errorf("type %s: nullable offset: %w", cfg.Name, err)
		}
		opt.RareFlags |= typedesc.RareIsNullable
		opt.NullableValueOffset = off
	}
	return opt, nil
}
