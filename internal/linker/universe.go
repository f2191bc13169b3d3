package linker

import (
	"fmt"
	"sort"
	"strings"

	"fortio.org/safecast"

	"aotrt/internal/delegate"
	"aotrt/internal/project"
	"aotrt/internal/typesys"
)

// world is the manifest lowered into the type system.
type world struct {
	u        *typesys.Universe
	configs  map[typesys.TypeID]*project.TypeConfig
	extra    map[typesys.TypeID][]string // modules emitting extra copies of a parameterized type
	nullable map[typesys.TypeID]typesys.TypeID
	requests []delegate.Request
}

func buildWorld(cfg *project.Config) (*world, error) {
	w := &world{
		u:        typesys.NewUniverse(),
		configs:  make(map[typesys.TypeID]*project.TypeConfig, len(cfg.Types)),
		extra:    make(map[typesys.TypeID][]string),
		nullable: make(map[typesys.TypeID]typesys.TypeID),
	}
	u := w.u

	// Declare first; bases and interfaces may refer forward.
	ids := make([]typesys.TypeID, len(cfg.Types))
	for i := range cfg.Types {
		tc := &cfg.Types[i]
		kind, ok := typesys.ParseKind(tc.Kind)
		if !ok {
			return nil, fmt.Errorf("type %s: unknown kind %q", tc.Name, tc.Kind)
		}
		id, err := u.DefineType(typesys.TypeSpec{
			Name:         tc.Name,
			Module:       tc.Module,
			Kind:         kind,
			GenericArity: tc.GenericArity,
		})
		if err != nil {
			return nil, err
		}
		ids[i] = id
		w.configs[id] = tc
	}

	for i := range cfg.Types {
		tc := &cfg.Types[i]
		id := ids[i]
		base, err := w.baseOf(id, tc)
		if err != nil {
			return nil, err
		}
		if err := u.SetBase(id, base); err != nil {
			return nil, err
		}
		ifaces := make([]typesys.TypeID, 0, len(tc.Interfaces))
		for _, name := range tc.Interfaces {
			iface, err := resolveType(u, name)
			if err != nil {
				return nil, fmt.Errorf("type %s: %w", tc.Name, err)
			}
			ifaces = append(ifaces, iface)
		}
		if err := u.SetInterfaces(id, ifaces); err != nil {
			return nil, err
		}
		if tc.Nullable != nil {
			inner, err := resolveType(u, tc.Nullable.Type)
			if err != nil {
				return nil, fmt.Errorf("type %s: nullable: %w", tc.Name, err)
			}
			w.nullable[id] = inner
		}
		for _, mc := range tc.Methods {
			if mc.Static && mc.Virtual {
				return nil, fmt.Errorf("method %s.%s: static methods cannot be virtual", tc.Name, mc.Name)
			}
			sig := typesys.Signature{Length: mc.Params, IsStatic: mc.Static}
			if _, err := u.DefineMethod(id, mc.Name, sig, mc.Virtual); err != nil {
				return nil, err
			}
		}
	}

	for _, in := range cfg.Instances {
		def, err := resolveType(u, in.Generic)
		if err != nil {
			return nil, fmt.Errorf("instantiate: %w", err)
		}
		args := make([]typesys.TypeID, len(in.Args))
		for i, a := range in.Args {
			if args[i], err = resolveType(u, a); err != nil {
				return nil, fmt.Errorf("instantiate %s: %w", in.Generic, err)
			}
		}
		if _, err := u.Instantiate(def, args...); err != nil {
			return nil, err
		}
	}

	for _, ac := range cfg.Arrays {
		elem, err := resolveType(u, ac.Element)
		if err != nil {
			return nil, fmt.Errorf("array: %w", err)
		}
		rank := ac.Rank
		if rank == 0 {
			rank = 1
		}
		r, err := safecast.Conv[uint32](rank)
		if err != nil {
			return nil, fmt.Errorf("array of %s: rank: %w", ac.Element, err)
		}
		w.place(u.Array(elem, r), ac.Module)
	}
	for _, pc := range cfg.Pointers {
		elem, err := resolveType(u, pc.Element)
		if err != nil {
			return nil, fmt.Errorf("pointer: %w", err)
		}
		w.place(u.Pointer(elem), pc.Module)
	}

	for _, dc := range cfg.Delegates {
		if err := w.defineDelegate(dc); err != nil {
			return nil, err
		}
	}
	for _, bc := range cfg.Binds {
		req, err := w.request(bc)
		if err != nil {
			return nil, fmt.Errorf("bind %s -> %s: %w", bc.Delegate, bc.Target, err)
		}
		w.requests = append(w.requests, req)
	}
	return w, nil
}

func (w *world) baseOf(id typesys.TypeID, tc *project.TypeConfig) (typesys.TypeID, error) {
	u := w.u
	t := u.MustType(id)
	switch t.Kind {
	case typesys.KindInterface:
		if tc.Base != "" {
			return typesys.NoTypeID, fmt.Errorf("interface %s cannot have a base type", t.Name)
		}
		return typesys.NoTypeID, nil
	case typesys.KindStruct:
		vt := u.WellKnownType(typesys.WellKnownValueType)
		if tc.Base != "" && tc.Base != typesys.WellKnownValueType.String() {
			return typesys.NoTypeID, fmt.Errorf("value type %s must derive from %s", t.Name, typesys.WellKnownValueType)
		}
		return vt, nil
	}
	if tc.Base == "" {
		return u.WellKnownType(typesys.WellKnownObject), nil
	}
	base, err := resolveType(u, tc.Base)
	if err != nil {
		return typesys.NoTypeID, fmt.Errorf("type %s: %w", t.Name, err)
	}
	if bt := u.MustType(base); bt.Kind != typesys.KindClass {
		return typesys.NoTypeID, fmt.Errorf("type %s: base %s is not a class", t.Name, bt.Name)
	}
	return base, nil
}

func (w *world) place(id typesys.TypeID, module string) {
	if module == "" || module == w.u.MustType(id).Module {
		return
	}
	for _, m := range w.extra[id] {
		if m == module {
			return
		}
	}
	w.extra[id] = append(w.extra[id], module)
}

func (w *world) defineDelegate(dc project.DelegateConfig) error {
	def, err := resolveType(w.u, dc.Type)
	if err != nil {
		return fmt.Errorf("delegate: %w", err)
	}
	kinds := make([]string, 0, len(dc.Thunks))
	for k := range dc.Thunks {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	thunks := make(map[typesys.ThunkKind]typesys.MethodID, len(kinds))
	for _, k := range kinds {
		kind, ok := typesys.ParseThunkKind(k)
		if !ok {
			return fmt.Errorf("delegate %s: unknown thunk kind %q", dc.Type, k)
		}
		m, ok := w.u.FindMethod(def, dc.Thunks[k])
		if !ok {
			return fmt.Errorf("delegate %s: %s thunk %q is not a method of the type", dc.Type, k, dc.Thunks[k])
		}
		thunks[kind] = m
	}
	if err := w.u.DefineDelegate(def, typesys.Signature{Length: dc.Params}, thunks); err != nil {
		return fmt.Errorf("delegate: %w", err)
	}
	return nil
}

func (w *world) request(bc project.BindConfig) (delegate.Request, error) {
	dt, err := resolveType(w.u, bc.Delegate)
	if err != nil {
		return delegate.Request{}, err
	}
	if _, ok := w.u.DelegateInfo(w.u.TypeDefinition(dt)); !ok {
		return delegate.Request{}, fmt.Errorf("%s is not a registered delegate type", bc.Delegate)
	}
	m, err := resolveMethod(w.u, bc.Target)
	if err != nil {
		return delegate.Request{}, err
	}
	return delegate.Request{DelegateType: dt, Target: m}, nil
}

// resolveType looks a type up by name. Names ending in "*" or "[]"/"[,]"
// intern pointer and array types over the named element.
func resolveType(u *typesys.Universe, name string) (typesys.TypeID, error) {
	name = strings.TrimSpace(name)
	if id, ok := u.Lookup(name); ok {
		return id, nil
	}
	if elem, ok := strings.CutSuffix(name, "*"); ok && elem != "" {
		e, err := resolveType(u, elem)
		if err != nil {
			return typesys.NoTypeID, err
		}
		return u.Pointer(e), nil
	}
	if strings.HasSuffix(name, "]") {
		if open := strings.LastIndexByte(name, '['); open > 0 {
			dims := name[open+1 : len(name)-1]
			if strings.Trim(dims, ",") == "" {
				e, err := resolveType(u, name[:open])
				if err != nil {
					return typesys.NoTypeID, err
				}
				rank, err := safecast.Conv[uint32](len(dims) + 1)
				if err != nil {
					return typesys.NoTypeID, err
				}
				return u.Array(e, rank), nil
			}
		}
	}
	return typesys.NoTypeID, fmt.Errorf("unknown type %q", name)
}

// resolveMethod finds "Owner.Method". Methods of generic definitions are
// instantiated over an instantiated owner; inherited methods are found on
// the base chain.
func resolveMethod(u *typesys.Universe, ref string) (typesys.MethodID, error) {
	ownerName, name, ok := project.SplitMethodRef(ref)
	if !ok {
		return typesys.NoMethodID, fmt.Errorf("%q is not Owner.Method", ref)
	}
	owner, err := resolveType(u, ownerName)
	if err != nil {
		return typesys.NoMethodID, err
	}
	// Bounded: base cycles are only rejected later, when types are ordered.
	limit := len(u.Types())
	for t, steps := owner, 0; t != typesys.NoTypeID && steps <= limit; t, steps = u.BaseType(t), steps+1 {
		if m, ok := u.FindMethod(t, name); ok {
			return m, nil
		}
		if u.IsInstantiated(t) {
			if m, ok := u.FindMethod(u.TypeDefinition(t), name); ok {
				return u.MethodForInstantiatedType(m, t), nil
			}
		}
	}
	return typesys.NoMethodID, fmt.Errorf("type %s has no method %s", ownerName, name)
}
