package typesys

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"fortio.org/safecast"
)

// CoreModule is the module the well-known types live in.
const CoreModule = "corelib"

// Universe owns every type and method known to the compiler. Types and
// methods are interned: structurally equal arrays, pointers, instantiations
// and instantiated-type methods share one ID. A Universe is safe for
// concurrent use; delegate creation instantiates methods from worker
// goroutines.
type Universe struct {
	mu sync.RWMutex

	types   []Type
	index   map[typeKey]TypeID
	byName  map[string]TypeID
	methods []Method
	mindex  map[methodKey]MethodID
	minst   map[instKey]MethodID

	delegates map[TypeID]DelegateInfo
	wellKnown [wellKnownCount]TypeID
}

type typeKey struct {
	Kind Kind
	Elem TypeID
	Rank uint32
	Def  TypeID
	Args string
}

type methodKey struct {
	Owner TypeID
	Name  string
}

type instKey struct {
	Method MethodID
	Owner  TypeID
}

// TypeSpec declares a named type.
type TypeSpec struct {
	Name         string
	Module       string
	Kind         Kind
	Base         TypeID
	GenericArity int
	Interfaces   []TypeID
}

// NewUniverse constructs a universe seeded with the well-known types and
// the runtime's delegate constructors.
func NewUniverse() *Universe {
	u := &Universe{
		index:     make(map[typeKey]TypeID, 64),
		byName:    make(map[string]TypeID, 64),
		mindex:    make(map[methodKey]MethodID, 64),
		minst:     make(map[instKey]MethodID),
		delegates: make(map[TypeID]DelegateInfo),
	}
	u.types = append(u.types, Type{})     // reserve 0 as invalid sentinel
	u.methods = append(u.methods, Method{}) // same for methods

	seed := func(w WellKnownType, kind Kind, base TypeID) TypeID {
		id := u.addType(Type{Kind: kind, Name: w.String(), Module: CoreModule, Base: base})
		u.byName[w.String()] = id
		u.wellKnown[w] = id
		return id
	}
	object := seed(WellKnownObject, KindClass, NoTypeID)
	seed(WellKnownValueType, KindClass, object)
	seed(WellKnownArray, KindClass, object)
	del := seed(WellKnownDelegate, KindClass, object)
	seed(WellKnownMulticastDelegate, KindClass, del)

	u.addMethod(Method{Name: "ToString", Owner: object, Virtual: true})
	u.addMethod(Method{Name: "Equals", Owner: object, Signature: Signature{Length: 1}, Virtual: true})
	u.addMethod(Method{Name: "GetHashCode", Owner: object, Virtual: true})

	// (object firstParameter, IntPtr functionPointer, IntPtr functionPointerThunk)
	u.addMethod(Method{Name: InitializeClosedStaticThunk, Owner: del, Signature: Signature{Length: 3}})
	// (object firstParameter, IntPtr functionPointer)
	u.addMethod(Method{Name: InitializeClosedInstance, Owner: del, Signature: Signature{Length: 2}})
	return u
}

func (u *Universe) addType(t Type) TypeID {
	n, err := safecast.Conv[uint32](len(u.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(n)
	u.types = append(u.types, t)
	return id
}

func (u *Universe) addMethod(m Method) MethodID {
	n, err := safecast.Conv[uint32](len(u.methods))
	if err != nil {
		panic(fmt.Errorf("len(methods) overflow: %w", err))
	}
	id := MethodID(n)
	u.methods = append(u.methods, m)
	if m.Definition == NoMethodID {
		u.mindex[methodKey{Owner: m.Owner, Name: m.Name}] = id
	}
	return id
}

// WellKnownType returns the ID of a seeded type.
func (u *Universe) WellKnownType(w WellKnownType) TypeID {
	if w >= wellKnownCount {
		panic("typesys: invalid well-known type")
	}
	return u.wellKnown[w]
}

// DefineType declares a named type.
func (u *Universe) DefineType(spec TypeSpec) (TypeID, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if spec.Name == "" {
		return NoTypeID, fmt.Errorf("type without name")
	}
	if _, dup := u.byName[spec.Name]; dup {
		return NoTypeID, fmt.Errorf("type %s already defined", spec.Name)
	}
	switch spec.Kind {
	case KindClass, KindStruct, KindInterface:
	default:
		return NoTypeID, fmt.Errorf("type %s: kind %v cannot be declared by name", spec.Name, spec.Kind)
	}
	if spec.Base != NoTypeID && !u.valid(spec.Base) {
		return NoTypeID, fmt.Errorf("type %s: unknown base type %d", spec.Name, spec.Base)
	}
	for _, iface := range spec.Interfaces {
		if !u.valid(iface) || u.types[iface].Kind != KindInterface {
			return NoTypeID, fmt.Errorf("type %s: %d is not an interface", spec.Name, iface)
		}
	}
	if spec.GenericArity < 0 {
		return NoTypeID, fmt.Errorf("type %s: negative generic arity", spec.Name)
	}
	id := u.addType(Type{
		Kind:         spec.Kind,
		Name:         spec.Name,
		Module:       spec.Module,
		Base:         spec.Base,
		GenericArity: spec.GenericArity,
		Interfaces:   append([]TypeID(nil), spec.Interfaces...),
	})
	u.byName[spec.Name] = id
	return id, nil
}

// SetBase changes the base of a named type. Manifests may declare types
// before their bases.
func (u *Universe) SetBase(id, base TypeID) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.valid(id) || (base != NoTypeID && !u.valid(base)) {
		return fmt.Errorf("invalid type id")
	}
	if id == base {
		return fmt.Errorf("type %s cannot be its own base", u.types[id].Name)
	}
	u.types[id].Base = base
	return nil
}

// SetInterfaces replaces the declared interfaces of a named type.
func (u *Universe) SetInterfaces(id TypeID, ifaces []TypeID) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.valid(id) {
		return fmt.Errorf("invalid type id")
	}
	for _, iface := range ifaces {
		if !u.valid(iface) || u.types[iface].Kind != KindInterface {
			return fmt.Errorf("type %s: %s is not an interface", u.types[id].Name, u.nameOfLocked(iface))
		}
	}
	u.types[id].Interfaces = append([]TypeID(nil), ifaces...)
	return nil
}

// Array interns the array type of elem with the given rank.
func (u *Universe) Array(elem TypeID, rank uint32) TypeID {
	if rank == 0 {
		panic("typesys: array rank must be positive")
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	e := u.mustType(elem)
	key := typeKey{Kind: KindArray, Elem: elem, Rank: rank}
	if id, ok := u.index[key]; ok {
		return id
	}
	name := e.Name + "[" + strings.Repeat(",", int(rank-1)) + "]"
	id := u.addType(Type{Kind: KindArray, Name: name, Module: e.Module, Elem: elem, Rank: rank, Base: u.wellKnown[WellKnownArray]})
	u.index[key] = id
	return id
}

// Pointer interns the unmanaged pointer type to elem.
func (u *Universe) Pointer(elem TypeID) TypeID {
	u.mu.Lock()
	defer u.mu.Unlock()
	e := u.mustType(elem)
	key := typeKey{Kind: KindPointer, Elem: elem}
	if id, ok := u.index[key]; ok {
		return id
	}
	id := u.addType(Type{Kind: KindPointer, Name: e.Name + "*", Module: e.Module, Elem: elem})
	u.index[key] = id
	return id
}

// Instantiate interns def instantiated over args.
func (u *Universe) Instantiate(def TypeID, args ...TypeID) (TypeID, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.valid(def) {
		return NoTypeID, fmt.Errorf("invalid generic definition %d", def)
	}
	d := u.types[def]
	if !d.IsGenericDefinition() {
		return NoTypeID, fmt.Errorf("%s is not a generic type definition", d.Name)
	}
	if len(args) != d.GenericArity {
		return NoTypeID, fmt.Errorf("%s expects %d type arguments, got %d", d.Name, d.GenericArity, len(args))
	}
	var sb strings.Builder
	names := make([]string, len(args))
	for i, a := range args {
		if !u.valid(a) {
			return NoTypeID, fmt.Errorf("%s: invalid type argument %d", d.Name, a)
		}
		sb.WriteString(strconv.FormatUint(uint64(a), 36))
		sb.WriteByte(',')
		names[i] = u.types[a].Name
	}
	key := typeKey{Kind: d.Kind, Def: def, Args: sb.String()}
	if id, ok := u.index[key]; ok {
		return id, nil
	}
	id := u.addType(Type{
		Kind:       d.Kind,
		Name:       d.Name + "<" + strings.Join(names, ",") + ">",
		Module:     d.Module,
		Base:       d.Base,
		Definition: def,
		Args:       append([]TypeID(nil), args...),
		Interfaces: append([]TypeID(nil), d.Interfaces...),
	})
	u.index[key] = id
	return id, nil
}

// Type returns the description of id.
func (u *Universe) Type(id TypeID) (Type, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if !u.valid(id) {
		return Type{}, false
	}
	return u.types[id], true
}

// MustType panics when id is invalid.
func (u *Universe) MustType(id TypeID) Type {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.mustType(id)
}

func (u *Universe) mustType(id TypeID) Type {
	if !u.valid(id) {
		panic("typesys: invalid TypeID")
	}
	return u.types[id]
}

func (u *Universe) valid(id TypeID) bool {
	return id != NoTypeID && int(id) < len(u.types)
}

// Lookup finds a named type, including instantiations by their display name.
func (u *Universe) Lookup(name string) (TypeID, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if id, ok := u.byName[name]; ok {
		return id, true
	}
	for i := 1; i < len(u.types); i++ {
		if u.types[i].Name == name {
			return TypeID(i), true
		}
	}
	return NoTypeID, false
}

// Types returns every type ID in definition order.
func (u *Universe) Types() []TypeID {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]TypeID, 0, len(u.types)-1)
	for i := 1; i < len(u.types); i++ {
		out = append(out, TypeID(i))
	}
	return out
}

// BaseType returns the base of t, or NoTypeID.
func (u *Universe) BaseType(t TypeID) TypeID { return u.MustType(t).Base }

// IsValueType reports whether t is a value type.
func (u *Universe) IsValueType(t TypeID) bool { return u.MustType(t).IsValueType() }

// IsInstantiated reports whether t is a generic instantiation.
func (u *Universe) IsInstantiated(t TypeID) bool { return u.MustType(t).IsInstantiated() }

// TypeDefinition returns the generic definition of an instantiation, or t
// itself.
func (u *Universe) TypeDefinition(t TypeID) TypeID {
	tt := u.MustType(t)
	if tt.IsInstantiated() {
		return tt.Definition
	}
	return t
}

// DerivesFrom reports whether base appears on t's base chain, t included.
func (u *Universe) DerivesFrom(t, base TypeID) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	for steps := 0; u.valid(t) && steps < len(u.types); steps++ {
		if t == base {
			return true
		}
		t = u.types[t].Base
	}
	return false
}

// DefineMethod declares a method on owner. Overloads are not modelled: a
// name is unique per owner.
func (u *Universe) DefineMethod(owner TypeID, name string, sig Signature, virtual bool) (MethodID, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.valid(owner) {
		return NoMethodID, fmt.Errorf("method %s: invalid owner %d", name, owner)
	}
	if sig.Length < 0 {
		return NoMethodID, fmt.Errorf("method %s: negative signature length", name)
	}
	if _, dup := u.mindex[methodKey{Owner: owner, Name: name}]; dup {
		return NoMethodID, fmt.Errorf("method %s.%s already defined", u.types[owner].Name, name)
	}
	return u.addMethod(Method{Name: name, Owner: owner, Signature: sig, Virtual: virtual}), nil
}

// Method returns the description of m.
func (u *Universe) Method(m MethodID) (Method, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if m == NoMethodID || int(m) >= len(u.methods) {
		return Method{}, false
	}
	return u.methods[m], true
}

// MustMethod panics when m is invalid.
func (u *Universe) MustMethod(m MethodID) Method {
	mm, ok := u.Method(m)
	if !ok {
		panic("typesys: invalid MethodID")
	}
	return mm
}

// Signature returns the signature of m.
func (u *Universe) Signature(m MethodID) Signature { return u.MustMethod(m).Signature }

// OwningType returns the type that declares m.
func (u *Universe) OwningType(m MethodID) TypeID { return u.MustMethod(m).Owner }

// FindMethod looks a method up by owner and name.
func (u *Universe) FindMethod(owner TypeID, name string) (MethodID, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	m, ok := u.mindex[methodKey{Owner: owner, Name: name}]
	return m, ok
}

// MethodsOf returns the methods declared on owner in definition order.
func (u *Universe) MethodsOf(owner TypeID) []MethodID {
	u.mu.RLock()
	defer u.mu.RUnlock()
	var out []MethodID
	for i := 1; i < len(u.methods); i++ {
		if u.methods[i].Owner == owner {
			out = append(out, MethodID(i))
		}
	}
	return out
}

// KnownMethod returns a method the runtime guarantees to exist. A missing
// one means the core library is broken.
func (u *Universe) KnownMethod(owner TypeID, name string) MethodID {
	m, ok := u.FindMethod(owner, name)
	if !ok {
		panic(fmt.Sprintf("typesys: known method %s.%s is missing", u.MustType(owner).Name, name))
	}
	return m
}

// MethodName returns "Owner.Name" for m.
func (u *Universe) MethodName(m MethodID) string {
	mm := u.MustMethod(m)
	return u.MustType(mm.Owner).Name + "." + mm.Name
}

// MethodForInstantiatedType returns the method of inst that corresponds to
// m, a method of inst's generic definition.
func (u *Universe) MethodForInstantiatedType(m MethodID, inst TypeID) MethodID {
	mm := u.MustMethod(m)
	u.mu.Lock()
	defer u.mu.Unlock()
	it := u.mustType(inst)
	if !it.IsInstantiated() {
		panic(fmt.Sprintf("typesys: %s is not an instantiated type", it.Name))
	}
	if it.Definition != mm.Owner {
		panic(fmt.Sprintf("typesys: %s is not declared on the definition of %s", mm.Name, it.Name))
	}
	key := instKey{Method: m, Owner: inst}
	if id, ok := u.minst[key]; ok {
		return id
	}
	id := u.addMethod(Method{
		Name:       mm.Name,
		Owner:      inst,
		Signature:  mm.Signature,
		Virtual:    mm.Virtual,
		Definition: m,
	})
	u.minst[key] = id
	return id
}

// DefineDelegate registers the Invoke signature and thunk set of a delegate
// type definition. Thunks must be declared on def.
func (u *Universe) DefineDelegate(def TypeID, sig Signature, thunks map[ThunkKind]MethodID) error {
	if !u.DerivesFrom(def, u.WellKnownType(WellKnownMulticastDelegate)) {
		return fmt.Errorf("%s does not derive from %s", u.nameOf(def), WellKnownMulticastDelegate)
	}
	if u.IsInstantiated(def) {
		return fmt.Errorf("%s: delegate families are registered on type definitions", u.nameOf(def))
	}
	cp := make(map[ThunkKind]MethodID, len(thunks))
	for kind, m := range thunks {
		mm, ok := u.Method(m)
		if !ok {
			return fmt.Errorf("%s: %v thunk is not a method", u.nameOf(def), kind)
		}
		if mm.Owner != def {
			return fmt.Errorf("%s: %v thunk %s is declared on another type", u.nameOf(def), kind, mm.Name)
		}
		cp[kind] = m
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, dup := u.delegates[def]; dup {
		return fmt.Errorf("%s: delegate family already registered", u.types[def].Name)
	}
	u.delegates[def] = DelegateInfo{Signature: sig, Thunks: cp}
	return nil
}

// DelegateInfo returns the family registered for a delegate type definition.
func (u *Universe) DelegateInfo(def TypeID) (DelegateInfo, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	d, ok := u.delegates[def]
	return d, ok
}

func (u *Universe) nameOfLocked(t TypeID) string {
	if u.valid(t) {
		return u.types[t].Name
	}
	return fmt.Sprintf("TypeID(%d)", t)
}

func (u *Universe) nameOf(t TypeID) string {
	if tt, ok := u.Type(t); ok {
		return tt.Name
	}
	return fmt.Sprintf("TypeID(%d)", t)
}
