package delegate

import (
	"errors"
	"testing"

	"aotrt/internal/contract"
	"aotrt/internal/symbols"
	"aotrt/internal/typesys"
)

type world struct {
	u     *typesys.Universe
	nodes *symbols.Factory

	action      typesys.TypeID // Action(): Invoke takes no parameters
	funcDef     typesys.TypeID // Func<T>(T)
	funcObject  typesys.TypeID
	funcOpen    typesys.MethodID
	actionOpen  typesys.MethodID
	actionClose typesys.MethodID

	point       typesys.TypeID
	pointMethod typesys.MethodID // instance, value-type owner
	fooMethod   typesys.MethodID // instance, reference-type owner
	staticNone  typesys.MethodID // static ()
	staticOne   typesys.MethodID // static (x): extension-style binding
	staticThree typesys.MethodID
}

func newWorld(t *testing.T) *world {
	t.Helper()
	u := typesys.NewUniverse()
	w := &world{u: u, nodes: symbols.NewFactory(u)}
	md := u.WellKnownType(typesys.WellKnownMulticastDelegate)
	check := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	var err error

	w.action, err = u.DefineType(typesys.TypeSpec{Name: "App.Action", Module: "app", Kind: typesys.KindClass, Base: md})
	check(err)
	w.actionOpen, err = u.DefineMethod(w.action, "InvokeOpenStaticThunk", typesys.Signature{}, false)
	check(err)
	w.actionClose, err = u.DefineMethod(w.action, "InvokeClosedStaticThunk", typesys.Signature{}, false)
	check(err)
	check(u.DefineDelegate(w.action, typesys.Signature{}, map[typesys.ThunkKind]typesys.MethodID{
		typesys.OpenStaticThunk:   w.actionOpen,
		typesys.ClosedStaticThunk: w.actionClose,
	}))

	w.funcDef, err = u.DefineType(typesys.TypeSpec{Name: "App.Func", Module: "app", Kind: typesys.KindClass, Base: md, GenericArity: 1})
	check(err)
	w.funcOpen, err = u.DefineMethod(w.funcDef, "InvokeOpenStaticThunk", typesys.Signature{Length: 1}, false)
	check(err)
	funcClosed, err := u.DefineMethod(w.funcDef, "InvokeClosedStaticThunk", typesys.Signature{Length: 1}, false)
	check(err)
	check(u.DefineDelegate(w.funcDef, typesys.Signature{Length: 1}, map[typesys.ThunkKind]typesys.MethodID{
		typesys.OpenStaticThunk:   w.funcOpen,
		typesys.ClosedStaticThunk: funcClosed,
	}))
	w.funcObject, err = u.Instantiate(w.funcDef, u.WellKnownType(typesys.WellKnownObject))
	check(err)

	w.point, err = u.DefineType(typesys.TypeSpec{Name: "App.Point", Module: "app", Kind: typesys.KindStruct, Base: u.WellKnownType(typesys.WellKnownValueType)})
	check(err)
	w.pointMethod, err = u.DefineMethod(w.point, "ToString", typesys.Signature{}, true)
	check(err)
	foo, err := u.DefineType(typesys.TypeSpec{Name: "App.Foo", Module: "app", Kind: typesys.KindClass, Base: u.WellKnownType(typesys.WellKnownObject)})
	check(err)
	w.fooMethod, err = u.DefineMethod(foo, "Bar", typesys.Signature{}, true)
	check(err)
	util, err := u.DefineType(typesys.TypeSpec{Name: "App.Util", Module: "app", Kind: typesys.KindClass, Base: u.WellKnownType(typesys.WellKnownObject)})
	check(err)
	w.staticNone, err = u.DefineMethod(util, "Run", typesys.Signature{IsStatic: true}, false)
	check(err)
	w.staticOne, err = u.DefineMethod(util, "RunOn", typesys.Signature{Length: 1, IsStatic: true}, false)
	check(err)
	w.staticThree, err = u.DefineMethod(util, "RunMany", typesys.Signature{Length: 3, IsStatic: true}, false)
	check(err)
	return w
}

func (w *world) ctor(name string) *symbols.MethodNode {
	del := w.u.WellKnownType(typesys.WellKnownDelegate)
	return w.nodes.MethodEntrypoint(w.u.KnownMethod(del, name), false)
}

func mustCreate(t *testing.T, w *world, del typesys.TypeID, target typesys.MethodID) CreationInfo {
	t.Helper()
	info, err := Create(w.u, w.nodes, del, target)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return info
}

func TestOpenStaticDelegate(t *testing.T) {
	w := newWorld(t)
	info := mustCreate(t, w, w.action, w.staticNone)
	if info.Kind() != KindOpenStatic {
		t.Fatalf("kind = %v", info.Kind())
	}
	if info.Thunk != w.nodes.MethodEntrypoint(w.actionOpen, false) {
		t.Fatalf("thunk = %v", info.Thunk)
	}
	if info.Constructor != w.ctor(typesys.InitializeClosedStaticThunk) {
		t.Fatalf("constructor = %v", info.Constructor)
	}
	if info.Target != w.nodes.MethodEntrypoint(w.staticNone, false) {
		t.Fatalf("target = %v", info.Target)
	}
}

func TestClosedStaticDelegate(t *testing.T) {
	w := newWorld(t)
	info := mustCreate(t, w, w.action, w.staticOne)
	if info.Kind() != KindClosedStatic {
		t.Fatalf("kind = %v", info.Kind())
	}
	if info.Thunk != w.nodes.MethodEntrypoint(w.actionClose, false) {
		t.Fatalf("thunk = %v", info.Thunk)
	}
	if info.Constructor != w.ctor(typesys.InitializeClosedStaticThunk) {
		t.Fatal("open and closed static share one constructor")
	}
}

func TestStaticThunkFollowsInstantiation(t *testing.T) {
	w := newWorld(t)
	info := mustCreate(t, w, w.funcObject, w.staticOne)
	if info.Kind() != KindOpenStatic {
		t.Fatalf("kind = %v", info.Kind())
	}
	m := w.u.MustMethod(info.Thunk.Method)
	if m.Owner != w.funcObject || m.Definition != w.funcOpen {
		t.Fatalf("thunk not re-resolved under the instantiation: %+v", m)
	}
}

func TestClosedInstanceOnValueTypeUsesUnboxingStub(t *testing.T) {
	w := newWorld(t)
	info := mustCreate(t, w, w.action, w.pointMethod)
	if info.Kind() != KindClosedInstance || !info.UsesUnboxingStub() {
		t.Fatalf("expected unboxing closed-instance record, got %v", info)
	}
	if info.Target != w.nodes.MethodEntrypoint(w.pointMethod, true) {
		t.Fatal("target must be the unboxing stub")
	}
	if info.Thunk != nil {
		t.Fatal("instance delegates have no thunk")
	}
	if info.Constructor != w.ctor(typesys.InitializeClosedInstance) {
		t.Fatalf("constructor = %v", info.Constructor)
	}
}

func TestClosedInstanceOnReferenceType(t *testing.T) {
	w := newWorld(t)
	info := mustCreate(t, w, w.action, w.fooMethod)
	if info.UsesUnboxingStub() || info.Thunk != nil {
		t.Fatalf("unexpected record %v", info)
	}
	if info.Target != w.nodes.MethodEntrypoint(w.fooMethod, false) {
		t.Fatal("target must be the plain entry point")
	}
}

func TestOpenInstanceIsNotImplemented(t *testing.T) {
	w := newWorld(t)
	info, err := Create(w.u, w.nodes, w.funcObject, w.fooMethod)
	if !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
	if info != (CreationInfo{}) {
		t.Fatal("no record may be produced")
	}
	var v *contract.Violation
	if errors.As(err, &v) {
		t.Fatal("unsupported shape is not a contract violation")
	}
}

func TestArityMismatchIsViolation(t *testing.T) {
	w := newWorld(t)
	defer func() {
		if _, ok := recover().(*contract.Violation); !ok {
			t.Fatal("expected a contract violation")
		}
	}()
	_, _ = Create(w.u, w.nodes, w.action, w.staticThree)
}

func TestUnregisteredFamilyIsViolation(t *testing.T) {
	w := newWorld(t)
	defer func() {
		if _, ok := recover().(*contract.Violation); !ok {
			t.Fatal("expected a contract violation")
		}
	}()
	_, _ = Create(w.u, w.nodes, w.point, w.staticNone)
}

func TestEqualityAndHash(t *testing.T) {
	w := newWorld(t)
	a := mustCreate(t, w, w.action, w.staticNone)
	b := mustCreate(t, w, w.action, w.staticNone)
	if !a.Equal(b) || a != b || a.Hash() != b.Hash() {
		t.Fatal("records over the same triple must be equal and hash alike")
	}

	variants := []CreationInfo{
		{Constructor: w.ctor(typesys.InitializeClosedInstance), Target: a.Target, Thunk: a.Thunk},
		{Constructor: a.Constructor, Target: w.nodes.MethodEntrypoint(w.staticOne, false), Thunk: a.Thunk},
		{Constructor: a.Constructor, Target: a.Target, Thunk: w.nodes.MethodEntrypoint(w.actionClose, false)},
		{Constructor: a.Constructor, Target: a.Target},
	}
	for i, v := range variants {
		if a.Equal(v) {
			t.Errorf("variant %d compares equal", i)
		}
		if a.Hash() == v.Hash() {
			t.Errorf("variant %d hashes alike", i)
		}
	}
}
