package testkit

import (
	"strings"
	"testing"

	"aotrt/internal/layout"
	"aotrt/internal/typedesc"
)

func TestCheckSpaceAcceptsWellFormedSpace(t *testing.T) {
	b := typedesc.NewBuilder(layout.X86_64LinuxGNU())
	core := b.Module("core")
	app := b.Module("app")
	object, err := core.Canonical(typedesc.DraftSpec{Name: "Object"})
	if err != nil {
		t.Fatal(err)
	}
	iface, err := core.Canonical(typedesc.DraftSpec{Name: "IThing", Flags: typedesc.FlagIsInterface})
	if err != nil {
		t.Fatal(err)
	}
	thing, err := app.Canonical(typedesc.DraftSpec{Name: "Thing", Interfaces: make([]*typedesc.Draft, 1)})
	if err != nil {
		t.Fatal(err)
	}
	thing.ImportBaseType(object)
	thing.SetInterface(0, iface)
	if _, err := core.Clone(thing); err != nil {
		t.Fatal(err)
	}
	if _, err := app.Parameterized(typedesc.ParameterizedSpec{DraftSpec: typedesc.DraftSpec{Name: "Thing[]"}, Element: thing, Shape: 1}); err != nil {
		t.Fatal(err)
	}
	space, err := b.Freeze(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := CheckSpace(space); err != nil {
		t.Fatalf("CheckSpace: %v", err)
	}
}

func TestCheckSpaceRejectsNil(t *testing.T) {
	if err := CheckSpace(nil); err == nil || !strings.Contains(err.Error(), "nil space") {
		t.Fatalf("err = %v", err)
	}
}
