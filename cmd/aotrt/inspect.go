package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"aotrt/internal/linker"
	"aotrt/internal/reflectstub"
	"aotrt/internal/typedesc"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [dir]",
	Short: "Dump the emitted type descriptors",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typeName, err := cmd.Flags().GetString("type")
		if err != nil {
			return err
		}
		res, err := linkProject(cmd, args)
		if err != nil {
			return err
		}
		return renderDescriptors(cmd.OutOrStdout(), res, typeName)
	},
}

func init() {
	inspectCmd.Flags().String("type", "", "only dump descriptors with this name")
}

type symbolAt struct {
	name string
	addr typedesc.Addr
}

// renderDescriptors prints every descriptor of every module image in
// address order, clones included. A non-empty filter keeps only
// descriptors with that name.
func renderDescriptors(out io.Writer, res *linker.Result, filter string) error {
	heading := color.New(color.Bold).SprintFunc()
	found := false
	for _, img := range res.Space.Images() {
		syms := make([]symbolAt, 0, len(img.Symbols))
		for name, a := range img.Symbols {
			if filter == "" || name == filter {
				syms = append(syms, symbolAt{name: name, addr: a})
			}
		}
		if len(syms) == 0 {
			continue
		}
		sort.Slice(syms, func(i, j int) bool { return syms[i].addr < syms[j].addr })
		fmt.Fprintf(out, "%s %s\n", heading("module "+img.Name), img.Base)
		for _, s := range syms {
			renderDescriptor(out, res, res.Space.Descriptor(s.addr))
		}
		found = true
	}
	if !found && filter != "" {
		return fmt.Errorf("no descriptor named %q", filter)
	}
	return nil
}

func renderDescriptor(out io.Writer, res *linker.Result, d typedesc.Descriptor) {
	name := color.New(color.FgCyan).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Fprintf(out, "  %s %s %v\n", name(d.Name()), dim(d.Addr().String()), d.Kind())
	row(out, "flags", describeFlags(d))
	row(out, "element", d.ElementType().String())
	row(out, "component size", fmt.Sprint(d.ComponentSize()))
	row(out, "base size", fmt.Sprint(d.BaseSize()))
	row(out, "hash", fmt.Sprintf("%#08x", d.HashCode()))
	row(out, "related", describeRelated(res, d))

	for i := 0; i < int(d.NumVTableSlots()); i++ {
		a := d.VTableSlot(i)
		target := a.String()
		if n, ok := res.Symbols.Resolve(a); ok {
			target = n.Name()
		}
		row(out, fmt.Sprintf("vtable[%d]", i), target)
	}
	for i, e := range d.InterfaceMap() {
		how := "direct"
		if e.Raw().IsIndirect() {
			how = "indirect"
		}
		row(out, fmt.Sprintf("interface[%d]", i), fmt.Sprintf("%s (%s)", e.InterfaceType().Name(), how))
	}
	if d.IsFinalizable() {
		a := d.FinalizerEntryPoint()
		target := a.String()
		if n, ok := res.Symbols.Resolve(a); ok {
			target = n.Name()
		}
		row(out, "finalizer", target)
	}
	if d.HasOptionalFields() {
		opt, err := d.OptionalFields()
		if err != nil {
			row(out, "optional", "corrupt: "+err.Error())
		} else {
			row(out, "rare", describeRare(opt.RareFlags))
			if opt.ValueTypeFieldPadding != 0 {
				row(out, "padding", fmt.Sprint(opt.ValueTypeFieldPadding))
			}
		}
	}
	if d.IsNullable() {
		row(out, "nullable", fmt.Sprintf("%s at +%d", d.NullableType().Name(), d.NullableValueOffset()))
	}
	row(out, "reflection", describeReflection(d))
}

// describeReflection reports what the runtime can answer about d without
// reflection metadata. Images carry none, so structural queries fail.
func describeReflection(d typedesc.Descriptor) string {
	typ := reflectstub.New(d)
	structural := []struct {
		name string
		call func() error
	}{
		{"Name", func() error { _, err := typ.Name(); return err }},
		{"BaseType", func() error { _, err := typ.BaseType(); return err }},
		{"ImplementedInterfaces", func() error { _, err := typ.ImplementedInterfaces(); return err }},
		{"DeclaredMembers", func() error { _, err := typ.DeclaredMembers(); return err }},
	}
	var missing []string
	for _, q := range structural {
		if err := q.call(); errors.Is(err, reflectstub.ErrMissingMetadata) {
			missing = append(missing, q.name)
		}
	}
	identity := fmt.Sprintf("hash %#08x", typ.Hash())
	if typ.IsGenericType() {
		identity += " generic"
	}
	if len(missing) == 0 {
		return identity
	}
	return fmt.Sprintf("%s; no metadata for %s", identity, strings.Join(missing, " "))
}

func row(out io.Writer, label, value string) {
	fmt.Fprintf(out, "    %s %s\n", runewidth.FillRight(label, 16), value)
}

func describeRelated(res *linker.Result, d typedesc.Descriptor) string {
	rel := d.RelatedType()
	target := rel.Resolve(res.Space)
	label := "none"
	if target != typedesc.NoAddr {
		label = res.Space.Descriptor(target).Name()
	}
	switch r := rel.(type) {
	case typedesc.BaseTypePointer:
		return "base " + label
	case typedesc.BaseTypeIndirectCell:
		return fmt.Sprintf("base %s via cell %s", label, r.Cell)
	case typedesc.CanonicalIndirectCell:
		return fmt.Sprintf("canonical %s via cell %s", label, r.Cell)
	case typedesc.ElementTypePointer:
		return "element " + label
	case typedesc.ElementTypeIndirectCell:
		return fmt.Sprintf("element %s via cell %s", label, r.Cell)
	default:
		return label
	}
}

var flagNames = []struct {
	flag typedesc.Flags
	name string
}{
	{typedesc.FlagHasFinalizer, "finalizer"},
	{typedesc.FlagIsInterface, "interface"},
	{typedesc.FlagIsValueType, "valuetype"},
	{typedesc.FlagHasPointers, "pointers"},
	{typedesc.FlagHasOptionalFields, "optional"},
	{typedesc.FlagIsGeneric, "generic"},
	{typedesc.FlagHasGenericVariance, "variance"},
	{typedesc.FlagRelatedTypeViaIndirectionCell, "indirect-related"},
	{typedesc.FlagIsRuntimeAllocated, "runtime-allocated"},
}

func describeFlags(d typedesc.Descriptor) string {
	f := d.Flags()
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

var rareNames = []struct {
	flag typedesc.RareFlags
	name string
}{
	{typedesc.RareHasCctor, "cctor"},
	{typedesc.RareIsNullable, "nullable"},
	{typedesc.RareSupportsCustomCastLogic, "custom-cast"},
	{typedesc.RareRequiresAlign8, "align8"},
	{typedesc.RareIsDynamicType, "dynamic"},
}

func describeRare(r typedesc.RareFlags) string {
	var parts []string
	for _, rn := range rareNames {
		if r.Has(rn.flag) {
			parts = append(parts, rn.name)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
