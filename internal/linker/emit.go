package linker

import (
	"fmt"
	"sort"

	"fortio.org/safecast"

	"aotrt/internal/contract"
	"aotrt/internal/pipeline"
	"aotrt/internal/rtservice"
	"aotrt/internal/typedesc"
	"aotrt/internal/typesys"
)

type placed struct {
	draft *typedesc.Draft
	plan  *typePlan
}

// draft lays out every descriptor, then wires bases, interface maps and
// clones. Builder contract violations come back as errors.
func (l *linker) draft() (b *typedesc.Builder, drafts map[typesys.TypeID]*typedesc.Draft, err error) {
	defer contract.Recover(&err)
	u := l.w.u
	b = typedesc.NewBuilder(l.target)
	for _, mod := range l.modules {
		b.Module(mod)
	}
	drafts = make(map[typesys.TypeID]*typedesc.Draft, len(l.plans))
	all := make([]placed, 0, len(l.plans))

	for _, mod := range l.modules {
		l.moduleEvent(mod, pipeline.StageEmit, pipeline.StatusWorking, nil)
		mb := b.Module(mod)
		for _, p := range l.byModule[mod] {
			t := u.MustType(p.id)
			var d *typedesc.Draft
			switch {
			case t.Kind == typesys.KindArray || t.Kind == typesys.KindPointer:
				continue
			case t.IsGenericDefinition():
				d, err = mb.GenericDefinition(p.spec)
			default:
				d, err = mb.Canonical(p.spec)
			}
			if err != nil {
				l.moduleEvent(mod, pipeline.StageEmit, pipeline.StatusError, err)
				return nil, nil, stageErr(pipeline.StageEmit, mod, err)
			}
			drafts[p.id] = d
			all = append(all, placed{draft: d, plan: p})
		}
	}

	// Elements are interned before the arrays and pointers over them, so
	// TypeID order drafts every element first.
	var params []typesys.TypeID
	for id := range l.plans {
		if k := u.MustType(id).Kind; k == typesys.KindArray || k == typesys.KindPointer {
			params = append(params, id)
		}
	}
	sort.Slice(params, func(i, j int) bool { return params[i] < params[j] })
	for _, id := range params {
		p := l.plans[id]
		t := u.MustType(id)
		for _, mod := range append([]string{p.module}, p.extra...) {
			d, err := b.Module(mod).Parameterized(typedesc.ParameterizedSpec{
				DraftSpec: p.spec,
				Element:   drafts[t.Elem],
				Shape:     t.Rank,
			})
			if err != nil {
				return nil, nil, stageErr(pipeline.StageEmit, mod, err)
			}
			if mod == p.module {
				drafts[id] = d
			}
			all = append(all, placed{draft: d, plan: p})
		}
	}

	for _, pl := range all {
		d, p := pl.draft, pl.plan
		for i, iface := range p.ifaces {
			d.SetInterface(i, drafts[iface])
		}
		if d.Kind() == typedesc.KindParameterized {
			continue
		}
		base := u.MustType(p.id).Base
		if base == typesys.NoTypeID {
			continue
		}
		bd := drafts[base]
		if d.Kind() == typedesc.KindGenericTypeDefinition || bd.Module() != d.Module() {
			d.ImportBaseType(bd)
		} else {
			d.SetBaseType(bd)
		}
	}

	// Clones copy the interface map, so they come after wiring.
	for _, id := range l.order {
		p := l.plans[id]
		if p.cfg == nil {
			continue
		}
		for _, into := range p.cfg.CloneInto {
			d := drafts[id]
			if d.Kind() != typedesc.KindCanonical {
				return nil, nil, stageErr(pipeline.StageEmit, into, fmt.Errorf("%s: only canonical types can be cloned", d.Name()))
			}
			if _, err := b.Module(into).Clone(d); err != nil {
				return nil, nil, stageErr(pipeline.StageEmit, into, err)
			}
		}
	}

	for _, mod := range l.modules {
		l.moduleEvent(mod, pipeline.StageEmit, pipeline.StatusDone, nil)
	}
	return b, drafts, nil
}

// services builds the runtime side table for the drafted types.
func (l *linker) services(drafts map[typesys.TypeID]*typedesc.Draft) (*rtservice.Table, error) {
	table := rtservice.New()
	table.SetArrayBaseType(drafts[l.w.u.WellKnownType(typesys.WellKnownArray)].Addr())
	for _, id := range l.order {
		inner, ok := l.w.nullable[id]
		if !ok {
			continue
		}
		off, err := safecast.Conv[uint8](l.w.configs[id].Nullable.Offset)
		if err != nil {
			return nil, fmt.Errorf("%s: nullable offset: %w", l.w.u.MustType(id).Name, err)
		}
		table.SetNullable(drafts[id].Addr(), typedesc.NullableInfo{Type: drafts[inner].Addr(), ValueOffset: off})
	}
	return table, nil
}
