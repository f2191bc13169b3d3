// Package linker lowers a project manifest into a frozen descriptor space
// and the delegate creation records the manifest asks for.
package linker

import (
	"context"
	"fmt"
	"time"

	"aotrt/internal/delegate"
	"aotrt/internal/imagecache"
	"aotrt/internal/layout"
	"aotrt/internal/observ"
	"aotrt/internal/pipeline"
	"aotrt/internal/project"
	"aotrt/internal/rtservice"
	"aotrt/internal/symbols"
	"aotrt/internal/trace"
	"aotrt/internal/typedesc"
	"aotrt/internal/typesys"
	"aotrt/internal/version"
)

// Options tunes a link.
type Options struct {
	// Jobs bounds worker goroutines; zero uses [package].jobs, and zero
	// there means unbounded.
	Jobs  int
	Sink  pipeline.ProgressSink
	Timer *observ.Timer
	// Cache, when set, short-circuits emit and freeze for a manifest that
	// was linked before.
	Cache *imagecache.Cache
}

// Bind is the outcome of one [[bind]] entry.
type Bind struct {
	Delegate string
	Target   string
	delegate.Result
}

// Result is a linked project.
type Result struct {
	Manifest *project.Manifest
	Target   layout.Target
	Modules  []string
	Universe *typesys.Universe
	Symbols  *symbols.Factory
	Space    *typedesc.Space
	Services *rtservice.Table
	// Types maps every type to its canonical descriptor.
	Types   map[typesys.TypeID]typedesc.Addr
	Binds   []Bind
	Timings pipeline.Timings
	Cached  bool
}

// Descriptor returns the canonical descriptor of a named type.
func (r *Result) Descriptor(name string) (typedesc.Descriptor, bool) {
	id, ok := r.Universe.Lookup(name)
	if !ok {
		return typedesc.Descriptor{}, false
	}
	a, ok := r.Types[id]
	if !ok {
		return typedesc.Descriptor{}, false
	}
	return r.Space.Descriptor(a), true
}

type linker struct {
	m    *project.Manifest
	opts Options
	jobs int

	target   layout.Target
	w        *world
	modules  []string
	order    []typesys.TypeID
	plans    map[typesys.TypeID]*typePlan
	byModule map[string][]*typePlan
	nodes    *symbols.Factory
	cached   *imagecache.Payload

	res *Result
}

// Link runs every stage over m. Tracing follows the tracer in ctx.
func Link(ctx context.Context, m *project.Manifest, opts Options) (*Result, error) {
	l := &linker{m: m, opts: opts, jobs: opts.Jobs}
	if l.jobs <= 0 {
		l.jobs = m.Config.Package.Jobs
	}
	l.res = &Result{Manifest: m}

	ctx, span := trace.StartSpan(ctx, trace.ScopeDriver, "link:"+m.Config.Package.Name)
	defer span.End("")

	stages := []struct {
		stage pipeline.Stage
		run   func(context.Context) error
	}{
		{pipeline.StageLoad, l.load},
		{pipeline.StageLayout, l.layout},
		{pipeline.StageEmit, l.emit},
		{pipeline.StageFreeze, l.freeze},
		{pipeline.StageDelegates, l.delegates},
	}
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := l.run(ctx, s.stage, s.run); err != nil {
			return nil, err
		}
	}
	return l.res, nil
}

func (l *linker) run(ctx context.Context, stage pipeline.Stage, fn func(context.Context) error) error {
	ctx, span := trace.StartSpan(trace.WithStage(ctx, string(stage)), trace.ScopePass, string(stage))
	idx := -1
	if l.opts.Timer != nil {
		idx = l.opts.Timer.Begin(string(stage))
	}
	pipeline.Emit(l.opts.Sink, pipeline.Event{Stage: stage, Status: pipeline.StatusWorking})
	start := time.Now()

	err := fn(ctx)

	elapsed := time.Since(start)
	l.res.Timings.Set(stage, elapsed)
	note := ""
	if stage == pipeline.StageFreeze && l.cached != nil {
		note = "cached"
	}
	if l.opts.Timer != nil {
		l.opts.Timer.End(idx, note)
	}
	status := pipeline.StatusDone
	if err != nil {
		status = pipeline.StatusError
		note = err.Error()
	}
	span.End(note)
	pipeline.Emit(l.opts.Sink, pipeline.Event{Stage: stage, Status: status, Err: err, Elapsed: elapsed})
	return stageErr(stage, "", err)
}

func (l *linker) moduleEvent(mod string, stage pipeline.Stage, status pipeline.Status, err error) {
	pipeline.Emit(l.opts.Sink, pipeline.Event{Module: mod, Stage: stage, Status: status, Err: err})
}

func (l *linker) load(context.Context) error {
	cfg := &l.m.Config
	l.target = layout.X86_64LinuxGNU()
	if cfg.Package.Target != "" {
		t, ok := layout.Lookup(cfg.Package.Target)
		if !ok {
			return fmt.Errorf("unknown target %q", cfg.Package.Target)
		}
		l.target = t
	}
	l.modules = []string{typesys.CoreModule}
	for _, m := range cfg.Modules {
		if m.Name != typesys.CoreModule {
			l.modules = append(l.modules, m.Name)
		}
	}
	w, err := buildWorld(cfg)
	if err != nil {
		return err
	}
	l.w = w
	l.res.Target = l.target
	l.res.Modules = l.modules
	l.res.Universe = w.u
	for _, mod := range l.modules {
		l.moduleEvent(mod, pipeline.StageLoad, pipeline.StatusQueued, nil)
	}
	return nil
}

func (l *linker) layout(ctx context.Context) error {
	order, err := orderTypes(l.w.u)
	if err != nil {
		return err
	}
	trace.Point(ctx, trace.ScopePass, "order", fmt.Sprintf("%d types", len(order)))
	plans, err := layoutTypes(l.w, order)
	if err != nil {
		return err
	}
	l.order = order
	l.plans = plans
	l.byModule = make(map[string][]*typePlan, len(l.modules))
	for _, id := range order {
		p := plans[id]
		l.byModule[p.module] = append(l.byModule[p.module], p)
	}
	return nil
}

func (l *linker) emit(ctx context.Context) error {
	l.nodes = symbols.NewFactory(l.w.u)
	l.res.Symbols = l.nodes
	if err := planSpecs(ctx, l.w, l.target, l.nodes, l.byModule, l.modules, l.jobs); err != nil {
		return err
	}

	var payload imagecache.Payload
	hit, err := l.opts.Cache.Get(l.cacheKey(), &payload)
	if err != nil {
		// A broken entry is relinked and overwritten.
		trace.Point(ctx, trace.ScopePass, "cache", err.Error())
	}
	if hit && payload.Target == l.target.Triple {
		l.cached = &payload
		for _, mod := range l.modules {
			l.moduleEvent(mod, pipeline.StageEmit, pipeline.StatusDone, nil)
		}
		return nil
	}

	b, drafts, err := l.draft()
	if err != nil {
		return err
	}
	table, err := l.services(drafts)
	if err != nil {
		return err
	}
	space, err := b.Freeze(table)
	if err != nil {
		return err
	}
	l.res.Space = space
	l.res.Services = table
	return nil
}

func (l *linker) freeze(ctx context.Context) error {
	if l.cached != nil {
		table, err := rtservice.Decode(l.cached.Services)
		if err != nil {
			return fmt.Errorf("cached services: %w", err)
		}
		space, err := typedesc.Load(l.target, l.cached.Images, table)
		if err != nil {
			return fmt.Errorf("cached images: %w", err)
		}
		l.res.Space = space
		l.res.Services = table
		l.res.Cached = true
	} else {
		if err := l.res.Services.Scan(l.res.Space); err != nil {
			return err
		}
		if l.opts.Cache != nil {
			enc, err := l.res.Services.Encode()
			if err != nil {
				return err
			}
			payload := &imagecache.Payload{
				Schema:   imagecache.SchemaVersion,
				Target:   l.target.Triple,
				Images:   l.res.Space.Images(),
				Services: enc,
			}
			if err := l.opts.Cache.Put(l.cacheKey(), payload); err != nil {
				trace.Point(ctx, trace.ScopePass, "cache", err.Error())
			}
		}
	}

	l.res.Types = make(map[typesys.TypeID]typedesc.Addr, len(l.plans))
	for _, id := range l.order {
		p := l.plans[id]
		d, ok := l.res.Space.Lookup(p.module, l.w.u.MustType(id).Name)
		if !ok {
			return fmt.Errorf("%s: descriptor missing from module %s", l.w.u.MustType(id).Name, p.module)
		}
		l.res.Types[id] = d.Addr()
	}
	for _, mod := range l.modules {
		l.moduleEvent(mod, pipeline.StageFreeze, pipeline.StatusDone, nil)
	}
	return nil
}

func (l *linker) delegates(ctx context.Context) error {
	cache := delegate.NewCache(l.w.u, l.nodes)
	results, err := cache.CreateAll(ctx, l.w.requests, l.jobs)
	if err != nil {
		return err
	}
	binds := l.m.Config.Binds
	l.res.Binds = make([]Bind, len(results))
	for i, r := range results {
		l.res.Binds[i] = Bind{Delegate: binds[i].Delegate, Target: binds[i].Target, Result: r}
	}
	return nil
}

// cacheKey binds cached images to the manifest and to the linker version
// that produced them.
func (l *linker) cacheKey() project.Digest {
	return project.Combine(l.m.Digest, project.HashBytes([]byte(version.Version)))
}
