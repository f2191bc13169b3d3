package trace

import (
	"bytes"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"
)

var (
	seqCounter  atomic.Uint64
	spanCounter atomic.Uint64
)

// NextSeq returns the next global sequence number.
func NextSeq() uint64 { return seqCounter.Add(1) }

func nextSpanID() uint64 { return spanCounter.Add(1) }

// goroutineID parses the "goroutine N [" prefix of the current stack.
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b, ok := bytes.CutPrefix(b, []byte("goroutine "))
	if !ok {
		return 0
	}
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// Attrs place an event inside a link: the pipeline stage and the module
// being worked on. Empty fields are omitted from events.
type Attrs struct {
	Stage  string
	Module string
}

func (a Attrs) merge(extra map[string]string) map[string]string {
	if a.Stage == "" && a.Module == "" {
		return extra
	}
	out := make(map[string]string, len(extra)+2)
	for k, v := range extra {
		out[k] = v
	}
	if a.Stage != "" {
		out["stage"] = a.Stage
	}
	if a.Module != "" {
		out["module"] = a.Module
	}
	return out
}

// Span is an open begin/end pair. A span that is not recorded (tracer
// off, or scope below the level) is inert.
type Span struct {
	tracer  Tracer
	id      uint64
	parent  uint64
	gid     uint64
	scope   Scope
	name    string
	attrs   Attrs
	started time.Time
	extra   map[string]string
}

// Begin opens a span under parent and emits its begin event. The span
// inherits the parent's stage and module.
func Begin(t Tracer, scope Scope, name string, parent SpanContext) *Span {
	if t == nil || !t.Enabled() || !t.Level().ShouldEmit(scope) {
		return &Span{tracer: Nop, attrs: parent.Attrs}
	}
	s := &Span{
		tracer:  t,
		id:      nextSpanID(),
		parent:  parent.SpanID,
		gid:     goroutineID(),
		scope:   scope,
		name:    name,
		attrs:   parent.Attrs,
		started: time.Now(),
	}
	t.Emit(&Event{
		Time:     s.started,
		Seq:      NextSeq(),
		Kind:     KindSpanBegin,
		Scope:    scope,
		SpanID:   s.id,
		ParentID: s.parent,
		GID:      s.gid,
		Name:     name,
		Extra:    s.attrs.merge(nil),
	})
	return s
}

// End emits the end event with detail and returns the span duration.
// Extras set with WithExtra travel on the end event only.
func (s *Span) End(detail string) time.Duration {
	if !s.recording() {
		return 0
	}
	dur := time.Since(s.started)
	s.tracer.Emit(&Event{
		Time:     time.Now(),
		Seq:      NextSeq(),
		Kind:     KindSpanEnd,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parent,
		GID:      s.gid,
		Name:     s.name,
		Detail:   detail,
		Extra:    s.attrs.merge(s.extra),
	})
	return dur
}

// WithExtra records a key for the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if !s.recording() {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string)
	}
	s.extra[key] = value
	return s
}

// ID is zero for spans that are not recorded.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

func (s *Span) recording() bool {
	return s != nil && s.id != 0 && s.tracer != nil && s.tracer.Enabled()
}
