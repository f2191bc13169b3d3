package trace

import (
	"fmt"
	"sync"
	"time"
)

// Heartbeat wraps a tracer and, every interval, reports which link stage
// is running and for how long. It learns the stage from the pass spans
// flowing through it, so it must be the tracer the linker sees:
//
//	hb := trace.StartHeartbeat(tracer, time.Second)
//	ctx = trace.WithTracer(ctx, hb)
//
// A heartbeat that keeps naming the same stage points at a stuck link.
type Heartbeat struct {
	Tracer

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	mu    sync.Mutex
	stage string
	since time.Time
	beats uint64
}

// StartHeartbeat starts beating over tracer. It returns nil when tracing
// is off or the interval is not positive; a nil *Heartbeat is safe to Stop.
func StartHeartbeat(tracer Tracer, interval time.Duration) *Heartbeat {
	if tracer == nil || !tracer.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{
		Tracer:   tracer,
		interval: interval,
		stopCh:   make(chan struct{}),
		since:    time.Now(),
	}
	h.wg.Add(1)
	go h.run()
	return h
}

// Emit forwards ev and tracks pass spans.
func (h *Heartbeat) Emit(ev *Event) {
	if ev.Scope == ScopePass {
		h.mu.Lock()
		switch ev.Kind {
		case KindSpanBegin:
			h.stage, h.since = ev.Name, ev.Time
		case KindSpanEnd:
			if h.stage == ev.Name {
				h.stage, h.since = "", ev.Time
			}
		}
		h.mu.Unlock()
	}
	h.Tracer.Emit(ev)
}

// Close stops the heartbeat; the wrapped tracer is left open.
func (h *Heartbeat) Close() error {
	h.Stop()
	return nil
}

func (h *Heartbeat) run() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			h.Tracer.Emit(h.beat(now))
		case <-h.stopCh:
			return
		}
	}
}

func (h *Heartbeat) beat(now time.Time) *Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.beats++
	ev := &Event{
		Time:  now,
		Seq:   NextSeq(),
		Kind:  KindHeartbeat,
		Scope: ScopeDriver,
		GID:   goroutineID(),
		Name:  "heartbeat",
	}
	waited := now.Sub(h.since).Round(time.Millisecond)
	if h.stage == "" {
		ev.Detail = fmt.Sprintf("#%d idle for %v", h.beats, waited)
		return ev
	}
	ev.Detail = fmt.Sprintf("#%d in %s for %v", h.beats, h.stage, waited)
	ev.Extra = map[string]string{"stage": h.stage}
	return ev
}

// Stop ends the beat goroutine and waits for it.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.stopOnce.Do(func() {
		close(h.stopCh)
		h.wg.Wait()
	})
}
