package ui

import (
	"errors"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"aotrt/internal/pipeline"
)

func newModel(modules ...string) *progressModel {
	return NewProgressModel("link demo", modules, make(chan pipeline.Event)).(*progressModel)
}

func TestApplyEventTracksModules(t *testing.T) {
	m := newModel("corelib", "app")
	m.applyEvent(pipeline.Event{Stage: pipeline.StageEmit, Status: pipeline.StatusWorking})
	if m.stageLabel != "emitting" {
		t.Fatalf("stage label = %q", m.stageLabel)
	}
	m.applyEvent(pipeline.Event{Module: "app", Stage: pipeline.StageEmit, Status: pipeline.StatusWorking})
	if m.items[1].status != "emitting" || m.items[0].status != "queued" {
		t.Fatalf("items = %+v", m.items)
	}
	m.applyEvent(pipeline.Event{Module: "app", Stage: pipeline.StageFreeze, Status: pipeline.StatusDone})
	if m.items[1].status != "done" {
		t.Fatalf("app = %+v", m.items[1])
	}
	if got := m.percent(); got <= 0.5 || got >= 1 {
		t.Fatalf("percent = %v", got)
	}
	m.applyEvent(pipeline.Event{Module: "unknown", Stage: pipeline.StageEmit, Status: pipeline.StatusWorking})
	if len(m.items) != 2 {
		t.Fatal("unknown modules must be ignored")
	}
}

func TestViewShowsFailure(t *testing.T) {
	m := newModel("app")
	m.applyEvent(pipeline.Event{Stage: pipeline.StageLayout, Status: pipeline.StatusError, Err: errors.New("cyclic base types")})
	m.done = true
	view := m.View()
	for _, want := range []string{"failed:", "app", "cyclic base types"} {
		if !strings.Contains(view, want) {
			t.Errorf("view lacks %q:\n%s", want, view)
		}
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in    string
		width int
		want  string
	}{
		{"corelib", 20, "corelib"},
		{"a-very-long-module-name", 10, "a-ve..."},
		{"abcdef", 3, "abc"},
		{"x", 0, "x"},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.width); got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.width, got, tc.want)
		}
	}
	for _, width := range []int{4, 7, 10} {
		if got := truncate("模块模块模块模块", width); runewidth.StringWidth(got) > width {
			t.Errorf("truncate to %d cells gave %q", width, got)
		}
	}
}
