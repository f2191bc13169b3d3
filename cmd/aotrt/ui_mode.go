package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"aotrt/internal/pipeline"
)

// uiMode is the value of `link --ui`.
type uiMode string

const (
	uiModeAuto uiMode = "auto" // progress view on a terminal, nothing otherwise
	uiModeOn   uiMode = "on"
	uiModeOff  uiMode = "off"
	uiModeLog  uiMode = "log" // one line per module event, for CI logs
)

func readUIMode(value string) (uiMode, error) {
	switch m := uiMode(strings.TrimSpace(strings.ToLower(value))); m {
	case "":
		return uiModeAuto, nil
	case uiModeAuto, uiModeOn, uiModeOff, uiModeLog:
		return m, nil
	default:
		return "", fmt.Errorf("invalid --ui value %q (expected auto|on|off|log)", value)
	}
}

// progressKind is how a link reports progress.
type progressKind int

const (
	progressNone progressKind = iota
	progressTUI
	progressLog
)

// chooseProgress maps --ui and --quiet to a progress reporter. --quiet
// wins over everything; auto only draws the view on a terminal.
func chooseProgress(mode uiMode, quiet, tty bool) progressKind {
	if quiet {
		return progressNone
	}
	switch mode {
	case uiModeOn:
		return progressTUI
	case uiModeLog:
		return progressLog
	case uiModeAuto:
		if tty {
			return progressTUI
		}
	}
	return progressNone
}

// logSink writes module-level events as plain lines. Stage-wide events
// are skipped except failures.
type logSink struct {
	mu  sync.Mutex
	out io.Writer
}

func (s *logSink) OnEvent(ev pipeline.Event) {
	if ev.Module == "" && ev.Status != pipeline.StatusError {
		return
	}
	if ev.Status == pipeline.StatusQueued {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	subject := ev.Module
	if subject == "" {
		subject = "*"
	}
	line := fmt.Sprintf("%-9s %-16s %s", ev.Stage, subject, ev.Status)
	if ev.Err != nil {
		line += ": " + ev.Err.Error()
	}
	fmt.Fprintln(s.out, line)
}
