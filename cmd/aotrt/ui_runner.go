package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"aotrt/internal/linker"
	"aotrt/internal/pipeline"
	"aotrt/internal/project"
	"aotrt/internal/typesys"
	"aotrt/internal/ui"
)

type linkOutcome struct {
	result *linker.Result
	err    error
}

// runLinkWithUI links m in the background while a progress view follows the
// event stream.
func runLinkWithUI(ctx context.Context, m *project.Manifest, opts linker.Options) (*linker.Result, error) {
	events := make(chan pipeline.Event, 256)
	outcomeCh := make(chan linkOutcome, 1)

	go func() {
		opts.Sink = pipeline.ChannelSink{Ch: events}
		res, err := linker.Link(ctx, m, opts)
		outcomeCh <- linkOutcome{result: res, err: err}
		close(events)
	}()

	title := "linking " + m.Config.Package.Name
	model := ui.NewProgressModel(title, moduleNames(m), events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}

func moduleNames(m *project.Manifest) []string {
	names := make([]string, 0, len(m.Config.Modules)+1)
	names = append(names, typesys.CoreModule)
	for _, mod := range m.Config.Modules {
		if mod.Name != typesys.CoreModule {
			names = append(names, mod.Name)
		}
	}
	return names
}
