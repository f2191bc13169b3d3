package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"aotrt/internal/linker"
)

var delegatesCmd = &cobra.Command{
	Use:   "delegates [dir]",
	Short: "Print the delegate construction records of every [[bind]]",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cmd.Flags().GetString("format")
		if err != nil {
			return err
		}
		format = strings.ToLower(format)
		if format != "pretty" && format != "json" {
			return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
		}
		res, err := linkProject(cmd, args)
		if err != nil {
			return err
		}
		if format == "json" {
			return renderBindsJSON(cmd.OutOrStdout(), res.Binds)
		}
		renderBindsPretty(cmd.OutOrStdout(), res.Binds)
		return nil
	},
}

func init() {
	delegatesCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

type bindPayload struct {
	Delegate    string `json:"delegate"`
	Target      string `json:"target"`
	Kind        string `json:"kind,omitempty"`
	Constructor string `json:"constructor,omitempty"`
	Entry       string `json:"entry,omitempty"`
	Thunk       string `json:"thunk,omitempty"`
	Unboxing    bool   `json:"unboxing,omitempty"`
	Error       string `json:"error,omitempty"`
}

func bindPayloadOf(b linker.Bind) bindPayload {
	p := bindPayload{Delegate: b.Delegate, Target: b.Target}
	if b.Err != nil {
		p.Error = b.Err.Error()
		return p
	}
	p.Kind = b.Info.Kind().String()
	p.Constructor = b.Info.Constructor.Name()
	p.Entry = b.Info.Target.Name()
	if b.Info.Thunk != nil {
		p.Thunk = b.Info.Thunk.Name()
	}
	p.Unboxing = b.Info.UsesUnboxingStub()
	return p
}

func renderBindsJSON(out io.Writer, binds []linker.Bind) error {
	payload := make([]bindPayload, len(binds))
	for i, b := range binds {
		payload[i] = bindPayloadOf(b)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func renderBindsPretty(out io.Writer, binds []linker.Bind) {
	kind := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgYellow).SprintFunc()
	for _, b := range binds {
		p := bindPayloadOf(b)
		fmt.Fprintf(out, "%s <- %s\n", p.Delegate, p.Target)
		if p.Error != "" {
			fmt.Fprintf(out, "    %s %s\n", bad("unsupported"), p.Error)
			continue
		}
		fmt.Fprintf(out, "    %s\n", kind(p.Kind))
		row(out, "constructor", p.Constructor)
		entry := p.Entry
		if p.Unboxing {
			entry += " (unboxing stub)"
		}
		row(out, "target", entry)
		if p.Thunk != "" {
			row(out, "thunk", p.Thunk)
		}
	}
}
