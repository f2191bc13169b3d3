package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"aotrt/internal/imagecache"
	"aotrt/internal/linker"
	"aotrt/internal/observ"
	"aotrt/internal/pipeline"
	"aotrt/internal/project"
)

var linkCmd = &cobra.Command{
	Use:   "link [dir]",
	Short: "Link the project and print a summary",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLink,
}

func init() {
	linkCmd.Flags().Bool("cache", false, "reuse frozen images from the user cache")
	linkCmd.Flags().Bool("drop-cache", false, "empty the image cache before linking")
	linkCmd.Flags().String("ui", "auto", "progress reporting (auto|on|off|log)")
	linkCmd.Flags().Int("jobs", 0, "max parallel workers (0=manifest or unbounded)")
}

// loadManifest finds aotrt.toml at or above the directory argument.
func loadManifest(args []string) (*project.Manifest, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	m, ok, err := project.Load(dir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no aotrt.toml found at or above %s", dir)
	}
	return m, nil
}

// linkProject runs the shared front half of every command: tracing, the
// manifest and a plain link without UI or cache.
func linkProject(cmd *cobra.Command, args []string) (*linker.Result, error) {
	cleanup, err := setupTracing(cmd)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	m, err := loadManifest(args)
	if err != nil {
		return nil, err
	}
	return linker.Link(cmd.Context(), m, linker.Options{})
}

func runLink(cmd *cobra.Command, args []string) error {
	useCache, err := cmd.Flags().GetBool("cache")
	if err != nil {
		return err
	}
	dropCache, err := cmd.Flags().GetBool("drop-cache")
	if err != nil {
		return err
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return err
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return err
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return err
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return err
	}

	cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	m, err := loadManifest(args)
	if err != nil {
		return err
	}

	opts := linker.Options{Jobs: jobs}
	if showTimings {
		opts.Timer = observ.NewTimer()
	}
	if useCache || dropCache {
		cache, err := imagecache.Open("aotrt")
		if err != nil {
			return err
		}
		if dropCache {
			if err := cache.DropAll(); err != nil {
				return err
			}
		}
		if useCache {
			opts.Cache = cache
		}
	}

	var res *linker.Result
	switch chooseProgress(mode, quiet, isTerminal(os.Stdout)) {
	case progressTUI:
		res, err = runLinkWithUI(cmd.Context(), m, opts)
	case progressLog:
		opts.Sink = &logSink{out: cmd.ErrOrStderr()}
		res, err = linker.Link(cmd.Context(), m, opts)
	default:
		res, err = linker.Link(cmd.Context(), m, opts)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !quiet {
		printLinkSummary(out, res)
	}
	if showTimings {
		printStageTimings(out, res.Timings)
		fmt.Fprint(out, opts.Timer.Summary())
	}
	return nil
}

func printLinkSummary(out io.Writer, res *linker.Result) {
	ok := color.New(color.FgGreen, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	unsupported := 0
	for _, b := range res.Binds {
		if b.Err != nil {
			unsupported++
		}
	}
	state := ""
	if res.Cached {
		state = dim(" (cached)")
	}
	fmt.Fprintf(out, "%s %s for %s%s\n", ok("linked"), res.Manifest.Config.Package.Name, res.Target.Triple, state)
	for _, img := range res.Space.Images() {
		fmt.Fprintf(out, "  %-16s %s  %d bytes\n", img.Name, img.Base, len(img.Data))
	}
	fmt.Fprintf(out, "  %d types, %d delegate records", len(res.Types), len(res.Binds)-unsupported)
	if unsupported > 0 {
		fmt.Fprintf(out, ", %d unsupported", unsupported)
	}
	fmt.Fprintln(out)
}

func printStageTimings(out io.Writer, timings pipeline.Timings) {
	for _, stage := range pipeline.Stages {
		if timings.Has(stage) {
			fmt.Fprintf(out, "%-10s %.1f ms\n", stage, toMillis(timings.Duration(stage)))
		}
	}
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
