package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/clitic/music/internal/aggregator"
	"github.com/clitic/music/internal/config"
	"github.com/clitic/music/internal/display"
	"github.com/clitic/music/internal/notify"
	"github.com/clitic/music/internal/pipeline"
	"github.com/clitic/music/internal/snapshot"
	"github.com/clitic/music/pkg/browser"
)

// newRunCmd creates the run subcommand.
func newRunCmd(opts *rootOptions) *cobra.Command {
	var mode string
	var minRegions, concurrency int
	var dryRun, asJSON bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Survey every region and update the snapshots",
		Long: "Fetch the trending music chart of every region, merge and rank the videos,\n" +
			"compare them with the previous snapshot and write the new snapshots.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			// Flags win over file and environment.
			flags := cmd.Flags()
			if flags.Changed("mode") {
				cfg.Mode = aggregator.Mode(mode)
			}
			if flags.Changed("min-regions") {
				cfg.MinRegions = minRegions
			}
			if flags.Changed("concurrency") {
				cfg.Concurrency = concurrency
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.RequireAPIKey(); err != nil {
				return err
			}

			ctx := cmd.Context()
			logger := newLogger(cfg, cmd.ErrOrStderr())

			store, err := snapshot.Open(ctx, cfg.Snapshot)
			if err != nil {
				return fmt.Errorf("open snapshot store: %w", err)
			}
			defer store.Close()

			var publisher notify.Publisher = notify.Nop{}
			if !dryRun {
				publisher, err = notify.Dial(cfg.Notify)
				if err != nil {
					logger.Warn("notifications disabled", "err", err)
					publisher = notify.Nop{}
				}
			}
			defer publisher.Close()

			source := pipeline.NewYouTubeSource(newYouTubeClient(cfg))
			p := pipeline.New(cfg, source, source, store,
				pipeline.WithLogger(logger),
				pipeline.WithObserver(&progress{w: cmd.ErrOrStderr(), logger: logger}),
				pipeline.WithPublisher(publisher),
				pipeline.WithDryRun(dryRun),
			)

			res, err := p.Run(ctx)
			if err != nil {
				return err
			}

			if cfg.Report.MarkdownPath != "" && !dryRun {
				report := display.MarkdownReport{Mode: cfg.Mode, Top: cfg.Report.Top, GeneratedAt: res.FinishedAt}
				if err := display.WriteReport(cfg.Report.MarkdownPath, report.Render(res.Catalog, res.New)); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				logger.Info("report written", "path", cfg.Report.MarkdownPath)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			fmt.Fprintf(out, "%d videos from %d regions (%d skipped), mode %s\n\n",
				len(res.Catalog), res.RegionsSurveyed, len(res.RegionsSkipped), res.Mode)
			fmt.Fprint(out, display.NewTerminalFormatter().FormatCatalog(res.Catalog))
			switch {
			case !res.DiffComputed():
				fmt.Fprintln(out, "\nNo previous snapshot, nothing to compare against.")
			case len(res.New) == 0:
				fmt.Fprintln(out, "\nNothing new since the previous run.")
			default:
				fmt.Fprintf(out, "\n%d newly trending:\n\n", len(res.New))
				fmt.Fprint(out, display.NewTerminalFormatter().FormatCatalog(res.New))
			}
			if dryRun {
				fmt.Fprintln(out, "\nDry run: no snapshot written.")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Duplicate handling: frequency or set")
	cmd.Flags().IntVar(&minRegions, "min-regions", aggregator.DefaultMinRegions, "Minimum regions a video must trend in (frequency mode)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 4, "Regions fetched in parallel")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Compute everything but write nothing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run result as JSON")

	return cmd
}

// newRegionsCmd creates the regions subcommand.
func newRegionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List the regions YouTube serves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireAPIKey(); err != nil {
				return err
			}

			regions, err := newYouTubeClient(cfg).FetchRegions(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range regions {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.Code, r.Name)
			}
			return nil
		},
	}
}

// newShowCmd creates the show subcommand.
func newShowCmd(opts *rootOptions) *cobra.Command {
	var newOnly, asJSON bool
	var limit int

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display the last saved catalog",
		Long:  "Display the catalog written by the last run, or with --new the videos it found newly trending.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			store, err := snapshot.Open(cmd.Context(), cfg.Snapshot)
			if err != nil {
				return fmt.Errorf("open snapshot store: %w", err)
			}
			defer store.Close()

			records, err := readSnapshot(cmd.Context(), store, newOnly)
			if err != nil {
				return err
			}

			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			fmt.Fprint(cmd.OutOrStdout(), display.NewTerminalFormatter().FormatCatalog(records))
			return nil
		},
	}

	cmd.Flags().BoolVar(&newOnly, "new", false, "Show only the videos new in the last run")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of videos to display (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the stored records as JSON")

	return cmd
}

// newOpenCmd creates the open subcommand.
func newOpenCmd(opts *rootOptions) *cobra.Command {
	var newOnly, printOnly bool

	cmd := &cobra.Command{
		Use:   "open <rank>",
		Short: "Open a saved video in the browser",
		Long:  "Open the video at the given rank of the last saved catalog in the default browser.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rank, err := strconv.Atoi(args[0])
			if err != nil || rank < 1 {
				return fmt.Errorf("invalid rank %q: must be a positive number", args[0])
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			store, err := snapshot.Open(cmd.Context(), cfg.Snapshot)
			if err != nil {
				return fmt.Errorf("open snapshot store: %w", err)
			}
			defer store.Close()

			records, err := readSnapshot(cmd.Context(), store, newOnly)
			if err != nil {
				return err
			}
			if rank > len(records) {
				return fmt.Errorf("rank %d out of range: the snapshot holds %d videos", rank, len(records))
			}

			v := records[rank-1]
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", v.Title, v.URL())
			if printOnly {
				return nil
			}
			if err := browser.Open(v.URL()); err != nil {
				return fmt.Errorf("could not open browser, visit the URL above: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&newOnly, "new", false, "Pick from the videos new in the last run")
	cmd.Flags().BoolVarP(&printOnly, "print", "p", false, "Print the URL without opening a browser")

	return cmd
}

// readSnapshot reads the catalog, or the newly added list when newOnly is set.
func readSnapshot(ctx context.Context, store snapshot.Store, newOnly bool) ([]aggregator.VideoRecord, error) {
	name := snapshot.NameCatalog
	if newOnly {
		name = snapshot.NameNew
	}
	records, err := store.Read(ctx, name)
	if errors.Is(err, snapshot.ErrNotFound) {
		return nil, fmt.Errorf("no %s snapshot yet (run 'music run' first)", name)
	}
	return records, err
}

// newConfigCmd creates the config subcommand.
func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults, " + config.DefaultFile + ", .env and environment are applied. The API key is masked.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
