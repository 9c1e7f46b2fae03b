package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/CTAG07/Trellis/pkg/render"
	"github.com/CTAG07/Trellis/pkg/sections"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

type cliOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:           "trellis",
		Short:         "Render and cache storefront section previews",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(opts.configPath)
		},
	}
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s, engine: %s)\n",
		Commit, BuildDate, versionInfo().EngineVersion,
	))
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "./config.json", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newRenderCmd(opts))
	rootCmd.AddCommand(newSweepCmd(opts))
	rootCmd.AddCommand(newStatsCmd(opts))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newServeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(opts.configPath)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the application version",
		Run: func(cmd *cobra.Command, _ []string) {
			v := versionInfo()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "trellis version %s (commit: %s, date: %s, engine: %s)\n",
				v.Version, v.Commit, v.BuildDate, v.EngineVersion)
		},
	}
}

// withServer builds the components of a server without serving HTTP, runs
// fn and tears everything down. Logs go to stderr so command output stays
// clean.
func withServer(cmd *cobra.Command, opts *cliOptions, fn func(ctx context.Context, s *Server) error) error {
	cm, err := NewConfigManager(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	config := cm.Get()

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	cm.SetLogger(logger)

	db, err := initDB(config.Server.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()
	if err = setupSchemas(db); err != nil {
		return err
	}

	server, err := NewServer(cm, logger, db, nil)
	if err != nil {
		return err
	}
	defer server.Close(context.Background())

	return fn(cmd.Context(), server)
}

// parseSettings merges a JSON object with key=value assignments, the
// assignments taking precedence.
func parseSettings(raw string, assignments []string) (sections.Settings, error) {
	settings := sections.Settings{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &settings); err != nil {
			return nil, fmt.Errorf("invalid --settings JSON: %w", err)
		}
	}
	for _, a := range assignments {
		key, value, err := sections.ParseAssignment(a)
		if err != nil {
			return nil, err
		}
		settings[key] = value
	}
	if len(settings) == 0 {
		return nil, nil
	}
	return settings, nil
}

func newRenderCmd(opts *cliOptions) *cobra.Command {
	var (
		preset, project, rawSettings, blocksFile string
		assignments                              []string
		skipCache, asJSON                        bool
	)
	cmd := &cobra.Command{
		Use:   "render <section>",
		Short: "Render one section and print the HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := parseSettings(rawSettings, assignments)
			if err != nil {
				return err
			}
			var blocks []sections.BlockInput
			if blocksFile != "" {
				data, err := os.ReadFile(blocksFile)
				if err != nil {
					return fmt.Errorf("failed to read blocks file: %w", err)
				}
				if err = json.Unmarshal(data, &blocks); err != nil {
					return fmt.Errorf("invalid blocks file: %w", err)
				}
			}

			return withServer(cmd, opts, func(ctx context.Context, s *Server) error {
				res, err := s.renderer.RenderSection(ctx, render.Request{
					SectionSlug:    args[0],
					PresetSlug:     preset,
					ProjectSlug:    project,
					CustomSettings: settings,
					Blocks:         blocks,
					SkipCache:      skipCache,
				})
				if err != nil {
					return err
				}
				return writeRenderResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res, asJSON)
			})
		},
	}
	cmd.Flags().StringVarP(&preset, "preset", "p", "", "Preset slug")
	cmd.Flags().StringVar(&project, "project", "", "Project slug for custom schemas and presets")
	cmd.Flags().StringArrayVarP(&assignments, "set", "s", nil, "Override a setting, as key=value (repeatable)")
	cmd.Flags().StringVar(&rawSettings, "settings", "", "Override settings as a JSON object")
	cmd.Flags().StringVar(&blocksFile, "blocks", "", "JSON file with the block list")
	cmd.Flags().BoolVar(&skipCache, "skip-cache", false, "Render without reading or writing the preview cache")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	return cmd
}

func writeRenderResult(out, errOut io.Writer, res render.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(renderResponse{
			Success:      true,
			HTML:         res.HTML,
			CSS:          res.CSS,
			Errors:       res.Errors,
			RenderTimeMs: res.RenderTimeMs,
			Cached:       res.Cached,
		})
	}
	for _, e := range res.Errors {
		_, _ = fmt.Fprintln(errOut, "warning: "+e)
	}
	_, _ = fmt.Fprintf(errOut, "rendered in %dms (cached: %t)\n", res.RenderTimeMs, res.Cached)
	if res.CSS != "" {
		if _, err := fmt.Fprintf(out, "<style>\n%s\n</style>\n", res.CSS); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(out, res.HTML)
	return err
}

func newSweepCmd(opts *cliOptions) *cobra.Command {
	var purge bool
	var section string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired previews from the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServer(cmd, opts, func(ctx context.Context, s *Server) error {
				var (
					n   int64
					err error
				)
				if purge {
					n, err = s.cache.Purge(ctx, section)
				} else {
					n, err = s.cache.Sweep(ctx)
				}
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s previews\n", humanize.Comma(n))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "Remove live previews too")
	cmd.Flags().StringVar(&section, "section", "", "With --purge, only remove this section's previews")
	return cmd
}

func newStatsCmd(opts *cliOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print render and cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServer(cmd, opts, func(ctx context.Context, s *Server) error {
				sum, err := s.stats.Summary(ctx)
				if err != nil {
					return err
				}
				list, err := s.stats.Sections(ctx, limit)
				if err != nil {
					return err
				}
				cache, err := s.cache.Stats(ctx)
				if err != nil {
					return err
				}
				return writeStats(cmd.OutOrStdout(), sum, list, cache.Live, cache.Expired, cache.LiveBytes)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of sections to list")
	return cmd
}

func writeStats(out io.Writer, sum GlobalStatsSummary, list []SectionStats, live, expired, liveBytes int64) error {
	_, _ = fmt.Fprintf(out, "renders:     %s (%s sections)\n", humanize.Comma(sum.TotalRenders), humanize.Comma(sum.Sections))
	_, _ = fmt.Fprintf(out, "cache hits:  %s (%.1f%%)\n", humanize.Comma(sum.CacheHits), sum.HitRatio*100)
	_, _ = fmt.Fprintf(out, "failures:    %s\n", humanize.Comma(sum.Failures))
	_, _ = fmt.Fprintf(out, "avg render:  %.1fms\n", sum.AvgRenderMs)
	_, _ = fmt.Fprintf(out, "cache:       %s live (%s), %s expired\n\n",
		humanize.Comma(live), humanize.Bytes(uint64(liveBytes)), humanize.Comma(expired))

	if len(list) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SECTION\tRENDERS\tHITS\tFAILURES\tAVG MS\tLAST SEEN")
	for _, st := range list {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f\t%s\n",
			st.SectionSlug,
			humanize.Comma(st.Renders),
			humanize.Comma(st.CacheHits),
			humanize.Comma(st.Failures),
			st.AvgRenderMs,
			humanize.Time(st.LastSeen))
	}
	return tw.Flush()
}
