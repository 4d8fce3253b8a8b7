// Package main provides the music CLI entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clitic/music/internal/config"
	"github.com/clitic/music/internal/youtube"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "music: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

// loadConfig reads .env, the config file and the environment.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	return config.Load(config.LoadOptions{Path: o.configPath, DotEnv: ".env"})
}

// newRootCmd creates the root command for music CLI.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	bi, _ := debug.ReadBuildInfo()
	rootCmd := &cobra.Command{
		Use:   "music",
		Short: "Track trending music videos across YouTube regions",
		Long: "Music surveys the YouTube music chart of every region, merges the results into one\n" +
			"ranked catalog and reports the videos that started trending since the previous run.",
		Version:       resolveVersion(version, bi),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate("music version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default ./music.yaml or $MUSIC_CONFIG)")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newRegionsCmd(opts))
	rootCmd.AddCommand(newShowCmd(opts))
	rootCmd.AddCommand(newOpenCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))

	return rootCmd
}

// newLogger builds the process logger from configuration. Logs go to w,
// normally stderr, so stdout stays clean for reports.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level, _ := cfg.SlogLevel()
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler)
}

// newYouTubeClient creates an API client from configuration.
func newYouTubeClient(cfg *config.Config) *youtube.Client {
	return youtube.NewClient(cfg.APIKey,
		youtube.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		youtube.WithBaseURL(cfg.APIURL),
		youtube.WithCategory(cfg.CategoryID),
		youtube.WithMaxResults(cfg.MaxResults),
		youtube.WithMaxPages(cfg.MaxPages),
	)
}
