package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alvmarrod/link-weaver/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link-weaver",
		Short: "Discover reachable links on a site by rendering its pages",
		Long: `link-weaver renders pages in a browser, extracts every anchor target and
follows discoverable links breadth-first up to --depth hops from the seed.
File resources (pdf, images, archives, ...) are reported but never rendered.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRoot,
	}

	cmd.Flags().StringP("config", "c", "", "Path to a JSON or YAML config file")
	cmd.Flags().StringP("seed", "s", "", "Seed URL to start crawling from")
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth, "Maximum link hops from the seed (0 = seed only)")
	cmd.Flags().IntP("workers", "w", 1, "Number of concurrent render sessions")
	cmd.Flags().StringP("renderer", "r", config.RendererChrome, "Renderer backend: chrome or http")
	cmd.Flags().StringP("query", "q", "", "Search query whose result pages are crawled as extra seeds")
	cmd.Flags().String("engine", "duckduckgo", "Search engine used with --query")
	cmd.Flags().Int("search-pages", 1, "Number of search result pages to seed")
	cmd.Flags().String("db", "", "SQLite database for results")
	cmd.Flags().String("metrics", "", "Path of the metrics JSON file")
	cmd.Flags().String("log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().Bool("files-only", false, "Print only file resource links")

	return cmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runRoot(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := configureLogging(cfg.LogLevel); err != nil {
		return err
	}

	filesOnly, err := cmd.Flags().GetBool("files-only")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, cmd.OutOrStdout(), filesOnly)
}

// loadConfig reads the config file if given, then applies explicitly set flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg := &config.Config{}
	if path != "" {
		if cfg, err = config.ReadFile(path); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.SeedURL, _ = flags.GetString("seed")
	}
	if flags.Changed("depth") {
		depth, _ := flags.GetInt("depth")
		cfg.MaxDepth = &depth
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("renderer") {
		cfg.Renderer, _ = flags.GetString("renderer")
	}
	if flags.Changed("query") {
		cfg.SearchQuery, _ = flags.GetString("query")
	}
	if flags.Changed("engine") {
		cfg.SearchEngine, _ = flags.GetString("engine")
	}
	if flags.Changed("search-pages") {
		cfg.SearchPages, _ = flags.GetInt("search-pages")
	}
	if flags.Changed("db") {
		cfg.DBPath, _ = flags.GetString("db")
	}
	if flags.Changed("metrics") {
		cfg.MetricsPath, _ = flags.GetString("metrics")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configureLogging(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return nil
}
