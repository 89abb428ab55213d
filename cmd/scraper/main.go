package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/fetch"
	"github.com/aluiziolira/go-scrape-tululu/models"
	"github.com/aluiziolira/go-scrape-tululu/pipeline"
	"github.com/aluiziolira/go-scrape-tululu/scraper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "scraper [--start-page N] [--end-page N] [--dest-folder DIR] [--json-path DIR]",
		Short:         "Downloads the books of a tululu.org category together with their metadata.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := buildConfig(cmd.Flags())
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.String("config", "", "YAML configuration file")
	f.Int("start-page", 0, "First category page to crawl (default: the page before the last one)")
	f.Int("end-page", 0, "Last category page to crawl (default: the last page)")
	f.String("dest-folder", defaults.DestFolder, "Directory receiving books/ and images/")
	f.String("json-path", defaults.JSONPath, "Directory receiving "+pipeline.ManifestName)
	f.Bool("skip-imgs", false, "Do not download cover images")
	f.Bool("skip-txt", false, "Do not download book texts")
	f.String("base-url", defaults.BaseURL, "Site to crawl")
	f.String("category", defaults.CategoryPath, "Category path, e.g. /l55/")
	f.String("format", defaults.OutputFormat, "Manifest format: json, csv, or dual")
	f.Int("parallel", defaults.Parallelism, "Number of books fetched concurrently")
	f.Duration("timeout", defaults.Timeout, "Per-request timeout")
	f.Bool("respect-robots", defaults.RespectRobotsTxt, "Respect robots.txt directives")
	f.String("user-agent", defaults.UserAgent, "User-Agent header")
	f.String("metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	f.BoolP("verbose", "v", false, "Enable verbose logging")

	return cmd
}

// buildConfig layers defaults, the config file, SCRAPER_* variables and
// explicitly set flags, in that order.
func buildConfig(f *pflag.FlagSet) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path, _ := f.GetString("config"); path != "" {
		if err := config.LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}

	ints := map[string]*int{
		"start-page": &cfg.StartPage,
		"end-page":   &cfg.EndPage,
		"parallel":   &cfg.Parallelism,
	}
	for name, dst := range ints {
		if f.Changed(name) {
			value, err := f.GetInt(name)
			if err != nil {
				return nil, err
			}
			*dst = value
		}
	}

	bools := map[string]*bool{
		"skip-imgs":      &cfg.SkipImages,
		"skip-txt":       &cfg.SkipText,
		"respect-robots": &cfg.RespectRobotsTxt,
		"verbose":        &cfg.Verbose,
	}
	for name, dst := range bools {
		if f.Changed(name) {
			value, err := f.GetBool(name)
			if err != nil {
				return nil, err
			}
			*dst = value
		}
	}

	strs := map[string]*string{
		"dest-folder":  &cfg.DestFolder,
		"json-path":    &cfg.JSONPath,
		"base-url":     &cfg.BaseURL,
		"category":     &cfg.CategoryPath,
		"format":       &cfg.OutputFormat,
		"user-agent":   &cfg.UserAgent,
		"metrics-addr": &cfg.MetricsAddr,
	}
	for name, dst := range strs {
		if f.Changed(name) {
			value, err := f.GetString(name)
			if err != nil {
				return nil, err
			}
			*dst = value
		}
	}
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)

	if f.Changed("timeout") {
		value, err := f.GetDuration("timeout")
		if err != nil {
			return nil, err
		}
		cfg.Timeout = value
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(parent context.Context, cfg *config.Config) error {
	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	metrics := scraper.NewMetrics()
	client, err := fetch.NewClient(fetch.Options{
		UserAgent:        cfg.UserAgent,
		Timeout:          cfg.Timeout,
		Parallelism:      cfg.Parallelism,
		MaxBodyBytes:     cfg.MaxBodyBytes,
		RespectRobotsTxt: cfg.RespectRobotsTxt,
	}, metrics)
	if err != nil {
		slog.Error("initialising http client", slog.Any("error", err))
		return err
	}

	crawler, err := scraper.NewCrawler(cfg, client, metrics)
	if err != nil {
		slog.Error("initialising crawler", slog.Any("error", err))
		return err
	}

	rng, err := crawler.ResolveRange(ctx)
	if err != nil {
		slog.Error("cannot determine crawl range", slog.Any("error", err))
		return err
	}

	slog.Info("starting crawl",
		slog.String("category", cfg.CategoryURL()),
		slog.String("range", rng.String()),
		slog.Int("workers", cfg.Parallelism),
		slog.Bool("skip_images", cfg.SkipImages),
		slog.Bool("skip_text", cfg.SkipText),
	)

	manifestPath := manifestFile(cfg)
	writer, err := createWriter(cfg)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		return err
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	p := pipeline.NewPipeline(writer)
	p.Start(1)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	target := models.DownloadTarget{
		Dir:        cfg.DestFolder,
		SkipText:   cfg.SkipText,
		SkipImages: cfg.SkipImages,
	}
	result, err := crawler.Run(ctx, rng, target, p)
	if err != nil {
		slog.Error("crawl failed", slog.Any("error", err))
		return err
	}

	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		return err
	}
	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		return err
	}

	printSummary(result, manifestPath, p.GetMetrics())
	return nil
}

func manifestFile(cfg *config.Config) string {
	if cfg.OutputFormat == "csv" {
		return filepath.Join(cfg.JSONPath, pipeline.CSVManifestName)
	}
	return filepath.Join(cfg.JSONPath, pipeline.ManifestName)
}

func createWriter(cfg *config.Config) (pipeline.OutputWriter, error) {
	switch cfg.OutputFormat {
	case "json":
		return pipeline.NewJSONWriter(filepath.Join(cfg.JSONPath, pipeline.ManifestName))
	case "csv":
		return pipeline.NewCSVWriter(filepath.Join(cfg.JSONPath, pipeline.CSVManifestName))
	case "dual":
		return pipeline.NewDualWriter(cfg.JSONPath)
	default:
		return nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
}

func printSummary(result *models.CrawlResult, manifestPath string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Crawl complete")

	fmt.Printf("  Pages:         %s (%d visited, %d skipped)\n", result.Range, result.PagesVisited, result.PagesSkipped)
	fmt.Printf("  Books saved:   %d\n", result.BooksSaved)
	fmt.Printf("  Books skipped: %d\n", result.BooksSkipped)
	fmt.Printf("  Texts:         %d\n", result.TextsSaved)
	fmt.Printf("  Images:        %d\n", result.ImagesSaved)
	if len(result.SkippedByReason) > 0 {
		fmt.Printf("  Skip reasons:  %v\n", result.SkippedByReason)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:    %v\n", valErrors)
	}
	fmt.Printf("  Duration:      %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Printf("  Manifest:      %s\n", manifestPath)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	var handler slog.Handler
	if isTerminal(os.Stderr) {
		charmLevel := charmlog.InfoLevel
		if verbose {
			charmLevel = charmlog.DebugLevel
		}
		handler = charmlog.NewWithOptions(os.Stderr, charmlog.Options{
			Level:           charmLevel,
			ReportTimestamp: true,
			TimeFormat:      time.Kitchen,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
