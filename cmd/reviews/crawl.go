package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/pipeline"
	"github.com/aluiziolira/go-scrape-reviews/scraper"
	"github.com/aluiziolira/go-scrape-reviews/store"
)

type crawlFlags struct {
	startURL    string
	pages       int
	cookie      string
	db          string
	collection  string
	sinks       []string
	output      string
	metricsAddr string
}

var crawlOpts crawlFlags

var crawlCmd = &cobra.Command{
	Use:   "crawl --start-url <url> --collection <name>",
	Short: "Crawls comment pages and stores every review.",
	RunE:  runCrawl,
}

func init() {
	bindCrawlFlags(crawlCmd, &crawlOpts)
	rootCmd.AddCommand(crawlCmd)
}

func bindCrawlFlags(cmd *cobra.Command, opts *crawlFlags) {
	f := cmd.Flags()
	f.StringVar(&opts.startURL, "start-url", "", "First comment page to crawl")
	f.IntVar(&opts.pages, "pages", 0, "Maximum comment pages to crawl")
	f.StringVar(&opts.cookie, "cookie", "", "Raw session cookie copied from a logged-in browser")
	f.StringSliceVar(&opts.sinks, "sink", nil, "Sinks to write to: mongo, csv, json")
	f.StringVar(&opts.output, "output", "", "Output file for the csv and json sinks")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	addStoreFlags(cmd, &opts.db, &opts.collection)
}

func applyCrawlFlags(cmd *cobra.Command, cfg *config.Config, opts crawlFlags) {
	flags := cmd.Flags()
	if flags.Changed("start-url") {
		cfg.StartURL = opts.startURL
	}
	if flags.Changed("pages") {
		cfg.MaxPages = opts.pages
	}
	if flags.Changed("cookie") {
		cfg.Cookie = opts.cookie
	}
	if flags.Changed("sink") {
		cfg.Sinks = opts.sinks
	}
	if flags.Changed("output") {
		cfg.OutputFile = opts.output
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	applyStoreFlags(cmd, cfg, opts.db, opts.collection)
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyCrawlFlags(cmd, cfg, crawlOpts)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := newLogger(cfg.Verbose)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	session, err := scraper.ParseSession(cfg.Cookie)
	if err != nil {
		return fmt.Errorf("parse cookie: %w", err)
	}
	if session.Empty() {
		log.Warn("no session cookie set, the site may stop serving pages early")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, closeStore, err := buildSink(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	metrics := scraper.NewMetrics()
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		log.Info("metrics server enabled", zap.String("addr", cfg.MetricsAddr))
	}

	fetcher, err := scraper.NewFetcher(cfg, session, metrics, log)
	if err != nil {
		return fmt.Errorf("initialising fetcher: %w", err)
	}
	p, err := pipeline.NewPipeline(sink, cfg, log)
	if err != nil {
		return err
	}

	log.Info("starting crawl",
		zap.String("start_url", cfg.StartURL),
		zap.Int("pages", cfg.MaxPages),
		zap.Strings("sinks", cfg.Sinks),
	)
	result, runErr := scraper.NewCrawler(cfg, fetcher, p, metrics, log).Run(ctx, cfg.StartURL)

	closeErr := p.Close()
	if v, ok := sink.(pipeline.Validator); ok && closeErr == nil {
		if err := v.Validate(); err != nil {
			log.Error("output validation failed", zap.Error(err))
			closeErr = err
		}
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics server shutdown failed", zap.Error(err))
		}
		cancel()
	}

	printSummary(cmd.OutOrStdout(), result, p.GetMetrics(), cfg)
	return errors.Join(runErr, closeErr)
}

// buildSink opens every configured sink. The returned func releases the
// Mongo client, if any, and must run after the pipeline is closed.
func buildSink(ctx context.Context, cfg *config.Config, log *zap.Logger) (pipeline.Sink, func(), error) {
	var (
		sinks  []pipeline.Sink
		client *store.Client
	)
	release := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
		if client != nil {
			_ = client.Close(context.Background())
		}
	}

	for _, name := range cfg.Sinks {
		switch strings.ToLower(name) {
		case config.SinkMongo:
			if client != nil {
				continue
			}
			var err error
			client, err = store.Connect(ctx, cfg.Mongo)
			if err != nil {
				release()
				return nil, nil, err
			}
			comments := client.Comments(cfg.Mongo.Collection)
			if err := comments.EnsureIndexes(ctx); err != nil {
				log.Warn("index creation failed", zap.Error(err))
			}
			sinks = append(sinks, comments)
		case config.SinkCSV:
			w, err := pipeline.NewCSVWriter(sinkPath(cfg.OutputFile, config.SinkCSV))
			if err != nil {
				release()
				return nil, nil, err
			}
			sinks = append(sinks, w)
		case config.SinkJSON:
			w, err := pipeline.NewJSONWriter(sinkPath(cfg.OutputFile, config.SinkJSON))
			if err != nil {
				release()
				return nil, nil, err
			}
			sinks = append(sinks, w)
		}
	}

	closeClient := func() {
		if client != nil {
			if err := client.Close(context.Background()); err != nil {
				log.Error("close mongo client", zap.Error(err))
			}
		}
	}
	if len(sinks) == 1 {
		return sinks[0], closeClient, nil
	}
	return pipeline.NewMultiSink(sinks...), closeClient, nil
}

// sinkPath keeps the output extension when it already matches the sink's
// format and swaps it otherwise.
func sinkPath(path, sink string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch sink {
	case config.SinkCSV:
		if ext == ".csv" {
			return path
		}
		return withExt(path, ".csv")
	case config.SinkJSON:
		if ext == ".jsonl" || ext == ".json" {
			return path
		}
		return withExt(path, ".jsonl")
	}
	return path
}

func withExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

func printSummary(w io.Writer, result *models.CrawlResult, metrics map[string]interface{}, cfg *config.Config) {
	if result == nil {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Crawl summary")

	duration := result.EndTime.Sub(result.StartTime)
	t.AppendRows([]table.Row{
		{"Stop reason", result.StopReason},
		{"Last URL", result.LastURL},
		{"Pages", result.PageCount},
		{"Extracted", result.ExtractedCount},
		{"Persisted", result.PersistedCount},
		{"Dropped", result.DroppedCount},
		{"Persist failures", result.PersistFailures},
		{"Requests", result.RequestCount},
		{"Retries", result.RetryCount},
		{"Duration", duration.Round(time.Millisecond)},
		{"Sinks", strings.Join(cfg.Sinks, ", ")},
	})
	if len(result.ErrorsByType) > 0 {
		t.AppendRow(table.Row{"Error types", formatCounts(result.ErrorsByType)})
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		t.AppendRow(table.Row{"Validation", formatCounts(valErrors)})
	}
	for _, page := range result.FailedPages {
		t.AppendRow(table.Row{"Failed page", page})
	}
	t.Render()
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}
