package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-scrape-reviews/api"
	"github.com/aluiziolira/go-scrape-reviews/store"
)

type serveFlags struct {
	addr       string
	db         string
	collection string
}

var serveOpts serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve --collection <name>",
	Short: "Serves stored comments and reports over HTTP.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveOpts.addr, "addr", "", "Listen address (default from config, :8080)")
	addStoreFlags(serveCmd, &serveOpts.db, &serveOpts.collection)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.API.Addr = serveOpts.addr
	}
	applyStoreFlags(cmd, cfg, serveOpts.db, serveOpts.collection)
	if err := cfg.ValidateStore(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := newLogger(cfg.Verbose)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	opts, err := analysisOptions(cfg.Analysis)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := store.Connect(ctx, cfg.Mongo)
	if err != nil {
		return err
	}
	defer client.Close(context.Background())

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if !cfg.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &api.Server{
		Comments: client.Comments(cfg.Mongo.Collection),
		Analysis: opts,
		Registry: registry,
		Log:      log,
	}
	router := srv.Router()
	_ = router.SetTrustedProxies(nil)

	httpServer := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	log.Info("report server is running",
		zap.String("address", cfg.API.Addr),
		zap.String("collection", cfg.Mongo.Collection),
	)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
