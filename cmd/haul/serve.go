package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
	"golang.org/x/sync/errgroup"

	"github.com/haul-dl/haul/internal/api"
	"github.com/haul-dl/haul/internal/app"
	"github.com/haul-dl/haul/internal/downloads"
	"github.com/haul-dl/haul/internal/history"
	"github.com/haul-dl/haul/internal/infra/config"
	"github.com/haul-dl/haul/internal/infra/logger"
	"github.com/haul-dl/haul/internal/sink"
	"github.com/haul-dl/haul/internal/store"
	"github.com/haul-dl/haul/internal/transfer/httpengine"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the download daemon",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Finished payloads land in a bucket; the default is the local
	// completed directory.
	bucketURL := cfg.Sink.Bucket
	if bucketURL == "" {
		if err := os.MkdirAll(cfg.Data.CompletedDir, 0755); err != nil {
			return fmt.Errorf("failed to create completed directory: %w", err)
		}
		abs, err := filepath.Abs(cfg.Data.CompletedDir)
		if err != nil {
			return err
		}
		bucketURL = "file://" + abs
	}
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return fmt.Errorf("failed to open bucket %s: %w", bucketURL, err)
	}
	defer bucket.Close()

	archive, err := history.Open(cfg.Data.HistoryPath)
	if err != nil {
		return err
	}
	defer archive.Close()

	engine, err := httpengine.New(httpengine.Config{
		Dir:              cfg.Data.SpoolDir,
		UserAgent:        cfg.Engine.UserAgent,
		RateLimit:        cfg.Engine.RateLimit,
		ProgressInterval: cfg.Engine.ProgressInterval,
		Retries:          cfg.Engine.Retries,
		Log:              log,
	})
	if err != nil {
		return err
	}

	svc := downloads.NewService(downloads.Config{
		Engine:     engine,
		Store:      store.New(cfg.Data.ActivePath),
		Archive:    archive,
		Completion: sink.New(bucket, log).Completion(ctx),
		Log:        log,
	})

	// Reattach jobs persisted by the previous run to the transfers the
	// engine recovered.
	svc.Restore()

	appCtx := app.NewContext(cfg, log)
	appCtx.Downloads = svc
	appCtx.History = archive

	e := echo.New()
	api.RegisterRoutes(e, appCtx)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: e,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svc.Run(ctx)
	})

	g.Go(func() error {
		log.Info("API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	// Transfers keep their part files; the next run resumes them.
	svc.Close()
	engine.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("Shutdown complete")
	return nil
}
