package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"

	"github.com/szxp/vipsfit"
	"github.com/szxp/vipsfit/goimaging"
	"github.com/szxp/vipsfit/libvips"
)

// version will be set while building
var version string

// buildTime will be set while building
var buildTime string

func main() {
	configPath := flag.String("config", "", "path of a TOML config file")
	flag.Parse()

	conf, err := loadConfig(*configPath)
	if err != nil {
		hclog.Default().Error("Failed to load config. Exit now", "err", err)
		os.Exit(1)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Output:          os.Stdout,
		Level:           hclog.LevelFromString(conf.LogLevel),
		IncludeLocation: true,
	}).With("appVersion", version)

	logger.Info("Build info", "time", buildTime)

	concurrency, err := vipsfit.ConcurrencyFromEnv()
	if err != nil {
		logger.Error("Invalid concurrency. Exit now", "err", err)
		os.Exit(1)
	}

	err = initialize(logger, conf, concurrency)
	if err != nil {
		logger.Error("Failed to initialize. Exit now", "err", err)
		os.Exit(1)
	}
	logger.Info("Exit normally")
}

func newEngine(logger hclog.Logger, conf config) (vipsfit.Engine, func()) {
	if conf.Engine == engineImaging {
		return goimaging.New(goimaging.Config{
			Logger: logger.Named("imaging"),
		}), func() {}
	}

	e := libvips.New(libvips.Config{
		Logger:        logger.Named("libvips"),
		MaxCacheMem:   conf.Vips.MaxCacheMem,
		MaxCacheSize:  conf.Vips.MaxCacheSize,
		MaxCacheFiles: conf.Vips.MaxCacheFiles,
	})
	return e, libvips.Shutdown
}

func initialize(logger hclog.Logger, conf config, concurrency *int) error {
	engine, shutdown := newEngine(logger, conf)
	defer shutdown()

	pipeline, err := vipsfit.NewPipeline(vipsfit.PipelineConfig{
		Engine:      engine,
		Logger:      logger.Named("pipeline"),
		Concurrency: concurrency,
	})
	if err != nil {
		return err
	}

	handler, err := vipsfit.NewServer(vipsfit.ServerConfig{
		SourceDir:        conf.SourceDir,
		ThumbnailDir:     conf.ThumbnailDir,
		AllowedExts:      conf.AllowedExts,
		ThumbnailQuality: conf.ThumbnailQuality,
		MaxUploadSize:    conf.MaxUploadSize,
		Pipeline:         pipeline,
		Logger:           logger.Named("HTTP server"),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    conf.HTTPAddr,
		Handler: handler,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Signal received", "sig", sig)

		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error("HTTP server Shutdown", "error", err)
		}
		close(idleConnsClosed)
	}()

	logger.Info("Listening", "addr", conf.HTTPAddr, "engine", conf.Engine)
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}

	<-idleConnsClosed
	return nil
}
