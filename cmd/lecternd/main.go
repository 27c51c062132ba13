package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"lectern/internal/cleanup"
	"lectern/internal/config"
	"lectern/internal/daemon"
	"lectern/internal/ipc"
	"lectern/internal/logging"
	"lectern/internal/notifications"
	"lectern/internal/pipeline"
	"lectern/internal/records"
)

func main() {
	var socketFlag string
	var configFlag string
	flag.StringVar(&socketFlag, "socket", "", "Path to the control socket")
	flag.StringVar(&configFlag, "config", "", "Configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(configFlag)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := records.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		os.Exit(1)
	}

	orch, err := pipeline.New(cfg, store, logger)
	if err != nil {
		logger.Error("build pipeline", logging.Error(err))
		os.Exit(1)
	}

	notifier := notifications.NewService(cfg)
	sweeper := cleanup.NewSweeper(cfg, logger)
	cleaner := cleanup.NewScheduler(cfg, sweeper, notifier, logger)

	d, err := daemon.New(cfg, store, logger, orch, sweeper, cleaner)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}
	defer d.Close()

	socketPath := socketFlag
	if socketPath == "" {
		socketPath = filepath.Join(cfg.Paths.LogDir, "lectern.sock")
	}
	ipcServer, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		logger.Error("start ipc server", logging.Error(err))
		os.Exit(1)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("lecternd shutting down")
}
