package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/ravindersinghsandhu/Umbraco-CMS/internal/server"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/config"
	"github.com/ravindersinghsandhu/Umbraco-CMS/pkg/logger"
)

func main() {
	configFile := flag.String("config", "", "path to a yaml config file")
	flag.Parse()

	// Load configuration
	var (
		cfg *config.Config
		err error
	)
	if *configFile != "" {
		cfg, err = config.LoadFile(*configFile)
	} else {
		cfg, err = config.Load("cms")
	}
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Logger.ToLoggerConfig())
	defer func() { _ = log.Sync() }()

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Fatal("Failed to create server", "error", err)
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down CMS service...")

	_, _, shutdownTimeout := cfg.Server.Timeouts()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("CMS service exited")
}
