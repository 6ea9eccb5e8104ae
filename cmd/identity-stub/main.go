package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/idsync/internal/buildinfo"
	"github.com/dmitrijs2005/idsync/internal/logging"
	"github.com/dmitrijs2005/idsync/internal/stubserver"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := stubserver.LoadConfig(os.Args[1:])
	if err != nil {
		log.Printf("%v", err)
		return
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Printf("%v", err)
		return
	}
	logger := logging.NewJSONLogger(os.Stdout, level)
	srv := stubserver.New(cfg, logger)

	if err := srv.Run(ctx); err != nil {
		log.Printf("%v", err)
	}

}
