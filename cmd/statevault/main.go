package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	statevaultcmd "github.com/statevault/statevault/internal/cmd/statevault"
	"github.com/statevault/statevault/internal/platform/config"
)

func main() {
	cfg, err := statevaultcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[STATEVAULT] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := statevaultcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
