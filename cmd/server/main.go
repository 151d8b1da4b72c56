// Package main starts the AutomataWeaver backend API.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	servercmd "github.com/automataweaver/backend/internal/cmd/server"
	"github.com/automataweaver/backend/internal/platform/config"
)

func main() {
	flags, err := servercmd.ParseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[API] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := servercmd.Run(ctx, flags); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
