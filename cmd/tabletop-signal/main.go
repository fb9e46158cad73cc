// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// tabletop-signal relays WebRTC offers and answers between tabletop
// peers. Peers connect to /signal?id=<peer> over WebSocket; the relay
// forwards each offer or answer to its target and holds the latest
// one per sender for targets that have not connected yet. Game
// traffic never passes through it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/tabletop/lib/clock"
	"github.com/bureau-foundation/tabletop/lib/version"
	"github.com/bureau-foundation/tabletop/signaling"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var listen string
	var verbose bool
	var showVersion bool

	flagSet := pflag.NewFlagSet("tabletop-signal", pflag.ContinueOnError)
	flagSet.StringVar(&listen, "listen", ":7700", "HTTP listen address")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("tabletop-signal %s\n", version.Full())
		return nil
	}

	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		options.Level = slog.LevelDebug
	}
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	logger := slog.New(handler)

	hub := signaling.NewHub(clock.Real(), logger)
	defer hub.Close()

	mux := http.NewServeMux()
	mux.Handle("/signal", hub)
	mux.HandleFunc("/healthz", func(writer http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(writer, "ok %d peers\n", len(hub.Peers()))
	})
	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()
	logger.Info("signaling relay listening", "address", listen, "version", version.Info())

	select {
	case err := <-serveErr:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}
	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
