// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/tabletop/lib/config"
	"github.com/bureau-foundation/tabletop/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the command-line flags. Flags override the matching
// config file fields.
type options struct {
	configPath   string
	host         bool
	join         []string
	id           string
	transport    string
	listen       string
	signalingURL string
	password     string
	mdns         bool
	verbose      bool
}

func run() error {
	var opts options
	var showVersion bool

	flagSet := newFlagSet(&opts, &showVersion)

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("tabletop %s\n", version.Full())
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := loadConfig(opts, flagSet)
	if err != nil {
		return err
	}
	logger := newLogger(opts.verbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting tabletop",
		"version", version.Info(),
		"peer", cfg.Peer.ID,
		"transport", cfg.Transport.Kind,
		"host", opts.host,
	)

	t, err := openTable(ctx, cfg, opts.host, logger, os.Stdout)
	if err != nil {
		return err
	}
	defer t.close()

	for _, target := range opts.join {
		if err := t.join(ctx, target); err != nil {
			return err
		}
	}

	lines := make(chan string)
	go readLines(os.Stdin, lines)
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	for {
		if interactive {
			fmt.Fprint(os.Stdout, "> ")
		}
		select {
		case <-ctx.Done():
			logger.Info("received shutdown signal")
			return nil
		case <-t.session.Done():
			return errors.New("session stopped")
		case line, ok := <-lines:
			if !ok {
				// Stdin closed: keep serving the table until
				// signalled, so a host can run detached.
				lines = nil
				interactive = false
				continue
			}
			line = strings.TrimSpace(line)
			if line == "quit" || line == "exit" {
				return nil
			}
			if line == "" {
				continue
			}
			if err := t.do(ctx, line); err != nil {
				fmt.Fprintf(os.Stdout, "error: %v\n", err)
			}
		}
	}
}

func newFlagSet(opts *options, showVersion *bool) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("tabletop", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "path to YAML config file")
	flagSet.BoolVar(&opts.host, "host", false, "host the table: send the board to every peer that joins")
	flagSet.StringSliceVar(&opts.join, "join", nil, "peer to connect to (id, or id@host:port for tcp); repeatable")
	flagSet.StringVar(&opts.id, "id", "", "local peer id (default: from config, else a random UUID)")
	flagSet.StringVar(&opts.transport, "transport", "", "link transport: webrtc or tcp")
	flagSet.StringVar(&opts.listen, "listen", "", "tcp listen address")
	flagSet.StringVar(&opts.signalingURL, "signaling-url", "", "WebSocket URL of the signaling relay (webrtc)")
	flagSet.StringVar(&opts.password, "password", "", "game password required of every peer")
	flagSet.BoolVar(&opts.mdns, "mdns", false, "advertise and discover peers with mDNS (tcp)")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	flagSet.BoolVar(showVersion, "version", false, "print version information and exit")
	return flagSet
}

// loadConfig reads the config file, if any, and applies the flags
// that were set.
func loadConfig(opts options, flagSet *pflag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.LoadFile(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	if flagSet.Changed("id") {
		cfg.Peer.ID = opts.id
	}
	if flagSet.Changed("transport") {
		cfg.Transport.Kind = opts.transport
	}
	if flagSet.Changed("listen") {
		cfg.Transport.Listen = opts.listen
	}
	if flagSet.Changed("signaling-url") {
		cfg.Transport.SignalingURL = opts.signalingURL
	}
	if flagSet.Changed("password") {
		cfg.Transport.Password = opts.password
	}
	if flagSet.Changed("mdns") {
		cfg.Transport.MDNS = opts.mdns
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger writes text to a terminal and JSON otherwise.
func newLogger(verbose bool) *slog.Logger {
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
	return slog.New(handler)
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}
