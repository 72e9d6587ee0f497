package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/logging"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/rpc"
	"github.com/AbdullahSAhmad/encodly-mirror-sub000/internal/worker"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "encodly-worker: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("encodly-worker", pflag.ContinueOnError)
	listen := fs.String("listen", "", "serve gRPC on this address instead of stdio")
	maxConns := fs.Int("max-conns", 16, "maximum concurrent gRPC connections")
	logLevel := fs.String("log-level", envOr("ENCODLY_LOG_LEVEL", "info"), "log level: debug, info, warn or error")
	logFormat := fs.String("log-format", envOr("ENCODLY_LOG_FORMAT", "text"), "log format: text or json")
	showVersion := fs.Bool("version", false, "print the version and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Printf("encodly-worker %s\n", version)
		return nil
	}

	// Logs always go to stderr; stdout carries the stdio protocol.
	logger, err := logging.New("encodly-worker", logging.WithLevel(*logLevel), logging.WithFormat(*logFormat))
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *listen == "" {
		err := worker.Serve(ctx, os.Stdin, os.Stdout, logger.Logger)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", *listen, err)
	}
	return rpc.NewServer(logger.Logger).Serve(ctx, lis, *maxConns)
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
