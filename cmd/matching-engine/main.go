package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/xid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	match "github.com/tidemark/matching-engine"
	"github.com/tidemark/matching-engine/config"
	"github.com/tidemark/matching-engine/protocol"
)

func main() {
	configPath := flag.String("config", "", "path to the yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	match.SetLogger(logger)

	sessionID := xid.New().String()
	logger = logger.With(zap.String("session_id", sessionID))
	logger.Info("session started",
		zap.String("instrument", cfg.Instrument),
		zap.String("engine_version", match.EngineVersion))

	opts := []match.OrderBookOption{}
	if cfg.RingCapacity > 0 {
		opts = append(opts, match.WithRingCapacity(cfg.RingCapacity))
	}

	book := match.NewOrderBook(cfg.Instrument, opts...)
	go book.Start()

	if err := run(book, logger); err != nil {
		logger.Error("session aborted", zap.Error(err))
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := book.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown did not drain", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("session ended")
}

// run drives the book from stdin, one command per line, printing the traded
// notional of every submit. END prints the final book status and returns.
func run(book *match.OrderBook, logger *zap.Logger) error {
	ctx := context.Background()
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()

		cmd, err := protocol.ParseLine(line)
		if err != nil {
			if errors.Is(err, protocol.ErrEmptyLine) {
				continue
			}
			logger.Warn("rejected command", zap.String("line", line), zap.Error(err))
			fmt.Fprintln(os.Stderr, err)
			continue
		}

		switch c := cmd.(type) {
		case *protocol.SubmitCommand:
			notional, err := book.SubmitOrder(ctx, c)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, notional)
		case *protocol.CancelCommand:
			if err := book.CancelOrder(ctx, c.OrderID); err != nil {
				return err
			}
		case *protocol.CancelReplaceCommand:
			if err := book.CancelReplaceOrder(ctx, c); err != nil {
				return err
			}
		case *protocol.EndCommand:
			snap, err := book.Snapshot(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, snap)
			return out.Flush()
		}

		out.Flush()
	}

	return scanner.Err()
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.OutputPaths = []string{"stderr"}
	return zcfg.Build()
}
