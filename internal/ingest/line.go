package ingest

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"

	"loadwatch/internal/config"
	"loadwatch/internal/model"
	"loadwatch/internal/normalize"
	"loadwatch/internal/telemetry"
)

// StartLineListener accepts plaintext sample lines over TCP, one agent
// connection per goroutine.
func StartLineListener(ctx context.Context, cfg *config.Manager, out chan<- model.Observation, logger *slog.Logger) {
	current := cfg.Get().Ingest.Line
	if !current.Enabled {
		if logger != nil {
			logger.Info("line ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("line ingest enabled", "addr", current.Addr)
	}
	ln, err := net.Listen("tcp", current.Addr)
	if err != nil {
		if logger != nil {
			logger.Error("line ingest listen error", "err", err)
		}
		return
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				if logger != nil {
					logger.Warn("line ingest accept error", "err", err)
				}
				continue
			}
			go handleLineConn(ctx, conn, cfg, out, logger)
		}
	}()
}

func handleLineConn(ctx context.Context, conn net.Conn, cfg *config.Manager, out chan<- model.Observation, logger *slog.Logger) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		raw, err := ParseLine(line)
		if err != nil {
			telemetry.SamplesRejected.WithLabelValues("malformed_line").Inc()
			continue
		}
		obs, err := normalize.Normalize(raw, cfg.Get())
		if err != nil {
			if logger != nil {
				logger.Warn("line normalize error", "err", err)
			}
			continue
		}
		obs.Source = "line"
		SendNonBlocking(ctx, out, obs, logger)
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
	if err := scanner.Err(); err != nil && logger != nil {
		logger.Warn("line ingest scanner error", "err", err)
	}
}
