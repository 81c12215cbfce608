package ingest

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"

	"vibroscope/internal/config"
)

// StartTCPStream accepts connections carrying back-to-back codec frames.
func StartTCPStream(ctx context.Context, cfg *config.Manager, out Submitter, logger *slog.Logger) net.Listener {
	current := cfg.Get().Ingest.TCPStream
	if !current.Enabled {
		if logger != nil {
			logger.Info("tcp stream ingest disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("tcp stream ingest enabled", "addr", current.Addr)
	}
	ln, err := net.Listen("tcp", current.Addr)
	if err != nil {
		if logger != nil {
			logger.Error("tcp stream listen error", "err", err)
		}
		return nil
	}
	ServeTCPStream(ctx, ln, out, logger)
	return ln
}

// ServeTCPStream runs the accept loop on ln until ctx is cancelled.
func ServeTCPStream(ctx context.Context, ln net.Listener, out Submitter, logger *slog.Logger) {
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
					logger.Warn("tcp stream accept error", "err", err)
				}
				continue
			}
			go handleTCPStreamConn(ctx, conn, out, logger)
		}
	}()
}

func handleTCPStreamConn(ctx context.Context, conn net.Conn, out Submitter, logger *slog.Logger) {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	r := bufio.NewReaderSize(conn, 64<<10)
	for {
		frame, err := DecodeFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil && logger != nil {
				logger.Warn("tcp stream decode error", "remote", conn.RemoteAddr().String(), "err", err)
			}
			return
		}
		if !submit(out, frame, "tcp_stream", logger) {
			return
		}
	}
}
