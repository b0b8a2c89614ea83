// Package main implements the rulesync syncer.
// The syncer reconciles the IDS disable list with the protocols active on
// the monitored link, once (cron mode) or on an interval, and exposes a gRPC
// control service for on-demand cycles and reloads.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/HatiCode/rulesync/cmd/syncer/config"
	"github.com/HatiCode/rulesync/cmd/syncer/control"
	"github.com/HatiCode/rulesync/cmd/syncer/logger"
	"github.com/HatiCode/rulesync/cmd/syncer/metrics"
	"github.com/HatiCode/rulesync/cmd/syncer/router"
	"github.com/HatiCode/rulesync/pkg/httpx"
	"github.com/HatiCode/rulesync/pkg/reload"
	"github.com/HatiCode/rulesync/pkg/rulesync"
)

func main() {
	cfg := config.ParseFlags()
	log := logger.New(cfg)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Trigger != "" {
		tctx, cancel := context.WithTimeout(ctx, cfg.ReloadTimeout+cfg.IOTimeout*4)
		out, err := trigger(tctx, cfg.GRPCAddr, cfg.Trigger)
		cancel()
		if err != nil {
			log.Error("trigger failed", "op", cfg.Trigger, "addr", cfg.GRPCAddr, "error", err)
			os.Exit(1)
		}
		fmt.Println(protojson.MarshalOptions{Multiline: true}.Format(out))
		os.Exit(triggerExitCode(cfg.Trigger, out))
	}

	log.Info("starting rulesync syncer",
		"version", "v0.1.0",
		"rule_dir", cfg.RuleDir,
		"disable_file", cfg.DisablePath,
		"source", cfg.Source,
		"once", cfg.Once,
	)

	// The textfile collector rejects series the node exporter already
	// exports, so runtime collectors are only added when serving /metrics.
	reg := prometheus.NewRegistry()
	if !cfg.Once {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m := metrics.New(reg)

	source, closeSource, err := newSource(cfg, log)
	if err != nil {
		log.Error("failed to initialize active protocol source", "error", err)
		os.Exit(1)
	}
	defer closeSource()

	reloader := reload.Parse(cfg.ReloadCommand)
	ctrl, err := rulesync.New(rulesync.Config{
		RuleDir:       cfg.RuleDir,
		WhitelistPath: cfg.WhitelistPath,
		ArtifactPath:  cfg.DisablePath,
		IOTimeout:     cfg.IOTimeout,
		ReloadTimeout: cfg.ReloadTimeout,
	}, source, reloader, m, log)
	if err != nil {
		log.Error("invalid sync configuration", "error", err)
		os.Exit(1)
	}

	runner := NewRunner(ctrl, cfg.MetricsTextfile, reg, log)

	if cfg.Once {
		res, _ := runner.Once(ctx)
		closeSource()
		os.Exit(exitCode(res.State))
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(control.UnaryServerInterceptor(m)))
	control.RegisterControlServer(grpcServer, control.NewService(ctrl, log))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(control.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCListen)
	if err != nil {
		log.Error("failed to listen", "error", err)
		os.Exit(1)
	}

	go func() {
		log.Info("grpc server listening", "address", cfg.GRPCListen)
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("grpc server failed", "error", err)
			stop()
		}
	}()

	httpMux := router.SetupRoutes(ctrl, reg, log)
	httpServer := httpx.NewServer(cfg.Listen, httpx.LoggingMiddleware(log)(httpMux), log)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := runner.Run(ctx, cfg.Interval); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("sync loop failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("received shutdown signal")

	healthServer.Shutdown()

	log.Info("shutting down grpc server")
	grpcServer.GracefulStop()

	log.Info("shutting down http server")
	if err := httpServer.Stop(10 * time.Second); err != nil {
		log.Error("http server shutdown error", "error", err)
	}

	<-loopDone
	log.Info("shutdown complete")
}
