package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/docparse/internal/app"
	"github.com/joseph-ayodele/docparse/internal/async"
	"github.com/joseph-ayodele/docparse/internal/common"
	"github.com/joseph-ayodele/docparse/internal/ingest"
	"github.com/joseph-ayodele/docparse/internal/maintenance"
	"github.com/joseph-ayodele/docparse/internal/pipeline"
)

func main() {
	_ = godotenv.Load()

	var (
		dirs        = flag.String("dirs", "", "comma separated directories to watch (required)")
		backendName = flag.String("b", app.DefaultBackend, "backend to parse with")
		configPath  = flag.String("c", "", "backend config file")
		initialScan = flag.Bool("initial-scan", true, "queue files already present in the watched directories")
		force       = flag.Bool("force", false, "re-parse files whose outputs are up to date")
	)
	flag.Parse()

	cfg := common.LoadConfig()
	logger := app.NewLogger(os.Stdout, cfg.Log.Level, "json")
	slog.SetDefault(logger)

	roots := splitList(*dirs)
	if len(roots) == 0 {
		logger.Error("missing -dirs")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{
		Backend:      *backendName,
		ConfigPath:   *configPath,
		SkipReadable: true,
		InspectPDF:   true,
	}, logger)
	if err != nil {
		logger.Error("failed to initialise", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()

	// Health service
	lis, err := net.Listen("tcp", cfg.Server.HealthAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.HealthAddr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if err := a.Orchestrator.Preflight(ctx); err != nil {
		logger.Error("backend preflight failed", "backend", a.Spec.Backend.ID(), "error", err)
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	healthServer.SetServingStatus("", status)
	healthServer.SetServingStatus(a.Spec.Backend.ID(), status)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
		}
	}()

	prune, err := maintenance.StartPruneJob(ctx, a.Store, cfg.Watch.PruneSchedule, cfg.Watch.PruneMaxAge, logger)
	if err != nil {
		logger.Error("failed to schedule cache prune", "error", err)
		os.Exit(1)
	}

	queue := async.NewWorkerQueue(a.Orchestrator, logger,
		async.WithWorkers(cfg.Watch.Workers),
		async.WithQueueSize(cfg.Watch.QueueSize),
		async.WithResultHandler(func(_ context.Context, task async.Task, res pipeline.Result) {
			if res.Err != nil {
				if res.Kind().BackendFatal() {
					healthServer.SetServingStatus(a.Spec.Backend.ID(), grpc_health_v1.HealthCheckResponse_NOT_SERVING)
				}
				return
			}
			out := a.WriteOutputs([]pipeline.Result{res})
			if out[0] != "" {
				logger.Info("output written", "path", task.Path, "output", out[0], "cached", res.Cached)
			}
		}),
	)

	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       roots,
		InitialScan: *initialScan,
		Debounce:    cfg.Watch.Debounce,
		SkipHidden:  true,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to start watcher", "error", err)
		os.Exit(1)
	}
	logger.Info("parse-watch running", "roots", roots, "backend", a.Spec.Backend.ID(), "health_addr", cfg.Server.HealthAddr)

loop:
	for {
		select {
		case p, ok := <-events:
			if !ok {
				break loop
			}
			if !*force {
				if out, fresh := a.Writer.Fresh(p); fresh {
					logger.Debug("outputs up to date", "path", p, "output", out)
					continue
				}
			}
			if err := queue.Enqueue(ctx, async.Task{Path: p, Force: *force}); err != nil {
				logger.Warn("enqueue failed", "path", p, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Error("watcher error", "error", err)
		case <-ctx.Done():
			break loop
		}
	}

	logger.Info("shutting down...")
	healthServer.Shutdown()
	<-prune.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	queue.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
