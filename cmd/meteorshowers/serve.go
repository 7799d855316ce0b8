package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/signalsfoundry/meteor-showers/catalog"
	"github.com/signalsfoundry/meteor-showers/core"
	"github.com/signalsfoundry/meteor-showers/internal/api"
	"github.com/signalsfoundry/meteor-showers/internal/logging"
	"github.com/signalsfoundry/meteor-showers/internal/observability"
)

// healthService is the gRPC health service name reported for the engine.
const healthService = "meteorshowers.Engine"

func (c *cli) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine with its HTTP and gRPC servers",
		RunE:  c.runServe,
	}
	cmd.Flags().String("http-addr", "", "HTTP API listen address")
	cmd.Flags().String("grpc-addr", "", "gRPC health listen address")
	cmd.Flags().Float64("time-rate", 0, "simulated seconds per wall-clock second")
	cmd.Flags().Uint64("seed", 0, "stream spawn seed (0 picks a random seed)")
	cmd.Flags().Bool("watch", true, "reload the catalog when its file changes")
	_ = c.v.BindPFlag("http_addr", cmd.Flags().Lookup("http-addr"))
	_ = c.v.BindPFlag("grpc_addr", cmd.Flags().Lookup("grpc-addr"))
	_ = c.v.BindPFlag("time_rate", cmd.Flags().Lookup("time-rate"))
	_ = c.v.BindPFlag("seed", cmd.Flags().Lookup("seed"))
	_ = c.v.BindPFlag("watch_catalog", cmd.Flags().Lookup("watch"))
	return cmd
}

func (c *cli) runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.LoggingConfig())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector, err := observability.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("initialising metrics: %w", err)
	}

	rt, err := buildRuntime(ctx, cfg, log, collector, time.Now().UTC())
	if err != nil {
		return err
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingConfig(rt.store.Version()), log)
	if err != nil {
		return fmt.Errorf("initialising tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	grpcServer, healthSrv := newGRPCServer(collector, log)
	reportHealth(healthSrv, rt.store)
	unsubscribe := rt.store.Subscribe(func(catalog.Event) { reportHealth(healthSrv, rt.store) })
	defer unsubscribe()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listening for gRPC on %s: %w", cfg.GRPCAddr, err)
	}

	gin.SetMode(gin.ReleaseMode)
	httpServer := api.New(rt.engine,
		api.WithAddr(cfg.HTTPAddr),
		api.WithMetrics(collector),
		api.WithObserver(core.Observer{LatitudeDeg: cfg.Observer.Latitude, LongitudeDeg: cfg.Observer.Longitude}),
		api.WithLogger(log),
	)

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info(ctx, "starting gRPC server", logging.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.Run(ctx); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		rt.engine.Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		log.Error(ctx, "server exited", logging.Err(runErr))
		stop()
	}

	log.Info(context.Background(), "shutting down")
	healthSrv.Shutdown()
	grpcServer.GracefulStop()
	wg.Wait()
	return runErr
}

// newGRPCServer builds the gRPC server with health and reflection services,
// request metrics and tracing.
func newGRPCServer(collector *observability.Collector, log logging.Logger) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			observability.RequestIDUnaryServerInterceptor(log),
			collector.UnaryServerInterceptor(),
			observability.TracingUnaryServerInterceptor(),
		),
	)
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(server, healthSrv)
	reflection.Register(server)
	return server, healthSrv
}

// reportHealth marks the engine SERVING once a catalog is loaded.
func reportHealth(h *health.Server, store *catalog.Store) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if store.Generation() > 0 && len(store.Showers()) > 0 {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.SetServingStatus(healthService, status)
	h.SetServingStatus("", status)
}
