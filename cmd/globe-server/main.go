package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/membership-globe/internal/api"
	"github.com/signalsfoundry/membership-globe/internal/config"
	"github.com/signalsfoundry/membership-globe/internal/logging"
	"github.com/signalsfoundry/membership-globe/internal/observability"
	"github.com/signalsfoundry/membership-globe/internal/refdata"
	"github.com/signalsfoundry/membership-globe/internal/scene"
	"github.com/signalsfoundry/membership-globe/kb"
	"github.com/signalsfoundry/membership-globe/model"
)

type flagValues struct {
	envFile           string
	grpcAddr          string
	metricsAddr       string
	countriesPath     string
	organizationsPath string
}

func main() {
	var fv flagValues
	flag.StringVar(&fv.envFile, "env-file", config.DefaultEnvFile, "Optional dotenv file read before the environment")
	flag.StringVar(&fv.grpcAddr, "grpc-addr", "", "TCP address the gRPC server listens on (overrides GLOBE_GRPC_ADDR)")
	flag.StringVar(&fv.metricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics (overrides GLOBE_METRICS_ADDR)")
	flag.StringVar(&fv.countriesPath, "countries", "", "Country JSON file; the embedded dataset is used when empty")
	flag.StringVar(&fv.organizationsPath, "organizations", "", "Organization YAML file; the embedded metadata is used when empty")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(fv.envFile)
	if err != nil {
		log.Error(ctx, "invalid configuration", logging.Err(err))
		os.Exit(1)
	}
	cfg = applyFlags(cfg, fv)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.GRPCAddr), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "server exited", logging.Err(err))
		os.Exit(1)
	}
}

// applyFlags lets non-empty command line values win over the environment.
func applyFlags(cfg config.Config, fv flagValues) config.Config {
	if fv.grpcAddr != "" {
		cfg.GRPCAddr = fv.grpcAddr
	}
	if fv.metricsAddr != "" {
		cfg.MetricsAddr = fv.metricsAddr
	}
	if fv.countriesPath != "" {
		cfg.CountriesPath = fv.countriesPath
	}
	if fv.organizationsPath != "" {
		cfg.OrganizationsPath = fv.organizationsPath
	}
	return cfg
}

// run serves MembershipService on lis until ctx is done.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener) error {
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewGlobeCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}

	store, err := loadKnowledgeBase(ctx, cfg, log)
	if err != nil {
		return err
	}
	collector.SetCountries(len(store.ListCountries()))

	st := scene.NewState(store,
		scene.WithLogger(log),
		scene.WithMetricsRecorder(collector),
		scene.WithTracer(observability.Tracer()),
		scene.WithProjection(cfg.Projection),
	)
	if err := st.Watch(ctx); err != nil {
		return fmt.Errorf("initial scene: %w", err)
	}
	defer st.Close()

	metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log)

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			api.RequestIDUnaryServerInterceptor(log),
			api.TracingUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
		),
	)
	api.RegisterMembershipServer(server, api.NewService(store, st, log))

	log.Info(ctx, "starting gRPC server",
		logging.String("addr", lis.Addr().String()),
		logging.Any("active", store.ActiveOrganizations()),
	)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down gRPC server")
		server.GracefulStop()
		err = nil
	case err = <-serveErr:
		if errors.Is(err, grpc.ErrServerStopped) {
			err = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return err
}

func loadKnowledgeBase(ctx context.Context, cfg config.Config, log logging.Logger) (*kb.KnowledgeBase, error) {
	ds, err := refdata.Load(cfg.CountriesPath, cfg.OrganizationsPath)
	if err != nil {
		return nil, fmt.Errorf("load reference data: %w", err)
	}
	store := kb.NewKnowledgeBase(kb.WithMaxActive(cfg.MaxActive))
	if err := refdata.Populate(store, ds); err != nil {
		return nil, fmt.Errorf("populate knowledge base: %w", err)
	}

	if len(cfg.Active) > 0 {
		ids := make([]model.OrganizationID, len(cfg.Active))
		for i, s := range cfg.Active {
			ids[i] = model.ParseOrganizationID(s)
		}
		if err := store.SetActive(ids); err != nil {
			return nil, fmt.Errorf("initial selection: %w", err)
		}
	}

	log.Info(ctx, "loaded reference data",
		logging.Int("countries", len(ds.Countries)),
		logging.Int("organizations", len(ds.Organizations)),
		logging.String("countries_path", cfg.CountriesPath),
		logging.String("organizations_path", cfg.OrganizationsPath),
	)
	return store, nil
}

func serveMetrics(addr string, collector *observability.GlobeCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
