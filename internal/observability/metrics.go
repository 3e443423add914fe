package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// GlobeCollector bundles the Prometheus metrics of the membership service:
// RPC traffic plus the shape of the current scene.
type GlobeCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	Recomputes        *prometheus.CounterVec
	TreeBuildDuration *prometheus.HistogramVec
	TreeNodes         *prometheus.GaugeVec
	TreeUnconnected   *prometheus.GaugeVec

	ActiveOrganizations prometheus.Gauge
	Links               prometheus.Gauge
	SharedLinks         prometheus.Gauge
	Countries           prometheus.Gauge

	mu         sync.Mutex
	treeLabels map[string]struct{}
}

// NewGlobeCollector registers the metrics against reg, defaulting to the
// global registry when nil. Registering twice against the same registry
// reuses the existing collectors.
func NewGlobeCollector(reg prometheus.Registerer) (*GlobeCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &GlobeCollector{gatherer: gatherer, treeLabels: make(map[string]struct{})}
	var err error
	if c.RPCRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_rpc_requests_total",
		Help: "Handled membership RPCs by service, method and gRPC status code.",
	}, []string{"service", "method", "code"})); err != nil {
		return nil, err
	}
	if c.RPCDurations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "globe_rpc_request_duration_seconds",
		Help:    "Membership RPC latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}, []string{"service", "method"})); err != nil {
		return nil, err
	}
	if c.Recomputes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "globe_scene_recomputes_total",
		Help: "Scene recomputations by result (ok or error).",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if c.TreeBuildDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "globe_tree_build_duration_seconds",
		Help:    "Time spent building one organization's link tree.",
		Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"organization"})); err != nil {
		return nil, err
	}
	if c.TreeNodes, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "globe_tree_nodes",
		Help: "Member countries in the link tree of each active organization.",
	}, []string{"organization"})); err != nil {
		return nil, err
	}
	if c.TreeUnconnected, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "globe_tree_unconnected_nodes",
		Help: "Tree nodes left without a parent.",
	}, []string{"organization"})); err != nil {
		return nil, err
	}
	if c.ActiveOrganizations, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "globe_active_organizations",
		Help: "Organizations currently selected for display.",
	})); err != nil {
		return nil, err
	}
	if c.Links, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "globe_links",
		Help: "Drawn links after merging shared edges.",
	})); err != nil {
		return nil, err
	}
	if c.SharedLinks, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "globe_shared_links",
		Help: "Links carried by more than one organization.",
	})); err != nil {
		return nil, err
	}
	if c.Countries, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "globe_countries",
		Help: "Countries in the loaded reference data.",
	})); err != nil {
		return nil, err
	}
	return c, nil
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *GlobeCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// Handler exposes a /metrics handler for the collector's registry.
func (c *GlobeCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveTree records one tree build.
func (c *GlobeCollector) ObserveTree(org string, nodes, unconnected int, took time.Duration) {
	if c == nil {
		return
	}
	c.TreeBuildDuration.WithLabelValues(org).Observe(took.Seconds())
	c.TreeNodes.WithLabelValues(org).Set(float64(nodes))
	c.TreeUnconnected.WithLabelValues(org).Set(float64(unconnected))

	c.mu.Lock()
	c.treeLabels[org] = struct{}{}
	c.mu.Unlock()
}

// SetSceneCounts updates the scene gauges. Per-organization tree gauges for
// organizations no longer in active are dropped.
func (c *GlobeCollector) SetSceneCounts(active []string, links, shared int) {
	if c == nil {
		return
	}
	c.ActiveOrganizations.Set(float64(len(active)))
	c.Links.Set(float64(links))
	c.SharedLinks.Set(float64(shared))

	keep := make(map[string]struct{}, len(active))
	for _, org := range active {
		keep[org] = struct{}{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for org := range c.treeLabels {
		if _, ok := keep[org]; ok {
			continue
		}
		c.TreeNodes.DeleteLabelValues(org)
		c.TreeUnconnected.DeleteLabelValues(org)
		delete(c.treeLabels, org)
	}
}

// ObserveRecompute counts a finished recomputation.
func (c *GlobeCollector) ObserveRecompute(err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Recomputes.WithLabelValues(result).Inc()
}

// SetCountries records the size of the reference data.
func (c *GlobeCollector) SetCountries(n int) {
	if c == nil {
		return
	}
	c.Countries.Set(float64(n))
}

// SplitMethod parses "/pkg.Service/Method" into ("Service", "Method"),
// returning "unknown" for parts it cannot find.
func SplitMethod(fullMethod string) (string, string) {
	parts := strings.Split(strings.TrimPrefix(fullMethod, "/"), "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

// register adds col to reg, returning the already registered collector of the
// same type when there is one.
func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		var zero T
		return zero, err
	}
	return col, nil
}
