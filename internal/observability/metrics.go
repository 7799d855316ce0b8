package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/meteor-showers/model"
)

// Collector bundles Prometheus metrics for the meteor engine and provides
// helpers to wire them into gRPC servers and HTTP handlers. It satisfies the
// metrics recorder interfaces of the catalog, stream and update packages.
type Collector struct {
	gatherer prometheus.Gatherer

	RPCRequests   *prometheus.CounterVec
	RPCDurations  *prometheus.HistogramVec
	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	CatalogShowers    prometheus.Gauge
	CatalogGeneration prometheus.Gauge

	UpdateAttempts   *prometheus.CounterVec
	UpdateDurations  prometheus.Histogram
	LastUpdateSecond prometheus.Gauge

	ActiveStreams   prometheus.Gauge
	SpawnedStreams  prometheus.Counter
	RetiredStreams  prometheus.Counter
	AdvanceDuration prometheus.Histogram
}

// NewCollector registers engine metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.RPCRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meteors_rpc_requests_total",
		Help: "Total number of handled gRPC calls, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "meteors_rpc_requests_total"); err != nil {
		return nil, err
	}
	if c.RPCDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meteors_rpc_request_duration_seconds",
		Help:    "gRPC latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"service", "method"}), "meteors_rpc_request_duration_seconds"); err != nil {
		return nil, err
	}
	if c.HTTPRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meteors_http_requests_total",
		Help: "Total number of handled HTTP requests, labeled by route, method, and status code.",
	}, []string{"route", "method", "code"}), "meteors_http_requests_total"); err != nil {
		return nil, err
	}
	if c.HTTPDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meteors_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"}), "meteors_http_request_duration_seconds"); err != nil {
		return nil, err
	}

	if c.CatalogShowers, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meteors_catalog_showers",
		Help: "Number of showers in the active catalog.",
	}), "meteors_catalog_showers"); err != nil {
		return nil, err
	}
	if c.CatalogGeneration, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meteors_catalog_generation",
		Help: "Number of catalog replacements since start.",
	}), "meteors_catalog_generation"); err != nil {
		return nil, err
	}

	if c.UpdateAttempts, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meteors_update_attempts_total",
		Help: "Catalog update attempts, labeled by terminal state.",
	}, []string{"state"}), "meteors_update_attempts_total"); err != nil {
		return nil, err
	}
	if c.UpdateDurations, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "meteors_update_duration_seconds",
		Help:    "Duration of catalog update attempts.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}), "meteors_update_duration_seconds"); err != nil {
		return nil, err
	}
	if c.LastUpdateSecond, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meteors_last_update_timestamp_seconds",
		Help: "Unix time of the last successful catalog check.",
	}), "meteors_last_update_timestamp_seconds"); err != nil {
		return nil, err
	}

	if c.ActiveStreams, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meteors_active_streams",
		Help: "Live meteor streams after the last frame.",
	}), "meteors_active_streams"); err != nil {
		return nil, err
	}
	if c.SpawnedStreams, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meteors_streams_spawned_total",
		Help: "Meteor streams spawned.",
	}), "meteors_streams_spawned_total"); err != nil {
		return nil, err
	}
	if c.RetiredStreams, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meteors_streams_retired_total",
		Help: "Meteor streams retired after expiry or catalog removal.",
	}), "meteors_streams_retired_total"); err != nil {
		return nil, err
	}
	if c.AdvanceDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "meteors_advance_duration_seconds",
		Help:    "Wall time spent advancing the stream population per frame.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}), "meteors_advance_duration_seconds"); err != nil {
		return nil, err
	}

	return c, nil
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *Collector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
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
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveHTTP records one served HTTP request.
func (c *Collector) ObserveHTTP(route, method string, code int, d time.Duration) {
	if c == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	c.HTTPRequests.WithLabelValues(route, method, fmt.Sprint(code)).Inc()
	c.HTTPDurations.WithLabelValues(route, method).Observe(d.Seconds())
}

// SetCatalog records the size and generation of the active catalog.
func (c *Collector) SetCatalog(showers int, generation uint64) {
	if c == nil {
		return
	}
	c.CatalogShowers.Set(float64(showers))
	c.CatalogGeneration.Set(float64(generation))
}

// ObserveUpdate records the terminal state and duration of an update attempt.
func (c *Collector) ObserveUpdate(state model.UpdateState, took time.Duration) {
	if c == nil {
		return
	}
	c.UpdateAttempts.WithLabelValues(state.String()).Inc()
	c.UpdateDurations.Observe(took.Seconds())
}

// SetLastUpdate records the last successful catalog check.
func (c *Collector) SetLastUpdate(t time.Time) {
	if c == nil {
		return
	}
	c.LastUpdateSecond.Set(float64(t.Unix()))
}

// ObserveAdvance records one frame of the stream population.
func (c *Collector) ObserveAdvance(spawned, retired, active int, took time.Duration) {
	if c == nil {
		return
	}
	c.SpawnedStreams.Add(float64(spawned))
	c.RetiredStreams.Add(float64(retired))
	c.ActiveStreams.Set(float64(active))
	c.AdvanceDuration.Observe(took.Seconds())
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
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

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
