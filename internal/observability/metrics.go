package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/signalsfoundry/eva-telemetry-sim/core"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// TelemetryCollector bundles Prometheus metrics for the simulator loop and
// the gRPC feed.
type TelemetryCollector struct {
	gatherer prometheus.Gatherer

	Ticks         prometheus.Counter
	StepDuration  prometheus.Histogram
	Readings      *prometheus.GaugeVec
	Position      prometheus.Gauge
	HazardActive  prometheus.Gauge
	FlareEntries  prometheus.Counter
	InvalidStates prometheus.Counter

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
	Watchers     prometheus.Gauge
}

// NewTelemetryCollector registers the metrics against reg, defaulting to the
// global Prometheus registry when nil. Registering twice against the same
// registry reuses the existing collectors.
func NewTelemetryCollector(reg prometheus.Registerer) (*TelemetryCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &TelemetryCollector{gatherer: gatherer}
	var err error

	if c.Ticks, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eva_sim_ticks_total",
		Help: "Total number of simulation steps applied.",
	}), "eva_sim_ticks_total"); err != nil {
		return nil, err
	}
	if c.StepDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "eva_sim_step_duration_seconds",
		Help:    "Wall-clock time spent computing and publishing one step.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	}), "eva_sim_step_duration_seconds"); err != nil {
		return nil, err
	}
	if c.Readings, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "eva_reading",
		Help: "Latest simulated reading, labeled by reading name.",
	}, []string{"reading"}), "eva_reading"); err != nil {
		return nil, err
	}
	if c.Position, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eva_route_position",
		Help: "Current position along the patrol route.",
	}), "eva_route_position"); err != nil {
		return nil, err
	}
	if c.HazardActive, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eva_hazard_active",
		Help: "1 while the solar-flare hazard is active, else 0.",
	}), "eva_hazard_active"); err != nil {
		return nil, err
	}
	if c.FlareEntries, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eva_flare_entries_total",
		Help: "Number of transitions into the solar-flare phase.",
	}), "eva_flare_entries_total"); err != nil {
		return nil, err
	}
	if c.InvalidStates, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eva_invalid_state_total",
		Help: "Number of steps rejected because the state violated an invariant.",
	}), "eva_invalid_state_total"); err != nil {
		return nil, err
	}

	if c.RPCRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eva_feed_requests_total",
		Help: "Total number of handled feed RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "eva_feed_requests_total"); err != nil {
		return nil, err
	}
	if c.RPCDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eva_feed_request_duration_seconds",
		Help:    "Feed RPC latency in seconds. Streams are measured until they close.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
	}, []string{"service", "method"}), "eva_feed_request_duration_seconds"); err != nil {
		return nil, err
	}
	if c.Watchers, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eva_feed_watchers",
		Help: "Number of open WatchSnapshots streams.",
	}), "eva_feed_watchers"); err != nil {
		return nil, err
	}

	return c, nil
}

// ObserveStep records one applied step and the readings it produced.
func (c *TelemetryCollector) ObserveStep(snap core.Snapshot, took time.Duration) {
	if c == nil {
		return
	}
	c.Ticks.Inc()
	c.StepDuration.Observe(took.Seconds())
	c.Position.Set(float64(snap.Position))
	if snap.HazardActive {
		c.HazardActive.Set(1)
	} else {
		c.HazardActive.Set(0)
	}
	c.Readings.WithLabelValues("radiation_msv_h").Set(snap.RadiationLevel)
	c.Readings.WithLabelValues("heart_rate_bpm").Set(snap.HeartRate)
	c.Readings.WithLabelValues("oxygen_pct").Set(snap.OxygenLevel)
	c.Readings.WithLabelValues("solar_exposure_pct").Set(snap.SolarExposure)
	c.Readings.WithLabelValues("suit_battery_pct").Set(snap.SuitBattery)
	c.Readings.WithLabelValues("external_temp_c").Set(float64(snap.ExternalTemp))
	c.Readings.WithLabelValues("shelter_distance_m").Set(float64(snap.ShelterDistance))
}

// FlareEntered counts a transition into the flare phase.
func (c *TelemetryCollector) FlareEntered() {
	if c == nil {
		return
	}
	c.FlareEntries.Inc()
}

// InvalidState counts a rejected step.
func (c *TelemetryCollector) InvalidState() {
	if c == nil {
		return
	}
	c.InvalidStates.Inc()
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *TelemetryCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		c.observeRPC(fullMethod, err, time.Since(start))
		return resp, err
	}
}

// StreamServerInterceptor records request counts and stream lifetimes, and
// tracks open watchers.
func (c *TelemetryCollector) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		if c != nil && c.Watchers != nil {
			c.Watchers.Inc()
			defer c.Watchers.Dec()
		}
		err := handler(srv, ss)

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		c.observeRPC(fullMethod, err, time.Since(start))
		return err
	}
}

func (c *TelemetryCollector) observeRPC(fullMethod string, err error, took time.Duration) {
	if c == nil {
		return
	}
	service, method := SplitMethod(fullMethod)
	code := status.Code(err).String()
	if c.RPCRequests != nil {
		c.RPCRequests.WithLabelValues(service, method, code).Inc()
	}
	if c.RPCDurations != nil {
		c.RPCDurations.WithLabelValues(service, method).Observe(took.Seconds())
	}
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *TelemetryCollector) Gatherer() prometheus.Gatherer {
	if c == nil || c.gatherer == nil {
		return prometheus.DefaultGatherer
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *TelemetryCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Gatherer(), promhttp.HandlerOpts{})
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

func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	return register(reg, c, name)
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge, name string) (prometheus.Gauge, error) {
	return register(reg, g, name)
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	return register(reg, h, name)
}

func registerGaugeVec(reg prometheus.Registerer, v *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	return register(reg, v, name)
}

func registerCounterVec(reg prometheus.Registerer, v *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	return register(reg, v, name)
}

func registerHistogramVec(reg prometheus.Registerer, v *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	return register(reg, v, name)
}
