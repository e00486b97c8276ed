package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const namespace = "chat"

var (
	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests served, by route template and status.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route template.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	commandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Command handler invocations by outcome.",
	}, []string{"command", "result"})

	listenersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_active_connections",
		Help:      "Open listener websocket connections.",
	})

	listenerEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_events_total",
		Help:      "Listener connection lifecycle events and inbound frame ops.",
	}, []string{"event"})

	snapshotsSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshots_sent_total",
		Help:      "Snapshot frames queued to listeners, by topic kind.",
	}, []string{"topic"})

	snapshotsDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshots_dropped_total",
		Help:      "Snapshot frames dropped because a listener queue was full.",
	}, []string{"topic"})

	snapshotLoadDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "snapshot_load_duration_seconds",
		Help:      "Time spent loading one topic snapshot.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"topic", "result"})

	amqpPublishErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "amqp_publish_errors_total",
		Help:      "Failed AMQP publishes.",
	})

	grpcHandledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grpc_server_handled_total",
		Help: "gRPC requests handled by the internal server.",
	}, []string{"grpc_service", "grpc_method", "grpc_code"})
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		commandsTotal,
		listenersActive,
		listenerEventsTotal,
		snapshotsSentTotal,
		snapshotsDroppedTotal,
		snapshotLoadDuration,
		amqpPublishErrorsTotal,
		grpcHandledTotal,
	)
}

// HTTPMetricsMiddleware labels requests by route template so path parameters
// such as chat ids do not become label values.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// GRPCMetricsInterceptor counts unary calls by service, method and status code.
func GRPCMetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		service, method, ok := strings.Cut(strings.TrimPrefix(info.FullMethod, "/"), "/")
		if !ok {
			service, method = "unknown", "unknown"
		}
		grpcHandledTotal.WithLabelValues(service, method, status.Code(err).String()).Inc()
		return resp, err
	}
}

// ObserveCommand records a command outcome.
func ObserveCommand(command string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	commandsTotal.WithLabelValues(command, result).Inc()
}

func ListenerConnected()    { listenersActive.Inc() }
func ListenerDisconnected() { listenersActive.Dec() }

// IncListenerEvent counts a lifecycle event (ws_connect, ws_error) or a frame op.
func IncListenerEvent(event string) {
	listenerEventsTotal.WithLabelValues(event).Inc()
}

// IncSnapshotSent counts one snapshot frame. topic is the topic kind, not the full
// name, to keep label cardinality bounded.
func IncSnapshotSent(topic string) {
	snapshotsSentTotal.WithLabelValues(topic).Inc()
}

func IncSnapshotDropped(topic string) {
	snapshotsDroppedTotal.WithLabelValues(topic).Inc()
}

// ObserveSnapshotLoad records how long loading a topic kind took.
func ObserveSnapshotLoad(topic string, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	snapshotLoadDuration.WithLabelValues(topic, result).Observe(took.Seconds())
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
