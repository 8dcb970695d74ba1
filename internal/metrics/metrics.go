// Package metrics は Prometheus 形式のメトリクスを収集・公開します。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "photolog"

// Metrics はアプリ専用のレジストリとコレクターを保持します。
// auth.Recorder を満たすため、認証マネージャーにそのまま渡せます。
type Metrics struct {
	registry        *prometheus.Registry
	loginAttempts   *prometheus.CounterVec
	sessionRefresh  prometheus.Counter
	gateRejections  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	jobsEnqueued    *prometheus.CounterVec
}

// New はコレクターを登録済みの Metrics を作成します。
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		sessionRefresh: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "session_refreshes_total",
			Help:      "Sessions reissued because they were close to expiry.",
		}),
		gateRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "gate_rejections_total",
			Help:      "Requests to protected routes rejected without a valid session.",
		}, []string{"client"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		jobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "enqueued_total",
			Help:      "Background jobs enqueued by type.",
		}, []string{"type"}),
	}
	m.registry.MustRegister(
		m.loginAttempts,
		m.sessionRefresh,
		m.gateRejections,
		m.requestDuration,
		m.jobsEnqueued,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry は内部のレジストリを返します。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// LoginAttempt はログイン試行の結果を記録します。
func (m *Metrics) LoginAttempt(result string) {
	m.loginAttempts.WithLabelValues(result).Inc()
}

// SessionRefreshed はセッションの再発行を記録します。
func (m *Metrics) SessionRefreshed() {
	m.sessionRefresh.Inc()
}

// GateRejected は未ログインによる拒否を記録します。client は "browser" または "api" です。
func (m *Metrics) GateRejected(client string) {
	m.gateRejections.WithLabelValues(client).Inc()
}

// JobEnqueued はジョブの投入を記録します。
func (m *Metrics) JobEnqueued(taskType string) {
	m.jobsEnqueued.WithLabelValues(taskType).Inc()
}

// Middleware はリクエスト処理時間を計測する gin ミドルウェアを返します。
// ラベルにはパスではなくルートのパターンを使い、未登録のパスは "unmatched" にまとめます。
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler は /metrics 用のハンドラーを返します。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
