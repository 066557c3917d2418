package infra

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"migration-service/internal/domain"
)

// Metrics はマイグレーション操作のPrometheusメトリクス。
type Metrics struct {
	registry   *prometheus.Registry
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	generated  prometheus.Counter
}

// NewMetrics はメトリクスを生成し、専用のRegistryに登録する。
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "migration_executions_total",
			Help: "Number of migration phase executions by phase and result.",
		}, []string{"phase", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "migration_execution_duration_seconds",
			Help:    "Duration of migration phase executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase"}),
		generated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "migration_generated_total",
			Help: "Number of generated migration files.",
		}),
	}
	m.registry.MustRegister(m.executions, m.duration, m.generated)
	return m
}

// ObserveExecution はフェーズ実行の結果と所要時間を記録する。
func (m *Metrics) ObserveExecution(phase domain.Phase, result string, duration time.Duration) {
	m.executions.WithLabelValues(string(phase), result).Inc()
	m.duration.WithLabelValues(string(phase)).Observe(duration.Seconds())
}

// IncGenerated は生成されたファイル数を加算する。
func (m *Metrics) IncGenerated() {
	m.generated.Inc()
}

// Handler は/metrics用のHTTPハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry はメトリクスのRegistryを返す。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
