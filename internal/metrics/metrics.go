// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// tracker・lodestone・jobs・refreshの各Recorderを満たす。
type Collector struct {
	refreshTotal    *prometheus.CounterVec
	refreshLatency  *prometheus.HistogramVec
	sourceRequests  *prometheus.CounterVec
	sourceLatency   prometheus.Histogram
	sourceThrottled prometheus.Counter
	breakerState    *prometheus.GaugeVec
	jobsEnqueued    *prometheus.CounterVec
	jobsRemoved     *prometheus.CounterVec
	jobRuns         *prometheus.CounterVec
	jobLatency      prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fftracker_refresh_total",
			Help: "種別・結果別のエンティティ更新数",
		}, []string{"kind", "result"}),
		refreshLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fftracker_refresh_duration_seconds",
			Help:    "エンティティ更新の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		sourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fftracker_lodestone_requests_total",
			Help: "エンドポイント・ステータスコード別のLodestoneリクエスト数",
		}, []string{"endpoint", "status_code"}),
		sourceLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fftracker_lodestone_latency_seconds",
			Help:    "Lodestoneリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sourceThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fftracker_lodestone_throttled_total",
			Help: "Lodestoneにスロットリングされた回数",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fftracker_lodestone_breaker_state",
			Help: "サーキットブレーカーの状態（現在の状態のみ1）",
		}, []string{"name", "state"}),
		jobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fftracker_jobs_enqueued_total",
			Help: "タスク・優先度別の登録ジョブ数",
		}, []string{"task", "priority"}),
		jobsRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fftracker_jobs_removed_total",
			Help: "タスク別の削除ジョブ数",
		}, []string{"task"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fftracker_job_runs_total",
			Help: "タスク・結果別のワーカー実行数",
		}, []string{"task", "result"}),
		jobLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fftracker_job_duration_seconds",
			Help:    "ワーカーでのジョブ実行の所要時間（秒）",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}

	reg.MustRegister(
		c.refreshTotal,
		c.refreshLatency,
		c.sourceRequests,
		c.sourceLatency,
		c.sourceThrottled,
		c.breakerState,
		c.jobsEnqueued,
		c.jobsRemoved,
		c.jobRuns,
		c.jobLatency,
	)

	return c
}

// RecordRefresh はエンティティ更新の結果を記録する。
func (c *Collector) RecordRefresh(kind string, result string, duration time.Duration) {
	c.refreshTotal.WithLabelValues(kind, result).Inc()
	c.refreshLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordSourceRequest はLodestoneへのリクエストを記録する。statusCodeが0の場合は通信エラー。
func (c *Collector) RecordSourceRequest(endpoint string, statusCode int, duration time.Duration) {
	c.sourceRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.sourceLatency.Observe(duration.Seconds())
}

// RecordSourceThrottled はスロットリングを記録する。
func (c *Collector) RecordSourceThrottled() {
	c.sourceThrottled.Inc()
}

// breakerStates はgobreakerの状態名。
var breakerStates = []string{"closed", "half-open", "open"}

// RecordBreakerState はサーキットブレーカーの現在の状態を記録する。
func (c *Collector) RecordBreakerState(name string, state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.breakerState.WithLabelValues(name, s).Set(v)
	}
}

// RecordJobEnqueued はジョブの登録を記録する。
func (c *Collector) RecordJobEnqueued(task string, priority int) {
	c.jobsEnqueued.WithLabelValues(task, strconv.Itoa(priority)).Inc()
}

// RecordJobRemoved はジョブの削除を記録する。
func (c *Collector) RecordJobRemoved(task string) {
	c.jobsRemoved.WithLabelValues(task).Inc()
}

// RecordJobRun はワーカーでのジョブ実行結果を記録する。
func (c *Collector) RecordJobRun(task, result string, duration time.Duration) {
	c.jobRuns.WithLabelValues(task, result).Inc()
	c.jobLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
