// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordTaskCreated()
	RecordUpload(result string)
	RecordUploadLatency(duration time.Duration)
	RecordZohoSync(result string)
}

// アップロード・Zoho同期の結果ラベル。
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus    *prometheus.CounterVec
	tasksCreated  prometheus.Counter
	uploads       *prometheus.CounterVec
	uploadLatency prometheus.Histogram
	zohoSyncs     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		tasksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskman_tasks_created_total",
			Help: "作成されたタスクの合計数",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskman_upload_total",
			Help: "ファイルアップロードの結果別合計数",
		}, []string{"result"}),
		uploadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskman_upload_latency_seconds",
			Help:    "ファイルアップロードのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		zohoSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskman_zoho_sync_total",
			Help: "Zoho CRM同期の結果別合計数",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.tasksCreated,
		c.uploads,
		c.uploadLatency,
		c.zohoSyncs,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordTaskCreated はタスク作成を記録する。
func (c *Collector) RecordTaskCreated() {
	c.tasksCreated.Inc()
}

// RecordUpload はアップロードの結果を記録する。
func (c *Collector) RecordUpload(result string) {
	c.uploads.WithLabelValues(result).Inc()
}

// RecordUploadLatency はアップロードのレイテンシを記録する。
func (c *Collector) RecordUploadLatency(duration time.Duration) {
	c.uploadLatency.Observe(duration.Seconds())
}

// RecordZohoSync はZoho同期の結果を記録する。
func (c *Collector) RecordZohoSync(result string) {
	c.zohoSyncs.WithLabelValues(result).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
