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
// ストアAPIクライアントやサービス層から利用する。
type MetricsCollector interface {
	RecordUpstreamCall(endpoint string, statusCode int, duration time.Duration)
	RecordValidationRejected(form string)
	RecordSessionCreated()
	RecordSessionDeleted()
	RecordImageFetch(result string)
	RecordInflightRejected()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamCalls      *prometheus.CounterVec
	upstreamLatency    *prometheus.HistogramVec
	validationRejected *prometheus.CounterVec
	sessionsCreated    prometheus.Counter
	sessionsDeleted    prometheus.Counter
	imageFetch         *prometheus.CounterVec
	inflightRejected   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_upstream_requests_total",
			Help: "ストアAPI呼び出しの合計数（エンドポイント・ステータス別、通信失敗は0）",
		}, []string{"endpoint", "status_code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_upstream_latency_seconds",
			Help:    "ストアAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		validationRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_validation_rejected_total",
			Help: "クライアント側検証で拒否されたフォーム送信数",
		}, []string{"form"}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_sessions_created_total",
			Help: "ログインにより作成されたセッション数",
		}),
		sessionsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_sessions_deleted_total",
			Help: "ログアウトにより削除されたセッション数",
		}),
		imageFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_image_fetch_total",
			Help: "商品画像プロキシの取得結果別件数",
		}, []string{"result"}),
		inflightRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_cart_inflight_rejected_total",
			Help: "同一商品への処理中リクエストにより拒否されたカート操作数",
		}),
	}

	reg.MustRegister(
		c.upstreamCalls,
		c.upstreamLatency,
		c.validationRejected,
		c.sessionsCreated,
		c.sessionsDeleted,
		c.imageFetch,
		c.inflightRejected,
	)

	return c
}

// RecordUpstreamCall はストアAPI呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordUpstreamCall(endpoint string, statusCode int, duration time.Duration) {
	c.upstreamCalls.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.upstreamLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordValidationRejected は検証エラーで拒否された送信を記録する。
func (c *Collector) RecordValidationRejected(form string) {
	c.validationRejected.WithLabelValues(form).Inc()
}

// RecordSessionCreated はセッション作成を記録する。
func (c *Collector) RecordSessionCreated() {
	c.sessionsCreated.Inc()
}

// RecordSessionDeleted はセッション削除を記録する。
func (c *Collector) RecordSessionDeleted() {
	c.sessionsDeleted.Inc()
}

// RecordImageFetch は画像取得結果を記録する。
func (c *Collector) RecordImageFetch(result string) {
	c.imageFetch.WithLabelValues(result).Inc()
}

// RecordInflightRejected は処理中ガードによる拒否を記録する。
func (c *Collector) RecordInflightRejected() {
	c.inflightRejected.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
