// Package metrics 提供 Prometheus 監控指標
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BidsPlacedTotal 統計成功寫入 stream 的出價筆數
	BidsPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexhub_bids_placed_total",
		Help: "Total number of bids accepted by the bid script",
	})

	// BidsRejectedTotal 統計被出價腳本拒絕的出價筆數
	BidsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexhub_bids_rejected_total",
		Help: "Total number of bids rejected for being below the minimum",
	})

	// LiveSessions 追蹤目前存活的拍賣即時會話數量
	LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dexhub_live_sessions",
		Help: "Number of currently attached auction live sessions",
	})

	// SyntheticEventsTotal 統計各即時會話送出的模擬事件數量
	SyntheticEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dexhub_synthetic_events_total",
		Help: "Synthetic activity events emitted to live sessions",
	}, []string{"type"})

	// CheckInsTotal 統計圖鑑打卡次數
	CheckInsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexhub_checkins_total",
		Help: "Total number of dex check-ins recorded",
	})

	// HTTPRequestsTotal 統計HTTP請求數量
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dexhub_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration 統計HTTP請求處理時間
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dexhub_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler 回傳 Prometheus 的指標輸出端點
func Handler() http.Handler {
	return promhttp.Handler()
}

// GinMiddleware 回傳紀錄請求指標的gin中介層
// path 標籤使用路由樣板而非實際路徑，避免高基數問題
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
