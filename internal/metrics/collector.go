// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/convtree/internal/pool"
	"github.com/BaSui01/convtree/treegen"
	"github.com/BaSui01/convtree/types"
)

var _ treegen.Recorder = (*Collector)(nil)

// RateFunc 返回角色每百万 token 的美元单价
type RateFunc func(role types.Role) float64

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，持有独立的 Registry
type Collector struct {
	registry *prometheus.Registry
	rate     RateFunc

	// Agent 指标
	agentCallsTotal *prometheus.CounterVec
	agentTokens     *prometheus.CounterVec
	agentCost       *prometheus.CounterVec

	// 上游请求指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec

	// 树指标
	branchesTotal *prometheus.CounterVec
	branchTurns   prometheus.Histogram
	treesTotal    *prometheus.CounterVec
	treeDuration  prometheus.Histogram

	// 编码缓冲池
	bufferHitRate prometheus.GaugeFunc

	logger *zap.Logger
}

// NewCollector 创建指标收集器。rate 为 nil 时不累计成本。
func NewCollector(namespace string, rate RateFunc, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		rate:     rate,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	// Agent 指标
	c.agentCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_calls_total",
			Help:      "Total number of role-playing agent calls",
		},
		[]string{"role", "status"},
	)
	c.agentTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_tokens_total",
			Help:      "Tokens consumed by successful agent calls",
		},
		[]string{"role"},
	)
	c.agentCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_cost_usd_total",
			Help:      "Estimated USD cost of successful agent calls",
		},
		[]string{"role"},
	)

	// 上游请求指标
	c.llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of upstream completion requests",
		},
		[]string{"model", "status"},
	)
	c.llmRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Upstream completion latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"model"},
	)

	// 树指标
	c.branchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "branches_total",
			Help:      "Terminal branches by outcome",
		},
		[]string{"outcome"},
	)
	c.branchTurns = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "branch_turns",
			Help:      "Number of turns persisted per terminal branch",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		},
	)
	c.treesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trees_total",
			Help:      "Finished conversation trees by status",
		},
		[]string{"status"},
	)
	c.treeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tree_duration_seconds",
			Help:      "Wall time to expand one conversation tree",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// 编码缓冲池命中率
	c.bufferHitRate = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transcript_buffer_pool_hit_ratio",
			Help:      "Share of transcript encode buffers reused from the pool",
		},
		func() float64 { return pool.ByteBufferPool.Stats().HitRate() },
	)

	reg.MustRegister(
		c.bufferHitRate,
		c.agentCallsTotal, c.agentTokens, c.agentCost,
		c.llmRequestsTotal, c.llmRequestDuration,
		c.branchesTotal, c.branchTurns, c.treesTotal, c.treeDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// Registry 返回收集器使用的 Registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 返回 /metrics 的 HTTP 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// =============================================================================
// 🎭 Agent 指标记录
// =============================================================================

// ObserveAgentCall 记录一次角色调用，失败的调用不计 token
func (c *Collector) ObserveAgentCall(role types.Role, _ string, tokens int, err error) {
	r := string(role)
	c.agentCallsTotal.WithLabelValues(r, status(err)).Inc()
	if err != nil {
		return
	}
	c.agentTokens.WithLabelValues(r).Add(float64(tokens))
	if c.rate != nil {
		c.agentCost.WithLabelValues(r).Add(float64(tokens) / 1_000_000 * c.rate(role))
	}
}

// =============================================================================
// 🤖 上游请求指标记录
// =============================================================================

// RecordRequest 记录上游请求，满足 llm.MetricsCollector
func (c *Collector) RecordRequest(model string, duration time.Duration, success bool) {
	s := "success"
	if !success {
		s = "error"
	}
	c.llmRequestsTotal.WithLabelValues(model, s).Inc()
	c.llmRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// =============================================================================
// 🌳 树指标记录
// =============================================================================

// BranchFinished 记录终止分支
func (c *Collector) BranchFinished(outcome treegen.BranchOutcome, turns int) {
	c.branchesTotal.WithLabelValues(string(outcome)).Inc()
	c.branchTurns.Observe(float64(turns))
}

// TreeFinished 记录完成的树
func (c *Collector) TreeFinished(err error, _ types.TokenLedger, elapsed time.Duration) {
	c.treesTotal.WithLabelValues(status(err)).Inc()
	c.treeDuration.Observe(elapsed.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
