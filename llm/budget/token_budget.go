// Package budget 为单棵对话树提供 Token 预算控制。
package budget

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrBudgetExceeded 表示该对话树已用完 Token 预算。
var ErrBudgetExceeded = errors.New("tree token budget exceeded")

// BudgetConfig 单棵树的预算配置。
type BudgetConfig struct {
	MaxTokensPerTree int     `json:"max_tokens_per_tree" yaml:"max_tokens_per_tree"` // 0 表示不限
	AlertThreshold   float64 `json:"alert_threshold" yaml:"alert_threshold"`         // 0.0-1.0，超过时告警
}

// DefaultBudgetConfig 返回默认配置：不限额，80% 告警。
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		MaxTokensPerTree: 0,
		AlertThreshold:   0.8,
	}
}

// AlertType 预算告警类型.
type AlertType string

const (
	AlertThreshold AlertType = "tree_token_threshold"
	AlertLimitHit  AlertType = "tree_limit_hit"
)

// Alert 预算告警。
type Alert struct {
	Type      AlertType `json:"type"`
	DocID     string    `json:"doc_id"`
	Message   string    `json:"message"`
	Threshold float64   `json:"threshold"`
	Current   float64   `json:"current"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertHandler 处理预算告警.
type AlertHandler func(alert Alert)

// TreeBudget 跟踪一棵对话树的 Token 消耗。每棵树独立一个实例，
// 可被多个 goroutine 并发调用。
type TreeBudget struct {
	docID         string
	config        BudgetConfig
	logger        *zap.Logger
	alertHandlers []AlertHandler

	used int64

	mu           sync.Mutex
	alertedSoft  bool
	alertedLimit bool
}

// NewTreeBudget 创建树级预算.
func NewTreeBudget(docID string, config BudgetConfig, logger *zap.Logger) *TreeBudget {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TreeBudget{
		docID:  docID,
		config: config,
		logger: logger.With(zap.String("component", "tree_budget"), zap.String("doc_id", docID)),
	}
}

// OnAlert 注册告警处理器。
func (b *TreeBudget) OnAlert(handler AlertHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alertHandlers = append(b.alertHandlers, handler)
}

// Unlimited 报告是否未设置上限。
func (b *TreeBudget) Unlimited() bool {
	return b == nil || b.config.MaxTokensPerTree <= 0
}

// Record 记录一次成功调用消耗的 token；非正数忽略。
func (b *TreeBudget) Record(tokens int) {
	if b == nil || tokens <= 0 {
		return
	}
	atomic.AddInt64(&b.used, int64(tokens))
	b.checkAlerts()
}

// Used 返回已用 token 数。
func (b *TreeBudget) Used() int {
	if b == nil {
		return 0
	}
	return int(atomic.LoadInt64(&b.used))
}

// Remaining 返回剩余 token 数；不限额时返回 -1。
func (b *TreeBudget) Remaining() int {
	if b.Unlimited() {
		return -1
	}
	rem := b.config.MaxTokensPerTree - b.Used()
	if rem < 0 {
		return 0
	}
	return rem
}

// Check 在发起新一轮生成前调用；用量达到上限时返回 ErrBudgetExceeded。
func (b *TreeBudget) Check() error {
	if b.Unlimited() {
		return nil
	}
	used := b.Used()
	if used >= b.config.MaxTokensPerTree {
		return fmt.Errorf("%w: used %d of %d", ErrBudgetExceeded, used, b.config.MaxTokensPerTree)
	}
	return nil
}

func (b *TreeBudget) checkAlerts() {
	if b.Unlimited() {
		return
	}

	util := float64(b.Used()) / float64(b.config.MaxTokensPerTree)

	b.mu.Lock()
	var fire []Alert
	if b.config.AlertThreshold > 0 && util >= b.config.AlertThreshold && !b.alertedSoft {
		b.alertedSoft = true
		fire = append(fire, Alert{
			Type:      AlertThreshold,
			DocID:     b.docID,
			Message:   "tree token usage threshold exceeded",
			Threshold: b.config.AlertThreshold,
			Current:   util,
			Timestamp: time.Now(),
		})
	}
	if util >= 1 && !b.alertedLimit {
		b.alertedLimit = true
		fire = append(fire, Alert{
			Type:      AlertLimitHit,
			DocID:     b.docID,
			Message:   "tree token budget exhausted",
			Threshold: 1,
			Current:   util,
			Timestamp: time.Now(),
		})
	}
	handlers := append([]AlertHandler(nil), b.alertHandlers...)
	b.mu.Unlock()

	for _, alert := range fire {
		b.fireAlert(alert, handlers)
	}
}

func (b *TreeBudget) fireAlert(alert Alert, handlers []AlertHandler) {
	b.logger.Warn("budget alert",
		zap.String("type", string(alert.Type)),
		zap.String("message", alert.Message),
		zap.Float64("threshold", alert.Threshold),
		zap.Float64("current", alert.Current))

	for _, handler := range handlers {
		handler(alert)
	}
}
