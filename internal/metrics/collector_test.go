package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/convtree/internal/pool"
	"github.com/BaSui01/convtree/treegen"
	"github.com/BaSui01/convtree/types"
)

func flatRate(types.Role) float64 { return 0.5 }

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector_OwnRegistry(t *testing.T) {
	// 同名 namespace 的两个实例互不冲突
	a := NewCollector("convtree", flatRate, zap.NewNop())
	b := NewCollector("convtree", flatRate, nil)

	require.NotNil(t, a.Registry())
	assert.NotSame(t, a.Registry(), b.Registry())
}

func TestCollector_ObserveAgentCall(t *testing.T) {
	c := NewCollector("test", flatRate, zap.NewNop())

	c.ObserveAgentCall(types.RoleUser, "m", 2_000_000, nil)
	c.ObserveAgentCall(types.RoleUser, "m", 999, errors.New("upstream"))
	c.ObserveAgentCall(types.RoleModerator, "m", 10, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.agentCallsTotal.WithLabelValues("user", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.agentCallsTotal.WithLabelValues("user", "error")))
	assert.Equal(t, 2_000_000.0, testutil.ToFloat64(c.agentTokens.WithLabelValues("user")))
	assert.InDelta(t, 1.0, testutil.ToFloat64(c.agentCost.WithLabelValues("user")), 1e-9)
	assert.Equal(t, 10.0, testutil.ToFloat64(c.agentTokens.WithLabelValues("moderator")))
}

func TestCollector_ObserveAgentCall_NoRate(t *testing.T) {
	c := NewCollector("test", nil, zap.NewNop())
	c.ObserveAgentCall(types.RoleAssistant, "m", 100, nil)

	assert.Equal(t, 100.0, testutil.ToFloat64(c.agentTokens.WithLabelValues("assistant")))
	assert.Equal(t, 0, testutil.CollectAndCount(c.agentCost))
}

func TestCollector_RecordRequest(t *testing.T) {
	c := NewCollector("test", flatRate, zap.NewNop())

	c.RecordRequest("mixtral", 120*time.Millisecond, true)
	c.RecordRequest("mixtral", 3*time.Second, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmRequestsTotal.WithLabelValues("mixtral", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmRequestsTotal.WithLabelValues("mixtral", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.llmRequestDuration))
}

func TestCollector_TreeEvents(t *testing.T) {
	c := NewCollector("test", flatRate, zap.NewNop())

	c.BranchFinished(treegen.OutcomeComplete, 4)
	c.BranchFinished(treegen.OutcomeComplete, 4)
	c.BranchFinished(treegen.OutcomeForced, 1)
	c.TreeFinished(nil, types.TokenLedger{User: 1}, 2*time.Second)
	c.TreeFinished(errors.New("disk full"), types.TokenLedger{}, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.branchesTotal.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.branchesTotal.WithLabelValues("forced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.treesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.treesTotal.WithLabelValues("error")))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("convtree", flatRate, zap.NewNop())
	c.BranchFinished(treegen.OutcomeNatural, 2)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `convtree_branches_total{outcome="natural"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "success", status(nil))
	assert.Equal(t, "error", status(errors.New("x")))
}

func TestCollector_BufferPoolHitRate(t *testing.T) {
	c := NewCollector("test", nil, zap.NewNop())

	for i := 0; i < 4; i++ {
		buf := pool.ByteBufferPool.Get()
		buf.WriteString("x")
		pool.ByteBufferPool.Put(buf)
	}

	got := testutil.ToFloat64(c.bufferHitRate)
	assert.InDelta(t, pool.ByteBufferPool.Stats().HitRate(), got, 1e-9)
	assert.GreaterOrEqual(t, got, 0.0)
	assert.LessOrEqual(t, got, 1.0)
}
