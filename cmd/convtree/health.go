package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"

	"github.com/BaSui01/convtree/llm"
	"github.com/BaSui01/convtree/types"
)

// healthTimeout 单个端点的探活超时
const healthTimeout = 10 * time.Second

// checkResult 一个端点或存储的探活结果
type checkResult struct {
	Name    string
	Healthy bool
	Latency time.Duration
	Err     error
}

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check every configured model endpoint and the transcript store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := initLogger(cfg.Log)
			defer func() { _ = logger.Sync() }()

			rt, err := newRuntime(cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			results := runHealthChecks(cmd.Context(), rt.pools, rt.store, logger)
			unhealthy := printHealth(cmd.OutOrStdout(), results)
			if unhealthy > 0 {
				return fmt.Errorf("%d of %d checks failed", unhealthy, len(results))
			}
			return nil
		},
	}
}

// pinger 是存储探活所需的最小接口
type pinger interface {
	Ping(ctx context.Context) error
}

// runHealthChecks 并发探活所有角色的 provider 与存储
func runHealthChecks(ctx context.Context, pools map[types.Role]*llm.ModelPool, store pinger, logger *zap.Logger) []checkResult {
	var (
		mu      sync.Mutex
		results []checkResult
	)
	add := func(r checkResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for role, pool := range pools {
		for _, p := range pool.Providers() {
			name := fmt.Sprintf("%s (%s: %s)", role, p.Name(), pool.Describe())
			g.Go(func() error {
				cctx, cancel := context.WithTimeout(ctx, healthTimeout)
				defer cancel()
				status, err := p.HealthCheck(cctx)
				r := checkResult{Name: name, Err: err}
				if status != nil {
					r.Healthy = status.Healthy && err == nil
					r.Latency = status.Latency
				}
				if !r.Healthy {
					logger.Warn("endpoint unhealthy", zap.String("check", name), zap.Error(err))
				}
				add(r)
				// 单个失败不取消其它检查
				return nil
			})
		}
	}
	if store != nil {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, healthTimeout)
			defer cancel()
			start := time.Now()
			err := store.Ping(cctx)
			add(checkResult{Name: "store", Healthy: err == nil, Latency: time.Since(start), Err: err})
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

// printHealth 打印探活结果，返回不健康的数量
func printHealth(w io.Writer, results []checkResult) int {
	bad := 0
	for _, r := range results {
		if r.Healthy {
			fmt.Fprintf(w, "OK   %s %s\n", r.Name, r.Latency.Round(time.Millisecond))
			continue
		}
		bad++
		fmt.Fprintf(w, "FAIL %s: %v\n", r.Name, r.Err)
	}
	return bad
}
