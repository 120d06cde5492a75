package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/convtree/config"
	"github.com/BaSui01/convtree/internal/database"
	"github.com/BaSui01/convtree/internal/metrics"
	"github.com/BaSui01/convtree/internal/telemetry"
	"github.com/BaSui01/convtree/llm"
	"github.com/BaSui01/convtree/llm/providers"
	"github.com/BaSui01/convtree/llm/providers/openaicompat"
	"github.com/BaSui01/convtree/roleplay"
	"github.com/BaSui01/convtree/transcript"
	"github.com/BaSui01/convtree/treegen"
	"github.com/BaSui01/convtree/types"
)

// runtime 持有一次命令执行所需的全部组件
type runtime struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *metrics.Collector
	telemetry *telemetry.Providers
	store     transcript.Store
	pools     map[types.Role]*llm.ModelPool

	orchestrator *treegen.Orchestrator
	// initiator 仅在 generation.expand_ideas 开启时非 nil
	initiator *roleplay.TurnInitiator
}

// pricing 把配置单价转换为账本单价
func pricing(cfg config.PricingConfig) transcript.Pricing {
	return transcript.Pricing{User: cfg.User, Assistant: cfg.Assistant, Moderator: cfg.Moderator}
}

// storeConfig 把配置文件的 store 段转换为转录后端配置
func storeConfig(s config.StoreConfig) transcript.Config {
	return transcript.Config{
		Backend:    transcript.Backend(s.Backend),
		BaseDir:    s.BaseDir,
		LedgerFile: s.LedgerFile,
		ErrorLog:   s.ErrorLog,
		Redis: transcript.RedisConfig{
			Addr:      s.Redis.Addr,
			Password:  s.Redis.Password,
			DB:        s.Redis.DB,
			KeyPrefix: s.Redis.KeyPrefix,
			TLS:       s.Redis.TLS,
		},
		SQL: database.Config{
			Driver: s.SQL.Driver,
			DSN:    s.SQL.DSN,
			Pool: database.PoolConfig{
				MaxIdleConns:    s.SQL.MaxIdleConns,
				MaxOpenConns:    s.SQL.MaxOpenConns,
				ConnMaxLifetime: s.SQL.ConnMaxLifetime,
			},
		},
		Mongo: transcript.MongoConfig{
			URI:      s.Mongo.URI,
			Database: s.Mongo.Database,
		},
	}
}

// treeOptions 把 generation 段转换为树展开参数
func treeOptions(g config.GenerationConfig) treegen.Options {
	return treegen.Options{
		RootLabel:      g.RootLabel,
		MaxFanout:      g.MaxFanout,
		FirstMinFanout: g.FirstMinFanout,
		MaxAttempts:    g.MaxAttempts,
		RetryDelay:     g.RetryDelay,
		RetryAssistant: g.RetryAssistant,
		MaxTreeTokens:  g.MaxTreeTokens,
	}
}

// newProvider 为一个角色创建带中间件的 OpenAI 兼容 provider
func newProvider(role types.Role, a config.AgentConfig, collector llm.MetricsCollector, logger *zap.Logger) llm.Provider {
	base := openaicompat.New(openaicompat.Config{
		ProviderName: "openai-compatible/" + string(role),
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  a.APIKey,
			BaseURL: a.BaseURL,
			Timeout: a.Timeout,
		},
	}, logger)

	chain := llm.NewChain(
		llm.RecoveryMiddleware(func(r any) {
			logger.Error("provider panicked", zap.String("role", string(role)), zap.Any("panic", r))
		}),
		llm.RateLimitMiddleware(a.RateLimitRPS, a.RateLimitBurst),
	)
	if collector != nil {
		chain.Use(llm.MetricsMiddleware(collector))
	}
	return llm.Wrap(base, chain)
}

// newModelPool 为角色的模型列表建立轮询池，所有模型共用一个端点
func newModelPool(role types.Role, a config.AgentConfig, collector llm.MetricsCollector, rng *rand.Rand, logger *zap.Logger) (*llm.ModelPool, error) {
	provider := newProvider(role, a, collector, logger)
	bindings := make([]llm.ModelBinding, 0, len(a.Models))
	for _, m := range a.Models {
		bindings = append(bindings, llm.ModelBinding{Provider: provider, Model: m})
	}
	pool, err := llm.NewModelPool(bindings, rng)
	if err != nil {
		return nil, fmt.Errorf("%s agent: %w", role, err)
	}
	return pool, nil
}

// activeRoles 返回本次运行需要的角色
func activeRoles(cfg *config.Config) []types.Role {
	roles := types.Roles()
	if cfg.Generation.ExpandIdeas {
		roles = append(roles, types.RoleInitiator)
	}
	return roles
}

// newPools 为所有活跃角色建立模型池
func newPools(cfg *config.Config, collector llm.MetricsCollector, logger *zap.Logger) (map[types.Role]*llm.ModelPool, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	pools := make(map[types.Role]*llm.ModelPool)
	for _, role := range activeRoles(cfg) {
		a, _ := cfg.Agent(string(role))
		p, err := newModelPool(role, a, collector, rng, logger)
		if err != nil {
			return nil, err
		}
		pools[role] = p
	}
	return pools, nil
}

func agentOptions(a config.AgentConfig, jsonMode bool, collector *metrics.Collector, logger *zap.Logger) roleplay.Options {
	return roleplay.Options{
		Temperature: float32(a.Temperature),
		MaxTokens:   a.MaxTokens,
		Timeout:     a.Timeout,
		JSONMode:    jsonMode,
		Logger:      logger,
		Observer:    collector,
	}
}

// newRuntime 按配置组装 agent、存储与树生成器
func newRuntime(cfg *config.Config, logger *zap.Logger) (_ *runtime, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			rt.Close(context.Background())
		}
	}()

	prices := pricing(cfg.Pricing)
	rt.metrics = metrics.NewCollector(cfg.Metrics.Namespace, prices.Rate, logger)

	rt.telemetry, err = telemetry.Init(cfg.Telemetry, Version, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		rt.telemetry = nil
	}

	prompts, err := roleplay.LoadPromptSet(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}
	templates, err := prompts.Compile()
	if err != nil {
		return nil, err
	}

	rt.pools, err = newPools(cfg, rt.metrics, logger)
	if err != nil {
		return nil, err
	}

	userCfg, _ := cfg.Agent(string(types.RoleUser))
	assistantCfg, _ := cfg.Agent(string(types.RoleAssistant))
	moderatorCfg, _ := cfg.Agent(string(types.RoleModerator))

	user, err := roleplay.NewUserAgent(rt.pools[types.RoleUser], templates, agentOptions(userCfg, true, rt.metrics, logger))
	if err != nil {
		return nil, err
	}
	assistant, err := roleplay.NewAssistantAgent(rt.pools[types.RoleAssistant], templates, agentOptions(assistantCfg, false, rt.metrics, logger))
	if err != nil {
		return nil, err
	}
	moderator, err := roleplay.NewModeratorAgent(rt.pools[types.RoleModerator], templates, agentOptions(moderatorCfg, true, rt.metrics, logger))
	if err != nil {
		return nil, err
	}
	if cfg.Generation.ExpandIdeas {
		initiatorCfg, _ := cfg.Agent(string(types.RoleInitiator))
		rt.initiator, err = roleplay.NewTurnInitiator(rt.pools[types.RoleInitiator], templates,
			agentOptions(initiatorCfg, false, rt.metrics, logger), cfg.Generation.IdeasPerSeed, nil)
		if err != nil {
			return nil, err
		}
	}

	rt.store, err = transcript.New(storeConfig(cfg.Store),
		transcript.WithModels(map[string]string{
			string(types.RoleUser):      user.ModelName(),
			string(types.RoleAssistant): assistant.ModelName(),
			string(types.RoleModerator): moderator.ModelName(),
		}),
		transcript.WithPricing(prices),
		transcript.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	rt.orchestrator = treegen.NewOrchestrator(treegen.ExpanderDeps{
		User:      user,
		Assistant: assistant,
		Moderator: moderator,
		Writer:    rt.store,
		Recorder:  rt.metrics,
		Logger:    logger,
	}, treeOptions(cfg.Generation))

	return rt, nil
}

// dispatcher 返回跨种子的并发调度器
func (rt *runtime) dispatcher(workers int) *treegen.Dispatcher {
	if workers <= 0 {
		workers = rt.cfg.Generation.Workers
	}
	opts := []treegen.DispatcherOption{treegen.WithDispatcherLogger(rt.logger)}
	if rt.initiator != nil {
		opts = append(opts, treegen.WithIdeaSource(rt.initiator))
	}
	return treegen.NewDispatcher(rt.orchestrator, workers, rt.cfg.Generation.MaxTurns, opts...)
}

// Close 释放存储与遥测资源
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if rt.telemetry != nil {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rt.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
