// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供统一的大语言模型接入层：Provider 抽象、中间件链
（超时 / 限流 / panic 恢复 / 指标）以及多模型轮询池。

# Provider 抽象

核心接口是 [Provider]，包含同步补全、健康检查与名称。roleplay 包中的
user / assistant / moderator 三个角色 Agent 只依赖该接口，因此可以在
不改动上层的前提下切换底层模型服务。

# 中间件

[Wrap] 把 [Chain] 套在 Provider 的 Completion 之上：

	p = llm.Wrap(p, llm.NewChain(
	    llm.RecoveryMiddleware(nil),
	    llm.RateLimitMiddleware(2, 4),
	    llm.TimeoutMiddleware(2*time.Minute),
	))

# 模型池

[ModelPool] 在多个 (Provider, model) 绑定之间轮询，构建时打乱一次顺序。

# 子包

  - providers / providers/openaicompat：OpenAI 兼容 HTTP 实现
  - retry：指数退避 / 立即重试
  - tokenizer：tiktoken 与字符估算器
  - budget：单棵对话树的 token 预算
*/
package llm
