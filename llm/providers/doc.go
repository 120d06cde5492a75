// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供 OpenAI 兼容服务商的公共基础层：请求/响应转换、
错误映射以及加固过的 HTTP 客户端。openaicompat 子包在此之上实现
llm.Provider，Anyscale、DeepInfra、Azure OpenAI 代理等兼容端点都走这条路径。

# 核心类型

  - BaseProviderConfig — 所有 Provider 共享的基础配置（APIKey、BaseURL、Model、Timeout）
  - OpenAICompat* 系列 — OpenAI 兼容 API 的通用请求/响应结构体

# 核心函数

  - MapHTTPError — 将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - ConvertMessagesToOpenAI — 统一消息格式转换
  - ToLLMChatResponse — OpenAI 兼容响应到 llm.ChatResponse 的转换
  - ChooseModel — 按优先级选择模型（请求 > 默认 > 兜底）
  - NewHTTPClient — TLS 1.2+ / AEAD 密码套件的 http.Client
*/
package providers
