// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 convtree 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 treegen、roleplay、
transcript 等上层模块提供统一的数据契约，避免循环依赖。

# 核心类型

  - ConversationTurn  — 一轮对话（intent + user prompt + assistant response），创建后不可变
  - ModeratorEntry    — 一次分叉决策（turn 序号 + 采样到的 sub-intents）
  - TokenLedger       — 单棵对话树的 token 累加器（user / assistant / moderator）
  - Role              — Agent 角色枚举
  - Error / ErrorCode — 结构化错误体系，含 Retryable、Provider 标记
*/
package types
