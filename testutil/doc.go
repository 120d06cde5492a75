// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 convtree 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，避免重复实现相似的
测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / CancelledContext，自动注册 Cleanup 防止泄漏
  - 断言工具: AssertTurnsEqual
  - 异步断言: AssertEventuallyTrue / WaitFor

# 子包

  - testutil/mocks: MockProvider（llm.Provider）、脚本化的 User / Assistant /
    Moderator Agent，以及记录所有写入的 RecordingWriter，均支持错误注入
  - testutil/fixtures: 测试数据工厂，提供样例对话轮次、种子与 OpenAI 兼容
    响应体

# 使用示例

	ctx := testutil.TestContext(t)
	writer := mocks.NewRecordingWriter()
	moderator := mocks.NewModeratorSequence(5, []string{"a", "b", "c"})
*/
package testutil
