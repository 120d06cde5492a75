// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 budget 为单棵对话树提供 Token 预算控制，防止深度分叉的树
无限制地消耗上游额度。

# 概述

一棵树的 Token 消耗随分叉数指数增长。TreeBudget 记录该树每次成功
调用消耗的 token，generation.max_tree_tokens 大于 0 时，用量达到上限后
Check 返回 ErrBudgetExceeded，展开器据此把当前分支强制终止。

# 核心接口

  - TreeBudget：树级预算，负责用量记录、限额检查与告警触发。
  - BudgetConfig：上限与告警阈值。
  - AlertHandler：告警回调，同步调用。

# 使用方式

	b := budget.NewTreeBudget(docID, budget.BudgetConfig{MaxTokensPerTree: 50000, AlertThreshold: 0.8}, logger)
	if err := b.Check(); err != nil {
	    // 强制终止当前分支
	}
	b.Record(usage.User + usage.Assistant)
*/
package budget
