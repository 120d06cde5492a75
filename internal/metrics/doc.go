// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的对话树生成指标采集能力。

# 概述

Collector 持有独立的 prometheus.Registry，不向全局 DefaultRegisterer
注册，同一进程内可以并存多个实例。Handler 通过 promhttp 暴露
/metrics。

# 主要能力

  - Agent 指标：调用次数（按 role/status）、成功调用的 Token 用量
    与按单价折算的美元成本。实现 roleplay.Observer。
  - 上游指标：请求次数与耗时，按 model 分组。实现 llm.MetricsCollector，
    供 llm.MetricsMiddleware 使用。
  - 树指标：终止分支数（complete/natural/forced）、分支轮数分布、
    完成树数量与耗时。实现 treegen.Recorder。
*/
package metrics
