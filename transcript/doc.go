// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 transcript 负责对话树的落盘：每个终止分支一份 JSON 文档，
每棵树一条 token 账本记录，每次强制终止一行错误记录。

# 文档格式

分支文档是一个 JSON 对象，键顺序固定：id、intent、domain、"model list"、
timestamp（本地时间，02-01-2006 15:04:05）、interactions、moderator。
moderator 为 [{"Turn<k>": [...]}] 形式的调度日志。

账本为追加写的 JSON 数组，每条记录含 doc_id 以及 "User LLM"、
"Assistant LLM"、"Moderator LLM" 三项的 token 数与 "$ x" 形式的费用。

# 后端

  - file：<base_dir>/<doc_id>/<label>.json，账本文件与错误日志用互斥锁串行追加，
    文档通过临时文件 + rename 原子写入。
  - redis：go-redis v9，文档为字符串键，账本与错误日志为列表。
  - sql：GORM（sqlite/postgres/mysql），(doc_id, label) 唯一索引上 upsert。
  - mongo：mongo-driver v2，三个集合。

New 按 Config.Backend 选择后端；未知后端返回 ErrUnknownBackend。
*/
package transcript
