// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
convtree 是对话树数据集生成器的命令行入口。

# 命令

	convtree generate --intent <i> --domain <d> [--doc-id id] [--turns n]
	convtree batch --seeds seeds.yaml [--workers n]
	convtree health
	convtree version

所有命令都接受 --config 指定 YAML 配置文件，未指定时读取 CONVTREE_CONFIG，
配置项也可以用 CONVTREE_ 前缀的环境变量覆盖。

# 退出码

batch 在任意一棵树失败时以非零状态退出；health 在任意端点或存储不可用时
以非零状态退出。
*/
package main
