// Package config 提供 convtree 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，
// 环境变量名由前缀与 env 标签拼接而成，例如
// CONVTREE_GENERATION_MAX_TURNS、CONVTREE_AGENTS_USER_MODELS。
// Validate 一次性返回所有违规项。
package config
