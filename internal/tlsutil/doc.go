// Package tlsutil 集中提供 TLS 配置，供 LLM HTTP 客户端和 Redis 连接共用
// （TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
