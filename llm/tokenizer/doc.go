// Package tokenizer 提供统一的 Token 计数接口，
// 支持 tiktoken 精确计数与 CJK 估算器；上游响应缺少 usage 时用于补算角色调用的 token。
package tokenizer
