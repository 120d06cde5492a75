// Package telemetry 封装 OpenTelemetry SDK 初始化，
// 为 convtree 提供全局 TracerProvider 和 MeterProvider。
// 禁用时不连接任何外部服务。
package telemetry
