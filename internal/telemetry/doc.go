// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package telemetry 封装 OpenTelemetry SDK 初始化，
// 为 GroundRAG 的 HTTP 入口与流水线各阶段提供 TracerProvider。
// 禁用时使用 noop 实现，不连接任何外部服务。
package telemetry
