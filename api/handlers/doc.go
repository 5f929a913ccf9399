// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 GroundRAG HTTP API 的请求处理器实现。

# 核心类型

  - QueryHandler：POST /api/v1/query，调用编排器的 ProcessQuery
  - CorrectionHandler：纠错缓存的查询、写入、读取与删除
  - HealthHandler：/health、/healthz、/ready、/version
  - Response：统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter：包装 http.ResponseWriter 以捕获状态码

# 错误处理

WriteError 从错误链中取出 *types.Error，优先使用其 HTTPStatus，否则按
ErrorCode 映射；其他错误一律返回 500 且不暴露细节。DecodeJSONBody
限制请求体 1 MB 并拒绝未知字段。
*/
package handlers
