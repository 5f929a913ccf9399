// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 GroundRAG 服务端程序入口。

# 概述

cmd/groundrag 组装检索、合成、校验、纠错缓存与会话记忆，
对外暴露问答与纠错 HTTP 接口。支持 YAML 配置加载与热重载、
结构化日志（zap）、Prometheus 指标与 OpenTelemetry 链路追踪。

# 核心类型

  - Server：主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler
  - RateLimiter：按客户端（API Key 标签或 IP）的令牌桶限流
  - components：一次进程内共享的 KV、向量库、嵌入与编排器

# 主要能力

  - 子命令：serve（启动服务）、ingest（写入已切分的语料片段）、version、health
  - 中间件链：Recovery、RequestID、OTelTracing、SecurityHeaders、
    RequestLogger、Metrics、APIKeyAuth（X-API-Key / query 参数）、RateLimiter
  - 纠错写接口：POST/DELETE /api/v1/corrections 额外经过 JWTAuth（HS256 / RS256），
    令牌中的 user_id 或 sub 记为 corrected_by；未配置 server.jwt 时不校验
  - 存储后端：KV 支持 memory / redis / sql，向量库支持 memory / qdrant
  - 语料预载：vector_store.seed_files 在启动时嵌入并写入语料集合
  - 配置热重载：日志级别与限流参数即时生效
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 停止热重载 → 关闭 HTTP → 关闭 Metrics → 释放存储
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
