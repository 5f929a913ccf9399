// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 GroundRAG 的全局共享类型定义。

types 是最底层的公共包，不依赖任何内部包，为 rag、agent、correction、
api 等上层模块提供统一的错误契约。

# 核心类型

  - Error / ErrorCode：结构化错误体系，含 HTTP 状态码、Retryable 标记与 Cause 链
  - WrapError / AsError / IsErrorCode：错误工具链
*/
package types
