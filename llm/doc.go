// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供生成服务的最小接入层：Provider 抽象、HTTP 适配器、
统一错误语义以及对多种响应信封的文本提取。

# 概述

上游生成服务的响应格式并不统一。本包对上层暴露一致的
[ChatRequest] / [ChatResponse] 模型，并通过 [ExtractText]
在已知的信封路径中探测生成文本，避免因格式差异导致整条流水线失败。

# 核心接口

  - [Provider]：生成服务接口，提供 Completion / Name
  - [HTTPProvider]：OpenAI 兼容或更宽松的 HTTP 端点适配器，
    支持结构化（messages）与扁平化（prompt）两种请求形态
  - [Error]：统一错误类型，携带错误码、HTTP 状态与可重试标记
  - [Middleware]：Provider 装饰链，提供恢复、超时、日志、指标与熔断

# 子包

  - retry：指数退避重试策略
  - circuitbreaker：按上游可用性计数的熔断器
  - embedding：嵌入服务适配器
  - rerank：重排服务适配器
  - tokenizer：上下文预算所需的 Token 计数
*/
package llm
