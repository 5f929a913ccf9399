// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 embedding 提供统一的文本嵌入（Embedding）接口与 HTTP 实现，
用于将查询与文档转换为向量表示以支持语义检索和纠错缓存匹配。

# 概述

自建或托管的嵌入服务在响应信封上差异很大。本包通过 Provider 接口
屏蔽这些差异，HTTPProvider 通过探测多种信封形态解析向量，
并拒绝空向量、全零向量以及包含 NaN 的向量。

# 核心接口

  - Provider：统一嵌入接口，定义 Embed、EmbedQuery、EmbedDocuments 等方法。
  - EmbeddingRequest / EmbeddingResponse：标准化的请求与响应模型。
  - InputType：输入类型枚举，区分 query 与 document。
  - BaseProvider：公共基类，封装 HTTP 请求、错误映射与批量辅助方法。

# 主要能力

  - 信封探测：data[].embedding、embeddings[][]、embedding[]、result.data[][] 等。
  - 前缀模式：E5 风格模型可开启 "query: " / "passage: " 前缀。
  - 批量回退：批量请求失败后逐条重试，两次请求之间按 PerItemDelay 限速。
*/
package embedding
