// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
# 概述

Package rag 提供面向蓝牙技术问答的检索层：查询改写、多路向量检索、
RRF 融合、主题聚类与名额分配、重排精选。

# 核心接口/类型

  - VectorStore：向量索引统一接口（AddDocuments / Search / DeleteDocuments / Count），
    实现有 InMemoryVectorStore 与 QdrantStore
  - Retriever：完整检索流程，输出 RetrievalResult
  - QueryExpander：通过生成模型产生最多 3 个查询改写
  - ContextSelector：重排后按单文档上限与文档多样性约束精选上下文
  - TopicClassifier：按元数据、关键词表、标题来源将片段归入主题

# 检索流程

 1. 原查询与改写并发嵌入，失败或无效向量被丢弃
 2. 每个向量并发检索 TopK 个片段
 3. FuseRRF 融合（score += 1/(k+rank+1)），同分保持首次出现顺序
 4. 主题聚类，生成跨文档关联说明
 5. Allocate 按主题轮询分配名额，再按融合顺序补齐
 6. 可选 ContextSelector 精选，投影为带 [#n] 位置的 ContextBlock
 7. KnowledgeGaps 报告无上下文或主题单一

没有任何可用嵌入时返回 types.ErrNoEmbeddings；所有检索调用失败时返回
types.ErrRetrievalFailed。
*/
package rag
