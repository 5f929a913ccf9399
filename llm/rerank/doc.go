// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 rerank 提供统一的文档重排序接入层与标准化请求/响应模型。

# 概述

本包屏蔽不同重排序服务在响应信封上的差异，对上层业务暴露一致的
Provider 接口。调用方只需构造 RerankRequest 即可获得按相关性
降序排列的 (index, score) 列表，用于 RAG 检索结果的精排。

# 核心类型

  - Provider：重排接口，提供 Rerank / RerankSimple / Name
  - HTTPProvider：HTTP 适配器，探测 results[]、data[]、result[]、
    scores[] 以及裸数组等多种信封
*/
package rerank
