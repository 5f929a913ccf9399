// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、上游服务、
问答流水线、缓存与数据库五个维度。

# 概述

Collector 通过 promauto 注册指标，默认注册到全局 Registry，也可以用
NewCollectorWithRegistry 指定 Registerer（测试中使用独立 Registry）。
所有 Record 方法对 nil 接收者安全，组件在未配置指标时可以直接持有 nil。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx
  - 上游指标：生成、嵌入、重排、向量检索的调用次数与耗时，生成 token 用量
  - 流水线指标：阶段耗时、状态转换、合成轮数、校验发现、知识缺口、查询来源
  - 缓存指标：纠错缓存精确/语义命中与未命中
  - 数据库指标：SQL KV 连接池的打开/空闲连接数
*/
package metrics
