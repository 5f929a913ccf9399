// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package correction 实现人工纠错答案的两级缓存。

精确层以归一化问题的 sha256 前缀为 ID，记录保存在 KV 键 correction:<id>；
语义层在向量索引中为原问题及每个变体各写入一个条目（id, id_v1, ...），
payload 只携带 kv_key 指针。查询时精确层优先（置信度 1.0），语义层相似度
不低于阈值（默认 0.90，含等号）时命中。指针失效视为未命中，未配置 KV 时
所有操作为空操作。
*/
package correction
