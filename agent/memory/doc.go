// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 memory 提供按会话保存的对话记忆。

每个会话在 KV 中保存最近若干轮问答与一段摘要。摘要只作为合成时的背景，
不包含引用标记，也不能被答案引用。写入为后写覆盖：同一会话的并发写入
以最后一次为准。
*/
package memory
