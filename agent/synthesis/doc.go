// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 synthesis 根据检索到的上下文块生成带逐句引用的答案。

上下文块按位置编号为 [#1]..[#N]，网页结果编号为 [W1]..[W10]；会话摘要作为
独立的背景段落发送，不可引用。上下文按 token 预算截断，首块始终保留。

生成先使用 system/user 结构化消息，失败或返回空文本时改用扁平化的单字符串
请求重试一次。没有上下文块时不调用模型，直接返回说明缺少上下文的答案。
*/
package synthesis
