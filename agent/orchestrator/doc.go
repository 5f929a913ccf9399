// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 orchestrator 驱动一次问答的完整流程。

# 状态机

	Retrieving → Synthesizing → Validating → (Feedback → Synthesizing) → Done

每次转换都经过 CanTransition 检查，非法转换返回 INVALID_TRANSITION。
检索失败是终止错误；合成失败返回降级答案或保留上一轮结果；校验失败
视为空结果。Validator 与 WebValidator 在每轮中并发执行，有反馈且未达到
MaxIter（默认 2，上限 10）时把反馈以 "[Validation Feedback]" 块追加到
查询后重新合成。

# 纠错缓存

处理查询前先查纠错缓存，命中时直接返回人工确认的答案，不进入流水线。
CheckCache、StoreCorrection、GetCorrection、DeleteCorrection 暴露缓存操作。

# 可观测性

每个阶段在独立的 OpenTelemetry span 中运行，并记录阶段耗时、状态转换、
校验发现等 Prometheus 指标；完成后向会话记忆追加一轮问答。
*/
package orchestrator
