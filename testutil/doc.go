// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package testutil 提供 groundrag 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 存储辅助: NewMiniredis / NewRedisKV，基于 miniredis 的内存 KV
  - 断言工具: AssertContains / AssertNotContains / AssertEventuallyTrue
  - 数据工具: MustJSON / MustParseJSON

# 子包

  - testutil/mocks: MockProvider（生成模型）、MockEmbedder（嵌入）、
    MockReranker（重排），均支持 Builder 模式与错误注入
  - testutil/fixtures: 蓝牙语料片段与典型模型输出

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().WithResponse(fixtures.CitedStepAnswer)
	resp, err := provider.Completion(ctx, req)
*/
package testutil
