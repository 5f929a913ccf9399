// Package tokenizer 为上下文预算提供 Token 计数。
//
// 生成阶段按 ContextTokens 裁剪编号上下文块（FitBudget），
// 对话记忆按 Token 预算截断历史轮次。优先使用 tiktoken 编码精确计数，
// 模型编码不可用时回退到按字符类别估算的 EstimatorTokenizer。
package tokenizer
