// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 validation 对合成答案做规则校验。

# Validator

按行检查包含步骤用语（first/second/third/finally/step/procedure/conclusion/summary）
的行：

  - 没有引用：uncited step
  - 引用不在行尾，或一行出现多个引用：malformed citation
  - 同一引用被多个步骤使用：duplicate citation，不影响 Validated
  - 引用不在 [#1]..[#N] 与 [W1]..[W10] 之内：orphan citation，
    对答案中的所有引用都检查，并使 Validated 为 false

另外检查 first/second/finally 步骤结构（只认这三个词，编号行不算）、
未说明的矛盾措辞、步骤文本是否能在上下文中找到依据。每条说明（包括
合成阶段的说明）都对应一条再合成反馈，并在答案末尾追加
"[Validation Notes]" 说明块。

# WebValidator

只在提供了网页结果时工作：超出网页结果数量的 [Wn] 以及与网页摘要关键词
重叠不足的 [Wn] 行记说明与反馈，不影响 Validated。没有网页结果时
[Wn] 只按 W1..W10 的范围检查。
*/
package validation
