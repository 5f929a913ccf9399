// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

// Package config 提供 GroundRAG 的配置加载与热重载。
//
// 加载顺序为默认值、YAML 文件、GROUNDRAG_ 前缀环境变量，最后执行校验。
// Reloader 监听配置文件，日志级别与限流参数可在运行时生效，
// 其余字段的变更会被记录为需要重启。
package config
