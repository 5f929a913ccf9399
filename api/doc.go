// Package api 定义 GroundRAG HTTP API 的请求与响应类型。
//
// # API 概览
//
//   - POST   /api/v1/query                问答（纠错缓存 → 检索 → 合成 → 校验）
//   - POST   /api/v1/corrections/check    只查询纠错缓存
//   - POST   /api/v1/corrections          提交人工纠错
//   - GET    /api/v1/corrections/{id}     读取纠错记录
//   - DELETE /api/v1/corrections/{id}     删除纠错记录
//   - GET    /health /healthz /ready /version
//
// # 认证
//
// 配置了 API Key 时，/api/v1 下的端点需要 X-API-Key 头：
//
//	X-API-Key: your-api-key
//
// 所有成功响应包裹在 {"success": true, "data": ...} 中，失败时 error 字段
// 携带 types.ErrorCode。
package api
