// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供纠错记录与会话记忆使用的键值存储后端。

# 概述

KV 接口只暴露 Get / Put(ttl) / Delete，所有写入为后写覆盖。
RedisKV 封装 go-redis 客户端，SQLKV 基于 GORM 在 SQLite 或
PostgreSQL 上实现同样的语义，适合没有 Redis 的部署。

# 核心类型

  - KV：键值存储接口。
  - RedisKV：Redis 实现，带连接池、健康检查与默认 TTL。
  - SQLKV：SQL 实现，过期行在读取时惰性删除。
  - Config：Redis 配置。

# 主要能力

  - JSON 便捷方法：GetJSON / PutJSON。
  - 错误语义：提供 ErrCacheMiss 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
