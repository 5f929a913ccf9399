// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接池管理，作为 SQL 键值存储的底座。

# 概述

PoolManager 封装 GORM 与 database/sql 的连接池配置，统一管理连接
生命周期与事务重试。Open 按驱动名选择纯 Go 的 SQLite（glebarez）
或 PostgreSQL 方言。

# 核心类型

  - PoolManager：连接池管理器，提供 DB()、Ping()、Close() 与事务方法。
  - PoolConfig：连接池配置与 Validate 校验。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 健康检查：后台定时 PingContext 探活。
  - 事务重试：WithTransactionRetry 在死锁、SQLITE_BUSY、序列化失败时指数退避重试。
*/
package database
