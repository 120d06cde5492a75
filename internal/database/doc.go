// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库打开与连接池管理，是 SQL 转录存储的底座。

# 核心类型

  - Config：驱动名（sqlite/postgres/mysql）、DSN 与连接池配置。
  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、Stats()、Close()。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - Dialector/Open：按驱动名选择 glebarez/sqlite、postgres 或 mysql 方言。
  - 健康检查：HealthCheckInterval > 0 时后台定时 PingContext 探活，Close 后退出。
  - 事务管理：WithTransactionRetry 对死锁、序列化失败、database is locked
    等瞬时错误做指数退避重试。
*/
package database
