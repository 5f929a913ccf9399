// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 HTTP 监听器的生命周期。

Manager 封装 net/http.Server：Start 非阻塞启动，Shutdown 在配置的
超时内排空请求，Errors 暴露后台 Serve 的异常。serve 命令为 API 与
指标端口各持有一个 Manager，并用 WaitAny 等待信号或任一监听器失败。
TLS 由前置网关终止，本包只监听明文 HTTP。
*/
package server
