// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理后台 HTTP 服务器的生命周期，convtree batch 用它暴露
Prometheus /metrics。

Start 同步完成监听，端口占用等错误立即返回；之后在后台 goroutine
中服务，运行期错误通过 Errors() 传出。Shutdown 在 ShutdownTimeout
内排空请求，可重复调用。
*/
package server
