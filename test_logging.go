//go:build ignore
// +build ignore

package main

import (
	"FuseLane/internal/conf"
	pkglog "FuseLane/pkg/log"
)

func main() {
	// 创建日志配置
	logConf := &conf.Log{
		Level:  "debug",
		Format: "console", // 使用 console 格式以启用 Emoji Encoder
		Env:    "development",
	}

	// 创建 Zap logger
	zapLogger, err := pkglog.NewZapLogger(logConf)
	if err != nil {
		panic(err)
	}

	// 创建 Kratos adapter
	kratosLogger := pkglog.NewKratosAdapter(zapLogger)

	// 创建 LogHelper
	helper := pkglog.NewLogHelper(kratosLogger)

	// 测试各种日志类型
	println("=== 测试日志输出格式 ===\n")

	helper.Startup("FuseLane service starting", "version", "1.0.0", "port", 8080)
	helper.Circuit("Circuit state transition", "breaker", "database:users", "from", "CLOSED", "to", "OPEN", "reason", "5 failures within monitoring period")
	helper.RateLimit("Rate limit exceeded", "identifier", "yodlee:sync-user123", "limit", 100, "current", 105)
	helper.Queue("Request queued", "identifier", "yodlee:sync-user123", "position", 3, "queue_size", 50)
	helper.Fallback("Circuit open, serving fallback", "breaker", "external_api:weather", "retry_after", "60s")
	helper.Request("POST", "/v1/ratelimit/check", 200, 12, "ip", "192.168.1.100")
	helper.Redis("Sliding window updated", "key", "window:external_api:weather", "count", 42)
	helper.Success("Breaker recovered", "breaker", "database:users", "probe_count", 3)
	helper.SlowRequest("Slow request detected", "method", "POST", "path", "/v1/probe", "duration_ms", 13438)

	println("\n=== 日志输出完成 ===")
}
