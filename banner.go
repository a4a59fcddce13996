package posrt

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/gin-gonic/gin"
)

// Version 版本号
const Version = "0.3.0"

// banner ASCII Art
const banner = `
 ___  ___  ___ ___ _____
| _ \/ _ \/ __| _ \_   _|   POS 实时会话与广播服务
|  _/ (_) \__ \   / | |     open: %s
|_|  \___/|___/_|_\ |_|     version: %s
`

// printBanner 打印启动 banner 和路由表
func (e *Engine) printBanner(addr string) {
	out := os.Stdout

	var open string
	switch {
	case strings.HasPrefix(addr, ":"):
		open = "http://127.0.0.1" + addr
	case strings.Contains(addr, ":"):
		open = "http://" + addr
	default:
		open = "http://127.0.0.1:" + addr
	}

	fPrint(out, banner, open, Version)
	fPrint(out, "\n")

	if routes := e.engine.Routes(); len(routes) > 0 {
		printRoutes(out, routes, e.config.Mode)
		fPrint(out, "\n")
	}

	fPrint(out, "[posrt] Running in %q mode | Go %s | %s/%s\n", e.config.Mode, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fPrint(out, "[posrt] Listening on %s\n", addr)
}

// printRoutes 格式化打印路由表
func printRoutes(out io.Writer, routes gin.RoutesInfo, mode string) {
	maxPathLen := 0
	for _, r := range routes {
		maxPathLen = max(maxPathLen, len(r.Path))
	}

	for _, r := range routes {
		fPrint(out, "[posrt-%s] %-7s %-*s --> %s\n", mode, r.Method, maxPathLen, r.Path, r.Handler)
	}
}

// silenceGin 静默 Gin 的默认输出
func silenceGin() {
	gin.DefaultWriter = io.Discard
	gin.DefaultErrorWriter = io.Discard
}

// fPrint 打印到 writer，忽略错误（banner 输出场景）
func fPrint(out io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(out, format, a...)
}
