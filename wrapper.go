package posrt

import "github.com/gin-gonic/gin"

// HandlerFunc 路由处理函数和中间件函数，中间件需调用 c.Next()
type HandlerFunc func(*Context)

// wrap 每次调用都新建 Context，跨中间件的状态要放在 gin 的 Keys 里
func wrap(fn HandlerFunc) gin.HandlerFunc {
	if fn == nil {
		panic("posrt: handler/middleware cannot be nil")
	}
	return func(c *gin.Context) {
		fn(&Context{ctx: c})
	}
}

// WrapAll 批量转换处理函数，便于挂到原生 gin 路由上
func WrapAll(fns ...HandlerFunc) []gin.HandlerFunc {
	wrapped := make([]gin.HandlerFunc, len(fns))
	for i, fn := range fns {
		wrapped[i] = wrap(fn)
	}
	return wrapped
}
