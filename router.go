package posrt

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RouterGroup 路由组
type RouterGroup struct {
	group *gin.RouterGroup
}

// ============ 路由组管理 ============

// Group 创建子路由组
func (rg *RouterGroup) Group(path string, middlewares ...HandlerFunc) *RouterGroup {
	return &RouterGroup{
		group: rg.group.Group(path, WrapAll(middlewares...)...),
	}
}

// Use 注册中间件
func (rg *RouterGroup) Use(middlewares ...HandlerFunc) {
	rg.group.Use(WrapAll(middlewares...)...)
}

// BasePath 路由组前缀
func (rg *RouterGroup) BasePath() string {
	return rg.group.BasePath()
}

// ============ 基础路由方法 ============

// handle 注册路由，中间件在处理函数之前执行
func (rg *RouterGroup) handle(method, path string, handler HandlerFunc, middlewares []HandlerFunc) {
	handlers := append(WrapAll(middlewares...), wrap(handler))
	rg.group.Handle(method, path, handlers...)
}

// GET 注册 GET 路由
func (rg *RouterGroup) GET(path string, handler HandlerFunc, middlewares ...HandlerFunc) {
	rg.handle(http.MethodGet, path, handler, middlewares)
}

// POST 注册 POST 路由
func (rg *RouterGroup) POST(path string, handler HandlerFunc, middlewares ...HandlerFunc) {
	rg.handle(http.MethodPost, path, handler, middlewares)
}

// PUT 注册 PUT 路由
func (rg *RouterGroup) PUT(path string, handler HandlerFunc, middlewares ...HandlerFunc) {
	rg.handle(http.MethodPut, path, handler, middlewares)
}

// DELETE 注册 DELETE 路由
func (rg *RouterGroup) DELETE(path string, handler HandlerFunc, middlewares ...HandlerFunc) {
	rg.handle(http.MethodDelete, path, handler, middlewares)
}

// Any 注册所有 HTTP 方法的路由
func (rg *RouterGroup) Any(path string, handler HandlerFunc, middlewares ...HandlerFunc) {
	rg.group.Any(path, append(WrapAll(middlewares...), wrap(handler))...)
}

// ============ 泛型路由（自动绑定 + 统一响应）============

// RouteRegister 路由注册函数类型
type RouteRegister func(path string, handler HandlerFunc, middlewares ...HandlerFunc)

// Handle 有请求参数，有响应数据
func Handle[Req any, Resp any](register RouteRegister, path string, handler func(*Context, *Req) (*Resp, error), middlewares ...HandlerFunc) {
	register(path, func(c *Context) {
		var req Req
		if err := autoBind(c, &req); err != nil {
			c.RespondError(err)
			return
		}
		resp, err := handler(c, &req)
		if err != nil {
			c.RespondError(err)
			return
		}
		c.Success(resp)
	}, middlewares...)
}

// Handle0 有请求参数，无响应数据
func Handle0[Req any](register RouteRegister, path string, handler func(*Context, *Req) error, middlewares ...HandlerFunc) {
	register(path, func(c *Context) {
		var req Req
		if err := autoBind(c, &req); err != nil {
			c.RespondError(err)
			return
		}
		if err := handler(c, &req); err != nil {
			c.RespondError(err)
			return
		}
		c.Nil()
	}, middlewares...)
}

// autoBind 先绑定路径参数，再按请求方法绑定 query 或 body
// gin 每次绑定都会校验整个结构体，路径参数需先于其他来源写入
func autoBind(c *Context, obj any) error {
	if len(c.ctx.Params) > 0 {
		if err := c.ShouldBindUri(obj); err != nil {
			return c.wrapBindError(err)
		}
	}

	var err error
	switch c.Request().Method {
	case http.MethodGet, http.MethodDelete:
		err = c.ShouldBindQuery(obj)
	default:
		err = c.ShouldBind(obj)
	}
	if err != nil {
		return c.wrapBindError(err)
	}
	return nil
}
