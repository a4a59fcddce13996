package errors

// 内置错误码 1000-1099，业务包从 3000 起各自分段

var (
	// ErrServer 服务器错误
	ErrServer = New(1000, 500, "服务器异常", nil)
	// ErrBadRequest 客户端请求错误
	ErrBadRequest = New(1001, 400, "请求异常", nil)
	// ErrUnauthorized 未授权
	ErrUnauthorized = New(1002, 401, "授权异常", nil)
	// ErrForbidden 禁止访问
	ErrForbidden = New(1003, 403, "禁止访问", nil)
	// ErrNotFound 资源不存在
	ErrNotFound = New(1004, 404, "资源不存在", nil)
	// ErrTooManyRequests 请求过于频繁
	ErrTooManyRequests = New(1005, 429, "请求过于频繁", nil)
	// ErrUnavailable 服务正在关闭或依赖不可用
	ErrUnavailable = New(1006, 503, "服务暂不可用", nil)
)
