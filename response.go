package posrt

import "net/http"

// Response 管理接口的统一响应信封
type Response struct {
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewResponse 创建响应
func NewResponse(code int, data any, message string) *Response {
	return &Response{
		Code:    code,
		Data:    data,
		Message: message,
	}
}

func okResponse(data any) *Response {
	return NewResponse(http.StatusOK, data, "success")
}

// ErrorBody 实时接口错误体，与 WebSocket error 帧的 error 字段一致
type ErrorBody struct {
	Error string `json:"error"`
}
