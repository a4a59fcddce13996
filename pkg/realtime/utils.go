package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// generateSessionID 生成会话 ID
func generateSessionID() string {
	return uuid.NewString()
}

// nowMillis 当前 Unix 毫秒时间戳
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// writeHTTPError 升级前的失败响应，格式与 error 帧一致
func writeHTTPError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
