package audit

import "github.com/tokmz/posrt/pkg/errors"

// 审计包错误码 3201 起
var (
	ErrAuditWrite   = errors.New(3201, 500, "写入广播审计失败", nil)
	ErrAuditQuery   = errors.New(3202, 500, "查询广播审计失败", nil)
	ErrAuditMigrate = errors.New(3203, 500, "初始化审计表失败", nil)
)
