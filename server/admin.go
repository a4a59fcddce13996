package server

import (
	"errors"

	"go.uber.org/zap"

	"github.com/tokmz/posrt"
	"github.com/tokmz/posrt/pkg/audit"
	poserrors "github.com/tokmz/posrt/pkg/errors"
	"github.com/tokmz/posrt/pkg/realtime"
)

var (
	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = poserrors.ErrNotFound.WithMessage("会话不存在")
	// ErrShuttingDown 连接管理器已关闭
	ErrShuttingDown = poserrors.ErrUnavailable.WithMessage("服务正在关闭")
)

type closeSessionReq struct {
	ID string `uri:"id" binding:"required"`
}

// closeSession 管理端断开会话
func (s *Server) closeSession(c *posrt.Context, req *closeSessionReq) error {
	if err := s.manager.CloseSession(req.ID); err != nil {
		switch {
		case errors.Is(err, realtime.ErrSessionNotFound):
			return ErrSessionNotFound
		case errors.Is(err, realtime.ErrManagerClosed):
			return ErrShuttingDown
		}
		return err
	}
	s.log.InfoContext(c.RequestContext(), "session closed by admin", zap.String("session_id", req.ID))
	return nil
}

type auditQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

type auditList struct {
	Records []audit.BroadcastRecord `json:"records"`
}

// recentAudit 最近的广播审计记录
func (s *Server) recentAudit(c *posrt.Context, q *auditQuery) (*auditList, error) {
	recs, err := s.audit.Recent(c.RequestContext(), q.Limit)
	if err != nil {
		return nil, err
	}
	return &auditList{Records: recs}, nil
}
