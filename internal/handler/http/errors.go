package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/metacurb/nestjs-websocket-starter/internal/domain"
	"github.com/metacurb/nestjs-websocket-starter/internal/service"
)

// HandleServiceError 把协调服务的错误映射到 HTTP 状态码：
// NotFound → 404，NotHost → 403，其余业务错误 → 400，
// 令牌问题 → 401，基础设施错误 → 500。
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrUserNotFound):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNotHost):
		ErrorResponse(c, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrInvalidToken):
		ErrorResponse(c, http.StatusUnauthorized, err.Error())
	case domain.IsDomainError(err):
		// InvalidOperation 族：RoomLocked / RoomFull / CannotKickSelf /
		// AlreadyHost / RoomCodeGenerationFailed
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	default:
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
