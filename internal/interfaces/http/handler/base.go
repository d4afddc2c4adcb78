package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"needle-api/internal/interfaces/http/dto"
	apperrors "needle-api/pkg/errors"
	"needle-api/pkg/logger"
)

// writeAppError 将应用层错误映射为统一错误响应
func writeAppError(ctx context.Context, c *gin.Context, err error, fallback string) {
	appErr := apperrors.AsAppError(err)
	if appErr.HTTPStatus >= 500 {
		logger.Error(ctx, fallback, err, "error_code", string(appErr.Code))
	}

	dto.ErrorWithDetail(c, appErr.HTTPStatus, appErr.Message, &dto.ErrorDetail{
		ErrorCode: string(appErr.Code),
		Details:   appErr.Detail,
	})
}
