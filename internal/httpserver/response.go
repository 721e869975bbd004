package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pennywise/internal/apperr"
	"pennywise/pkg/logger"
)

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondList(c *gin.Context, items any, page, limit, total, count, pages int) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    items,
		"page":    page,
		"limit":   limit,
		"total":   total,
		"count":   count,
		"pages":   pages,
	})
}

// respondError writes the error envelope. Only typed messages reach the
// client; anything else is logged and reported as an internal error.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.WithTrace(c.Request.Context(), log).Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	code := string(apperr.KindOf(err))
	if code == "" {
		code = "INTERNAL_ERROR"
	}
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": apperr.PublicMessage(err),
		},
	})
}
