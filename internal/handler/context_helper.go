package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-makeup-api/internal/models"
	"github.com/noah-isme/edu-makeup-api/pkg/middleware/requestid"
)

func requestOrigin(c *gin.Context) models.RequestOrigin {
	return models.RequestOrigin{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		RequestID: requestid.Value(c),
	}
}
