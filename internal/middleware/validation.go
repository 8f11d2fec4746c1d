package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yigit/problemportal/internal/app/models/dto"
)

// BindJSON binds and validates a JSON body. On failure it writes a 400 with
// per-field details and returns false.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.HandleValidationError(err)))
		return false
	}
	return true
}

// BindForm is BindJSON for multipart and urlencoded bodies.
func BindForm(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBind(obj); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(dto.HandleValidationError(err)))
		return false
	}
	return true
}
