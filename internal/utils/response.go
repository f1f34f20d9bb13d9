package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func Success(c *gin.Context, data any) {
	SuccessWithStatus(c, http.StatusOK, data)
}

// SuccessWithStatus writes the success envelope with a non-200 code such as 202.
func SuccessWithStatus(c *gin.Context, code int, data any) {
	c.JSON(code, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   msg,
	})
}

// ErrorWithKind adds the machine readable error kind to the envelope.
func ErrorWithKind(c *gin.Context, code int, kind, msg string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   msg,
		"kind":    kind,
	})
}
