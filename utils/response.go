package utils

import (
	"github.com/gin-gonic/gin"
)

// JSONResponse sends a structured JSON response
func JSONResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, gin.H{
		"status_code": status,
		"message":     message,
		"data":        data,
	})
}

// JSONError sends a structured error response. detail is the machine-readable code.
func JSONError(c *gin.Context, status int, message, detail string) {
	c.JSON(status, gin.H{
		"status_code": status,
		"message":     message,
		"detail":      detail,
	})
}

// AbortWithError writes the error envelope and stops the handler chain.
func AbortWithError(c *gin.Context, status int, message, detail string) {
	c.AbortWithStatusJSON(status, gin.H{
		"status_code": status,
		"message":     message,
		"detail":      detail,
	})
}
