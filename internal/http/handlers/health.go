package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"service": "RegScout API", "version": "0.1.0"})
}
