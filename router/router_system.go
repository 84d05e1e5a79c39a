package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cloudpage/drive/system"
)

// Returns information about the system that the daemon is running on.
func getSystemInformation(c *gin.Context) {
	c.JSON(http.StatusOK, system.GetSystemInformation())
}
