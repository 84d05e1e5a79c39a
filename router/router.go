package router

import (
	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"github.com/cloudpage/drive/router/middleware"
)

// Configure configures the routing infrastructure for this daemon instance.
func Configure() *gin.Engine {
	gin.SetMode("release")

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.AttachRequestID(), middleware.CaptureErrors(), middleware.SetAccessControlHeaders())
	// This should still dump requests in debug mode since it does help with understanding
	// the request lifecycle and quickly seeing what was called leading to the logs.
	router.Use(gin.LoggerWithFormatter(func(params gin.LogFormatterParams) string {
		log.WithFields(log.Fields{
			"client_ip":  params.ClientIP,
			"status":     params.StatusCode,
			"latency":    params.Latency,
			"request_id": params.Keys["request_id"],
		}).Debugf("%s %s", params.MethodColor()+params.Method+params.ResetColor(), params.Path)

		return ""
	}))

	// All the routes beyond this mount will use an authorization middleware
	// and will not be accessible without the correct Authorization header provided.
	protected := router.Group("/api")
	protected.Use(middleware.RequireAuthorization())
	protected.GET("/system", getSystemInformation)

	// These are user specific routes, and require that the request be authorized.
	// Every one of them operates on the drive belonging to the user in the path.
	user := protected.Group("/users/:user")
	user.Use(middleware.AttachUserFilesystem())
	{
		folders := user.Group("/folders")
		{
			folders.GET("", getRootFolder)
			folders.GET("/path", getFolderByPath)
			folders.GET("/content", getFolderContent)
			folders.POST("", postCreateFolder)
			folders.DELETE("", deleteFolder)
			folders.PATCH("", patchRenameFolder)
		}

		files := user.Group("/files")
		{
			files.POST("/upload", middleware.LimitUploadSize(), postUploadFile)
			files.GET("/content", getFileContents)
			files.DELETE("", deleteFile)
			files.POST("/delete", postDeleteFiles)
			files.PATCH("/move", patchMoveFile)
			files.GET("/download", getDownloadFile)
			files.GET("/view", getViewFile)
		}
	}

	return router
}
