package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cloudpage/drive/router/middleware"
	"github.com/cloudpage/drive/system"
)

// The number of entries returned for a page of folder contents when the
// request does not specify a size.
const defaultPageSize = 20

// Returns the value of a query parameter that must be present on the request,
// aborting the request if it is missing. An empty value is allowed.
func requiredQuery(c *gin.Context, key string) (string, bool) {
	v, ok := c.GetQuery(key)
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": "The \"" + key + "\" parameter is required for this request.",
		})
	}
	return v, ok
}

// Responds with the full folder tree for the drive. Mutating folder routes
// respond with this as well so that clients can redraw the tree in one go.
func respondWithRootTree(c *gin.Context) {
	tree, err := middleware.ExtractFilesystem(c).Tree("")
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

// Returns the folder tree starting at the root of the drive.
func getRootFolder(c *gin.Context) {
	respondWithRootTree(c)
}

// Returns the folder tree starting at the requested folder.
func getFolderByPath(c *gin.Context) {
	p, ok := requiredQuery(c, "path")
	if !ok {
		return
	}
	tree, err := middleware.ExtractFilesystem(c).Tree(p)
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

// Returns a single sorted page of the immediate contents of a folder.
func getFolderContent(c *gin.Context) {
	page, err := system.AtoiOr(c.Query("page"), 0)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "The page number must be an integer."})
		return
	}
	size, err := system.AtoiOr(c.Query("size"), defaultPageSize)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "The page size must be an integer."})
		return
	}

	res, err := middleware.ExtractFilesystem(c).ListDirectory(c.Query("path"), page, size, c.Query("sort"))
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Creates a new folder inside an existing one.
func postCreateFolder(c *gin.Context) {
	parent, ok := requiredQuery(c, "parentPath")
	if !ok {
		return
	}
	name, ok := requiredQuery(c, "name")
	if !ok {
		return
	}

	fs := middleware.ExtractFilesystem(c)
	if _, err := fs.CreateDirectory(name, parent); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	middleware.ExtractLogger(c).WithField("parent", parent).WithField("name", name).Debug("created folder")

	respondWithRootTree(c)
}

// Deletes a folder and everything within it.
func deleteFolder(c *gin.Context) {
	p, ok := requiredQuery(c, "folderPath")
	if !ok {
		return
	}

	if err := middleware.ExtractFilesystem(c).DeleteDirectory(p); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	middleware.ExtractLogger(c).WithField("path", p).Debug("deleted folder")

	respondWithRootTree(c)
}

// Renames (or moves) a folder.
func patchRenameFolder(c *gin.Context) {
	from, ok := requiredQuery(c, "folderPath")
	if !ok {
		return
	}
	to, ok := requiredQuery(c, "newPath")
	if !ok {
		return
	}

	if err := middleware.ExtractFilesystem(c).Rename(from, to); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}

	respondWithRootTree(c)
}
