package router

import (
	"context"
	"net/http"
	"strconv"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/cloudpage/drive/config"
	"github.com/cloudpage/drive/filesystem"
	"github.com/cloudpage/drive/router/middleware"
	"github.com/cloudpage/drive/system"
)

// Writes an uploaded file into a folder of the drive, creating the folder if it
// does not exist yet. Responds with the details of the stored file.
func postUploadFile(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "The uploaded file is larger than the maximum allowed upload size."})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "A file must be provided in the \"file\" field of the request."})
		return
	}

	maxFileSize := config.Get().Api.UploadLimit
	if maxFileSize > 0 && header.Size > maxFileSize*1024*1024 {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "File " + header.Filename + " is larger than the maximum file upload size of " + strconv.FormatInt(maxFileSize, 10) + " MiB.",
		})
		return
	}

	f, err := header.Open()
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	defer f.Close()

	folder := system.FirstNotEmpty(c.PostForm("folderPath"), c.Query("folderPath"))
	fs := middleware.ExtractFilesystem(c)
	if err := fs.Writefile(folder, header.Filename, f); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	middleware.ExtractLogger(c).WithFields(log.Fields{
		"folder": folder,
		"name":   header.Filename,
		"size":   system.FormatBytes(header.Size),
	}).Debug("stored uploaded file")

	st, err := fs.Stat(folder + "/" + header.Filename)
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Returns the contents of a file in the drive.
func getFileContents(c *gin.Context) {
	p, ok := requiredQuery(c, "path")
	if !ok {
		return
	}
	if err := middleware.ExtractFilesystem(c).Readfile(p, c.Writer); err != nil {
		middleware.CaptureAndAbort(c, err)
	}
}

// Deletes a single file from the drive.
func deleteFile(c *gin.Context) {
	p, ok := requiredQuery(c, "filePath")
	if !ok {
		return
	}
	if err := middleware.ExtractFilesystem(c).Delete(p); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// Deletes a set of files from the drive. Every path is validated before any of
// them are removed, so a single bad path means nothing is deleted.
func postDeleteFiles(c *gin.Context) {
	var data struct {
		Files []string `json:"files"`
	}
	if err := c.BindJSON(&data); err != nil {
		return
	}
	if len(data.Files) == 0 {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "No files were specified for deletion."})
		return
	}

	fs := middleware.ExtractFilesystem(c)
	if _, err := fs.ParallelSafePath(data.Files); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}

	g, ctx := errgroup.WithContext(context.Background())
	for _, p := range data.Files {
		p := p
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return fs.Delete(p)
			}
		})
	}
	if err := g.Wait(); err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// Renames (or moves) a file.
func patchMoveFile(c *gin.Context) {
	from, ok := requiredQuery(c, "filePath")
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
	c.Status(http.StatusOK)
}

// Sends a file from the drive as an attachment.
func getDownloadFile(c *gin.Context) {
	serveFile(c, "attachment", "application/octet-stream")
}

// Sends a file from the drive so that it can be displayed by the browser.
func getViewFile(c *gin.Context) {
	serveFile(c, "inline", "")
}

// Serves a file along with its caching headers. A request that already holds
// the current version of the file is answered with a 304. When no content type
// is provided the detected mime type of the file is used.
func serveFile(c *gin.Context, disposition string, contentType string) {
	p, ok := requiredQuery(c, "path")
	if !ok {
		return
	}

	r, err := middleware.ExtractFilesystem(c).Open(p)
	if err != nil {
		middleware.CaptureAndAbort(c, err)
		return
	}
	defer r.Close()

	if contentType == "" {
		contentType = mimeOrDefault(r.Stat)
	}
	c.Header("ETag", r.ETag)
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", disposition+"; filename="+strconv.Quote(r.Stat.Name()))

	http.ServeContent(c.Writer, c.Request, r.Stat.Name(), r.LastModified, r.File)
}

func mimeOrDefault(st filesystem.Stat) string {
	if m := st.MimeType(); m != nil {
		return *m
	}
	return "application/octet-stream"
}
