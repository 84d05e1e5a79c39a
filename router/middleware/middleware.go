package middleware

import (
	"crypto/subtle"
	"io"
	"net/http"
	"os"
	"strings"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/asaskevich/govalidator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cloudpage/drive/config"
	"github.com/cloudpage/drive/filesystem"
)

// The identifier of a user is used as a directory name, so it is limited to a
// conservative set of characters.
const userPattern = `^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`

// AttachRequestID attaches a unique ID to the incoming HTTP request so that any
// errors that are generated or returned to the client will include this reference
// allowing for an easier time identifying the specific request that failed for
// the user.
func AttachRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		c.Set("request_id", id)
		c.Set("logger", log.WithField("request_id", id))
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// CaptureAndAbort aborts the request and attaches the provided error to the gin
// context, so it can be reported properly. If the error is missing a stacktrace
// at the time it is called the stack will be attached.
func CaptureAndAbort(c *gin.Context, err error) {
	c.Abort()
	c.Error(errors.WithStackDepthIf(err, 1))
}

// CaptureErrors is custom handler function allowing for errors bubbled up by
// c.Error() to be returned in a standardized format with tracking UUIDs on them
// for easier log searching.
func CaptureErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		err := c.Errors.Last()
		if err == nil || err.Err == nil {
			return
		}

		status := http.StatusInternalServerError
		if c.Writer.Status() != 200 {
			status = c.Writer.Status()
		}
		if err.Error() == io.EOF.Error() {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "The data passed in the request was not in a parsable format. Please try again."})
			return
		}
		captured := NewError(err.Err)
		if s, msg := captured.asFilesystemError(); msg != "" {
			captured.SetMessage(msg)
			status = s
		}
		captured.Abort(c, status)
	}
}

// SetAccessControlHeaders sets the access request control headers on all of
// the requests.
func SetAccessControlHeaders() gin.HandlerFunc {
	origins := config.Get().AllowedOrigins

	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Accept, Accept-Encoding, Authorization, Cache-Control, Content-Type, Content-Length, Origin, X-Real-IP, X-CSRF-Token, If-None-Match")
		c.Header("Access-Control-Expose-Headers", "Content-Disposition, ETag, X-Request-Id")

		// Maximum age allowable under Chromium v76 is 2 hours, so just use that since
		// anything higher will be ignored (even if other browsers do allow higher values).
		//
		// @see https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/Access-Control-Max-Age#Directives
		c.Header("Access-Control-Max-Age", "7200")

		// Because you cannot set multiple values here we need to see if the origin is
		// one of the ones that we allow, and if so return it explicitly.
		origin := c.GetHeader("Origin")
		for _, o := range origins {
			if o != "*" && o != origin {
				continue
			}
			c.Header("Access-Control-Allow-Origin", o)
			break
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequireAuthorization ensures the request carries the authentication token
// from the configuration as a bearer token.
func RequireAuthorization() gin.HandlerFunc {
	return func(c *gin.Context) {
		// We don't put this value outside this function since the authentication
		// token can be changed on the fly and the config.Get() call returns a copy, so
		// if it is rotated this value will never properly get updated.
		token := config.Get().AuthenticationToken
		auth := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
		if len(auth) != 2 || auth[0] != "Bearer" {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "The required authorization heads were not present in the request."})
			return
		}

		if subtle.ConstantTimeCompare([]byte(auth[1]), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You are not authorized to access this endpoint."})
			return
		}
		c.Next()
	}
}

// AttachUserFilesystem resolves the drive belonging to the user in the request
// path and attaches a Filesystem rooted at it to the request context. The drive
// directory is created the first time a user makes a request. The logger for
// the context is also updated to include the user in the fields list.
func AttachUserFilesystem() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.Param("user")
		if !govalidator.Matches(user, userPattern) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "The requested resource does not exist on this instance."})
			return
		}

		sc := config.Get().System
		root := sc.UserDirectory(user)
		if err := os.MkdirAll(root, 0o700); err != nil {
			CaptureAndAbort(c, errors.WithMessage(err, "middleware: failed to create user drive"))
			return
		}

		c.Set("logger", ExtractLogger(c).WithField("user", user))
		c.Set("filesystem", filesystem.New(
			root,
			filesystem.WithDenylist(sc.Denylist),
			filesystem.WithWriteLimit(sc.WriteLimitBytes()),
			filesystem.WithListWorkers(sc.ListWorkers),
		))
		c.Next()
	}
}

// LimitUploadSize rejects requests whose body is larger than the configured
// upload limit, and caps the body of the remaining requests at that limit.
func LimitUploadSize() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := config.Get().Api.UploadLimit * 1024 * 1024
		if limit <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "The uploaded file is larger than the maximum allowed upload size."})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// ExtractLogger pulls the logger out of the request context and returns it. By
// default this will include the request ID, but may also include the user if
// that middleware has been used in the chain by the time it is called.
func ExtractLogger(c *gin.Context) *log.Entry {
	v, ok := c.Get("logger")
	if !ok {
		panic("middleware/middleware: cannot extract logger: not present in request context")
	}
	return v.(*log.Entry)
}

// ExtractFilesystem returns the user Filesystem from the gin.Context or panics
// if it is not present.
func ExtractFilesystem(c *gin.Context) *filesystem.Filesystem {
	v, ok := c.Get("filesystem")
	if !ok {
		panic("middleware/middleware: cannot extract filesystem: not present in request context")
	}
	return v.(*filesystem.Filesystem)
}
