package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nina/mediascout/internal/domain"
)

// respondError translates a typed domain error into an HTTP response.
// The taxonomy code always rides along in the body so clients can tell
// a budget stop from a rate limit without parsing messages.
func respondError(c *gin.Context, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		body := gin.H{
			"error": de.Message,
			"code":  string(de.Code),
		}
		if de.RetryAfter > 0 {
			seconds := int(de.RetryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			body["retry_after"] = seconds
		}
		c.JSON(de.Code.HTTPStatus(), body)
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": err.Error(),
		"code":  string(domain.ErrInternal),
	})
}
