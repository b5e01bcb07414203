// Package response is the single place every handler renders through,
// adapted from the teacher's {code,message,data} envelope to the bit-exact
// shapes this system's contract requires: a raw JSON payload on success,
// and {"detail", "request_id"} on error.
package response

import (
	"github.com/gin-gonic/gin"

	"oncall-platform/pkg/apierror"
)

// JSON renders a success payload verbatim, with no enclosing envelope.
func JSON(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

type errorBody struct {
	Detail    string `json:"detail"`
	RequestID string `json:"request_id"`
}

// Error renders the {"detail","request_id"} shape every error response
// takes, reading the request id RequestIDMiddleware attached to the
// context.
func Error(c *gin.Context, err *apierror.Error) {
	requestID, _ := c.Get("request_id")
	rid, _ := requestID.(string)
	c.JSON(err.Status(), errorBody{
		Detail:    err.Detail,
		RequestID: rid,
	})
}

// PaginatedList is the common shape for paginated collection responses.
type PaginatedList struct {
	Items    interface{} `json:"items"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Total    int64       `json:"total"`
}
