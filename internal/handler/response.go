package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lab-api/internal/model"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// Error hands err to the error middleware, which maps it to a status
// and the standard envelope.
func Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ParsePagination reads limit/offset from the query string. Malformed
// values fall back to zero; services clamp to their own defaults.
func ParsePagination(c *gin.Context) model.Pagination {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return model.Pagination{Limit: limit, Offset: offset}
}
