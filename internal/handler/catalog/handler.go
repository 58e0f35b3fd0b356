package catalog

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lab-api/internal/handler"
	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/service/catalog"
	apperrors "github.com/jwalitptl/lab-api/pkg/errors"
)

type Handler struct {
	service *catalog.Service
}

func NewHandler(service *catalog.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	tests := r.Group("/catalog/tests")
	{
		tests.GET("", h.ListTests)
		tests.GET("/:code", h.GetTest)
		tests.PUT("/:code", h.UpsertTest)
	}
}

func (h *Handler) ListTests(c *gin.Context) {
	entries, err := h.service.ListTests(c.Request.Context())
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(entries))
}

// GetTest returns the active entry for a code, or a specific retired
// version when ?version=N is given, so historical results stay
// interpretable.
func (h *Handler) GetTest(c *gin.Context) {
	code := c.Param("code")

	if raw := c.Query("version"); raw != "" {
		version, err := strconv.Atoi(raw)
		if err != nil || version < 1 {
			handler.Error(c, apperrors.NewValidation("version must be a positive integer", err))
			return
		}
		entry, err := h.service.GetTestVersion(c.Request.Context(), code, version)
		if err != nil {
			handler.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, handler.NewSuccessResponse(entry))
		return
	}

	entry, err := h.service.GetActiveTest(c.Request.Context(), code)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(entry))
}

func (h *Handler) UpsertTest(c *gin.Context) {
	code := c.Param("code")

	var req model.UpsertTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Error(c, apperrors.NewValidation(err.Error(), err))
		return
	}

	entry, err := h.service.UpsertTest(c.Request.Context(), code, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(entry))
}
