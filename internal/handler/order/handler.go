package order

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/lab-api/internal/handler"
	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/internal/service/order"
	"github.com/jwalitptl/lab-api/internal/service/result"
	apperrors "github.com/jwalitptl/lab-api/pkg/errors"
)

type Handler struct {
	orders  *order.Service
	results *result.Service
}

func NewHandler(orders *order.Service, results *result.Service) *Handler {
	return &Handler{orders: orders, results: results}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders")
	{
		orders.POST("", h.CreateOrder)
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.POST("/:id/transition", h.TransitionStatus)
		orders.POST("/:id/results", h.SubmitResult)
	}
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var req model.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Error(c, apperrors.NewValidation(err.Error(), err))
		return
	}

	created, err := h.orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(created))
}

func (h *Handler) ListOrders(c *gin.Context) {
	filters := &model.OrderFilters{
		Status:     model.OrderStatus(c.Query("status")),
		PatientID:  c.Query("patient_id"),
		ProviderID: c.Query("provider_id"),
		Priority:   model.OrderPriority(c.Query("priority")),
		Pagination: handler.ParsePagination(c),
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), filters)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(orders))
}

func (h *Handler) GetOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, apperrors.NewValidation("invalid order id", err))
		return
	}

	detail, err := h.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(detail))
}

func (h *Handler) TransitionStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, apperrors.NewValidation("invalid order id", err))
		return
	}

	var req model.TransitionOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Error(c, apperrors.NewValidation(err.Error(), err))
		return
	}

	updated, err := h.orders.TransitionStatus(c.Request.Context(), id, req.ExpectedVersion, model.OrderStatus(req.Status))
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(updated))
}

func (h *Handler) SubmitResult(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, apperrors.NewValidation("invalid order id", err))
		return
	}

	var req model.SubmitResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Error(c, apperrors.NewValidation(err.Error(), err))
		return
	}

	submitted, err := h.results.SubmitResult(c.Request.Context(), id, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(submitted))
}
