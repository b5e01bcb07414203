package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"oncall-platform/internal/models"
	"oncall-platform/internal/services"
	"oncall-platform/pkg/apierror"
	"oncall-platform/pkg/pagination"
	"oncall-platform/pkg/response"
)

// NotificationHandler exposes Notification's HTTP surface.
type NotificationHandler struct {
	svc *services.NotificationService
}

func NewNotificationHandler(svc *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

func (h *NotificationHandler) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")
	v1.POST("/notify", h.notify)
	v1.GET("/notifications/:id", h.get)
	v1.GET("/notifications", h.list)
	v1.GET("/notifications/stats/summary", h.stats)
}

// Channel carries no "channel" binding tag: NotificationService.Notify
// case-folds it before validating, so binding here would reject valid
// mixed-case input ahead of the fold.
type notifyRequest struct {
	IncidentID string                 `json:"incident_id" binding:"required"`
	Channel    string                 `json:"channel" binding:"required"`
	Recipient  string                 `json:"recipient" binding:"required"`
	Message    string                 `json:"message" binding:"required"`
	Severity   string                 `json:"severity"`
	Metadata   map[string]interface{} `json:"metadata"`
}

func (h *NotificationHandler) notify(c *gin.Context) {
	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apierror.Validation(err.Error()))
		return
	}
	n, err := h.svc.Notify(c.Request.Context(), services.NotifyRequest{
		IncidentID: req.IncidentID, Channel: req.Channel, Recipient: req.Recipient,
		Message: req.Message, Severity: req.Severity, Metadata: req.Metadata,
	})
	if err != nil {
		response.Error(c, apierror.From(err))
		return
	}
	response.JSON(c, http.StatusOK, n)
}

func (h *NotificationHandler) get(c *gin.Context) {
	n, err := h.svc.Get(c.Param("id"))
	if err != nil {
		response.Error(c, apierror.From(err))
		return
	}
	response.JSON(c, http.StatusOK, n)
}

func (h *NotificationHandler) list(c *gin.Context) {
	f := models.NotificationFilter{
		Channel:    models.Channel(c.Query("channel")),
		Status:     models.NotificationStatus(c.Query("status")),
		IncidentID: c.Query("incident_id"),
		Recipient:  c.Query("recipient"),
		Page:       pagination.GetPage(c),
		PageSize:   pagination.GetPageSize(c),
	}
	items, total := h.svc.List(f)
	response.JSON(c, http.StatusOK, response.PaginatedList{Items: items, Page: f.Page, PageSize: f.PageSize, Total: total})
}

func (h *NotificationHandler) stats(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.svc.Stats())
}
