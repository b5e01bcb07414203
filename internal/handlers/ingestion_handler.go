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

// IngestionHandler exposes Alert Ingestion's HTTP surface.
type IngestionHandler struct {
	svc *services.IngestionService
}

func NewIngestionHandler(svc *services.IngestionService) *IngestionHandler {
	return &IngestionHandler{svc: svc}
}

func (h *IngestionHandler) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")
	v1.POST("/alerts", h.create)
	v1.GET("/alerts", h.list)
	v1.GET("/alerts/:id", h.get)
}

type createAlertRequest struct {
	Service   string            `json:"service" binding:"required"`
	Severity  string            `json:"severity" binding:"required,severity"`
	Message   string            `json:"message" binding:"required"`
	Labels    map[string]string `json:"labels"`
	Source    string            `json:"source"`
	Timestamp *string           `json:"timestamp"`
}

func (h *IngestionHandler) create(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apierror.Validation(err.Error()))
		return
	}

	var ts *parsedTime
	if req.Timestamp != nil {
		p, err := parseTimestamp(*req.Timestamp)
		if err != nil {
			response.Error(c, apierror.Validation("timestamp must be RFC3339"))
			return
		}
		ts = p
	}

	requestID, _ := c.Get("request_id")
	rid, _ := requestID.(string)

	in := services.IngestRequest{
		Service:  req.Service,
		Severity: models.Severity(req.Severity),
		Message:  req.Message,
		Labels:   req.Labels,
		Source:   req.Source,
	}
	if ts != nil {
		in.Timestamp = &ts.t
	}

	result, err := h.svc.Ingest(c.Request.Context(), rid, in)
	if err != nil {
		response.Error(c, apierror.From(err))
		return
	}
	response.JSON(c, http.StatusCreated, gin.H{
		"alert_id":    result.AlertID,
		"incident_id": result.IncidentID,
		"status":      "correlated",
		"action":      result.Action,
	})
}

func (h *IngestionHandler) get(c *gin.Context) {
	id := c.Param("id")
	alert, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, apierror.From(err))
		return
	}
	response.JSON(c, http.StatusOK, alert)
}

func (h *IngestionHandler) list(c *gin.Context) {
	f := models.AlertFilter{
		Service:    c.Query("service"),
		Severity:   models.Severity(c.Query("severity")),
		IncidentID: c.Query("incident_id"),
		Page:       pagination.GetPage(c),
		PageSize:   pagination.GetPageSize(c),
	}
	items, total, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		response.Error(c, apierror.From(err))
		return
	}
	response.JSON(c, http.StatusOK, response.PaginatedList{Items: items, Page: f.Page, PageSize: f.PageSize, Total: total})
}
