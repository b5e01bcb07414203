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

// IncidentHandler exposes Incident Management's HTTP surface.
type IncidentHandler struct {
	svc *services.IncidentService
}

func NewIncidentHandler(svc *services.IncidentService) *IncidentHandler {
	return &IncidentHandler{svc: svc}
}

func (h *IncidentHandler) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")
	v1.POST("/incidents", h.create)
	v1.GET("/incidents", h.list)
	v1.GET("/incidents/:id", h.get)
	v1.PATCH("/incidents/:id", h.patch)
	v1.GET("/incidents/:id/metrics", h.metrics)
	v1.GET("/incidents/stats/summary", h.stats)
}

type createIncidentRequest struct {
	Title      string `json:"title" binding:"required"`
	Service    string `json:"service" binding:"required"`
	Severity   string `json:"severity" binding:"required,severity"`
	AssignedTo string `json:"assigned_to"`
}

func (h *IncidentHandler) create(c *gin.Context) {
	var req createIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apierror.Validation(err.Error()))
		return
	}
	requestID, _ := c.Get("request_id")
	rid, _ := requestID.(string)
	idemKey := c.GetHeader("Idempotency-Key")

	inc, err := h.svc.Create(c.Request.Context(), rid, idemKey, services.CreateRequest{
		Title: req.Title, Service: req.Service, Severity: models.Severity(req.Severity), AssignedTo: req.AssignedTo,
	})
	if err != nil {
		response.Error(c, apierror.From(err))
		return
	}
	response.JSON(c, http.StatusCreated, inc)
}

func (h *IncidentHandler) list(c *gin.Context) {
	f := models.IncidentFilter{
		Status:   models.IncidentStatus(c.Query("status")),
		Severity: models.Severity(c.Query("severity")),
		Service:  c.Query("service"),
		Page:     pagination.GetPage(c),
		PageSize: pagination.GetPageSize(c),
	}
	items, total, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		response.Error(c, apierror.From(err))
		return
	}
	response.JSON(c, http.StatusOK, response.PaginatedList{Items: items, Page: f.Page, PageSize: f.PageSize, Total: total})
}

func (h *IncidentHandler) get(c *gin.Context) {
	detail, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, apierror.From(err))
		return
	}
	response.JSON(c, http.StatusOK, detail)
}

type incidentNoteRequest struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

type patchIncidentRequest struct {
	Status     *string              `json:"status"`
	AssignedTo *string              `json:"assigned_to"`
	Note       *incidentNoteRequest `json:"note"`
	Notes      *string              `json:"notes"`
}

func (h *IncidentHandler) patch(c *gin.Context) {
	var req patchIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apierror.Validation(err.Error()))
		return
	}

	patch := services.PatchRequest{AssignedTo: req.AssignedTo}
	switch {
	case req.Note != nil:
		author := req.Note.Author
		if author == "" {
			author = "operator"
		}
		patch.NoteAuthor = author
		patch.NoteContent = req.Note.Content
		patch.HasNote = true
	case req.Notes != nil:
		patch.NoteAuthor = "operator"
		patch.NoteContent = *req.Notes
		patch.HasNote = true
	}
	if req.Status != nil {
		status := models.IncidentStatus(*req.Status)
		if !status.Valid() {
			response.Error(c, apierror.Validation("status must be one of open, acknowledged, in_progress, resolved"))
			return
		}
		patch.Status = &status
	}

	inc, err := h.svc.Patch(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		response.Error(c, apierror.From(err))
		return
	}
	response.JSON(c, http.StatusOK, inc)
}

func (h *IncidentHandler) metrics(c *gin.Context) {
	inc, err := h.svc.Metrics(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, apierror.From(err))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"incident_id":  inc.ID,
		"mtta_seconds": inc.MTTASeconds,
		"mttr_seconds": inc.MTTRSeconds,
		"status":       inc.Status,
	})
}

func (h *IncidentHandler) stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, apierror.From(err))
		return
	}
	response.JSON(c, http.StatusOK, stats)
}
