package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"oncall-platform/internal/models"
	"oncall-platform/internal/services"
	"oncall-platform/pkg/apierror"
	"oncall-platform/pkg/response"
)

// OnCallHandler exposes On-Call & Escalation's HTTP surface.
type OnCallHandler struct {
	svc *services.OnCallService
}

func NewOnCallHandler(svc *services.OnCallService) *OnCallHandler {
	return &OnCallHandler{svc: svc}
}

func (h *OnCallHandler) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")
	v1.POST("/schedules", h.createSchedule)
	v1.GET("/schedules", h.listSchedules)
	v1.GET("/schedules/:team", h.getSchedule)
	v1.PATCH("/schedules/:team", h.patchSchedule)
	v1.DELETE("/schedules/:team", h.deleteSchedule)

	v1.GET("/oncall/current", h.current)
	v1.POST("/oncall/override", h.setOverride)
	v1.DELETE("/oncall/override/:team", h.deleteOverride)
	v1.GET("/oncall/overrides", h.listOverrides)

	v1.POST("/escalate", h.escalate)
	v1.GET("/escalations", h.escalations)

	v1.GET("/oncall/history", h.history)
	v1.GET("/teams", h.teams)
	v1.GET("/oncall/stats", h.stats)
}

type memberDTO struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required"`
	Role  string `json:"role" binding:"required,role"`
}

type createScheduleRequest struct {
	Team         string      `json:"team" binding:"required"`
	RotationType string      `json:"rotation_type" binding:"required,rotationtype"`
	Members      []memberDTO `json:"members" binding:"required,min=1,dive"`
}

func toMembers(dtos []memberDTO) []models.Member {
	out := make([]models.Member, len(dtos))
	for i, d := range dtos {
		out[i] = models.Member{Name: d.Name, Email: d.Email, Role: models.MemberRole(d.Role)}
	}
	return out
}

func (h *OnCallHandler) createSchedule(c *gin.Context) {
	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apierror.Validation(err.Error()))
		return
	}
	sch, err := h.svc.CreateSchedule(c.Request.Context(), req.Team, models.RotationType(req.RotationType), toMembers(req.Members))
	if err != nil {
		response.Error(c, apierror.From(err))
		return
	}
	response.JSON(c, http.StatusCreated, sch)
}

func (h *OnCallHandler) listSchedules(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.svc.ListSchedules())
}

func (h *OnCallHandler) getSchedule(c *gin.Context) {
	sch, err := h.svc.GetSchedule(c.Param("team"))
	if err != nil {
		response.Error(c, apierror.From(err))
		return
	}
	response.JSON(c, http.StatusOK, sch)
}

type patchScheduleRequest struct {
	RotationType *string     `json:"rotation_type"`
	AddMembers   []memberDTO `json:"add_members"`
	RemoveEmails []string    `json:"remove_emails"`
}

func (h *OnCallHandler) patchSchedule(c *gin.Context) {
	var req patchScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apierror.Validation(err.Error()))
		return
	}
	var rotationType *models.RotationType
	if req.RotationType != nil {
		rt := models.RotationType(*req.RotationType)
		rotationType = &rt
	}
	sch, err := h.svc.PatchSchedule(c.Param("team"), rotationType, toMembers(req.AddMembers), req.RemoveEmails)
	if err != nil {
		response.Error(c, apierror.From(err))
		return
	}
	response.JSON(c, http.StatusOK, sch)
}

func (h *OnCallHandler) deleteSchedule(c *gin.Context) {
	if err := h.svc.DeleteSchedule(c.Param("team")); err != nil {
		response.Error(c, apierror.From(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *OnCallHandler) current(c *gin.Context) {
	team := c.Query("team")
	if team == "" {
		response.Error(c, apierror.Validation("team query parameter is required"))
		return
	}
	requestID, _ := c.Get("request_id")
	rid, _ := requestID.(string)
	current, err := h.svc.Current(c.Request.Context(), rid, team)
	if err != nil {
		response.Error(c, apierror.From(err))
		return
	}
	response.JSON(c, http.StatusOK, current)
}

type setOverrideRequest struct {
	Team          string `json:"team" binding:"required"`
	UserName      string `json:"user_name" binding:"required"`
	UserEmail     string `json:"user_email" binding:"required"`
	Reason        string `json:"reason"`
	DurationHours int    `json:"duration_hours"`
}

func (h *OnCallHandler) setOverride(c *gin.Context) {
	var req setOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apierror.Validation(err.Error()))
		return
	}
	o, err := h.svc.SetOverride(req.Team, req.UserName, req.UserEmail, req.Reason, req.DurationHours)
	if err != nil {
		response.Error(c, apierror.From(err))
		return
	}
	response.JSON(c, http.StatusCreated, o)
}

func (h *OnCallHandler) deleteOverride(c *gin.Context) {
	h.svc.DeleteOverride(c.Param("team"))
	c.Status(http.StatusNoContent)
}

func (h *OnCallHandler) listOverrides(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.svc.ListActiveOverrides())
}

type escalateRequest struct {
	Team       string `json:"team" binding:"required"`
	IncidentID string `json:"incident_id" binding:"required"`
	Reason     string `json:"reason"`
}

func (h *OnCallHandler) escalate(c *gin.Context) {
	var req escalateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apierror.Validation(err.Error()))
		return
	}
	requestID, _ := c.Get("request_id")
	rid, _ := requestID.(string)
	e, err := h.svc.Escalate(c.Request.Context(), rid, req.Team, req.IncidentID, req.Reason)
	if err != nil {
		response.Error(c, apierror.From(err))
		return
	}
	response.JSON(c, http.StatusCreated, e)
}

func (h *OnCallHandler) escalations(c *gin.Context) {
	team := c.Query("team")
	limit := 50
	if l, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil && l > 0 {
		limit = l
	}
	response.JSON(c, http.StatusOK, h.svc.Escalations(team, limit))
}

func (h *OnCallHandler) history(c *gin.Context) {
	team := c.Query("team")
	eventType := models.HistoryEventType(c.Query("event_type"))
	response.JSON(c, http.StatusOK, h.svc.History(team, eventType))
}

func (h *OnCallHandler) teams(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.svc.Teams())
}

func (h *OnCallHandler) stats(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.svc.Stats())
}
