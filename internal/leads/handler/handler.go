// Package handler exposes the lead pipeline over HTTP.
package handler

import (
	"net/http"

	"github.com/syed-c/standzon-sub008/internal/leads/service"
	"github.com/syed-c/standzon-sub008/internal/leads/transport"
	"github.com/syed-c/standzon-sub008/platform/apperr"
	"github.com/syed-c/standzon-sub008/platform/httpkit"
	"github.com/syed-c/standzon-sub008/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid id"
)

// Handler serves the admin lead routes.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts lead routes on an admin group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id", h.GetByID)
	rg.GET("/:id/events", h.ListEvents)
	rg.GET("/:id/matches", h.ListMatches)
	rg.GET("/:id/jobs", h.ListJobs)
	rg.GET("/:id/history/verify", h.VerifyHistory)
	rg.POST("/:id/manage", h.Manage)
	rg.POST("/:id/responses", h.RecordResponse)
	rg.POST("/:id/quotes", h.RecordQuote)
	rg.POST("/:id/outcome", h.RecordOutcome)
}

// RegisterBuilderRoutes mounts the directory webhook routes.
func (h *Handler) RegisterBuilderRoutes(rg *gin.RouterGroup) {
	rg.POST("/:id/verified", h.SetBuilderVerified)
	rg.POST("/:id/rematch", h.RematchRegion)
}

// RegisterNotificationRoutes mounts provider receipt routes.
func (h *Handler) RegisterNotificationRoutes(rg *gin.RouterGroup) {
	rg.POST("/:id/delivered", h.ConfirmDelivery)
}

func (h *Handler) GetByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	lead, err := h.svc.GetLead(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewLeadResponse(lead))
}

func (h *Handler) ListEvents(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	evts, err := h.svc.ListEvents(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewList(evts))
}

func (h *Handler) ListMatches(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	matches, err := h.svc.ListMatches(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewList(matches))
}

func (h *Handler) ListJobs(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	jobs, err := h.svc.ListJobs(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	out := make([]transport.JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, transport.NewJobResponse(j))
	}
	httpkit.OK(c, transport.NewList(out))
}

func (h *Handler) VerifyHistory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	replayed, consistent, err := h.svc.VerifyHistory(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"replayedStatus": replayed, "consistent": consistent})
}

func (h *Handler) Manage(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.ManageLeadRequest
	if !h.bind(c, &req) {
		return
	}
	action, _ := service.ParseAction(req.Action)

	res, err := h.svc.Manage(c.Request.Context(), id, action, actor(c))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, res)
}

func (h *Handler) RecordResponse(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.RecordResponseRequest
	if !h.bind(c, &req) {
		return
	}
	lead, err := h.svc.RecordResponse(c.Request.Context(), id, req.BuilderID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewLeadResponse(lead))
}

func (h *Handler) RecordQuote(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.RecordQuoteRequest
	if !h.bind(c, &req) {
		return
	}
	lead, err := h.svc.RecordQuote(c.Request.Context(), id, req.BuilderID, req.Amount, req.Currency)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewLeadResponse(lead))
}

func (h *Handler) RecordOutcome(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.RecordOutcomeRequest
	if !h.bind(c, &req) {
		return
	}
	lead, err := h.svc.RecordOutcome(c.Request.Context(), id, req.Outcome, req.Value, req.Reason, actor(c))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewLeadResponse(lead))
}

func (h *Handler) SetBuilderVerified(c *gin.Context) {
	var req transport.SetBuilderVerifiedRequest
	if !h.bind(c, &req) {
		return
	}
	b, err := h.svc.VerifyBuilder(c.Request.Context(), c.Param("id"), *req.Verified)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, b)
}

func (h *Handler) RematchRegion(c *gin.Context) {
	summary, err := h.svc.RematchRegion(c.Request.Context(), c.Param("id"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, summary)
}

func (h *Handler) ConfirmDelivery(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.ConfirmDeliveryRequest
	if !h.bind(c, &req) {
		return
	}
	job, err := h.svc.ConfirmDelivery(c.Request.Context(), id, req.DeliveryID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewJobResponse(job))
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(msgValidationFailed).WithDetails(validator.FieldErrors(err)))
		return false
	}
	return true
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.Nil, false
	}
	return id, true
}

func actor(c *gin.Context) string {
	if subject := httpkit.GetIdentity(c).Subject(); subject != "" {
		return subject
	}
	return "admin"
}
