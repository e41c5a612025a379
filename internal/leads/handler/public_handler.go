package handler

import (
	"net/http"

	"github.com/syed-c/standzon-sub008/internal/leads/intake"
	"github.com/syed-c/standzon-sub008/internal/leads/service"
	"github.com/syed-c/standzon-sub008/internal/leads/transport"
	"github.com/syed-c/standzon-sub008/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// PublicHandler serves the unauthenticated quote request form.
type PublicHandler struct {
	svc *service.Service
}

func NewPublicHandler(svc *service.Service) *PublicHandler {
	return &PublicHandler{svc: svc}
}

// RegisterRoutes mounts the public lead routes. limiter may be nil.
func (h *PublicHandler) RegisterRoutes(rg *gin.RouterGroup, limiter gin.HandlerFunc) {
	if limiter != nil {
		rg.POST("", limiter, h.Submit)
		return
	}
	rg.POST("", h.Submit)
}

// Submit accepts a quote request. New leads answer 201, duplicates 200.
func (h *PublicHandler) Submit(c *gin.Context) {
	var req intake.RawSubmission
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	res, err := h.svc.Submit(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}

	body := transport.SubmitLeadResponse{
		LeadID:           res.LeadID,
		Status:           res.Status,
		Duplicate:        res.Duplicate,
		BuildersNotified: res.BuildersNotified,
	}
	if res.Duplicate {
		httpkit.OK(c, body)
		return
	}
	httpkit.Created(c, body)
}
