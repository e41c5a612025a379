package analytics

import (
	"github.com/syed-c/standzon-sub008/platform/httpkit"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	agg *Aggregator
}

func NewHandler(agg *Aggregator) *Handler {
	return &Handler{agg: agg}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/quote-matching", h.QuoteMatching)
}

func (h *Handler) QuoteMatching(c *gin.Context) {
	httpkit.OK(c, h.agg.Snapshot(h.agg.now()))
}
