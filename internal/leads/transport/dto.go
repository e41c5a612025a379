// Package transport holds the JSON request and response bodies of the lead
// HTTP API.
package transport

import (
	"time"

	"github.com/syed-c/standzon-sub008/internal/leads/domain"
	"github.com/syed-c/standzon-sub008/internal/notification/outbox"

	"github.com/google/uuid"
)

// Request DTOs

type ManageLeadRequest struct {
	Action string `json:"action" validate:"required,oneof=rematch notify close reopen"`
}

type RecordResponseRequest struct {
	BuilderID string `json:"builderId" validate:"required,max=120"`
}

type RecordQuoteRequest struct {
	BuilderID string  `json:"builderId" validate:"required,max=120"`
	Amount    float64 `json:"amount" validate:"gte=0"`
	Currency  string  `json:"currency" validate:"omitempty,len=3,alpha"`
}

type RecordOutcomeRequest struct {
	Outcome string  `json:"outcome" validate:"required,oneof=won lost"`
	Value   float64 `json:"value" validate:"gte=0"`
	Reason  string  `json:"reason" validate:"max=500"`
}

type SetBuilderVerifiedRequest struct {
	Verified *bool `json:"verified" validate:"required"`
}

type ConfirmDeliveryRequest struct {
	DeliveryID string `json:"deliveryId" validate:"required,max=200"`
}

// Response DTOs

type SubmitLeadResponse struct {
	LeadID           uuid.UUID     `json:"leadId"`
	Status           domain.Status `json:"status"`
	Duplicate        bool          `json:"duplicate"`
	BuildersNotified int           `json:"buildersNotified"`
}

type LeadResponse struct {
	domain.Lead
	NextStatuses []domain.Status `json:"nextStatuses"`
}

type ListResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

type JobResponse struct {
	ID          uuid.UUID     `json:"id"`
	BuilderID   string        `json:"builderId"`
	Channel     string        `json:"channel"`
	Status      outbox.Status `json:"status"`
	Attempts    int           `json:"attempts"`
	ScheduledAt time.Time     `json:"scheduledAt"`
	LastError   string        `json:"lastError,omitempty"`
	DeliveryID  string        `json:"deliveryId,omitempty"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

func NewLeadResponse(lead domain.Lead) LeadResponse {
	return LeadResponse{Lead: lead, NextStatuses: domain.NextStatuses(lead.Status)}
}

// NewJobResponse omits the recipient address.
func NewJobResponse(j outbox.Job) JobResponse {
	return JobResponse{
		ID:          j.ID,
		BuilderID:   j.BuilderID,
		Channel:     string(j.Channel),
		Status:      j.Status,
		Attempts:    j.Attempts,
		ScheduledAt: j.ScheduledAt,
		LastError:   j.LastError,
		DeliveryID:  j.DeliveryID,
		UpdatedAt:   j.UpdatedAt,
	}
}

func NewList[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Total: len(items)}
}
