package provider

import (
	"context"

	"github.com/syed-c/standzon-sub008/platform/logger"

	"github.com/google/uuid"
)

// LogSender renders and logs messages without delivering them. It stands in
// for a channel whose provider is disabled.
type LogSender struct {
	log *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, m Message) (Receipt, error) {
	content, err := Render(m.TemplateID, m.Payload)
	if err != nil {
		return Receipt{}, err
	}
	id := "log-" + uuid.NewString()
	s.log.Info("notification not delivered: provider disabled",
		"channel", m.Channel, "recipient", m.Recipient, "subject", content.Subject, "deliveryId", id)
	return Receipt{DeliveryID: id}, nil
}

var _ Sender = (*LogSender)(nil)
