package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/syed-c/standzon-sub008/platform/config"
	"github.com/syed-c/standzon-sub008/platform/logger"
	"github.com/syed-c/standzon-sub008/platform/phone"
	"github.com/syed-c/standzon-sub008/platform/sanitize"
)

// SMSSender posts messages to an HTTP SMS gateway.
type SMSSender struct {
	baseURL  string
	apiKey   string
	senderID string
	http     *http.Client
	log      *logger.Logger
}

type smsRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Text string `json:"text"`
}

type smsResponse struct {
	MessageID string `json:"messageId"`
}

// NewSMSSender returns nil when no gateway is configured.
func NewSMSSender(cfg config.SMSConfig, log *logger.Logger) *SMSSender {
	if cfg.GetSMSGatewayURL() == "" {
		return nil
	}
	return &SMSSender{
		baseURL:  strings.TrimRight(cfg.GetSMSGatewayURL(), "/"),
		apiKey:   cfg.GetSMSGatewayKey(),
		senderID: cfg.GetSMSSenderID(),
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

func (c *SMSSender) Send(ctx context.Context, m Message) (Receipt, error) {
	to, err := phone.ParseE164(m.Recipient, "")
	if err != nil {
		return Receipt{}, Permanent(fmt.Errorf("sms recipient %q: %w", m.Recipient, err))
	}

	content, err := Render(m.TemplateID, m.Payload)
	if err != nil {
		return Receipt{}, err
	}

	body, err := json.Marshal(smsRequest{To: to, From: c.senderID, Text: sanitize.PlainText(content.Text, smsMaxRunes)})
	if err != nil {
		return Receipt{}, Permanent(fmt.Errorf("marshal sms payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Receipt{}, Transient(fmt.Errorf("sms request failed: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		statusErr := fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return Receipt{}, Transient(statusErr)
		}
		return Receipt{}, Permanent(statusErr)
	}

	var out smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		c.log.Warn("sms gateway returned unreadable receipt", "error", err)
	}
	c.log.Info("sms sent via gateway", "phone", to, "deliveryId", out.MessageID)
	return Receipt{DeliveryID: out.MessageID}, nil
}

var _ Sender = (*SMSSender)(nil)
