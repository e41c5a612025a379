package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/syed-c/standzon-sub008/internal/builders"
	"github.com/syed-c/standzon-sub008/platform/logger"

	gomail "github.com/wneessen/go-mail"
)

type smsConfig struct{ url string }

func (c smsConfig) GetSMSGatewayURL() string { return c.url }
func (smsConfig) GetSMSGatewayKey() string   { return "key" }
func (smsConfig) GetSMSSenderID() string     { return "StandZon" }

func payload() map[string]any {
	return map[string]any{
		"companyName": "Acme <Robotics>",
		"exhibition":  "IFA Berlin",
		"city":        "Berlin",
		"country":     "Germany",
		"standSize":   60,
		"budget":      "$10k–20k",
		"timeline":    "1-2 months",
		"score":       92.5,
		"reasons":     []string{"serves Berlin, Germany", "offers Technology"},
	}
}

func TestRenderEscapesHTML(t *testing.T) {
	r, err := Render(TemplateNewLead, payload())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if r.Subject != "New stand request: IFA Berlin in Berlin" {
		t.Fatalf("unexpected subject %q", r.Subject)
	}
	if !strings.Contains(r.HTML, "Acme &lt;Robotics&gt;") {
		t.Fatalf("expected escaped company name in html")
	}
	if !strings.Contains(r.Text, "Score 92.5") {
		t.Fatalf("unexpected text %q", r.Text)
	}
	if _, err := Render("missing", nil); !IsPermanent(err) {
		t.Fatalf("unknown template must be permanent, got %v", err)
	}
}

func TestSMSSenderClassifiesGatewayResponses(t *testing.T) {
	var status int
	var got smsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"messageId":"sms-1"}`))
	}))
	defer srv.Close()

	sender := NewSMSSender(smsConfig{url: srv.URL}, logger.Discard())
	msg := Message{Channel: builders.ChannelSMS, Recipient: "+4930123456", TemplateID: TemplateNewLead, Payload: payload()}

	status = http.StatusOK
	receipt, err := sender.Send(context.Background(), msg)
	if err != nil || receipt.DeliveryID != "sms-1" {
		t.Fatalf("expected receipt, got %+v (%v)", receipt, err)
	}
	if got.To != "+4930123456" || got.From != "StandZon" || strings.Contains(got.Text, "<") {
		t.Fatalf("unexpected gateway request %+v", got)
	}

	status = http.StatusServiceUnavailable
	_, err = sender.Send(context.Background(), msg)
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected transient error on 503, got %v", err)
	}

	status = http.StatusUnprocessableEntity
	if _, err = sender.Send(context.Background(), msg); !IsPermanent(err) {
		t.Fatalf("expected permanent error on 422, got %v", err)
	}

	msg.Recipient = "not a number"
	if _, err = sender.Send(context.Background(), msg); !IsPermanent(err) {
		t.Fatalf("expected permanent error for invalid recipient, got %v", err)
	}
}

type fakeMailClient struct {
	sent []*gomail.Msg
	err  error
}

func (f *fakeMailClient) DialAndSendWithContext(_ context.Context, msgs ...*gomail.Msg) error {
	f.sent = append(f.sent, msgs...)
	return f.err
}

func TestEmailSender(t *testing.T) {
	client := &fakeMailClient{}
	sender := newEmailSender(client, "StandZon", "leads@standzon.test")
	msg := Message{Channel: builders.ChannelEmail, Recipient: "builder@expo.test", TemplateID: TemplateNewLead, Payload: payload()}

	receipt, err := sender.Send(context.Background(), msg)
	if err != nil || receipt.DeliveryID == "" || len(client.sent) != 1 {
		t.Fatalf("expected one sent message, got %+v (%v)", receipt, err)
	}

	msg.Recipient = "not an address"
	if _, err := sender.Send(context.Background(), msg); !IsPermanent(err) {
		t.Fatalf("expected permanent error for invalid address, got %v", err)
	}

	client.err = errors.New("connection reset")
	msg.Recipient = "builder@expo.test"
	_, err = sender.Send(context.Background(), msg)
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected transient error for connection failure, got %v", err)
	}
}

func TestRouterRejectsUnknownChannel(t *testing.T) {
	r := NewRouter().Register(builders.ChannelEmail, NewLogSender(logger.Discard()))
	if _, err := r.Send(context.Background(), Message{Channel: builders.ChannelSMS, TemplateID: TemplateNewLead}); !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if _, err := r.Send(context.Background(), Message{Channel: builders.ChannelEmail, TemplateID: TemplateNewLead, Payload: payload()}); err != nil {
		t.Fatalf("expected log sender to succeed, got %v", err)
	}
}
