package notification

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/syed-c/standzon-sub008/internal/builders"
	"github.com/syed-c/standzon-sub008/internal/notification/outbox"
	"github.com/syed-c/standzon-sub008/internal/notification/provider"
	"github.com/syed-c/standzon-sub008/platform/config"
	"github.com/syed-c/standzon-sub008/platform/logger"

	"github.com/alicebob/miniredis/v2"
)

func testConfig() *config.Config {
	return &config.Config{
		EmailFromAddress:         "leads@expo.test",
		NotifyMaxAttempts:        3,
		NotifyBaseBackoff:        time.Second,
		NotifyJobTTL:             72 * time.Hour,
		NotifyGlobalHourlyLimit:  100,
		NotifyBuilderHourlyLimit: 10,
	}
}

func TestNewWithoutProvidersLogsBothChannels(t *testing.T) {
	sender, err := buildSender(testConfig(), logger.Discard())
	if err != nil {
		t.Fatalf("build sender: %v", err)
	}
	for _, ch := range []builders.Channel{builders.ChannelEmail, builders.ChannelSMS} {
		receipt, err := sender.Send(context.Background(), provider.Message{
			Channel:    ch,
			Recipient:  "someone",
			TemplateID: provider.TemplateNewLead,
			Payload:    map[string]any{"exhibition": "IFA", "city": "Berlin"},
		})
		if err != nil {
			t.Fatalf("send %s: %v", ch, err)
		}
		if !strings.HasPrefix(receipt.DeliveryID, "log-") {
			t.Fatalf("expected log receipt for %s, got %q", ch, receipt.DeliveryID)
		}
	}
}

func TestNewBuildsDispatcherWithMemoryLimiter(t *testing.T) {
	m, err := New(Deps{Jobs: outbox.NewMemory(), Directory: builders.NewMemoryDirectory(), Config: testConfig()})
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	if m.Dispatcher() == nil {
		t.Fatal("expected dispatcher")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close without redis: %v", err)
	}
}

func TestNewConnectsRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	m, err := New(Deps{Jobs: outbox.NewMemory(), Directory: builders.NewMemoryDirectory(), Config: cfg})
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	if m.redis == nil {
		t.Fatal("expected redis client")
	}
	if err := m.redis.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewRejectsBadRedisURL(t *testing.T) {
	cfg := testConfig()
	cfg.RedisURL = "://nope"
	if _, err := New(Deps{Jobs: outbox.NewMemory(), Config: cfg}); err == nil {
		t.Fatal("expected error for malformed redis url")
	}
}

func TestCloseIsNilSafe(t *testing.T) {
	var m *Module
	if err := m.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
